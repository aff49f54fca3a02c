// Package domain holds the data model shared by the registry and the
// lifecycle controller: the on-disk definition of a container and the
// in-memory record the driver tracks while it exists.
package domain

import (
	"github.com/google/uuid"
)

// State is a domain's position in the lifecycle state machine described by
// the controller (see lifecycle.Controller).
type State int

const (
	// StateOff is a freshly defined or fully torn down domain: known to the
	// registry, not running, id == -1.
	StateOff State = iota
	// StateRunning means the namespaced init is alive and the id field holds
	// its host pid.
	StateRunning
	// StateShuttingDown means shutdown() has asked the init to exit but no
	// one has reaped it yet.
	StateShuttingDown
	// StateShutOff is the terminal state after destroy() has reconciled
	// bookkeeping; distinct from StateOff only by history.
	StateShutOff
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutOff:
		return "shut off"
	default:
		return "unknown"
	}
}

// Definition is the user-specified configuration of a container domain.
// Everything in RootAndMounts is opaque to this core; it is handed verbatim
// to the container entry routine.
type Definition struct {
	Name      string
	UUID      uuid.UUID
	ID        int // host pid while running, -1 otherwise
	MaxMemory uint64 // KiB, advisory only, never enforced
	TTYPath   string // pre-existing slave pty path; "" means allocate fresh

	// RootAndMounts is opaque configuration consumed only by the container
	// entry routine collaborator (rootfs path, bind mounts, and so on).
	RootAndMounts []byte
}

// Clone returns a deep copy so callers cannot mutate a definition still
// owned by a registry record out from under it.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	cp := *d
	if d.RootAndMounts != nil {
		cp.RootAndMounts = append([]byte(nil), d.RootAndMounts...)
	}
	return &cp
}

// Record is the in-memory lifecycle object the registry indexes. It owns a
// Definition plus the runtime resources allocated while the domain is
// running.
type Record struct {
	Definition *Definition
	State      State

	ParentTTYFd       int // host-side master pty fd while running, else -1
	ContainerTTYFd    int // container-side master pty fd while running, else -1
	ContainerTTYName  string
	ForwarderPID      int // -1 when no forwarder is running
	ConfigPath        string
}

// NewRecord wraps a definition in a freshly inactive record.
func NewRecord(def *Definition) *Record {
	return &Record{
		Definition:     def,
		State:          StateOff,
		ParentTTYFd:    -1,
		ContainerTTYFd: -1,
		ForwarderPID:   -1,
	}
}

// Active reports whether the record is RUNNING. A SHUTTING_DOWN record is
// not Active, although it keeps its id and stays in the registry's active
// partition until destroy().
func (r *Record) Active() bool {
	return r.State == StateRunning
}
