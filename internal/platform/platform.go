// Package platform isolates every raw syscall surface the lifecycle
// controller depends on — namespace creation, pty allocation, signal
// delivery, and process reaping — behind small typed shims, per spec §9.
// The controller is tested against the Mock implementation in mock.go; the
// Linux implementation in linux.go backs production builds.
package platform

// EntryFunc is the container entry routine collaborator: the first code run
// inside the namespaced child. Its return value becomes the child's exit
// status; the spawner only observes that exit via Wait.
type EntryFunc func(arg interface{}) int

// Platform is the narrow contract the lifecycle controller programs
// against. Every method has no hidden state beyond what's passed in.
type Platform interface {
	// SupportsNamespaces probes whether the kernel accepts the namespace
	// flag union this driver requires (spec §4.2).
	SupportsNamespaces() bool

	// OpenExistingPTY opens a pre-existing slave pty path read/write,
	// non-blocking, without acquiring a controlling terminal, and returns
	// its fd plus the canonical slave name reported by the kernel.
	OpenExistingPTY(path string) (fd int, slaveName string, err error)

	// AllocatePTY opens a fresh master/slave pty pair and returns the
	// master fd and the slave's pathname.
	AllocatePTY() (fd int, slaveName string, err error)

	// SetRaw switches fd (a pty master) to raw termina discipline: no
	// echo, no canonicalization, 8-bit clean, no signal generation.
	SetRaw(fd int) error

	// ClosePTY closes a pty fd. -1 is accepted as a no-op.
	ClosePTY(fd int) error

	// Spawn clones a new child with the given namespace flags, running
	// entry(arg) as the first code in the child. Returns the host-visible
	// pid and a release func that frees the child's stack allocation;
	// callers must call release only after the pid has been reaped (spec
	// §9's "child stack ownership").
	Spawn(entry EntryFunc, arg interface{}, flags uintptr) (pid int, release func(), err error)

	// ForkForwarder forks a plain child (no namespace flags) that runs fn
	// and never returns to the parent. Returns the child's host pid and a
	// release func with the same "call only after reaped" contract as
	// Spawn's.
	ForkForwarder(fn func()) (pid int, release func(), err error)

	// Signal sends sig to pid. "No such process" is reported via
	// ErrNoSuchProcess so callers can treat it as already-gone.
	Signal(pid int, sig Signal) error

	// Wait blocks for pid to exit, restarting across EINTR. It returns the
	// pid actually reaped (normally == pid) or an error.
	Wait(pid int) (reaped int, err error)
}

// Signal is the narrow set of signals this core sends.
type Signal int

const (
	// SigInterrupt requests a soft, catchable shutdown (spec's "interrupt
	// signal"; see DESIGN.md for the INT-vs-TERM decision).
	SigInterrupt Signal = iota
	// SigKill forces termination.
	SigKill
)

// ErrNoSuchProcess is a sentinel so Signal callers can recognize
// "target already gone" without string-matching platform-specific errors.
var ErrNoSuchProcess = &procError{"no such process"}

type procError struct{ s string }

func (e *procError) Error() string { return e.s }
