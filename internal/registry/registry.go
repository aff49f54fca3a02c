// Package registry is the process-wide index of known domains: lookup by
// id, uuid, and name, plus the active/inactive partition counters described
// in spec §3.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lcdriver/lcdriverd/internal/domain"
)

// Registry indexes DomainRecords concurrently by id (active only), uuid,
// and name. Every record is in exactly one of the active/inactive
// partitions; a record enters the active partition when it starts RUNNING
// and stays there, through SHUTTING_DOWN, until destroy() deactivates it.
type Registry struct {
	mu sync.Mutex

	byName   map[string]*domain.Record
	byUUID   map[uuid.UUID]*domain.Record
	byID     map[int]*domain.Record // active only
	inactive map[*domain.Record]struct{}
	active   map[*domain.Record]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName:   make(map[string]*domain.Record),
		byUUID:   make(map[uuid.UUID]*domain.Record),
		byID:     make(map[int]*domain.Record),
		inactive: make(map[*domain.Record]struct{}),
		active:   make(map[*domain.Record]struct{}),
	}
}

// ErrDuplicate is returned by Insert when the name or uuid already exists.
type ErrDuplicate struct {
	Field string // "name" or "uuid"
	Value string
}

func (e *ErrDuplicate) Error() string {
	return "duplicate " + e.Field + ": " + e.Value
}

// Insert adds a newly defined record to the inactive partition. The record
// must not already be RUNNING. Returns ErrDuplicate if the name or uuid
// collides with an existing record.
func (r *Registry) Insert(rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := rec.Definition.Name
	id := rec.Definition.UUID

	if _, ok := r.byName[name]; ok {
		return &ErrDuplicate{Field: "name", Value: name}
	}
	if _, ok := r.byUUID[id]; ok {
		return &ErrDuplicate{Field: "uuid", Value: id.String()}
	}

	r.byName[name] = rec
	r.byUUID[id] = rec
	r.inactive[rec] = struct{}{}
	return nil
}

// Remove deletes rec from every index. It is a precondition (enforced by
// the lifecycle controller, not here) that rec is not RUNNING.
func (r *Registry) Remove(rec *domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(rec)
}

func (r *Registry) removeLocked(rec *domain.Record) {
	delete(r.byName, rec.Definition.Name)
	delete(r.byUUID, rec.Definition.UUID)
	delete(r.byID, rec.Definition.ID)
	delete(r.inactive, rec)
	delete(r.active, rec)
}

// Activate moves rec from the inactive to the active partition and indexes
// it by id. Callers must have already set rec.Definition.ID and
// rec.State == StateRunning.
func (r *Registry) Activate(rec *domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inactive, rec)
	r.active[rec] = struct{}{}
	r.byID[rec.Definition.ID] = rec
}

// Deactivate moves rec from the active back to the inactive partition and
// drops its id index. Callers must have already reset rec.Definition.ID to
// -1.
func (r *Registry) Deactivate(rec *domain.Record, oldID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, rec)
	delete(r.byID, oldID)
	r.inactive[rec] = struct{}{}
}

// ByID finds an active record by its host pid. Inactive records are never
// found this way since their id is -1.
func (r *Registry) ByID(id int) (*domain.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	return rec, ok
}

// ByUUID finds any record, active or not.
func (r *Registry) ByUUID(id uuid.UUID) (*domain.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byUUID[id]
	return rec, ok
}

// ByName finds any record, active or not.
func (r *Registry) ByName(name string) (*domain.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[name]
	return rec, ok
}

// ListRunning appends up to n running ids to the caller-supplied slice,
// returning the number appended.
func (r *Registry) ListRunning(ids []int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for rec := range r.active {
		if n >= len(ids) {
			break
		}
		ids[n] = rec.Definition.ID
		n++
	}
	return n
}

// ListDefined appends up to n names of non-running domains, returning the
// number appended. Each name is a fresh copy, safe for the caller to retain
// independent of the registry.
func (r *Registry) ListDefined(names []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for rec := range r.inactive {
		if n >= len(names) {
			break
		}
		// Copy so the caller's slice never aliases registry-owned memory.
		names[n] = string([]byte(rec.Definition.Name))
		n++
	}
	return n
}

// NumActive returns the size of the active partition.
func (r *Registry) NumActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// NumInactive returns the size of the inactive partition.
func (r *Registry) NumInactive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inactive)
}

// All returns every record known to the registry, for iteration by
// administrative callers.
func (r *Registry) All() []*domain.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Record, 0, len(r.active)+len(r.inactive))
	for rec := range r.active {
		out = append(out, rec)
	}
	for rec := range r.inactive {
		out = append(out, rec)
	}
	return out
}
