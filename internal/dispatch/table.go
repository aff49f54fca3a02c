//go:build linux

// Package dispatch exposes the operations table spec §6 says the generic
// virtualization dispatch layer consumes, in the idiom of the teacher's
// drivers.DriverPlugin: a struct of bound operations built from a live
// Driver, rather than an RPC-plugin interface (this core has no host
// process driving such an RPC, unlike a Nomad client).
package dispatch

import (
	"github.com/google/uuid"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/driver"
)

// Table is the set of dispatch operations this core implements: the sixteen
// operation methods below plus the ActiveCheck state-driver callback. Every
// other dispatch operation is absent; a caller probing for one should treat
// a missing Table method as "unsupported", matching spec §6's dispatch-layer
// contract.
type Table struct {
	d *driver.Driver
}

// NewTable builds a dispatch Table bound to a started Driver.
func NewTable(d *driver.Driver) *Table {
	return &Table{d: d}
}

// ListRunningIDs is the "list running ids (cap n)" operation.
func (t *Table) ListRunningIDs(ids []int) int { return t.d.ListRunningIDs(ids) }

// NumOfDomains is the "count running" operation.
func (t *Table) NumOfDomains() int { return t.d.NumOfDomains() }

// CreateXML is the "create-and-start from XML" operation.
func (t *Table) CreateXML(xml []byte) (*domain.Record, error) { return t.d.CreateXML(xml) }

// LookupByID is the "lookup by id" operation.
func (t *Table) LookupByID(id int) (*domain.Record, error) { return t.d.LookupByID(id) }

// LookupByUUID is the "lookup by uuid" operation.
func (t *Table) LookupByUUID(id uuid.UUID) (*domain.Record, error) { return t.d.LookupByUUID(id) }

// LookupByName is the "lookup by name" operation.
func (t *Table) LookupByName(name string) (*domain.Record, error) { return t.d.LookupByName(name) }

// Shutdown is the "shutdown" operation (soft; does not wait).
func (t *Table) Shutdown(rec *domain.Record) error { return t.d.ShutdownDomain(rec) }

// Destroy is the "destroy" operation (forced; reaps).
func (t *Table) Destroy(rec *domain.Record) error { return t.d.Destroy(rec) }

// GetOSType is the "get OS type" operation.
func (t *Table) GetOSType() string { return t.d.GetOSType() }

// GetInfo is the "get info" operation.
func (t *Table) GetInfo(rec *domain.Record) driver.Info { return t.d.Info(rec) }

// DumpXML is the "dump XML" operation.
func (t *Table) DumpXML(rec *domain.Record) (string, error) { return t.d.DumpXML(rec) }

// ListDefinedNames is the "list defined names (cap n)" operation.
func (t *Table) ListDefinedNames(names []string) int { return t.d.ListDefinedNames(names) }

// NumOfDefinedDomains is the "count defined" operation.
func (t *Table) NumOfDefinedDomains() int { return t.d.NumOfDefinedDomains() }

// StartFromHandle is the "start from handle" operation: start a domain
// that has already been define()d.
func (t *Table) StartFromHandle(rec *domain.Record) error { return t.d.Start(rec) }

// DefineXML is the "define" operation.
func (t *Table) DefineXML(xml []byte) (*domain.Record, error) { return t.d.DefineXML(xml) }

// UndefineDomain is the "undefine" operation.
func (t *Table) UndefineDomain(rec *domain.Record) error { return t.d.Undefine(rec) }

// ActiveCheck is the state-driver surface's active-check callback (spec
// §6): true iff n_active > 0.
func (t *Table) ActiveCheck() bool { return t.d.IsActive() }
