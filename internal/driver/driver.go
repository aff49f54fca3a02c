// Package driver wires the registry, lifecycle controller, and their
// collaborators into the Driver surface described in spec §4.6: the
// dispatch operations a generic virtualization layer calls into.
//go:build linux

package driver

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/google/uuid"

	"github.com/lcdriver/lcdriverd/internal/capprobe"
	"github.com/lcdriver/lcdriverd/internal/containerinit"
	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/errs"
	"github.com/lcdriver/lcdriverd/internal/lifecycle"
	"github.com/lcdriver/lcdriverd/internal/machined"
	"github.com/lcdriver/lcdriverd/internal/nsspawn"
	"github.com/lcdriver/lcdriverd/internal/platform"
	"github.com/lcdriver/lcdriverd/internal/pty"
	"github.com/lcdriver/lcdriverd/internal/registry"
	"github.com/lcdriver/lcdriverd/internal/xmldef"
)

// defaultEntry is the container entry routine wired in for every domain
// this driver starts; see internal/containerinit for its scope and limits.
var defaultEntry nsspawn.ContainerEntry = containerinit.Entry

// Tag is the lowercase driver name used both as the URI scheme and as the
// service name reported to systemd-machined.
const Tag = "lcdriver"

// OSType is the constant this core reports for every domain (spec §4.6).
const OSType = "linux"

// Config is the process startup configuration (spec §3 "DriverConfig").
type Config struct {
	// ConfigDir is where domain definitions are persisted, one XML file
	// per domain.
	ConfigDir string
	// DisableMachined turns off best-effort systemd-machined registration.
	DisableMachined bool
}

// Driver is the process-wide singleton owning the registry, the
// configuration directory, and loaded state (spec §3).
type Driver struct {
	cfg   Config
	log   hclog.Logger
	reg   *registry.Registry
	store *xmldef.Store
	ctrl  *lifecycle.Controller
	plat  platform.Platform
}

// Startup creates the singleton Driver. The caller must be superuser and
// the kernel must support the required namespace flags (spec §4.1/§6); both
// preconditions are checked here, and Startup declines (returns an error,
// not a panic) to create the singleton if either fails.
func Startup(cfg Config, log hclog.Logger) (*Driver, error) {
	if os.Geteuid() != 0 {
		return nil, errs.New(errs.KindInternalError, "startup requires superuser")
	}

	plat := platform.NewLinux()
	if !capprobe.Probe(plat) {
		return nil, errs.New(errs.KindInternalError, "kernel does not support required namespace flags")
	}

	return NewWithPlatform(cfg, log, plat)
}

// NewWithPlatform builds the singleton against an already-chosen platform,
// skipping the superuser/capability preconditions Startup checks. Tests use
// it with platform.Mock to exercise the driver surface without a real
// namespace-capable kernel.
func NewWithPlatform(cfg Config, log hclog.Logger, plat platform.Platform) (*Driver, error) {
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, "startup: create config directory", err)
	}

	reg := registry.New()
	store := xmldef.NewStore(cfg.ConfigDir)

	defs, _, err := xmldef.Load(cfg.ConfigDir)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternalError, "startup: load persisted definitions", err)
	}
	for _, def := range defs {
		rec := domain.NewRecord(def)
		rec.ConfigPath = cfg.ConfigDir + "/" + def.Name + ".xml"
		if err := reg.Insert(rec); err != nil {
			log.Warn("startup: skipping definition with duplicate name/uuid", "name", def.Name, "error", err)
		}
	}

	var machine *machined.Publisher
	if !cfg.DisableMachined {
		machine = machined.New(log)
	}

	tunnel := pty.New(plat, log)
	spawner := nsspawn.New(plat, log)
	ctrl := lifecycle.New(reg, store, tunnel, spawner, plat, machine, defaultEntry, log)

	return &Driver{cfg: cfg, log: log.Named("driver"), reg: reg, store: store, ctrl: ctrl, plat: plat}, nil
}

// Shutdown tears down the singleton. Running containers are not killed —
// the operator is expected to destroy() them first (spec §7/§9's open
// question, resolved here as "preserve the source's behavior"). It reports
// how many domains are still active so the caller can warn.
func (d *Driver) Shutdown() (stillActive int) {
	return d.reg.NumActive()
}

// IsActive reports whether any domain is currently running, for the
// state-driver surface's active-check callback (spec §6).
func (d *Driver) IsActive() bool {
	return d.reg.NumActive() > 0
}

// DefineXML parses xml via the definition parser collaborator and inserts
// a new inactive, persisted record.
func (d *Driver) DefineXML(xmlBytes []byte) (*domain.Record, error) {
	def, err := xmldef.Parse(xmlBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternalError, "define domain", err)
	}
	return d.ctrl.Define(def)
}

// Undefine deletes a non-running domain's persisted definition and removes
// it from the registry.
func (d *Driver) Undefine(rec *domain.Record) error {
	return d.ctrl.Undefine(rec)
}

// Start brings a defined domain to RUNNING.
func (d *Driver) Start(rec *domain.Record) error {
	return d.ctrl.Start(rec)
}

// CreateXML defines and immediately starts a domain in one call, the
// dispatch surface's "create-and-start from XML" operation.
func (d *Driver) CreateXML(xmlBytes []byte) (*domain.Record, error) {
	rec, err := d.DefineXML(xmlBytes)
	if err != nil {
		return nil, err
	}
	if err := d.Start(rec); err != nil {
		_ = d.ctrl.Undefine(rec)
		return nil, err
	}
	return rec, nil
}

// ShutdownDomain asks a running domain to exit softly (soft shutdown, spec §4.5).
func (d *Driver) ShutdownDomain(rec *domain.Record) error {
	return d.ctrl.Shutdown(rec)
}

// Destroy forces a domain to terminate and reconciles its bookkeeping.
func (d *Driver) Destroy(rec *domain.Record) error {
	return d.ctrl.Destroy(rec)
}

// LookupByID finds an active domain by its host pid. Inactive domains
// always miss, since their id is -1.
func (d *Driver) LookupByID(id int) (*domain.Record, error) {
	rec, ok := d.reg.ByID(id)
	if !ok {
		return nil, errs.ErrNoDomain
	}
	return rec, nil
}

// LookupByUUID finds any domain, active or not.
func (d *Driver) LookupByUUID(id uuid.UUID) (*domain.Record, error) {
	rec, ok := d.reg.ByUUID(id)
	if !ok {
		return nil, errs.ErrNoDomain
	}
	return rec, nil
}

// LookupByName finds any domain, active or not.
func (d *Driver) LookupByName(name string) (*domain.Record, error) {
	rec, ok := d.reg.ByName(name)
	if !ok {
		return nil, errs.ErrNoDomain
	}
	return rec, nil
}

// ListRunningIDs fills ids with up to len(ids) running domain pids and
// returns the count written.
func (d *Driver) ListRunningIDs(ids []int) int {
	return d.reg.ListRunning(ids)
}

// ListDefinedNames fills names with up to len(names) non-running domain
// names and returns the count written.
func (d *Driver) ListDefinedNames(names []string) int {
	return d.reg.ListDefined(names)
}

// NumOfDomains returns the number of currently running domains.
func (d *Driver) NumOfDomains() int { return d.reg.NumActive() }

// NumOfDefinedDomains returns the number of currently non-running domains.
func (d *Driver) NumOfDefinedDomains() int { return d.reg.NumInactive() }

// Info is the spec §4.6 info() result: state, memory figures (not
// distinguished from the nominal ceiling, and never measured), a fixed
// single-vcpu count, and untracked cpu time.
type Info struct {
	State     domain.State
	MaxMemory uint64 // the definition's nominal ceiling
	Memory    uint64 // not tracked: always equal to MaxMemory
	NrVirtCPU uint   // fixed at 1; this core has no vcpu concept
	CPUTimeNs uint64 // not tracked: always 0
}

// Info returns rec's reported resource figures.
func (d *Driver) Info(rec *domain.Record) Info {
	return Info{
		State:     rec.State,
		MaxMemory: rec.Definition.MaxMemory,
		Memory:    rec.Definition.MaxMemory,
		NrVirtCPU: 1,
		CPUTimeNs: 0,
	}
}

// DumpXML re-serializes rec's in-memory definition into a freshly owned
// XML string.
func (d *Driver) DumpXML(rec *domain.Record) (string, error) {
	s, err := xmldef.Dump(rec.Definition)
	if err != nil {
		return "", errs.Wrap(errs.KindInternalError, "dump domain", err)
	}
	return s, nil
}

// GetOSType returns the constant this core always reports.
func (d *Driver) GetOSType() string { return OSType }
