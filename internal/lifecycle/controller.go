// Package lifecycle implements the domain state machine from spec §4.5:
// define, undefine, start, shutdown, and destroy, orchestrating the
// registry, the pty tunnel, and the namespace spawner.
package lifecycle

import (
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/errs"
	"github.com/lcdriver/lcdriverd/internal/machined"
	"github.com/lcdriver/lcdriverd/internal/nsspawn"
	"github.com/lcdriver/lcdriverd/internal/platform"
	"github.com/lcdriver/lcdriverd/internal/pty"
	"github.com/lcdriver/lcdriverd/internal/registry"
)

// Store is the persistence collaborator contract from spec §6: save a
// definition and return its path, delete a definition by path.
type Store interface {
	Save(def *domain.Definition) (string, error)
	Delete(path, name string) error
}

// Controller owns the lifecycle transitions over records in reg.
type Controller struct {
	reg     *registry.Registry
	store   Store
	tunnel  *pty.Tunnel
	spawner *nsspawn.Spawner
	plat    platform.Platform
	machine *machined.Publisher
	entry   nsspawn.ContainerEntry
	log     hclog.Logger

	mu       sync.Mutex
	releases map[int]func() // pid -> child-stack release func, per spec §9
}

// New returns a Controller wired to its collaborators. entry is the
// container entry routine used for every Start call.
func New(reg *registry.Registry, store Store, tunnel *pty.Tunnel, spawner *nsspawn.Spawner, plat platform.Platform, machine *machined.Publisher, entry nsspawn.ContainerEntry, log hclog.Logger) *Controller {
	return &Controller{
		reg:      reg,
		store:    store,
		tunnel:   tunnel,
		spawner:  spawner,
		plat:     plat,
		machine:  machine,
		entry:    entry,
		log:      log.Named("lifecycle"),
		releases: make(map[int]func()),
	}
}

// Define inserts a new inactive record and persists its definition. On
// persist failure the insert is rolled back, per spec §4.5.
func (c *Controller) Define(def *domain.Definition) (*domain.Record, error) {
	rec := domain.NewRecord(def)
	if err := c.reg.Insert(rec); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, "define domain", err)
	}

	path, err := c.store.Save(def)
	if err != nil {
		c.reg.Remove(rec)
		return nil, errs.Wrap(errs.KindInternalError, "persist domain definition", err)
	}
	rec.ConfigPath = path
	return rec, nil
}

// Undefine removes a non-running record and its on-disk definition. It is
// an error to undefine a RUNNING domain.
func (c *Controller) Undefine(rec *domain.Record) error {
	if rec.State == domain.StateRunning {
		return errs.New(errs.KindInternalError, "cannot delete active domain")
	}
	if err := c.store.Delete(rec.ConfigPath, rec.Definition.Name); err != nil {
		return errs.Wrap(errs.KindInternalError, "undefine domain", err)
	}
	c.reg.Remove(rec)
	return nil
}

// Start brings rec from OFF to RUNNING: host-side pty setup, container-side
// pty setup, forwarder fork, namespace spawn, persist, then registry
// activation. Any failure before the spawner succeeds releases whatever
// was allocated so far and leaves rec in OFF, per spec §4.5.
func (c *Controller) Start(rec *domain.Record) error {
	parentFd, err := c.tunnel.SetupHostSide(rec.Definition)
	if err != nil {
		return errs.Wrap(errs.KindInternalError, "start domain: host-side pty", err)
	}

	containerFd, slaveName, err := c.tunnel.SetupContainerSide()
	if err != nil {
		c.tunnel.Close(parentFd)
		return errs.Wrap(errs.KindInternalError, "start domain: container-side pty", err)
	}
	rec.ContainerTTYFd = containerFd
	rec.ContainerTTYName = slaveName

	forwarderPID, forwarderRelease, err := c.tunnel.StartForwarder(parentFd, containerFd)
	if err != nil {
		// Pty setup succeeded but fork failed: close both fds before
		// returning, per spec §4.5's tie-break.
		c.tunnel.Close(parentFd)
		c.tunnel.Close(containerFd)
		rec.ContainerTTYFd = -1
		return errs.Wrap(errs.KindInternalError, "start domain: fork forwarder", err)
	}

	pid, spawnRelease, err := c.spawner.Spawn(rec, c.entry)
	if err != nil {
		if forwarderPID >= 0 {
			_ = c.plat.Signal(forwarderPID, platform.SigKill)
			if _, waitErr := c.plat.Wait(forwarderPID); waitErr == nil && forwarderRelease != nil {
				forwarderRelease()
			}
		}
		c.tunnel.Close(parentFd)
		c.tunnel.Close(containerFd)
		rec.ContainerTTYFd = -1
		return errs.Wrap(errs.KindInternalError, "start domain: spawn namespaced child", err)
	}

	// Both pty fds stay open on the record per the data model: the
	// forwarder inherited its own copies via fork-before-clone ordering, and
	// the record's copies are what destroy() closes later.
	rec.Definition.ID = pid
	rec.ParentTTYFd = parentFd
	rec.ForwarderPID = forwarderPID

	c.mu.Lock()
	if spawnRelease != nil {
		c.releases[pid] = spawnRelease
	}
	if forwarderPID >= 0 && forwarderRelease != nil {
		c.releases[forwarderPID] = forwarderRelease
	}
	c.mu.Unlock()

	if _, err := c.store.Save(rec.Definition); err != nil {
		c.log.Warn("start domain: failed to persist assigned id, continuing", "domain", rec.Definition.Name, "error", err)
	}

	rec.State = domain.StateRunning
	c.reg.Activate(rec)
	c.machine.Register(rec)
	return nil
}

// Shutdown asks a running domain's init to exit but does not wait for it.
// A missing target process is not an error, per spec §7.
func (c *Controller) Shutdown(rec *domain.Record) error {
	err := c.plat.Signal(rec.Definition.ID, platform.SigInterrupt)
	if err != nil && err != platform.ErrNoSuchProcess {
		return errs.Wrap(errs.KindInternalError, "sending SIGINT failed", err)
	}
	rec.State = domain.StateShuttingDown
	return nil
}

// Destroy forces termination and reconciles bookkeeping. It always
// converges to SHUT_OFF, even if intermediate waits error, per spec §4.5
// and §7. Idempotent: calling it again on an already SHUT_OFF record is a
// safe no-op.
func (c *Controller) Destroy(rec *domain.Record) error {
	var firstErr error

	if rec.Definition.ID >= 0 {
		if err := c.killAndReap(rec.Definition.ID); err != nil {
			firstErr = err
		}
	}
	if rec.ForwarderPID >= 0 {
		if err := c.killAndReap(rec.ForwarderPID); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.tunnel.Close(rec.ParentTTYFd)
	c.tunnel.Close(rec.ContainerTTYFd)
	rec.ParentTTYFd = -1
	rec.ContainerTTYFd = -1
	rec.ForwarderPID = -1

	oldID := rec.Definition.ID
	rec.Definition.ID = -1
	wasActive := rec.State == domain.StateRunning || rec.State == domain.StateShuttingDown
	rec.State = domain.StateShutOff
	if wasActive {
		c.reg.Deactivate(rec, oldID)
	}
	c.machine.Unregister(rec)

	if firstErr != nil {
		return errs.Wrap(errs.KindInternalError, "destroy domain: reap reported an error but bookkeeping is reconciled", firstErr)
	}
	return nil
}

// killAndReap sends SIGKILL (ignoring "no such process") and waits for pid,
// restarting the wait across signal interruption. If the wait reaps a
// different pid than expected, it is reported but the caller still
// continues per spec §4.5.
func (c *Controller) killAndReap(pid int) error {
	if err := c.plat.Signal(pid, platform.SigKill); err != nil && err != platform.ErrNoSuchProcess {
		return err
	}
	reaped, err := c.plat.Wait(pid)
	if err == nil {
		c.mu.Lock()
		if release := c.releases[pid]; release != nil {
			release()
		}
		delete(c.releases, pid)
		c.mu.Unlock()
	}
	if err != nil {
		return err
	}
	if reaped != pid {
		return errs.New(errs.KindInternalError, "wait reaped an unexpected pid")
	}
	return nil
}
