package lifecycle

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/errs"
	"github.com/lcdriver/lcdriverd/internal/machined"
	"github.com/lcdriver/lcdriverd/internal/nsspawn"
	"github.com/lcdriver/lcdriverd/internal/platform"
	"github.com/lcdriver/lcdriverd/internal/pty"
	"github.com/lcdriver/lcdriverd/internal/registry"
)

// memStore is an in-memory Store double so lifecycle tests never touch the
// filesystem.
type memStore struct {
	saved  map[string]*domain.Definition
	failOn string // domain name that fails Save, for rollback tests
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*domain.Definition)}
}

func (m *memStore) Save(def *domain.Definition) (string, error) {
	if def.Name == m.failOn {
		return "", errs.New(errs.KindInternalError, "injected save failure")
	}
	m.saved[def.Name] = def
	return "/mock/" + def.Name + ".xml", nil
}

func (m *memStore) Delete(path, name string) error {
	delete(m.saved, name)
	return nil
}

func testEntry(rec *domain.Record) int { return 0 }

func newTestController(t *testing.T) (*Controller, *registry.Registry, *platform.Mock, *memStore) {
	t.Helper()
	reg := registry.New()
	store := newMemStore()
	plat := platform.NewMock()
	log := hclog.NewNullLogger()
	tunnel := pty.New(plat, log)
	spawner := nsspawn.New(plat, log)
	machine := machined.New(log) // dials real dbus; swallows failure, safe in CI
	ctrl := New(reg, store, tunnel, spawner, plat, machine, testEntry, log)
	return ctrl, reg, plat, store
}

func newDef(name string) *domain.Definition {
	return &domain.Definition{Name: name, UUID: uuid.New(), ID: -1}
}

func TestDefineStartDestroy(t *testing.T) {
	ctrl, reg, _, store := newTestController(t)

	rec, err := ctrl.Define(newDef("c1"))
	require.NoError(t, err)
	require.Equal(t, -1, rec.Definition.ID)
	require.Equal(t, 1, reg.NumInactive())
	require.Contains(t, store.saved, "c1")

	require.NoError(t, ctrl.Start(rec))
	require.Equal(t, domain.StateRunning, rec.State)
	require.GreaterOrEqual(t, rec.Definition.ID, 0)
	require.Equal(t, 1, reg.NumActive())

	require.NoError(t, ctrl.Destroy(rec))
	require.Equal(t, domain.StateShutOff, rec.State)
	require.Equal(t, -1, rec.Definition.ID)
	require.Equal(t, 1, reg.NumInactive())
	require.Equal(t, 0, reg.NumActive())
	require.Equal(t, -1, rec.ParentTTYFd)
	require.Equal(t, -1, rec.ContainerTTYFd)
	require.Equal(t, -1, rec.ForwarderPID)
}

func TestUndefineWhileRunningRejected(t *testing.T) {
	ctrl, reg, _, _ := newTestController(t)

	rec, err := ctrl.Define(newDef("c1"))
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(rec))

	err = ctrl.Undefine(rec)
	require.Error(t, err)
	var derr *errs.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, errs.KindInternalError, derr.Kind)
	require.Equal(t, 1, reg.NumActive())

	require.NoError(t, ctrl.Destroy(rec))
	require.NoError(t, ctrl.Undefine(rec))
	require.Equal(t, 0, reg.NumInactive())
}

func TestDestroyIsIdempotent(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	rec, err := ctrl.Define(newDef("c1"))
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(rec))
	require.NoError(t, ctrl.Destroy(rec))

	// Second destroy on an already SHUT_OFF record is a safe no-op.
	require.NoError(t, ctrl.Destroy(rec))
	require.Equal(t, domain.StateShutOff, rec.State)
	require.Equal(t, -1, rec.Definition.ID)
}

func TestShutdownThenDestroyConverges(t *testing.T) {
	ctrl, _, plat, _ := newTestController(t)

	rec, err := ctrl.Define(newDef("c1"))
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(rec))

	require.NoError(t, ctrl.Shutdown(rec))
	require.Equal(t, domain.StateShuttingDown, rec.State)

	// Container ignores SIGINT (mock doesn't mark it dead on SigInterrupt);
	// destroy() must still force termination.
	pid := rec.Definition.ID
	require.True(t, plat.Alive[pid])
	require.NoError(t, ctrl.Destroy(rec))
	require.Equal(t, domain.StateShutOff, rec.State)
	require.False(t, plat.Alive[pid])
}

func TestStartRollsBackOnSpawnFailure(t *testing.T) {
	ctrl, reg, plat, _ := newTestController(t)
	plat.FailSpawn = true

	def := newDef("c1")
	def.TTYPath = "/dev/pts/fake-host" // non-empty so a host-side master is opened too
	rec, err := ctrl.Define(def)
	require.NoError(t, err)

	err = ctrl.Start(rec)
	require.Error(t, err)
	require.Equal(t, domain.StateOff, rec.State)
	require.Equal(t, -1, rec.Definition.ID)
	require.Equal(t, 0, reg.NumActive())
	require.Equal(t, 1, reg.NumInactive())
	require.Equal(t, -1, rec.ContainerTTYFd)
	// Both the host-side and container-side pty fds must have been closed
	// during rollback.
	require.GreaterOrEqual(t, len(plat.ClosedFds), 2)
}

func TestStartRollsBackOnForwarderFailure(t *testing.T) {
	ctrl, reg, plat, _ := newTestController(t)
	plat.FailForkForwarder = true

	def := newDef("c1")
	def.TTYPath = "/dev/pts/fake-host" // non-empty so a host-side master (and thus a forwarder attempt) exists
	rec, err := ctrl.Define(def)
	require.NoError(t, err)

	err = ctrl.Start(rec)
	require.Error(t, err)
	require.Equal(t, domain.StateOff, rec.State)
	require.Equal(t, 0, reg.NumActive())
	require.Equal(t, -1, rec.ContainerTTYFd)
}

func TestDefineDuplicateRegistryUnchanged(t *testing.T) {
	ctrl, reg, _, _ := newTestController(t)
	def := newDef("dup")
	_, err := ctrl.Define(def)
	require.NoError(t, err)

	dup := &domain.Definition{Name: "dup", UUID: uuid.New(), ID: -1}
	_, err = ctrl.Define(dup)
	require.Error(t, err)
	require.Equal(t, 1, reg.NumInactive())
}

func TestActiveCountReturnsToPreStartValue(t *testing.T) {
	ctrl, reg, _, _ := newTestController(t)
	rec, err := ctrl.Define(newDef("c1"))
	require.NoError(t, err)

	before := reg.NumActive()
	require.NoError(t, ctrl.Start(rec))
	require.NoError(t, ctrl.Destroy(rec))
	after := reg.NumActive()

	require.Equal(t, before, after)
	require.Equal(t, 1, reg.NumInactive())
}
