//go:build linux

package driver

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

func newTestDriver(t *testing.T) (*Driver, *platform.Mock) {
	t.Helper()
	plat := platform.NewMock()
	d, err := NewWithPlatform(Config{ConfigDir: t.TempDir(), DisableMachined: true}, hclog.NewNullLogger(), plat)
	require.NoError(t, err)
	return d, plat
}

func sampleXML(name string) []byte {
	return []byte(`<domain>
  <name>` + name + `</name>
  <uuid>` + uuid.New().String() + `</uuid>
  <memory unit="KiB">65536</memory>
</domain>`)
}

func TestDriverDefineStartLookupDestroy(t *testing.T) {
	d, _ := newTestDriver(t)

	rec, err := d.DefineXML(sampleXML("web1"))
	require.NoError(t, err)
	require.Equal(t, 1, d.NumOfDefinedDomains())
	require.Equal(t, 0, d.NumOfDomains())

	require.NoError(t, d.Start(rec))
	require.Equal(t, 1, d.NumOfDomains())
	require.True(t, d.IsActive())

	byID, err := d.LookupByID(rec.Definition.ID)
	require.NoError(t, err)
	require.Same(t, rec, byID)

	byName, err := d.LookupByName("web1")
	require.NoError(t, err)
	require.Same(t, rec, byName)

	info := d.Info(rec)
	require.Equal(t, domain.StateRunning, info.State)
	require.Equal(t, uint(1), info.NrVirtCPU)

	require.NoError(t, d.Destroy(rec))
	require.Equal(t, 0, d.NumOfDomains())
	require.False(t, d.IsActive())
}

func TestDriverLookupMissUnknownID(t *testing.T) {
	d, _ := newTestDriver(t)
	_, err := d.LookupByID(99999)
	require.Error(t, err)
}

func TestDriverCreateXMLRollsBackOnStartFailure(t *testing.T) {
	d, plat := newTestDriver(t)
	plat.FailSpawn = true

	_, err := d.CreateXML(sampleXML("broken"))
	require.Error(t, err)

	_, lookupErr := d.LookupByName("broken")
	require.Error(t, lookupErr, "CreateXML must undefine on start failure")
}

func TestDriverDumpXMLRoundTrips(t *testing.T) {
	d, _ := newTestDriver(t)
	rec, err := d.DefineXML(sampleXML("dumpme"))
	require.NoError(t, err)

	s, err := d.DumpXML(rec)
	require.NoError(t, err)
	require.Contains(t, s, "dumpme")
}

func TestDriverShutdownReportsStillActiveWithoutKilling(t *testing.T) {
	d, _ := newTestDriver(t)
	rec, err := d.DefineXML(sampleXML("stays-up"))
	require.NoError(t, err)
	require.NoError(t, d.Start(rec))

	require.Equal(t, 1, d.Shutdown())
	require.True(t, d.IsActive(), "Shutdown must not kill running domains")
}

func TestDriverGetOSType(t *testing.T) {
	d, _ := newTestDriver(t)
	require.Equal(t, "linux", d.GetOSType())
}
