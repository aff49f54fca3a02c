//go:build linux

package connectiongate

import (
	"os"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/lcdriver/lcdriverd/internal/driver"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

func TestProbeReflectsCapability(t *testing.T) {
	supported := platform.NewMock()
	uri, ok := Probe(supported)
	require.True(t, ok)
	require.Equal(t, "lcdriver:///", uri)

	unsupported := platform.NewMock()
	unsupported.NamespacesSupported = false
	_, ok = Probe(unsupported)
	require.False(t, ok)
}

func TestOpenDeclinesWrongScheme(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Open's superuser check requires root")
	}
	d, err := driver.NewWithPlatform(
		driver.Config{ConfigDir: t.TempDir(), DisableMachined: true},
		hclog.NewNullLogger(),
		platform.NewMock(),
	)
	require.NoError(t, err)

	accepted, err := Open(d, "qemu:///system")
	require.NoError(t, err)
	require.False(t, accepted)

	accepted, err = Open(d, CanonicalURI())
	require.NoError(t, err)
	require.True(t, accepted)
}

func TestOpenDeclinesNilDriver(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Open's superuser check requires root")
	}
	accepted, err := Open(nil, CanonicalURI())
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestOpenRejectsUnparseableURI(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("Open's superuser check requires root")
	}
	d, err := driver.NewWithPlatform(
		driver.Config{ConfigDir: t.TempDir(), DisableMachined: true},
		hclog.NewNullLogger(),
		platform.NewMock(),
	)
	require.NoError(t, err)

	_, err = Open(d, "://bad")
	require.Error(t, err)
}
