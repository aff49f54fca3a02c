//go:build linux

package dispatch

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lcdriver/lcdriverd/internal/driver"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	d, err := driver.NewWithPlatform(
		driver.Config{ConfigDir: t.TempDir(), DisableMachined: true},
		hclog.NewNullLogger(),
		platform.NewMock(),
	)
	require.NoError(t, err)
	return NewTable(d)
}

func sampleXML(name string) []byte {
	return []byte(`<domain><name>` + name + `</name><uuid>` + uuid.New().String() + `</uuid></domain>`)
}

func TestTableDefineStartListDestroy(t *testing.T) {
	tbl := newTestTable(t)

	rec, err := tbl.DefineXML(sampleXML("t1"))
	require.NoError(t, err)
	require.Equal(t, 1, tbl.NumOfDefinedDomains())

	require.NoError(t, tbl.StartFromHandle(rec))
	require.True(t, tbl.ActiveCheck())
	require.Equal(t, 1, tbl.NumOfDomains())

	ids := make([]int, 8)
	n := tbl.ListRunningIDs(ids)
	require.Equal(t, 1, n)
	require.Equal(t, rec.Definition.ID, ids[0])

	require.NoError(t, tbl.Destroy(rec))
	require.False(t, tbl.ActiveCheck())
}

func TestTableUndefineAndLookupMiss(t *testing.T) {
	tbl := newTestTable(t)
	rec, err := tbl.DefineXML(sampleXML("t2"))
	require.NoError(t, err)

	require.NoError(t, tbl.UndefineDomain(rec))
	_, err = tbl.LookupByName("t2")
	require.Error(t, err)
}

func TestTableCreateXMLAndDumpXML(t *testing.T) {
	tbl := newTestTable(t)
	rec, err := tbl.CreateXML(sampleXML("t3"))
	require.NoError(t, err)
	require.True(t, tbl.ActiveCheck())

	s, err := tbl.DumpXML(rec)
	require.NoError(t, err)
	require.Contains(t, s, "t3")

	require.Equal(t, "linux", tbl.GetOSType())
	require.NoError(t, tbl.Destroy(rec))
}
