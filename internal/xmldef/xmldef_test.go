package xmldef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/lcdriver/lcdriverd/internal/domain"
)

func TestParseDumpRoundTrip(t *testing.T) {
	id := uuid.New()
	xmlStr := `<domain>
  <name>web1</name>
  <uuid>` + id.String() + `</uuid>
  <memory unit="KiB">262144</memory>
  <devices><console>/dev/pts/7</console></devices>
  <rootAndMounts>{&#34;rootfs&#34;:&#34;/srv/web1&#34;,&#34;entrypoint&#34;:[&#34;/bin/web&#34;]}</rootAndMounts>
</domain>`

	def, err := Parse([]byte(xmlStr))
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "web1" {
		t.Error("name parsed wrongly")
	}
	if def.UUID != id {
		t.Error("uuid parsed wrongly")
	}
	if def.MaxMemory != 262144 {
		t.Error("memory parsed wrongly")
	}
	if def.TTYPath != "/dev/pts/7" {
		t.Error("tty path parsed wrongly")
	}
	if def.ID != -1 {
		t.Error("id should always be -1 on parse")
	}
	wantRootAndMounts := `{"rootfs":"/srv/web1","entrypoint":["/bin/web"]}`
	if string(def.RootAndMounts) != wantRootAndMounts {
		t.Errorf("rootAndMounts parsed wrongly, got %q", def.RootAndMounts)
	}

	out, err := Dump(def)
	if err != nil {
		t.Fatal(err)
	}
	t.Log(out)

	reparsed, err := Parse([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if reparsed.Name != def.Name {
		t.Error("name did not round-trip")
	}
	if reparsed.UUID != def.UUID {
		t.Error("uuid did not round-trip")
	}
	if reparsed.MaxMemory != def.MaxMemory {
		t.Error("memory did not round-trip")
	}
	if reparsed.TTYPath != def.TTYPath {
		t.Error("tty path did not round-trip")
	}
	if string(reparsed.RootAndMounts) != string(def.RootAndMounts) {
		t.Errorf("rootAndMounts did not round-trip, got %q want %q", reparsed.RootAndMounts, def.RootAndMounts)
	}
}

func TestParseMissingUUIDGeneratesOne(t *testing.T) {
	def, err := Parse([]byte(`<domain><name>noid</name></domain>`))
	if err != nil {
		t.Fatal(err)
	}
	if def.UUID == uuid.Nil {
		t.Error("missing uuid should have been generated, got nil uuid")
	}
}

func TestParseMissingNameRejected(t *testing.T) {
	_, err := Parse([]byte(`<domain><uuid>` + uuid.New().String() + `</uuid></domain>`))
	if err == nil {
		t.Error("expected an error for a domain with no name")
	}
}

func TestParseInvalidUUIDRejected(t *testing.T) {
	_, err := Parse([]byte(`<domain><name>a</name><uuid>not-a-uuid</uuid></domain>`))
	if err == nil {
		t.Error("expected an error for an invalid uuid")
	}
}

func TestStoreSaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	def := &domain.Definition{Name: "c1", UUID: uuid.New(), ID: -1, MaxMemory: 1024}
	path, err := store.Save(def)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "c1.xml"); path != want {
		t.Errorf("save returned path %q, want %q", path, want)
	}

	defs, paths, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || len(paths) != 1 {
		t.Fatalf("got %d defs and %d paths, want 1 and 1", len(defs), len(paths))
	}
	if defs[0].Name != "c1" {
		t.Error("loaded name mismatch")
	}
	if defs[0].UUID != def.UUID {
		t.Error("loaded uuid mismatch")
	}

	if err := store.Delete(path, "c1"); err != nil {
		t.Fatal(err)
	}
	defs, _, err = Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 0 {
		t.Error("definition still present after delete")
	}
}

func TestStoreDeleteMissingFileIsNotAnError(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Delete(filepath.Join(store.Dir, "ghost.xml"), "ghost"); err != nil {
		t.Error(err)
	}
	if err := store.Delete("", "empty-path"); err != nil {
		t.Error(err)
	}
}

func TestLoadMissingDirIsNotAnError(t *testing.T) {
	defs, paths, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if defs != nil || paths != nil {
		t.Error("expected nil slices for a missing directory")
	}
}

func TestLoadSkipsNonXMLFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Save(&domain.Definition{Name: "c1", UUID: uuid.New(), ID: -1}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0600); err != nil {
		t.Fatal(err)
	}

	defs, _, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 {
		t.Errorf("got %d defs, want 1", len(defs))
	}
}
