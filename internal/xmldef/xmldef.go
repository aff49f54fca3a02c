// Package xmldef is the concrete default for spec §6's definition
// parser/writer collaborator contracts: parse(xml) -> DomainDefinition,
// save(dir, record) -> path, delete(path, name) -> ok, and the dump-to-xml
// path used by the driver surface's dump() operation.
package xmldef

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lcdriver/lcdriverd/internal/domain"
)

// wireDomain is the on-disk/wire shape. The container entry routine's
// configuration (rootfs, entrypoint) is carried as an opaque JSON blob
// inside a dedicated <rootAndMounts> element, so this package never needs
// to understand its shape — it only has to round-trip the element's
// character data intact.
type wireDomain struct {
	XMLName xml.Name `xml:"domain"`
	Name    string   `xml:"name"`
	UUID    string   `xml:"uuid"`
	Memory  wireMemory `xml:"memory"`
	TTYPath string   `xml:"devices>console,omitempty"`

	RootAndMounts string `xml:"rootAndMounts,omitempty"`
}

type wireMemory struct {
	Unit  string `xml:"unit,attr"`
	Value uint64 `xml:",chardata"`
}

// Parse implements the "Definition parser" collaborator contract: it turns
// raw XML bytes into a DomainDefinition. The returned definition's ID is
// always -1 (runtime-assigned only) regardless of what, if anything, was
// in the XML.
func Parse(data []byte) (*domain.Definition, error) {
	var w wireDomain
	if err := xml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse domain xml: %w", err)
	}
	if w.Name == "" {
		return nil, fmt.Errorf("parse domain xml: missing or empty <name>")
	}
	id, err := parseUUID(w.UUID)
	if err != nil {
		return nil, err
	}
	return &domain.Definition{
		Name:          w.Name,
		UUID:          id,
		ID:            -1,
		MaxMemory:     w.Memory.Value,
		TTYPath:       w.TTYPath,
		RootAndMounts: []byte(w.RootAndMounts),
	}, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse domain xml: invalid uuid %q: %w", s, err)
	}
	return id, nil
}

// Dump implements the "dump" collaborator contract: it re-serializes a
// DomainDefinition into a freshly owned XML string.
func Dump(def *domain.Definition) (string, error) {
	w := toWire(def)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(w); err != nil {
		return "", fmt.Errorf("dump domain xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

func toWire(def *domain.Definition) wireDomain {
	return wireDomain{
		Name:          def.Name,
		UUID:          def.UUID.String(),
		Memory:        wireMemory{Unit: "KiB", Value: def.MaxMemory},
		TTYPath:       def.TTYPath,
		RootAndMounts: string(def.RootAndMounts),
	}
}

// Store persists domain definitions as one XML file per domain under Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir. The caller is responsible for
// ensuring dir exists.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Save writes rec's definition to "<name>.xml" under the store directory,
// atomically (write to a temp file, then rename), and returns the path.
func (s *Store) Save(def *domain.Definition) (string, error) {
	xmlStr, err := Dump(def)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, def.Name+".xml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(xmlStr), 0600); err != nil {
		return "", fmt.Errorf("save domain definition: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("save domain definition: %w", err)
	}
	return path, nil
}

// Delete removes the on-disk definition at path. A missing file is not an
// error — consistent with spec §7's "missing target is not an error"
// policy applied uniformly to this collaborator.
func (s *Store) Delete(path, name string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete domain definition %s: %w", name, err)
	}
	return nil
}

// Load parses every "*.xml" file directly under dir, for startup recovery
// of previously-defined (but not running) domains.
func Load(dir string) ([]*domain.Definition, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load domain definitions: %w", err)
	}
	var defs []*domain.Definition
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".xml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("load domain definitions: %w", err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, nil, fmt.Errorf("load domain definitions: %s: %w", path, err)
		}
		defs = append(defs, def)
		paths = append(paths, path)
	}
	return defs, paths, nil
}
