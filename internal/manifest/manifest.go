// Package manifest reads and updates a profile's package.json.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/convoy/pkg/safeio"
)

// FileName is the package manifest looked up in a profile's path
const FileName = "package.json"

// ErrNotFound is returned when a profile has no package manifest
var ErrNotFound = errors.New("package manifest not found")

// Manifest is the subset of package.json the deploy pipeline uses
type Manifest struct {
	Path    string            `json:"-"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Main    string            `json:"main"`
	Scripts map[string]string `json:"scripts"`

	raw []byte
}

// Load reads dir/package.json
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := safeio.ReadFileContained(dir, FileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m := &Manifest{Path: path, raw: data}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// HasScript reports whether the manifest declares a script with that name
func (m *Manifest) HasScript(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.Scripts[name]
	return ok
}

// SetVersion rewrites the top-level version field in place, keeping the
// rest of the file byte-for-byte, and writes it back with its existing
// permissions. Nested "version" keys such as a scripts entry are left alone.
func (m *Manifest) SetVersion(version string) error {
	start, end, err := versionSpan(m.raw)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Path, err)
	}
	quoted, err := json.Marshal(version)
	if err != nil {
		return err
	}
	updated := make([]byte, 0, len(m.raw)+len(quoted))
	updated = append(updated, m.raw[:start]...)
	updated = append(updated, quoted...)
	updated = append(updated, m.raw[end:]...)

	if err := safeio.WriteFilePreservePerms(m.Path, updated); err != nil {
		return fmt.Errorf("write %s: %w", m.Path, err)
	}
	m.raw = updated
	m.Version = version
	return nil
}

// versionSpan locates the byte range of the string literal (quotes
// included) holding the top-level version member. When the key repeats,
// the last one wins, as it does for json.Unmarshal.
func versionSpan(raw []byte) (int, int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return 0, 0, errors.New("manifest is not a JSON object")
	}

	start, end := -1, -1
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, err
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return 0, 0, err
		}
		if key != "version" {
			continue
		}
		if len(value) == 0 || value[0] != '"' {
			return 0, 0, errors.New("version field is not a string")
		}
		end = int(dec.InputOffset())
		start = end - len(value)
	}
	if start < 0 {
		return 0, 0, errors.New("no top-level version field")
	}
	return start, end, nil
}
