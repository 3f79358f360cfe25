// Package file implements host.Storage by writing snapshots to the
// filesystem, the way the teacher's terminal front-end persisted save
// games: one file per named save, read/written wholesale.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gozork/zvm/internal/host"
)

// Store persists snapshots under Dir, one file per save name. A name with
// no extension gets ".sav" appended, matching the convention story files
// assume when they pass an empty filename to `save`/`restore`.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage/file: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(name string) string {
	if name == "" {
		name = "save"
	}
	if filepath.Ext(name) == "" {
		name += ".sav"
	}
	return filepath.Join(s.Dir, filepath.Base(name))
}

// Save writes snap to name.sav, overwriting any existing save of the same
// name.
func (s *Store) Save(name string, snap host.Snapshot) error {
	return os.WriteFile(s.path(name), snap, 0644)
}

// Restore reads back a previously saved snapshot.
func (s *Store) Restore(name string) (host.Snapshot, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}
	return host.Snapshot(data), nil
}

// List returns the save names available under Dir (without the .sav
// suffix), for a front-end's restore picker.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sav") {
			names = append(names, strings.TrimSuffix(e.Name(), ".sav"))
		}
	}
	return names, nil
}
