package expansion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StorageKey names the persisted expansion state. Stores scope it further by
// workspace.
const StorageKey = "flowtree_explorer_expanded"

// StateStore is durable storage for the expansion set.
type StateStore interface {
	// Load returns the persisted set. ok is false when nothing was ever saved.
	Load() (s Set, ok bool, err error)
	// Save replaces the persisted set.
	Save(s Set) error
}

// FileStore keeps the expansion set as a JSON array in a file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath returns ~/.config/ft/<key>-<workspace>.json, or "" when the
// home directory cannot be determined.
func DefaultStatePath(workspace string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	name := StorageKey + ".json"
	if workspace != "" {
		name = fmt.Sprintf("%s-%s.json", StorageKey, workspace)
	}
	return filepath.Join(home, ".config", "ft", name)
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the set from disk.
func (f *FileStore) Load() (Set, bool, error) {
	if f.path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return s, true, nil
}

// Save writes the set atomically via a temp file.
func (f *FileStore) Save(s Set) error {
	if f.path == "" {
		return errors.New("no state path configured")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// MemoryStore is an in-process StateStore. It records every save, which the
// explorer tests use to observe persistence.
type MemoryStore struct {
	mu      sync.Mutex
	current Set
	present bool
	saves   []Set

	LoadErr error
	SaveErr error
}

// NewMemoryStore returns an empty store. Passing a set marks it as persisted.
func NewMemoryStore(initial ...Set) *MemoryStore {
	m := &MemoryStore{}
	if len(initial) > 0 {
		m.current = initial[0].Clone()
		m.present = true
	}
	return m
}

func (m *MemoryStore) Load() (Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, false, m.LoadErr
	}
	if !m.present {
		return nil, false, nil
	}
	return m.current.Clone(), true, nil
}

func (m *MemoryStore) Save(s Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, s.Clone())
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.current = s.Clone()
	m.present = true
	return nil
}

// Saves returns a copy of every set passed to Save, in order.
func (m *MemoryStore) Saves() []Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Set, len(m.saves))
	for i, s := range m.saves {
		out[i] = s.Clone()
	}
	return out
}
