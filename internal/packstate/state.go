package packstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schaermu/packsync/internal/fsutil"
)

// ErrNotInitialized is returned when no state file exists yet
var ErrNotInitialized = errors.New("pack state not initialized (run packsync init)")

// State is the persisted record of an installed pack
type State struct {
	PackLocation     string `json:"pack_location"`
	InstalledVersion string `json:"installed_version"`
	ForceFullResync  bool   `json:"force_full_resync"`
}

// ModsDir returns the pack's mods directory
func (s *State) ModsDir() string {
	return filepath.Join(s.PackLocation, "mods")
}

// Validate checks that the state can drive a sync
func (s *State) Validate() error {
	if s.PackLocation == "" {
		return fmt.Errorf("pack_location is required")
	}
	if !filepath.IsAbs(s.PackLocation) {
		return fmt.Errorf("pack_location must be an absolute path: %s", s.PackLocation)
	}
	return nil
}

// Store loads and saves the state file
type Store struct {
	path string
}

// NewStore creates a store for the state file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to read pack state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse pack state: %w", err)
	}

	return &state, nil
}

// Save writes the whole state atomically
func (s *Store) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if _, err := fsutil.WriteFileAtomic(s.path, bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("failed to write pack state: %w", err)
	}
	return nil
}

// CommitVersion records version as installed. The file is re-read first so
// that only installed_version changes.
func (s *Store) CommitVersion(version string) error {
	state, err := s.Load()
	if err != nil {
		return err
	}
	state.InstalledVersion = version
	return s.Save(state)
}
