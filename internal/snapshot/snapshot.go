// Package snapshot persists the last committed per-part fingerprints.
//
// The state file is versioned JSON, replaced atomically via a temp file and
// rename so a crash mid-commit can never leave a half-written snapshot
// readable by the next run. An exclusive lock file serializes writers: two
// concurrent runs against the same state file cannot silently overwrite
// each other's result.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FormatVersion tags the on-disk layout. Unknown versions are rejected, not
// guessed around.
const FormatVersion = 1

// ErrLocked means another run holds the state lock.
var ErrLocked = errors.New("state file is locked by another run")

// FormatError reports a snapshot that could not be interpreted: version
// mismatch or corruption. Callers must opt in explicitly to treat this as
// "no prior snapshot".
type FormatError struct {
	Path    string
	Version int
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state file %s is unreadable: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("state file %s has unsupported format version %d (want %d)", e.Path, e.Version, FormatVersion)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Entry is the recorded state of one part.
type Entry struct {
	Digest string `json:"digest"`
	Files  int    `json:"files"`
	// Rules identifies the selection rules the digest was computed with.
	Rules     string    `json:"rules,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot maps part names to their last committed fingerprints.
type Snapshot struct {
	Version   int              `json:"version"`
	Revision  string           `json:"revision,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Parts     map[string]Entry `json:"parts"`
}

// New returns an empty snapshot at the current format version.
func New() *Snapshot {
	return &Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Parts:     make(map[string]Entry),
	}
}

// Store reads and atomically replaces a snapshot file.
type Store struct {
	path string
}

// NewStore creates a store for the given state file path. The file need
// not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load returns the committed snapshot, or nil when this is the first run.
// An unreadable or wrong-version file is a *FormatError.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - caller-chosen state path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &FormatError{Path: s.path, Err: err}
	}
	if snap.Version != FormatVersion {
		return nil, &FormatError{Path: s.path, Version: snap.Version}
	}
	if snap.Parts == nil {
		snap.Parts = make(map[string]Entry)
	}
	return &snap, nil
}

// Commit atomically replaces the persisted snapshot. The lock is held only
// for the duration of the write; concurrent committers get ErrLocked
// instead of racing.
func (s *Store) Commit(snap *Snapshot) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	snap.Version = FormatVersion

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporary state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// lock takes the advisory commit lock via an O_EXCL lock file.
func (s *Store) lock() (func(), error) {
	lockPath := s.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("take state lock %s: %w", lockPath, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return func() {
		f.Close()
		os.Remove(lockPath)
	}, nil
}
