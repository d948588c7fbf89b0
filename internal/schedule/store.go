package schedule

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Store.Load when no usable state exists yet.
// Absence is a normal first-run condition, not a failure.
var ErrNotFound = errors.New("schedule state not found")

// Store persists the schedule record.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// fileStore keeps the state in a single JSON file, written atomically
// (temp file + rename) so a concurrent reader never observes a partial
// record.
type fileStore struct {
	path string
}

func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Load() (State, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		// Corrupt file is treated like a missing one; the caller
		// re-initializes and the next Save overwrites it.
		return State{}, ErrNotFound
	}
	if st.NextDueAt.IsZero() {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (s *fileStore) Save(st State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
