package schedule

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "schedule.json")
	st := NewFileStore(path)

	want := State{
		Enabled:     true,
		NextDueAt:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
		LastFiredAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	if err := st.Save(want); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := st.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !got.NextDueAt.Equal(want.NextDueAt) || !got.LastFiredAt.Equal(want.LastFiredAt) || got.Enabled != want.Enabled {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestFileStoreMissingIsNotFound(t *testing.T) {
	t.Parallel()
	st := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := st.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreCorruptIsNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(path).Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreNoLeftoverTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "schedule.json"))
	if err := st.Save(State{Enabled: true, NextDueAt: time.Now()}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "schedule.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}
