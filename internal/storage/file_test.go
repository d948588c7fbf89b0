package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backupbot/pkg/logx"
)

func openTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q) error: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) returned a store, want nil", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileAppendAndRecent(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := Record{
			At:          base.Add(time.Duration(i) * time.Minute),
			Reason:      "automatic",
			ArchivePath: "/backups/a.tar.gz",
			OK:          true,
		}
		if err := st.AppendBackup(ctx, r); err != nil {
			t.Fatalf("AppendBackup error: %v", err)
		}
	}

	got, err := st.RecentBackups(ctx, 3)
	if err != nil {
		t.Fatalf("RecentBackups error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	// Newest first.
	if !got[0].At.After(got[1].At) || !got[1].At.After(got[2].At) {
		t.Fatalf("records not newest-first: %v %v %v", got[0].At, got[1].At, got[2].At)
	}
}

func TestFileRecentSkipsGarbledLines(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t)
	ctx := context.Background()

	if err := st.AppendBackup(ctx, Record{At: time.Now(), Reason: "manual", OK: true}); err != nil {
		t.Fatalf("AppendBackup error: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{torn line\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := st.AppendBackup(ctx, Record{At: time.Now(), Reason: "automatic", OK: false, Error: "boom"}); err != nil {
		t.Fatalf("AppendBackup error: %v", err)
	}

	got, err := st.RecentBackups(ctx, 10)
	if err != nil {
		t.Fatalf("RecentBackups error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (garbled line skipped)", len(got))
	}
}

func TestFileRecentEmpty(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	got, err := st.RecentBackups(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBackups error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d records from empty store", len(got))
	}
}
