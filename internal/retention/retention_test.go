package retention

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"backupbot/pkg/logx"
)

func writeArchive(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		writeArchive(t, dir, time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")+".tar.gz", base.AddDate(0, 0, i))
	}

	p := NewPruner(dir, 2, logx.Nop())
	if err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune error: %v", err)
	}

	got := listDir(t, dir)
	want := []string{"2026-08-04.tar.gz", "2026-08-05.tar.gz"}
	if len(got) != len(want) {
		t.Fatalf("remaining %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("remaining %v, want %v", got, want)
		}
	}
}

func TestPruneIgnoresNonArchives(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	writeArchive(t, dir, "a.tar.gz", base)
	writeArchive(t, dir, "b.tar.gz", base.AddDate(0, 0, 1))
	writeArchive(t, dir, "schedule.json", base.AddDate(0, 0, -10))

	p := NewPruner(dir, 1, logx.Nop())
	if err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune error: %v", err)
	}

	got := listDir(t, dir)
	want := []string{"b.tar.gz", "schedule.json"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("remaining %v, want %v", got, want)
	}
}

func TestPruneUnderLimitNoop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArchive(t, dir, "only.zip", time.Now())
	p := NewPruner(dir, 5, logx.Nop())
	if err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if got := listDir(t, dir); len(got) != 1 {
		t.Fatalf("remaining %v, want untouched", got)
	}
}

func TestPruneDisabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip", time.Now().Add(-48*time.Hour))
	p := NewPruner(dir, 0, logx.Nop())
	if err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if got := listDir(t, dir); len(got) != 1 {
		t.Fatalf("keep_last=0 must disable pruning, remaining %v", got)
	}
}

func TestPruneMissingDir(t *testing.T) {
	t.Parallel()
	p := NewPruner(filepath.Join(t.TempDir(), "absent"), 3, logx.Nop())
	if err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune on missing dir: %v", err)
	}
}
