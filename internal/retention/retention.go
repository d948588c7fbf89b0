// Package retention cleans up outdated archives in the backup
// destination so the disk does not fill up over months of unattended
// operation. The policy is deliberately simple: keep the newest N.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"backupbot/pkg/logx"
)

const pruneWorkers = 4

var archiveExts = []string{".zip", ".tar", ".tar.gz", ".tar.zst"}

type Pruner struct {
	dir      string
	keepLast int
	log      logx.Logger
}

// NewPruner prunes dir down to keepLast archives. keepLast <= 0
// disables pruning.
func NewPruner(dir string, keepLast int, log logx.Logger) *Pruner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pruner{dir: dir, keepLast: keepLast, log: log}
}

// Prune deletes every archive beyond the newest keepLast, ordered by
// modification time. Non-archive files in the directory are never
// touched. Deletions run on a small worker pool; individual failures
// are logged and do not abort the rest.
func (p *Pruner) Prune(ctx context.Context) error {
	if p.keepLast <= 0 {
		return nil
	}

	victims, err := p.selectVictims()
	if err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pruneWorkers)
	for _, path := range victims {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				p.log.Warn("prune failed", logx.String("path", path), logx.Err(err))
				return nil
			}
			p.log.Info("pruned old archive", logx.String("path", path))
			return nil
		})
	}
	return g.Wait()
}

type archiveInfo struct {
	path string
	mod  int64
}

func (p *Pruner) selectVictims() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var archives []archiveInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archiveInfo{
			path: filepath.Join(p.dir, e.Name()),
			mod:  fi.ModTime().UnixNano(),
		})
	}
	if len(archives) <= p.keepLast {
		return nil, nil
	}

	// Newest first; everything past keepLast goes.
	sort.Slice(archives, func(i, j int) bool { return archives[i].mod > archives[j].mod })
	victims := make([]string, 0, len(archives)-p.keepLast)
	for _, a := range archives[p.keepLast:] {
		victims = append(victims, a.path)
	}
	return victims, nil
}

func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
