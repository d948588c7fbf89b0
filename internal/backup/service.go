// Package backup is the single entry point for creating a backup, used
// by both the scheduler loop (automatic) and the /backup make command
// (manual). It keeps the schedule state consistent regardless of which
// path fired.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backupbot/internal/schedule"
	"backupbot/internal/storage"
	"backupbot/pkg/logx"
)

type Reason string

const (
	ReasonAutomatic Reason = "automatic"
	ReasonManual    Reason = "manual"
)

// Result is a value, never an exception: a failed backup must not crash
// the scheduler or the command handler.
type Result struct {
	OK          bool
	ArchivePath string
	SizeBytes   int64
	Took        time.Duration
	Err         string
}

// Summary renders a one-line human-readable outcome for chat replies
// and logs.
func (r Result) Summary() string {
	if !r.OK {
		return "backup failed: " + r.Err
	}
	return fmt.Sprintf("backup done in %s: %s (%s)",
		r.Took.Round(100*time.Millisecond), r.ArchivePath, humanBytes(r.SizeBytes))
}

// Notifier delivers operator-facing messages. Implementations must be
// non-blocking-ish and safe to call from the tick goroutine.
type Notifier interface {
	Broadcast(ctx context.Context, text string)
	Progress(ctx context.Context, done, total int)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(context.Context, string) {}
func (nopNotifier) Progress(context.Context, int, int) {}

type Config struct {
	DestDir string
	Format  Format
	// ResetOnManual makes a successful manual backup restart the
	// automatic countdown. Off by default: manual backups are
	// supplementary and must not perturb the cadence.
	ResetOnManual bool
}

type Service struct {
	cfg    Config
	keeper *schedule.Keeper
	arch   *Archiver
	store  storage.Store // nil when history is disabled
	notif  Notifier
	log    logx.Logger
	now    func() time.Time
}

func NewService(cfg Config, keeper *schedule.Keeper, arch *Archiver, store storage.Store, notif Notifier, now func() time.Time, log logx.Logger) *Service {
	if notif == nil {
		notif = nopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		keeper: keeper,
		arch:   arch,
		store:  store,
		notif:  notif,
		log:    log,
		now:    now,
	}
}

// Automatic implements the scheduler's trigger port. The schedule
// advances whether or not the archive step succeeded, so a broken
// backup target never turns into a tight retry loop.
func (s *Service) Automatic(ctx context.Context) (bool, string) {
	res := s.run(ctx, ReasonAutomatic, "")
	s.keeper.RecordFired(s.now())
	s.record(ctx, ReasonAutomatic, "", res)
	return res.OK, res.Summary()
}

// Manual runs an operator-requested backup. On success it stamps
// LastFiredAt for audit; NextDueAt is left alone unless ResetOnManual
// is configured.
func (s *Service) Manual(ctx context.Context, note string) Result {
	res := s.run(ctx, ReasonManual, note)
	if res.OK {
		if s.cfg.ResetOnManual {
			s.keeper.RecordFired(s.now())
		} else {
			s.keeper.TouchLastFired(s.now())
		}
	}
	s.record(ctx, ReasonManual, note, res)
	return res
}

// run creates the archive and converts every failure mode, including a
// panic below the facade, into a Result.
func (s *Service) run(ctx context.Context, reason Reason, note string) (res Result) {
	start := s.now()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("backup panicked", logx.Any("panic", p))
			res = Result{Took: s.now().Sub(start), Err: fmt.Sprintf("panic: %v", p)}
		}
	}()

	s.notif.Broadcast(ctx, "creating backup...")

	baseName := start.Format("2006-01-02_15-04-05")
	if n := strings.TrimSpace(note); n != "" {
		baseName += "_" + SanitizeName(n)
	}

	path, size, err := s.arch.Create(ctx, s.cfg.DestDir, baseName, s.cfg.Format, func(done, total int) {
		s.notif.Progress(ctx, done, total)
	})
	took := s.now().Sub(start)
	if err != nil {
		s.log.Warn("backup failed",
			logx.String("reason", string(reason)),
			logx.Duration("took", took),
			logx.Err(err))
		res = Result{Took: took, Err: err.Error()}
		s.notif.Broadcast(ctx, res.Summary())
		return res
	}

	s.log.Info("backup created",
		logx.String("reason", string(reason)),
		logx.String("path", path),
		logx.Int64("size", size),
		logx.Duration("took", took))
	res = Result{OK: true, ArchivePath: path, SizeBytes: size, Took: took}
	s.notif.Broadcast(ctx, res.Summary())
	return res
}

// record appends to history storage, best-effort.
func (s *Service) record(ctx context.Context, reason Reason, note string, res Result) {
	if s.store == nil {
		return
	}
	r := storage.Record{
		At:          s.now(),
		Reason:      string(reason),
		Note:        note,
		ArchivePath: res.ArchivePath,
		SizeBytes:   res.SizeBytes,
		TookMS:      res.Took.Milliseconds(),
		OK:          res.OK,
		Error:       res.Err,
	}
	if err := s.store.AppendBackup(ctx, r); err != nil {
		s.log.Warn("history append failed", logx.Err(err))
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
