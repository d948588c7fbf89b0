// Package scheduler drives the periodic "is it time yet" check for the
// single backup schedule.
package scheduler

import (
	"context"
	"time"

	"backupbot/internal/schedule"
	"backupbot/pkg/logx"
)

// AutoTrigger is the automatic path of the backup trigger facade. It
// performs the backup, advances the schedule via the keeper, and reports
// the outcome as a value; it never panics past this boundary.
type AutoTrigger interface {
	Automatic(ctx context.Context) (ok bool, summary string)
}

type Config struct {
	// Tick bounds the check cadence. The smallest supported interval
	// unit is one second, so the default of 1s keeps drift within one
	// unit without busy-spinning.
	Tick time.Duration
}

type Service struct {
	keeper *schedule.Keeper
	trig   AutoTrigger
	log    logx.Logger
	tickD  time.Duration
	now    func() time.Time
}

func New(cfg Config, keeper *schedule.Keeper, trig AutoTrigger, now func() time.Time, log logx.Logger) *Service {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		keeper: keeper,
		trig:   trig,
		log:    log,
		tickD:  cfg.Tick,
		now:    now,
	}
}

// Run loops until ctx is canceled. Each iteration sleeps on the ticker,
// then evaluates the schedule once; a backup runs inline, so the next
// check happens after it completes. Because RecordFired stamps the next
// due time from the firing moment, a long backup cannot double-fire.
func (s *Service) Run(ctx context.Context) error {
	t := time.NewTicker(s.tickD)
	defer t.Stop()

	s.log.Info("scheduler started",
		logx.Duration("interval", s.keeper.Interval()),
		logx.Time("next_due", s.keeper.Snapshot().NextDueAt))

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler stopped")
			return nil
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// tick is one evaluation of the schedule. It is driven by Run in
// production and invoked directly (with a fake clock) in tests.
func (s *Service) tick(ctx context.Context) {
	now := s.now()
	st := s.keeper.Snapshot()
	if !st.Due(now) {
		return
	}

	if !st.Enabled {
		// Consume the window silently; it is never replayed later.
		next := s.keeper.Rearm(now).NextDueAt
		s.log.Debug("backup window elapsed while disabled",
			logx.Time("next_due", next))
		return
	}

	s.log.Info("backup interval elapsed, triggering automatic backup")
	ok, summary := s.trig.Automatic(ctx)
	next := s.keeper.Snapshot().NextDueAt
	if ok {
		s.log.Info("automatic backup done",
			logx.String("result", summary),
			logx.Time("next_due", next))
		return
	}
	// The schedule has already advanced (the facade records failed
	// firings too), so a persistently broken target retries on the
	// normal cadence instead of every tick.
	s.log.Warn("automatic backup failed",
		logx.String("result", summary),
		logx.Time("next_due", next))
}
