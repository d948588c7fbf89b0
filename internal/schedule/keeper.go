package schedule

import (
	"errors"
	"sync"
	"time"

	"backupbot/pkg/logx"
)

// Keeper owns the live schedule state. Every mutation happens under one
// mutex and is persisted immediately; the scheduler tick loop and the
// manual /backup make command both go through it, so concurrent writes
// can never interleave in the state file.
type Keeper struct {
	mu       sync.Mutex
	state    State
	interval time.Duration
	store    Store
	now      func() time.Time
	log      logx.Logger

	// dirty is set when a Save failed; the next mutation retries the
	// whole record (the state file always holds the full snapshot).
	dirty bool
}

// NewKeeper loads persisted state or initializes a first-run record
// (enabled, next due = now + interval). Read failures fall back to the
// same fresh record with a logged warning; they are never fatal.
func NewKeeper(store Store, interval time.Duration, now func() time.Time, log logx.Logger) *Keeper {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	k := &Keeper{interval: interval, store: store, now: now, log: log}

	st, err := store.Load()
	switch {
	case err == nil:
		k.state = st
	case errors.Is(err, ErrNotFound):
		k.state = k.freshLocked()
		k.saveLocked()
	default:
		log.Warn("schedule state read failed, starting from defaults", logx.Err(err))
		k.state = k.freshLocked()
		k.saveLocked()
	}
	return k
}

// Interval returns the configured backup interval.
func (k *Keeper) Interval() time.Duration { return k.interval }

// Snapshot returns a copy of the current state.
func (k *Keeper) Snapshot() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// SetEnabled toggles automatic firing. Transitioning disabled->enabled
// resets the clock to now+interval: the schedule resumes from the moment
// of re-enabling instead of firing a backlog of missed windows.
func (k *Keeper) SetEnabled(flag bool) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	if flag && !k.state.Enabled {
		k.state.NextDueAt = k.now().Add(k.interval)
	}
	k.state.Enabled = flag
	k.saveLocked()
	return k.state
}

// RecordFired stamps a completed automatic firing and advances the next
// due time. It is called for failed backup attempts too, so a broken
// backup target does not degrade into a tight retry loop.
func (k *Keeper) RecordFired(now time.Time) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.LastFiredAt = now
	k.state.NextDueAt = now.Add(k.interval)
	k.saveLocked()
	return k.state
}

// TouchLastFired records a manual backup for audit purposes without
// disturbing the automatic cadence.
func (k *Keeper) TouchLastFired(now time.Time) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.LastFiredAt = now
	k.saveLocked()
	return k.state
}

// Rearm pushes the next due time forward without recording a firing.
// The tick loop uses it when a window elapses while the schedule is
// disabled: the window is consumed silently.
func (k *Keeper) Rearm(now time.Time) State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.NextDueAt = now.Add(k.interval)
	k.saveLocked()
	return k.state
}

func (k *Keeper) freshLocked() State {
	return State{
		Enabled:   true,
		NextDueAt: k.now().Add(k.interval),
	}
}

// saveLocked persists the current state. Failures are downgraded to a
// warning and retried implicitly on the next mutation.
func (k *Keeper) saveLocked() {
	if err := k.store.Save(k.state); err != nil {
		if !k.dirty {
			k.log.Warn("schedule state save failed, will retry on next change", logx.Err(err))
		}
		k.dirty = true
		return
	}
	if k.dirty {
		k.log.Info("schedule state save recovered")
	}
	k.dirty = false
}
