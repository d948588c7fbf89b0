package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"backupbot/internal/schedule"
	"backupbot/pkg/logx"
)

type memStore struct {
	mu sync.Mutex
	st schedule.State
	ok bool
}

func (m *memStore) Load() (schedule.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return schedule.State{}, schedule.ErrNotFound
	}
	return m.st, nil
}

func (m *memStore) Save(st schedule.State) error {
	m.mu.Lock()
	m.st, m.ok = st, true
	m.mu.Unlock()
	return nil
}

type fakeTrigger struct {
	mu     sync.Mutex
	calls  int
	ok     bool
	keeper *schedule.Keeper
	now    func() time.Time
}

// Automatic mimics the facade: it records the firing (success or not)
// before returning.
func (f *fakeTrigger) Automatic(ctx context.Context) (bool, string) {
	f.mu.Lock()
	f.calls++
	ok := f.ok
	f.mu.Unlock()
	f.keeper.RecordFired(f.now())
	if ok {
		return true, "archive created"
	}
	return false, "archive failed"
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type tickEnv struct {
	svc    *Service
	keeper *schedule.Keeper
	trig   *fakeTrigger
	now    time.Time
	mu     sync.Mutex
}

func (e *tickEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *tickEnv) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func newTickEnv(t *testing.T, interval time.Duration, triggerOK bool) *tickEnv {
	t.Helper()
	env := &tickEnv{now: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)}
	env.keeper = schedule.NewKeeper(&memStore{}, interval, env.clock, logx.Nop())
	env.trig = &fakeTrigger{ok: triggerOK, keeper: env.keeper, now: env.clock}
	env.svc = New(Config{}, env.keeper, env.trig, env.clock, logx.Nop())
	return env
}

func TestTickNotDueDoesNothing(t *testing.T) {
	t.Parallel()
	env := newTickEnv(t, time.Hour, true)
	before := env.keeper.Snapshot()

	env.svc.tick(context.Background())

	if env.trig.count() != 0 {
		t.Fatal("trigger invoked before due time")
	}
	if !env.keeper.Snapshot().NextDueAt.Equal(before.NextDueAt) {
		t.Fatal("NextDueAt moved without a firing")
	}
}

func TestTickDueEnabledFiresOnce(t *testing.T) {
	t.Parallel()
	env := newTickEnv(t, time.Hour, true)

	env.advance(time.Hour)
	env.svc.tick(context.Background())

	if got := env.trig.count(); got != 1 {
		t.Fatalf("trigger invoked %d times, want 1", got)
	}
	st := env.keeper.Snapshot()
	want := env.clock().Add(time.Hour)
	if !st.NextDueAt.Equal(want) {
		t.Fatalf("NextDueAt = %v, want fired+interval %v", st.NextDueAt, want)
	}

	// Immediately re-evaluating must not double-fire.
	env.svc.tick(context.Background())
	if got := env.trig.count(); got != 1 {
		t.Fatalf("trigger invoked %d times after re-check, want 1", got)
	}
}

func TestTickDueDisabledRearmsWithoutFiring(t *testing.T) {
	t.Parallel()
	env := newTickEnv(t, time.Hour, true)
	env.keeper.SetEnabled(false)

	env.advance(90 * time.Minute)
	env.svc.tick(context.Background())

	if env.trig.count() != 0 {
		t.Fatal("trigger invoked while disabled")
	}
	st := env.keeper.Snapshot()
	want := env.clock().Add(time.Hour)
	if !st.NextDueAt.Equal(want) {
		t.Fatalf("NextDueAt = %v, want now+interval %v", st.NextDueAt, want)
	}
	if !st.LastFiredAt.IsZero() {
		t.Fatal("LastFiredAt stamped without a firing")
	}
}

func TestTickFailedBackupStillAdvances(t *testing.T) {
	t.Parallel()
	env := newTickEnv(t, time.Hour, false)

	env.advance(time.Hour)
	env.svc.tick(context.Background())

	if got := env.trig.count(); got != 1 {
		t.Fatalf("trigger invoked %d times, want 1", got)
	}
	// The failure must not leave the schedule due, or every subsequent
	// tick would retry.
	env.svc.tick(context.Background())
	if got := env.trig.count(); got != 1 {
		t.Fatalf("failed backup retried on next tick (%d calls)", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	env := newTickEnv(t, time.Hour, true)
	env.svc.tickD = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.svc.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
