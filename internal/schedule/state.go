// Package schedule owns the persistent record of the single backup
// schedule: whether automatic firing is enabled, when the next backup is
// due, and when one last fired.
package schedule

import "time"

// State is the persisted scheduling record.
//
// Invariants (maintained by Keeper):
//   - NextDueAt is always set once the schedule has been initialized.
//   - NextDueAt only moves forward, except on the explicit reset that
//     happens when the schedule is re-enabled.
//   - A disabled schedule never fires; its clock is effectively paused
//     (re-enabling resets NextDueAt to now+interval, missed windows are
//     not replayed).
type State struct {
	Enabled   bool      `json:"enabled"`
	NextDueAt time.Time `json:"next_due_at"`
	// LastFiredAt is diagnostic only; zero means no backup has fired yet.
	LastFiredAt time.Time `json:"last_fired_at,omitempty"`
}

// Due reports whether an automatic backup window has been reached.
func (s State) Due(now time.Time) bool {
	return !s.NextDueAt.After(now)
}
