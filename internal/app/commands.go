package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backupbot/internal/schedule"
	"backupbot/internal/transport/telegram/router"
)

const (
	makeTimeout    = 30 * time.Minute
	historyDefault = 10
	historyMax     = 50
	timeLayout     = "2006-01-02 15:04:05"
)

// commandRegistry declares the /backup command tree. Every route is
// owner-only: this bot manages one machine's backups, there is no
// public surface.
func (a *App) commandRegistry() []router.Command {
	return []router.Command{
		{
			Route:       "backup status",
			Description: "show the backup schedule",
			Usage:       "/backup status",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Adapter.SendText(ctx, req.Chat, a.statusText(time.Now()))
				return err
			},
		},
		{
			Route:       "backup enable",
			Description: "enable automatic backups",
			Usage:       "/backup enable",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				st := a.keeper.SetEnabled(true)
				text := "automatic backups enabled, next at " + st.NextDueAt.Format(timeLayout)
				_, err := req.Adapter.SendText(ctx, req.Chat, text)
				return err
			},
		},
		{
			Route:       "backup disable",
			Description: "disable automatic backups",
			Usage:       "/backup disable",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				a.keeper.SetEnabled(false)
				_, err := req.Adapter.SendText(ctx, req.Chat, "automatic backups disabled")
				return err
			},
		},
		{
			Route:       "backup make",
			Description: "run a backup now",
			Usage:       "/backup make [note]",
			Access:      router.AccessOwnerOnly,
			Timeout:     makeTimeout,
			Handle: func(ctx context.Context, req *router.Request) error {
				note := strings.Join(req.Args, " ")
				res := a.backups.Manual(ctx, note)
				_, err := req.Adapter.SendText(ctx, req.Chat, res.Summary())
				return err
			},
		},
		{
			Route:       "backup history",
			Description: "list recent backups",
			Usage:       "/backup history [n]",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				text, err := a.historyText(ctx, req.Args)
				if err != nil {
					return err
				}
				_, err = req.Adapter.SendText(ctx, req.Chat, text)
				return err
			},
		},
	}
}

func (a *App) statusText(now time.Time) string {
	st := a.keeper.Snapshot()

	var b strings.Builder
	if st.Enabled {
		b.WriteString("automatic backups: enabled\n")
	} else {
		b.WriteString("automatic backups: disabled\n")
	}
	fmt.Fprintf(&b, "interval: %s\n", a.keeper.Interval())
	if st.Enabled {
		fmt.Fprintf(&b, "next: %s (%s)\n", st.NextDueAt.Format(timeLayout), untilText(now, st))
	} else {
		// The frozen due time would only mislead; it is recomputed on
		// re-enable anyway.
		b.WriteString("next: none (automatic backups disabled)\n")
	}
	if st.LastFiredAt.IsZero() {
		b.WriteString("last: never")
	} else {
		fmt.Fprintf(&b, "last: %s", st.LastFiredAt.Format(timeLayout))
	}
	return b.String()
}

func untilText(now time.Time, st schedule.State) string {
	if st.Due(now) {
		return "due now"
	}
	return "in " + st.NextDueAt.Sub(now).Round(time.Second).String()
}

func (a *App) historyText(ctx context.Context, args []string) (string, error) {
	if a.store == nil {
		return "history storage is not configured", nil
	}

	limit := historyDefault
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return "usage: /backup history [n]", nil
		}
		limit = n
	}
	if limit > historyMax {
		limit = historyMax
	}

	recs, err := a.store.RecentBackups(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "no backups recorded yet", nil
	}

	var b strings.Builder
	for _, r := range recs {
		mark := "ok"
		if !r.OK {
			mark = "FAILED"
		}
		fmt.Fprintf(&b, "%s  %s  %s", r.At.Format(timeLayout), r.Reason, mark)
		if r.Note != "" {
			fmt.Fprintf(&b, "  (%s)", r.Note)
		}
		if !r.OK && r.Error != "" {
			fmt.Fprintf(&b, "  %s", r.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
