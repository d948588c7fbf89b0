// Package app wires the bot together: config, logging, storage, the
// Telegram adapter, the backup facade, the scheduler loop, retention,
// and the command dispatcher.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"backupbot/internal/backup"
	"backupbot/internal/config"
	"backupbot/internal/interval"
	"backupbot/internal/notify"
	"backupbot/internal/retention"
	rtsup "backupbot/internal/runtime/supervisor"
	"backupbot/internal/schedule"
	"backupbot/internal/scheduler"
	"backupbot/internal/storage"
	kit "backupbot/internal/transport"
	telegram "backupbot/internal/transport/telegram/adapter"
	"backupbot/internal/transport/telegram/router"
	"backupbot/pkg/logx"
)

const defaultPruneSpec = "30 4 * * *"

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter
	keeper  *schedule.Keeper
	backups *backup.Service
	sched   *scheduler.Service
	pruner  *retention.Pruner
	crond   *cron.Cron
	cmdm    *router.CommandManager

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		if st != nil {
			log.Info("history storage enabled", logx.String("driver", sc.Driver))
		}
	}

	// Validated above, so these cannot fail here.
	iv, _ := interval.Parse(cfg.Backup.Interval)
	format, _ := backup.ParseFormat(cfg.Backup.Format)

	statePath := strings.TrimSpace(cfg.Backup.StatePath)
	if statePath == "" {
		statePath = filepath.Join(cfg.Backup.DestPath, "schedule.json")
	}
	keeper := schedule.NewKeeper(
		schedule.NewFileStore(statePath),
		iv, nil,
		log.With(logx.String("comp", "schedule")),
	)

	var notif backup.Notifier
	if cfg.Telegram.ChatID != 0 {
		notif = notify.New(ad, kit.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		}, log.With(logx.String("comp", "notify")))
	}

	arch := backup.NewArchiver(
		cfg.Backup.SourceRoot,
		backup.ParseRules(cfg.Backup.Rules),
		log.With(logx.String("comp", "archive")),
	)
	backups := backup.NewService(backup.Config{
		DestDir:       cfg.Backup.DestPath,
		Format:        format,
		ResetOnManual: cfg.Backup.ResetOnManual,
	}, keeper, arch, store, notif, nil, log.With(logx.String("comp", "backup")))

	sched := scheduler.New(scheduler.Config{}, keeper, backups, nil,
		log.With(logx.String("comp", "scheduler")))

	pruner := retention.NewPruner(cfg.Backup.DestPath, cfg.Retention.KeepLast,
		log.With(logx.String("comp", "retention")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		keeper:  keeper,
		backups: backups,
		sched:   sched,
		pruner:  pruner,
		updates: make(chan kit.Update, 256),
	}

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetRegistry(a.commandRegistry())

	return a, nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("scheduler.run", func(c context.Context) error {
		return a.sched.Run(c)
	})
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})

	if err := a.startRetention(); err != nil {
		return err
	}

	st := a.keeper.Snapshot()
	a.log.Info("backupbot started",
		logx.Duration("interval", a.keeper.Interval()),
		logx.Bool("enabled", st.Enabled),
		logx.Time("next_due", st.NextDueAt))

	// No-op outside a systemd unit with NotifyAccess.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	return nil
}

func (a *App) startRetention() error {
	cfg := a.cfgm.Get()
	if cfg == nil || cfg.Retention.KeepLast <= 0 {
		return nil
	}
	spec := strings.TrimSpace(cfg.Retention.PruneSpec)
	if spec == "" {
		spec = defaultPruneSpec
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := a.pruner.Prune(a.sup.Context()); err != nil {
			a.log.Warn("retention sweep failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("retention.prune_spec: %w", err)
	}
	c.Start()
	a.crond = c
	a.log.Info("retention sweep scheduled",
		logx.String("spec", spec),
		logx.Int("keep_last", cfg.Retention.KeepLast))
	return nil
}

// applyReload applies the hot-reloadable subset of a new config:
// logging sinks/level and the command owner list. Anything touching the
// schedule or the archive pipeline needs a restart.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)

	if iv, err := interval.Parse(cfg.Backup.Interval); err == nil && iv != a.keeper.Interval() {
		a.log.Warn("backup.interval changed; restart required to take effect",
			logx.Duration("running", a.keeper.Interval()),
			logx.Duration("configured", iv))
	}
	a.log.Info("config applied", logx.String("level", cfg.Logging.Level))
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.crond != nil {
		cronCtx := a.crond.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
	_ = a.adapter.Stop(ctx)

	if a.sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("backupbot stopped")
	return a.logs.Close()
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

// validateConfig is the shared gate for startup and hot-reload: a
// config that fails here is never committed.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := interval.Parse(cfg.Backup.Interval); err != nil {
		return fmt.Errorf("backup.interval: %w", err)
	}
	if strings.TrimSpace(cfg.Backup.SourceRoot) == "" {
		return fmt.Errorf("backup.source_root is required")
	}
	if strings.TrimSpace(cfg.Backup.DestPath) == "" {
		return fmt.Errorf("backup.dest_path is required")
	}
	if _, err := backup.ParseFormat(cfg.Backup.Format); err != nil {
		return fmt.Errorf("backup.format: %w", err)
	}
	if cfg.Retention.KeepLast < 0 {
		return fmt.Errorf("retention.keep_last must be >= 0")
	}
	if spec := strings.TrimSpace(cfg.Retention.PruneSpec); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("retention.prune_spec: %w", err)
		}
	}
	if cfg.Storage != nil {
		if _, err := mapStorageConfig(cfg.Storage); err != nil {
			return err
		}
	}
	return nil
}
