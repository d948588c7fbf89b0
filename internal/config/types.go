package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Backup   BackupConfig   `json:"backup"`

	Retention RetentionConfig `json:"retention,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OwnerUserIDs may run backup commands. Everyone else is ignored.
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// ChatID receives backup announcements and progress messages.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// BackupConfig drives the scheduled backup itself.
//
// Interval uses the compact unit grammar ("30m", "12h", "1d 12h");
// changing it requires a restart, the watcher only applies the
// reloadable subset.
type BackupConfig struct {
	Interval   string `json:"interval"`
	SourceRoot string `json:"source_root"`

	// Rules select what goes into the archive. Plain patterns include,
	// "!"-prefixed patterns exclude; exclusions win.
	Rules []string `json:"rules,omitempty"`

	DestPath string `json:"dest_path"`

	// Format is one of "zip", "tar", "tar.gz", "tar.zst". Empty means zip.
	Format string `json:"format,omitempty"`

	// StatePath holds the persisted schedule. Empty defaults to
	// "<dest_path>/schedule.json".
	StatePath string `json:"state_path,omitempty"`

	// ResetOnManual makes a successful manual backup also push the next
	// automatic one a full interval out.
	ResetOnManual bool `json:"reset_on_manual,omitempty"`
}

// RetentionConfig controls archive cleanup in dest_path.
//
// KeepLast <= 0 disables pruning. PruneSpec is a cron expression for
// when the sweep runs; empty defaults to daily at 04:30.
type RetentionConfig struct {
	KeepLast  int    `json:"keep_last"`
	PruneSpec string `json:"prune_spec,omitempty"`
}

// StorageConfig controls the optional backup history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./backupbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
