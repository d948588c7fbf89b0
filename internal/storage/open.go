package storage

import (
	"context"
	"errors"
	"strings"

	"backupbot/pkg/logx"
)

// Store is the minimal persistence API used by the backup service and
// the /backup history command.
type Store interface {
	AppendBackup(ctx context.Context, r Record) error
	RecentBackups(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
