package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one backup attempt, automatic or manual.
// Keep it compact and schema-stable.
type Record struct {
	At          time.Time `json:"at"`
	Reason      string    `json:"reason"` // "automatic" | "manual"
	Note        string    `json:"note,omitempty"`
	ArchivePath string    `json:"archive_path,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	TookMS      int64     `json:"took_ms"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}
