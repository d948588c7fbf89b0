// Package storage persists backup history so /backup history survives
// restarts. It is optional: with no driver configured the bot runs
// without history, and storage failures are never fatal to a backup.
package storage
