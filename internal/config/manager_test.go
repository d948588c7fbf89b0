package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalJSON = `{
  "telegram": {"token": "t", "owner_user_ids": [1], "chat_id": -100},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "backup": {"interval": "12h", "source_root": "/srv/world", "dest_path": "/srv/backups"}
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "t" || cfg.Backup.Interval != "12h" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Telegram.ChatID != -100 {
		t.Fatalf("chat_id = %d", cfg.Telegram.ChatID)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	body := `
telegram:
  token: t
  owner_user_ids: [1, 2]
  chat_id: -100
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./bot.log
backup:
  interval: 1d 12h
  source_root: /srv/world
  rules:
    - "world/"
    - "!session.lock"
  dest_path: /srv/backups
  format: tar.gz
retention:
  keep_last: 14
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backup.Interval != "1d 12h" || cfg.Backup.Format != "tar.gz" {
		t.Fatalf("backup section: %+v", cfg.Backup)
	}
	if len(cfg.Backup.Rules) != 2 || cfg.Backup.Rules[1] != "!session.lock" {
		t.Fatalf("rules: %v", cfg.Backup.Rules)
	}
	if cfg.Retention.KeepLast != 14 {
		t.Fatalf("keep_last = %d", cfg.Retention.KeepLast)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	body := `{"telegram": {"token": "t"}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "backup": {"interval": "1h", "source_root": "a", "dest_path": "b"}, "bogus": 1}`
	m := NewManager(writeConfig(t, "config.json", body))
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown top-level field must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", minimalJSON+`{"extra": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing JSON must be rejected")
	}
}

func TestReloadPublishesToSubscribers(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", minimalJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	updated := `{
  "telegram": {"token": "t2", "owner_user_ids": [1], "chat_id": -100},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "backup": {"interval": "12h", "source_root": "/srv/world", "dest_path": "/srv/backups"}
}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())

	select {
	case cfg := <-ch:
		if cfg.Telegram.Token != "t2" {
			t.Fatalf("published token = %q", cfg.Telegram.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("Get after reload: %+v", m.Get().Logging)
	}
}

func TestReloadSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", minimalJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged content must not be published")
	default:
	}
}

func TestReloadRejectedByValidator(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", minimalJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, _ *Config) error {
		return errors.New("nope")
	})

	bad := `{
  "telegram": {"token": "", "owner_user_ids": [1], "chat_id": -100},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "backup": {"interval": "12h", "source_root": "/srv/world", "dest_path": "/srv/backups"}
}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())

	if m.Get().Telegram.Token != "t" {
		t.Fatal("rejected config must not be committed")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"10s", 10 * time.Second, false},
		{" 2m ", 2 * time.Minute, false},
		{"-5s", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("telegram.poll_timeout", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.raw, err)
			continue
		}
		if d != tc.want {
			t.Errorf("%q: got %v, want %v", tc.raw, d, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
}
