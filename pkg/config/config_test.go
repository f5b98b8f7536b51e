package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Listen != "localhost:3000" || c.UI.StoreURL != "http://localhost:3000" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Server.BackupInterval != 5*time.Second || c.UI.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected durations %+v", c)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	content := `
log_level: debug
server:
  listen: 0.0.0.0:4000
  backup_interval: 30s
  peers:
    - http://replica:3000
ui:
  store_url: http://store:4000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Listen != "0.0.0.0:4000" || c.Server.BackupInterval != 30*time.Second {
		t.Fatalf("unexpected server config %+v", c.Server)
	}
	if len(c.Server.Peers) != 1 || c.Server.Peers[0] != "http://replica:3000" || c.Server.SyncInterval != time.Second {
		t.Fatalf("unexpected replication config %+v", c.Server)
	}
	if c.Server.Database != "events.sqlite3" {
		t.Fatalf("expected default database, got %q", c.Server.Database)
	}
	if c.UI.StoreURL != "http://store:4000" || c.UI.Listen != "localhost:8080" {
		t.Fatalf("unexpected ui config %+v", c.UI)
	}
	if level, _ := c.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", level)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("log_level: loud\n"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestRefreshSchedule(t *testing.T) {
	c := Default()
	c.UI.RefreshCron = "*/15 * * * *"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.UI.RefreshCron = "every now and then"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for an invalid schedule")
	}
}
