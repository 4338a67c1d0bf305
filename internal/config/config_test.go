package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchd.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("MATCHD_TEST_DSN", "postgres://live/db")
	os.Unsetenv("MATCHD_TEST_PORT")

	path := writeConfig(t, `{
		"server": {"port": ${MATCHD_TEST_PORT:9090}, "log_level": "debug"},
		"database": {"postgres": {"dsn": "${MATCHD_TEST_DSN}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected default port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Postgres.DSN != "postgres://live/db" {
		t.Errorf("expected env value, got %q", cfg.Database.Postgres.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEngineDefaults(t *testing.T) {
	var e EngineConfig
	if e.DedupRetention() != 72*time.Hour {
		t.Errorf("dedup retention default: %v", e.DedupRetention())
	}
	if e.HotspotInterval() != 5*time.Minute {
		t.Errorf("hotspot interval default: %v", e.HotspotInterval())
	}
	if e.MatchLimit() != 10 {
		t.Errorf("match limit default: %d", e.MatchLimit())
	}
	if e.RetryAttempts() != 3 || e.RetryBaseBackoff() != 50*time.Millisecond {
		t.Errorf("retry defaults: %d %v", e.RetryAttempts(), e.RetryBaseBackoff())
	}

	e = EngineConfig{DedupRetentionHours: 24, DefaultMatchLimit: 3}
	if e.DedupRetention() != 24*time.Hour || e.MatchLimit() != 3 {
		t.Errorf("explicit values ignored: %v %d", e.DedupRetention(), e.MatchLimit())
	}
}
