package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Timing.PingInterval != 10*time.Second {
		t.Fatalf("ping interval = %v", cfg.Timing.PingInterval)
	}
	if cfg.Timing.PongTimeout != 5*time.Second {
		t.Fatalf("pong timeout = %v", cfg.Timing.PongTimeout)
	}
	if cfg.Timing.BackoffCap != 5*time.Second || cfg.Timing.BackoffBase != 100*time.Millisecond {
		t.Fatalf("backoff defaults wrong: %+v", cfg.Timing)
	}
	if cfg.Timing.RouterMaxTicks != 10 {
		t.Fatalf("router max ticks = %d", cfg.Timing.RouterMaxTicks)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
api:
  ws_url: wss://example.test/ws
timing:
  ping_interval: 3s
rate_limit:
  rps: 2.5
  burst: 5
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.WSURL != "wss://example.test/ws" {
		t.Fatalf("ws_url = %q", cfg.API.WSURL)
	}
	if cfg.Timing.PingInterval != 3*time.Second {
		t.Fatalf("ping interval = %v", cfg.Timing.PingInterval)
	}
	if cfg.RateLimit.RPS != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("rate limit = %+v", cfg.RateLimit)
	}
	// untouched values keep defaults
	if cfg.Timing.PongTimeout != 5*time.Second {
		t.Fatalf("pong timeout lost its default: %v", cfg.Timing.PongTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTSYNC_WS_URL", "wss://env.test/ws")
	t.Setenv("AGENTSYNC_SCOPES", "chats--all:rw, chats--access:ro")
	t.Setenv("AGENTSYNC_RATE_RPS", "7")

	cfg := Default()
	if !LoadEnvOverrides(cfg) {
		t.Fatalf("env overrides not detected")
	}
	if cfg.API.WSURL != "wss://env.test/ws" {
		t.Fatalf("ws_url = %q", cfg.API.WSURL)
	}
	if len(cfg.Auth.Scopes) != 2 || cfg.Auth.Scopes[1] != "chats--access:ro" {
		t.Fatalf("scopes = %v", cfg.Auth.Scopes)
	}
	if cfg.RateLimit.RPS != 7 {
		t.Fatalf("rps = %v", cfg.RateLimit.RPS)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("./flag.yaml", true); got != "./flag.yaml" {
		t.Fatalf("explicit flag must win, got %q", got)
	}
	t.Setenv("AGENTSYNC_CONFIG", "/etc/agentsync.yaml")
	if got := ResolveConfigPath("./flag.yaml", false); got != "/etc/agentsync.yaml" {
		t.Fatalf("env fallback not used, got %q", got)
	}
}
