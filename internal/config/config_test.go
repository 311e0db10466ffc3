package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
log:
  level: debug
  format: json
redis:
  addr: localhost:6379
  ttl: 30m
battle:
  retry_initial: 50ms
  retry_max_elapsed: 5s
  subscriber_buffer: 32
  lease_ttl: 45s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Battle.SubscriberBuffer != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := Duration(cfg.Battle.RetryInitial, time.Second); got != 50*time.Millisecond {
		t.Fatalf("retry_initial = %v", got)
	}
	if got := Duration(cfg.Battle.LeaseTTL, 30*time.Second); got != 45*time.Second {
		t.Fatalf("lease_ttl = %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "" || cfg.Postgres.URL != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Minute,
		"10s":   10 * time.Second,
		"bogus": time.Minute,
		"-5s":   time.Minute,
	}
	for raw, want := range cases {
		if got := Duration(raw, time.Minute); got != want {
			t.Fatalf("Duration(%q) = %v, want %v", raw, got, want)
		}
	}
}
