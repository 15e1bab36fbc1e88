package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("server:\n  port: \"9090\"\nauth:\n  jwt_secret: from-file\nrealtime:\n  pong_wait: 30s\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env secret override, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Sessions.PINAttempts != 10 || cfg.Sessions.JoinAttempts != 100 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Sessions)
	}
	if cfg.Realtime.SendBuffer != 64 {
		t.Fatalf("expected send buffer default 64, got %d", cfg.Realtime.SendBuffer)
	}
	if got := Duration(cfg.Realtime.PongWait, time.Minute); got != 30*time.Second {
		t.Fatalf("expected 30s pong wait, got %s", got)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("empty should fall back, got %s", got)
	}
	if got := Duration("soon", time.Second); got != time.Second {
		t.Fatalf("malformed should fall back, got %s", got)
	}
}
