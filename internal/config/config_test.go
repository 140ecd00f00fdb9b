package config

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Empty values fail to parse and fall back to the defaults.
	for _, k := range []string{"MAX_UPLOAD_BYTES", "SESSION_TTL", "CSRF_KEY", "SESSION_KEY", "LOGIN_RATE_LIMIT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("PORT", "8585")
	t.Setenv("DB_PATH", "./farm.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8585" || cfg.DBPath != "./farm.db" {
		t.Fatalf("unexpected base config: %+v", cfg)
	}
	if len(cfg.CSRFKey) != 32 || len(cfg.SessionKey) != 32 {
		t.Fatalf("expected generated 32-byte keys, got %d/%d", len(cfg.CSRFKey), len(cfg.SessionKey))
	}
	if bytes.Equal(cfg.CSRFKey, cfg.SessionKey) {
		t.Fatalf("generated keys must differ")
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("max upload default: %d", cfg.MaxUploadBytes)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("session ttl default: %v", cfg.SessionTTL)
	}
	if cfg.LoginRateLimit != 10 {
		t.Fatalf("rate limit default: %d", cfg.LoginRateLimit)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level default: %v", cfg.LogLevel)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("UPLOAD_DIR", "/tmp/up")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("SESSION_KEY", key)
	t.Setenv("CSRF_KEY", key)
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("LOGIN_RATE_LIMIT", "3")
	t.Setenv("LOGIN_RATE_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" || cfg.DBPath != "/tmp/x.db" || cfg.UploadDir != "/tmp/up" {
		t.Fatalf("paths not overridden: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 2048 || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("numeric overrides: %d %v", cfg.MaxUploadBytes, cfg.SessionTTL)
	}
	if !bytes.Equal(cfg.SessionKey, bytes.Repeat([]byte{7}, 32)) {
		t.Fatalf("session key not decoded")
	}
	if !cfg.CookieSecure {
		t.Fatalf("cookie secure not set")
	}
	if cfg.AdminUsername != "root" || cfg.AdminPassword != "s3cret" {
		t.Fatalf("admin overrides: %s/%s", cfg.AdminUsername, cfg.AdminPassword)
	}
	if cfg.LoginRateLimit != 3 || cfg.LoginRateWindow != 30*time.Second {
		t.Fatalf("rate overrides: %d %v", cfg.LoginRateLimit, cfg.LoginRateWindow)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level: %v", cfg.LogLevel)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("MAX_UPLOAD_BYTES", "-5")
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("SESSION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8585" {
		t.Fatalf("port fallback: %s", cfg.Port)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("upload fallback: %d", cfg.MaxUploadBytes)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("ttl fallback: %v", cfg.SessionTTL)
	}
	if len(cfg.SessionKey) != 32 {
		t.Fatalf("short key must be replaced, got %d bytes", len(cfg.SessionKey))
	}
}
