package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poll.Tick != 1500*time.Millisecond {
		t.Errorf("Expected default poll tick 1.5s, got %v", cfg.Poll.Tick)
	}
	if cfg.Poll.BatchMax != 50 {
		t.Errorf("Expected default batch max 50, got %d", cfg.Poll.BatchMax)
	}
	if cfg.Poll.IdleJitter != 150*time.Millisecond {
		t.Errorf("Expected default idle jitter 150ms, got %v", cfg.Poll.IdleJitter)
	}
	if cfg.Join.Interval != 180*time.Second {
		t.Errorf("Expected default join interval 180s, got %v", cfg.Join.Interval)
	}
	if cfg.Join.Jitter != 2500*time.Millisecond {
		t.Errorf("Expected default join jitter 2500ms, got %v", cfg.Join.Jitter)
	}
	if cfg.Sessions.RescanInterval != 20*time.Second {
		t.Errorf("Expected default rescan interval 20s, got %v", cfg.Sessions.RescanInterval)
	}
	if cfg.Sessions.HealthInterval != 45*time.Second {
		t.Errorf("Expected default health interval 45s, got %v", cfg.Sessions.HealthInterval)
	}
	if !cfg.Media.Include {
		t.Error("Expected media mirroring enabled by default")
	}
	if cfg.Media.MaxBytes != 50*1024*1024 {
		t.Errorf("Expected default media cap 50MB, got %d", cfg.Media.MaxBytes)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Errorf("Expected default CORS origins [*], got %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("Expected default data dir ./data, got %s", cfg.DataDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_ID", "12345")
	t.Setenv("API_HASH", "abc123")
	t.Setenv("POLL_TICK_SEC", "2.5")
	t.Setenv("BATCH_MAX", "10")
	t.Setenv("IDLE_JITTER_MS", "300")
	t.Setenv("JOIN_INTERVAL_SEC", "60")
	t.Setenv("JOIN_JITTER_MS", "500")
	t.Setenv("SESS_RESCAN_SEC", "5")
	t.Setenv("HEALTHCHECK_INTERVAL_SEC", "10")
	t.Setenv("INCLUDE_MEDIA", "false")
	t.Setenv("MEDIA_MAX_MB", "10")
	t.Setenv("API_BEARER", "secret")
	t.Setenv("BIND_HOST", "127.0.0.1")
	t.Setenv("BIND_PORT", "9090")
	t.Setenv("DATA_DIR", "/tmp/mirrord-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.APIID != 12345 {
		t.Errorf("Expected API ID 12345, got %d", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "abc123" {
		t.Errorf("Expected API hash abc123, got %s", cfg.Telegram.APIHash)
	}
	if cfg.Poll.Tick != 2500*time.Millisecond {
		t.Errorf("Expected poll tick 2.5s, got %v", cfg.Poll.Tick)
	}
	if cfg.Poll.BatchMax != 10 {
		t.Errorf("Expected batch max 10, got %d", cfg.Poll.BatchMax)
	}
	if cfg.Poll.IdleJitter != 300*time.Millisecond {
		t.Errorf("Expected idle jitter 300ms, got %v", cfg.Poll.IdleJitter)
	}
	if cfg.Join.Interval != 60*time.Second {
		t.Errorf("Expected join interval 60s, got %v", cfg.Join.Interval)
	}
	if cfg.Media.Include {
		t.Error("Expected media mirroring disabled")
	}
	if cfg.Media.MaxBytes != 10*1024*1024 {
		t.Errorf("Expected media cap 10MB, got %d", cfg.Media.MaxBytes)
	}
	if cfg.HTTP.BearerToken != "secret" {
		t.Errorf("Expected bearer token secret, got %s", cfg.HTTP.BearerToken)
	}
	if cfg.HTTP.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.HTTP.Host)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.DataDir != "/tmp/mirrord-test" {
		t.Errorf("Expected data dir /tmp/mirrord-test, got %s", cfg.DataDir)
	}
}

func TestLoad_FractionalTick(t *testing.T) {
	t.Setenv("POLL_TICK_SEC", "1.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poll.Tick != 1500*time.Millisecond {
		t.Errorf("Expected poll tick 1500ms, got %v", cfg.Poll.Tick)
	}
}

func TestLoad_InvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("BATCH_MAX", "not-a-number")
	t.Setenv("POLL_TICK_SEC", "garbage")
	t.Setenv("INCLUDE_MEDIA", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poll.BatchMax != 50 {
		t.Errorf("Expected default batch max on bad input, got %d", cfg.Poll.BatchMax)
	}
	if cfg.Poll.Tick != 1500*time.Millisecond {
		t.Errorf("Expected default poll tick on bad input, got %v", cfg.Poll.Tick)
	}
	if !cfg.Media.Include {
		t.Error("Expected default media flag on bad input")
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("Expected 2 CORS origins, got %d", len(cfg.HTTP.CORSOrigins))
	}
	if cfg.HTTP.CORSOrigins[0] != "https://a.example.com" {
		t.Errorf("Expected trimmed origin, got %q", cfg.HTTP.CORSOrigins[0])
	}
	if cfg.HTTP.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("Expected trimmed origin, got %q", cfg.HTTP.CORSOrigins[1])
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.Telegram.APIID = 1
		cfg.Telegram.APIHash = "h"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	cfg := valid()
	cfg.Telegram.APIID = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing API_ID")
	}

	cfg = valid()
	cfg.Telegram.APIHash = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing API_HASH")
	}

	cfg = valid()
	cfg.Poll.Tick = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero poll tick")
	}

	cfg = valid()
	cfg.Poll.BatchMax = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero batch max")
	}

	cfg = valid()
	cfg.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for out-of-range port")
	}
}

func TestDataPaths(t *testing.T) {
	cfg := defaults()
	cfg.DataDir = "/var/lib/mirrord"

	if got := cfg.SessionsDir(); got != filepath.Join("/var/lib/mirrord", "sessions") {
		t.Errorf("Unexpected sessions dir: %s", got)
	}
	if got := cfg.PendingDir(); got != filepath.Join("/var/lib/mirrord", "sessions_pending") {
		t.Errorf("Unexpected pending dir: %s", got)
	}
	if got := cfg.StatePath(); got != filepath.Join("/var/lib/mirrord", "state.json") {
		t.Errorf("Unexpected state path: %s", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.SessionsDir(), cfg.PendingDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Expected %s to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("Expected %s to be a directory", dir)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrord.toml")

	content := `
data_dir = "/srv/mirrord"

[telegram]
api_id = 424242
api_hash = "filehash"

[poll]
tick_sec = 3.0
batch_max = 25

[media]
include = false
max_mb = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Telegram.APIID != 424242 {
		t.Errorf("Expected API ID 424242, got %d", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "filehash" {
		t.Errorf("Expected API hash filehash, got %s", cfg.Telegram.APIHash)
	}
	if cfg.Poll.Tick != 3*time.Second {
		t.Errorf("Expected poll tick 3s, got %v", cfg.Poll.Tick)
	}
	if cfg.Poll.BatchMax != 25 {
		t.Errorf("Expected batch max 25, got %d", cfg.Poll.BatchMax)
	}
	if cfg.Media.Include {
		t.Error("Expected media disabled from file")
	}
	if cfg.Media.MaxBytes != 5*1024*1024 {
		t.Errorf("Expected media cap 5MB, got %d", cfg.Media.MaxBytes)
	}
	if cfg.DataDir != "/srv/mirrord" {
		t.Errorf("Expected data dir /srv/mirrord, got %s", cfg.DataDir)
	}
	// Untouched values keep defaults
	if cfg.Join.Interval != 180*time.Second {
		t.Errorf("Expected default join interval, got %v", cfg.Join.Interval)
	}
}

func TestLoadWithFile_EnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrord.toml")

	content := `
[poll]
batch_max = 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("MIRRORD_CONFIG", path)
	t.Setenv("BATCH_MAX", "7")

	cfg, err := LoadWithFile()
	if err != nil {
		t.Fatalf("LoadWithFile failed: %v", err)
	}

	if cfg.Poll.BatchMax != 7 {
		t.Errorf("Expected env override 7 to win over file, got %d", cfg.Poll.BatchMax)
	}
}
