package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.DebounceMs != 2000 {
		t.Errorf("debounce_ms = %d, want 2000", cfg.DebounceMs)
	}
	if cfg.DebounceDelay() != 2*time.Second {
		t.Errorf("DebounceDelay() = %v, want 2s", cfg.DebounceDelay())
	}
	if cfg.CloudBaseURL == "" {
		t.Error("cloud_base_url default missing")
	}
	if cfg.FeedPort != 8565 {
		t.Errorf("feed_port = %d, want 8565", cfg.FeedPort)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `data_dir: /tmp/tm-data
cloud_base_url: http://localhost:9100
uid: user-42
debounce_ms: 250
feed_port: 0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.DataDir != "/tmp/tm-data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.CloudBaseURL != "http://localhost:9100" {
		t.Errorf("cloud_base_url = %q", cfg.CloudBaseURL)
	}
	if cfg.UID != "user-42" {
		t.Errorf("uid = %q", cfg.UID)
	}
	if cfg.DebounceDelay() != 250*time.Millisecond {
		t.Errorf("DebounceDelay() = %v, want 250ms", cfg.DebounceDelay())
	}
	if cfg.FeedPort != 0 {
		t.Errorf("feed_port = %d, want 0", cfg.FeedPort)
	}
	// Values the file omits fall back to defaults.
	if cfg.ProbeIntervalSec != 15 {
		t.Errorf("probe_interval_sec = %d, want default 15", cfg.ProbeIntervalSec)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TASTEMAKER_CLOUD_API_KEY", "secret-key")
	t.Setenv("TASTEMAKER_UID", "env-user")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.CloudAPIKey != "secret-key" {
		t.Errorf("cloud_api_key = %q, want env value", cfg.CloudAPIKey)
	}
	if cfg.UID != "env-user" {
		t.Errorf("uid = %q, want env value", cfg.UID)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
