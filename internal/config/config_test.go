package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Engine.TickSeconds != DefaultTickSeconds {
		t.Errorf("tickSeconds = %d, want %d", cfg.Engine.TickSeconds, DefaultTickSeconds)
	}
	if cfg.Engine.AlertPolicy != DefaultAlertPolicy {
		t.Errorf("alertPolicy = %q, want %q", cfg.Engine.AlertPolicy, DefaultAlertPolicy)
	}
	if cfg.Engine.RolloverTime != DefaultRolloverTime {
		t.Errorf("rolloverTime = %q, want %q", cfg.Engine.RolloverTime, DefaultRolloverTime)
	}
	if cfg.Profile.EmergencyContact != DefaultEmergencyContact {
		t.Errorf("emergencyContact = %q, want %q", cfg.Profile.EmergencyContact, DefaultEmergencyContact)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Gateway.Port, DefaultPort)
	}
	if !cfg.Channels.Dashboard.Enabled {
		t.Error("dashboard should be enabled by default")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("ELDERMED_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Engine.TickSeconds != DefaultTickSeconds {
		t.Errorf("expected default tick %d, got %d", DefaultTickSeconds, cfg.Engine.TickSeconds)
	}
	if cfg.Store.DBPath == "" {
		t.Error("db path should default under the config dir")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("ELDERMED_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELDERMED_TICK_SECONDS", "")
	t.Setenv("ELDERMED_ALERT_POLICY", "")

	dir := filepath.Join(tmpDir, ".eldermed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	onDisk := map[string]any{
		"engine": map[string]any{
			"tickSeconds": 2,
			"alertPolicy": "highest",
		},
		"profile": map[string]any{
			"name":             "Somsri",
			"emergencyContact": "1669",
		},
	}
	data, _ := json.Marshal(onDisk)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Engine.TickSeconds != 2 {
		t.Errorf("tickSeconds = %d, want 2", cfg.Engine.TickSeconds)
	}
	if cfg.Engine.AlertPolicy != "highest" {
		t.Errorf("alertPolicy = %q, want highest", cfg.Engine.AlertPolicy)
	}
	if cfg.Profile.Name != "Somsri" {
		t.Errorf("name = %q, want Somsri", cfg.Profile.Name)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ELDERMED_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("ELDERMED_DB_PATH", "/tmp/other.db")
	t.Setenv("ELDERMED_TICK_SECONDS", "9")
	t.Setenv("ELDERMED_ALERT_POLICY", "highest")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Store.DBPath != "/tmp/other.db" {
		t.Errorf("dbPath = %q", cfg.Store.DBPath)
	}
	if cfg.Engine.TickSeconds != 9 {
		t.Errorf("tickSeconds = %d, want 9", cfg.Engine.TickSeconds)
	}
	if cfg.Engine.AlertPolicy != "highest" {
		t.Errorf("alertPolicy = %q, want highest", cfg.Engine.AlertPolicy)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ELDERMED_TELEGRAM_TOKEN", "")
	t.Setenv("ELDERMED_DB_PATH", "")
	t.Setenv("ELDERMED_TICK_SECONDS", "")
	t.Setenv("ELDERMED_ALERT_POLICY", "")

	cfg := DefaultConfig()
	cfg.Profile.Name = "Grandma"
	cfg.Engine.TickSeconds = 3
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Profile.Name != "Grandma" {
		t.Errorf("name = %q, want Grandma", loaded.Profile.Name)
	}
	if loaded.Engine.TickSeconds != 3 {
		t.Errorf("tickSeconds = %d, want 3", loaded.Engine.TickSeconds)
	}
}
