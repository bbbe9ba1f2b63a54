package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSONCWithComments(t *testing.T) {
	path := writeConfig(t, `{
		// telephony server
		"server": {"host": "0.0.0.0", "port": 8080},
		"models": {
			"default": "main",
			"providers": {
				"main": {"driver": "openai", "model": "gpt-4o"},
			},
		},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Models.Providers["main"].Driver != "openai" {
		t.Errorf("Driver = %q, want openai", cfg.Models.Providers["main"].Driver)
	}
}

func TestLoadExpandsEnvTemplates(t *testing.T) {
	t.Setenv("SLINGDIAL_TEST_KEY", "sk-abc123")

	path := writeConfig(t, `{
		"models": {
			"default": "main",
			"providers": {
				"main": {
					"driver": "openai",
					"model": "gpt-4o",
					"auth": {"api_key": "${{ .Env.SLINGDIAL_TEST_KEY }}"}
				}
			}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Models.Providers["main"].Auth.APIKey; got != "sk-abc123" {
		t.Errorf("APIKey = %q, want sk-abc123", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", cfg.Events.BufferSize)
	}
	if cfg.Dialog.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Dialog.MaxRetries)
	}
	if got := cfg.Dialer.PollInterval.Duration(); got != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", got)
	}
	if got := cfg.Dialer.MaxCallDuration.Duration(); got != 5*time.Minute {
		t.Errorf("MaxCallDuration = %v, want 5m", got)
	}
	if len(cfg.Dialog.SkillPatterns) == 0 || cfg.Dialog.SkillPatterns[0] != "**/*.jsonc" {
		t.Errorf("SkillPatterns = %v, want [**/*.jsonc]", cfg.Dialog.SkillPatterns)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var back Duration
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if back.Duration() != 90*time.Second {
		t.Errorf("round trip = %v, want 1m30s", back.Duration())
	}
}
