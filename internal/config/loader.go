package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes the JWCC syntax, unmarshals it into Config, and applies
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before standardizing, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("standardize config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with all defaults applied and no providers.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = os.Getenv("BASE_URL")
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Dialog.MaxRetries == 0 {
		cfg.Dialog.MaxRetries = 5
	}
	if cfg.Dialog.MaxTurnSteps == 0 {
		cfg.Dialog.MaxTurnSteps = 25
	}
	if len(cfg.Dialog.SkillDirs) == 0 {
		cfg.Dialog.SkillDirs = []string{filepath.Join(SlingdialPath(), "skills")}
	}
	if len(cfg.Dialog.SkillPatterns) == 0 {
		cfg.Dialog.SkillPatterns = []string{"**/*.jsonc"}
	}
	if cfg.Dialer.PauseBetween.Duration() == 0 {
		cfg.Dialer.PauseBetween = Duration(10 * time.Second)
	}
	if cfg.Dialer.PollInterval.Duration() == 0 {
		cfg.Dialer.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Dialer.MaxCallDuration.Duration() == 0 {
		cfg.Dialer.MaxCallDuration = Duration(5 * time.Minute)
	}
	if cfg.Dialer.PhonebookPath == "" {
		cfg.Dialer.PhonebookPath = filepath.Join(SlingdialPath(), "phonebook.db")
	}
	if cfg.Speech.DefaultLanguage == "" {
		if v := os.Getenv("LANGUAGE"); v != "" {
			cfg.Speech.DefaultLanguage = v
		} else {
			cfg.Speech.DefaultLanguage = "en"
		}
	}
}
