package config

import "time"

// Config is the root configuration for Slingdial.
type Config struct {
	Server ServerConfig `json:"server"`
	Models ModelsConfig `json:"models"`
	Events EventsConfig `json:"events"`
	Dialog DialogConfig `json:"dialog"`
	Dialer DialerConfig `json:"dialer"`
	Speech SpeechConfig `json:"speech"`
}

// ServerConfig holds the telephony server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// BaseURL is the externally reachable URL the telephony provider
	// calls back on. Required for outbound calls.
	BaseURL string `json:"base_url,omitempty"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "openai", "claude", "gemini", "ollama"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// DialogConfig holds dialog engine settings.
type DialogConfig struct {
	// MaxRetries bounds completion-backend retries per skill invocation.
	MaxRetries int `json:"max_retries"`
	// MaxTurnSteps bounds graph hops within a single turn.
	MaxTurnSteps int `json:"max_turn_steps"`
	// SkillDirs are directories scanned for JSONC skill overrides.
	SkillDirs []string `json:"skill_dirs"`
	// SkillPatterns are doublestar patterns matched against file paths
	// inside SkillDirs (default: ["**/*.jsonc"]).
	SkillPatterns []string `json:"skill_patterns"`
}

// DialerConfig holds outbound dialer settings.
type DialerConfig struct {
	Enabled         bool     `json:"enabled"`
	FromNumber      string   `json:"from_number"`
	PauseBetween    Duration `json:"pause_between"`     // pause between dial cycles
	PollInterval    Duration `json:"poll_interval"`     // call-record poll cadence
	MaxCallDuration Duration `json:"max_call_duration"` // hard cap per call
	// Schedule is an optional 5-field cron expression restricting when
	// the dialer may start calls. Empty means always.
	Schedule      string `json:"schedule,omitempty"`
	PhonebookPath string `json:"phonebook_path,omitempty"`
}

// SpeechConfig holds transcription/synthesis profile settings.
type SpeechConfig struct {
	DefaultLanguage string `json:"default_language"`
	// LanguagesFile optionally overrides the built-in language profile
	// table with a YAML bundle.
	LanguagesFile string `json:"languages_file,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
