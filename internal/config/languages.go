package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Direction distinguishes inbound from outbound calls. The greeting differs:
// inbound callers are welcomed, outbound callees are told why we are calling.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// LanguageProfile bundles everything locale-specific about one call:
// greeting, prompt preamble, and the transcriber/synthesizer settings.
// Profiles are immutable once a session has been created with one.
type LanguageProfile struct {
	Language          string `yaml:"-"`
	Greeting          string `yaml:"greeting"`
	PromptPreamble    string `yaml:"prompt_preamble"`
	TranscriberLocale string `yaml:"transcriber_locale"`
	SynthesizerLocale string `yaml:"synthesizer_locale"`
	SynthesizerVoice  string `yaml:"synthesizer_voice"`
}

const defaultSynthesizerVoice = "en-US-AriaNeural"

// builtinProfiles is the default table, keyed "<language>-<direction>".
var builtinProfiles = map[string]LanguageProfile{
	"en-in": {
		Language:          "en",
		Greeting:          "Welcome to Slingshot AI. How can I assist you today?",
		TranscriberLocale: "en-US",
		SynthesizerLocale: "en-US",
		SynthesizerVoice:  defaultSynthesizerVoice,
	},
	"en-out": {
		Language:          "en",
		Greeting:          "Hello, this call is from Slingshot AI. I am calling to assist you with processing your payment",
		TranscriberLocale: "en-US",
		SynthesizerLocale: "en-US",
		SynthesizerVoice:  defaultSynthesizerVoice,
	},
	"kr-in": {
		Language:          "kr",
		Greeting:          "안녕하세요 슬링샷 AI 입니다. 무엇을 도와드릴까요?",
		PromptPreamble:    "당신은 한국말 도우미 입니다.",
		TranscriberLocale: "ko-KR",
		SynthesizerLocale: "ko-KR",
		SynthesizerVoice:  "ko-KR-SunHiNeural",
	},
	"kr-out": {
		Language:          "kr",
		Greeting:          "안녕하세요 슬링샷 AI에서 전화드립니다. 고객님의 결제를 도와드리려 합니다",
		PromptPreamble:    "당신은 한국말 도우미 입니다.",
		TranscriberLocale: "ko-KR",
		SynthesizerLocale: "ko-KR",
		SynthesizerVoice:  "ko-KR-SunHiNeural",
	},
}

// LanguageTable resolves (language, direction) pairs to profiles.
type LanguageTable struct {
	profiles        map[string]LanguageProfile
	defaultLanguage string
}

// NewLanguageTable builds a table from the built-in profiles, optionally
// merged with a YAML bundle at path (entries there win). defaultLanguage is
// used when a lookup names an unknown language.
func NewLanguageTable(defaultLanguage, path string) (*LanguageTable, error) {
	profiles := make(map[string]LanguageProfile, len(builtinProfiles))
	for k, v := range builtinProfiles {
		profiles[k] = v
	}

	if path != "" {
		loaded, err := loadProfilesYAML(path)
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			profiles[k] = v
		}
	}

	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	if _, ok := profiles[defaultLanguage+"-in"]; !ok {
		return nil, fmt.Errorf("default language %q has no profile", defaultLanguage)
	}

	return &LanguageTable{profiles: profiles, defaultLanguage: defaultLanguage}, nil
}

// Lookup returns the profile for (language, direction). Unknown languages
// fall back to the table's default language; the direction is always honored.
func (t *LanguageTable) Lookup(language string, dir Direction) LanguageProfile {
	if p, ok := t.profiles[language+"-"+string(dir)]; ok {
		return p
	}
	return t.profiles[t.defaultLanguage+"-"+string(dir)]
}

// DefaultLanguage returns the configured fallback language.
func (t *LanguageTable) DefaultLanguage() string {
	return t.defaultLanguage
}

func loadProfilesYAML(path string) (map[string]LanguageProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}

	var raw map[string]LanguageProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse languages file: %w", err)
	}

	for key, p := range raw {
		if lang, _, ok := cutProfileKey(key); ok {
			p.Language = lang
			raw[key] = p
		} else {
			return nil, fmt.Errorf("languages file: bad profile key %q (want <lang>-<in|out>)", key)
		}
	}
	return raw, nil
}

func cutProfileKey(key string) (lang string, dir Direction, ok bool) {
	for _, d := range []Direction{DirectionInbound, DirectionOutbound} {
		suffix := "-" + string(d)
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			return key[:len(key)-len(suffix)], d, true
		}
	}
	return "", "", false
}
