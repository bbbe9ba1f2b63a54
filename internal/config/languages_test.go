package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLanguageTableBuiltins(t *testing.T) {
	table, err := NewLanguageTable("en", "")
	if err != nil {
		t.Fatalf("NewLanguageTable: %v", err)
	}

	tests := []struct {
		language   string
		dir        Direction
		wantLocale string
		wantVoice  string
	}{
		{"en", DirectionInbound, "en-US", defaultSynthesizerVoice},
		{"en", DirectionOutbound, "en-US", defaultSynthesizerVoice},
		{"kr", DirectionInbound, "ko-KR", "ko-KR-SunHiNeural"},
		{"kr", DirectionOutbound, "ko-KR", "ko-KR-SunHiNeural"},
	}

	for _, tt := range tests {
		p := table.Lookup(tt.language, tt.dir)
		if p.TranscriberLocale != tt.wantLocale {
			t.Errorf("%s-%s: TranscriberLocale = %q, want %q", tt.language, tt.dir, p.TranscriberLocale, tt.wantLocale)
		}
		if p.SynthesizerVoice != tt.wantVoice {
			t.Errorf("%s-%s: SynthesizerVoice = %q, want %q", tt.language, tt.dir, p.SynthesizerVoice, tt.wantVoice)
		}
		if p.Greeting == "" {
			t.Errorf("%s-%s: empty greeting", tt.language, tt.dir)
		}
	}
}

func TestLanguageTableInboundOutboundGreetingsDiffer(t *testing.T) {
	table, err := NewLanguageTable("en", "")
	if err != nil {
		t.Fatalf("NewLanguageTable: %v", err)
	}

	in := table.Lookup("en", DirectionInbound)
	out := table.Lookup("en", DirectionOutbound)
	if in.Greeting == out.Greeting {
		t.Error("inbound and outbound greetings should differ")
	}
}

func TestLanguageTableUnknownFallsBack(t *testing.T) {
	table, err := NewLanguageTable("en", "")
	if err != nil {
		t.Fatalf("NewLanguageTable: %v", err)
	}

	p := table.Lookup("fr", DirectionInbound)
	if p.TranscriberLocale != "en-US" {
		t.Errorf("fallback locale = %q, want en-US", p.TranscriberLocale)
	}
}

func TestLanguageTableYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	content := `
es-in:
  greeting: "Bienvenido a Slingshot AI."
  transcriber_locale: es-ES
  synthesizer_locale: es-ES
  synthesizer_voice: es-ES-ElviraNeural
en-in:
  greeting: "Custom greeting."
  transcriber_locale: en-GB
  synthesizer_locale: en-GB
  synthesizer_voice: en-GB-SoniaNeural
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := NewLanguageTable("en", path)
	if err != nil {
		t.Fatalf("NewLanguageTable: %v", err)
	}

	es := table.Lookup("es", DirectionInbound)
	if es.SynthesizerVoice != "es-ES-ElviraNeural" {
		t.Errorf("es voice = %q", es.SynthesizerVoice)
	}
	if es.Language != "es" {
		t.Errorf("es Language = %q, want es", es.Language)
	}

	en := table.Lookup("en", DirectionInbound)
	if en.Greeting != "Custom greeting." {
		t.Errorf("en greeting = %q, want override", en.Greeting)
	}

	// Outbound en untouched by the override
	out := table.Lookup("en", DirectionOutbound)
	if !strings.Contains(out.Greeting, "Slingshot") {
		t.Errorf("outbound greeting lost: %q", out.Greeting)
	}
}

func TestLanguageTableBadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	if err := os.WriteFile(path, []byte("english:\n  greeting: hi\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewLanguageTable("en", path); err == nil {
		t.Fatal("expected error for key without direction suffix")
	}
}

func TestLanguageTableUnknownDefault(t *testing.T) {
	if _, err := NewLanguageTable("zz", ""); err == nil {
		t.Fatal("expected error for default language without profile")
	}
}
