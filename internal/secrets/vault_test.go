package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	return NewVault(filepath.Join(dir, ".env"), filepath.Join(dir, ".age-key"))
}

func TestInitIdempotent(t *testing.T) {
	v := newTestVault(t)

	if err := v.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first, err := os.ReadFile(v.keyPath)
	if err != nil {
		t.Fatalf("read key: %v", err)
	}

	if err := v.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	second, err := os.ReadFile(v.keyPath)
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	if string(first) != string(second) {
		t.Error("expected Init to keep the existing key")
	}

	info, err := os.Stat(v.keyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected key mode 0600, got %o", info.Mode().Perm())
	}
}

func TestSetCredentialRoundTrip(t *testing.T) {
	v := newTestVault(t)

	if err := v.SetCredential("OPENAI_API_KEY", "sk-test-123"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}

	data, err := os.ReadFile(v.envPath)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	if strings.Contains(string(data), "sk-test-123") {
		t.Fatal("plaintext credential leaked into .env")
	}
	if !strings.Contains(string(data), encPrefix) {
		t.Fatal("expected an ENC[age:...] blob in .env")
	}

	line := strings.TrimSpace(string(data))
	_, blob, ok := strings.Cut(line, "=")
	if !ok {
		t.Fatalf("unexpected env line %q", line)
	}
	plain, err := v.Reveal(blob)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "sk-test-123" {
		t.Errorf("expected round-tripped credential, got %q", plain)
	}
}

func TestRevealPassesPlainValues(t *testing.T) {
	v := newTestVault(t)
	plain, err := v.Reveal("not-encrypted")
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "not-encrypted" {
		t.Errorf("expected passthrough, got %q", plain)
	}
}

func TestExportDecryptsIntoEnv(t *testing.T) {
	v := newTestVault(t)

	if err := v.SetCredential("ANTHROPIC_API_KEY", "sk-ant-xyz"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if err := SetEntry(v.envPath, "PLAIN_VAR", "visible"); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	if err := v.Export(); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got := os.Getenv("ANTHROPIC_API_KEY"); got != "sk-ant-xyz" {
		t.Errorf("expected decrypted env var, got %q", got)
	}
}

func TestExportMissingFile(t *testing.T) {
	v := newTestVault(t)
	if err := v.Export(); err != nil {
		t.Fatalf("Export on missing .env: %v", err)
	}
}

func TestIsEncrypted(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"ENC[age:abc]", true},
		{"ENC[age:]", true},
		{"plain", false},
		{"ENC[age:abc", false},
		{"age:abc]", false},
	}
	for _, tc := range cases {
		if got := IsEncrypted(tc.in); got != tc.want {
			t.Errorf("IsEncrypted(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
