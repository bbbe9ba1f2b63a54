package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# comment
SLINGDIAL_TEST_A=plain
SLINGDIAL_TEST_B="quoted value"
export SLINGDIAL_TEST_C='single'

not-a-pair
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, k := range []string{"SLINGDIAL_TEST_A", "SLINGDIAL_TEST_B", "SLINGDIAL_TEST_C"} {
		os.Unsetenv(k)
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}

	tests := map[string]string{
		"SLINGDIAL_TEST_A": "plain",
		"SLINGDIAL_TEST_B": "quoted value",
		"SLINGDIAL_TEST_C": "single",
	}
	for k, want := range tests {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestLoadDotenvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SLINGDIAL_TEST_D=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("SLINGDIAL_TEST_D", "env")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("SLINGDIAL_TEST_D"); got != "env" {
		t.Errorf("SLINGDIAL_TEST_D = %q, want env (no override)", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
