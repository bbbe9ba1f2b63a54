// Package secrets keeps provider credentials encrypted at rest. Values in
// the .env file may be stored as ENC[age:...] blobs; the vault decrypts
// them into the process environment at startup so the model auth layer
// only ever sees plain env vars.
package secrets

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/slingshot-ai/slingdial/internal/config"
)

const encPrefix = "ENC[age:"
const encSuffix = "]"

// KeyPath returns the default age key file path: $SLINGDIAL_PATH/.age-key.
func KeyPath() string {
	return filepath.Join(config.SlingdialPath(), ".age-key")
}

// Vault couples a dotenv file with an age key pair.
type Vault struct {
	envPath string
	keyPath string
}

// NewVault creates a vault over the given dotenv and key files.
func NewVault(envPath, keyPath string) *Vault {
	return &Vault{envPath: envPath, keyPath: keyPath}
}

// Init creates the X25519 key pair if it does not exist yet. The key file
// is written with 0o600.
func (v *Vault) Init() error {
	if _, err := os.Stat(v.keyPath); err == nil {
		return nil // already exists
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}

	content := fmt.Sprintf("# created by slingdial\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(v.keyPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write age key: %w", err)
	}
	return nil
}

func (v *Vault) identity() (*age.X25519Identity, error) {
	f, err := os.Open(v.keyPath)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", v.keyPath)
	}

	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected identity type in %s", v.keyPath)
	}
	return id, nil
}

// SetCredential encrypts a credential and writes it to the dotenv file as
// an ENC[age:...] blob under the given env var name.
func (v *Vault) SetCredential(name, plaintext string) error {
	if err := v.Init(); err != nil {
		return err
	}
	id, err := v.identity()
	if err != nil {
		return err
	}

	blob, err := encrypt(plaintext, id.Recipient())
	if err != nil {
		return err
	}
	return SetEntry(v.envPath, name, blob)
}

// Reveal decrypts an ENC[age:...] blob. Plain values pass through.
func (v *Vault) Reveal(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	id, err := v.identity()
	if err != nil {
		return "", err
	}
	return decrypt(value, id)
}

// Export decrypts every encrypted entry of the dotenv file into the
// process environment. Plain entries are left to the dotenv loader.
func (v *Vault) Export() error {
	lines, err := readLines(v.envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dotenv: %w", err)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok || !IsEncrypted(value) {
			continue
		}
		plain, err := v.Reveal(value)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", key, err)
		}
		if err := os.Setenv(strings.TrimSpace(key), plain); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// IsEncrypted returns true if the string is an ENC[age:...] blob.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encPrefix) && strings.HasSuffix(s, encSuffix)
}

func encrypt(plaintext string, recipient *age.X25519Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt close: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return encPrefix + encoded + encSuffix, nil
}

func decrypt(blob string, identity *age.X25519Identity) (string, error) {
	encoded := blob[len(encPrefix) : len(blob)-len(encSuffix)]
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}

	plainBytes, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted: %w", err)
	}
	return string(plainBytes), nil
}
