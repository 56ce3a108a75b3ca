// Package identity manages the Ed25519 keypair a publisher uses to sign
// bizast records. It is deliberately minimal: client-side key management is
// explicitly out of scope for the protocol itself, so this package offers
// only what the CLI needs to generate and reuse a keypair across publishes.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// KeyFilePerm is the permission a private key file is written with:
// owner read/write only.
const KeyFilePerm = 0o600

// Identity is a loaded or freshly generated Ed25519 keypair.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a new random Ed25519 keypair.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return &Identity{Public: pub, Private: priv}, nil
}

// Save writes the keypair's hex-encoded private key to path, creating
// parent directories as needed. The private key alone is sufficient to
// recover the public key on load, so only one file is written.
func Save(path string, id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}
	encoded := hex.EncodeToString(id.Private)
	if err := os.WriteFile(path, []byte(encoded), KeyFilePerm); err != nil {
		return fmt.Errorf("identity: write key file %s: %w", path, err)
	}
	return nil
}

// Load reads a hex-encoded Ed25519 private key from path and derives its
// public half.
func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key file %s: %w", path, err)
	}
	priv, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("identity: decode key file %s: %w", path, err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: key file %s has wrong size: got %d bytes, want %d", path, len(priv), ed25519.PrivateKeySize)
	}
	privateKey := ed25519.PrivateKey(priv)
	public, ok := privateKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: could not derive public key from %s", path)
	}
	return &Identity{Public: public, Private: privateKey}, nil
}

// LoadOrGenerate loads the keypair at path, generating and persisting a new
// one if none exists yet.
func LoadOrGenerate(path string) (*Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: stat key file %s: %w", path, err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := Save(path, id); err != nil {
		return nil, err
	}
	return id, nil
}
