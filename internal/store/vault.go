package store

import (
	"crypto/rand"
	"fmt"
	"path/filepath"

	"duskwire/internal/crypto"
)

const (
	vaultSaltFile = "vault.salt"
	vaultSaltSize = 16
)

// Vault holds an Argon2id-derived key-encryption key in memory so stores
// that are constructed once per unlocked session (pre-keys, ratchet state)
// can seal and open their blobs without re-deriving a key, and without
// taking a passphrase on every call the way IdentityStore does.
//
// This is a separate lineage from crypto_envelope.go's scrypt-based
// versioned blob, which only ever protects the identity file; Vault
// protects everything else that holds private key material at rest.
type Vault struct {
	key []byte
}

// OpenVault derives (or loads, if already present) the on-disk salt under
// dir, derives the Argon2id key once, and returns a Vault holding it.
func OpenVault(dir, passphrase string) (*Vault, error) {
	salt, err := loadOrCreateSalt(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: salt: %w", err)
	}
	return &Vault{key: crypto.DeriveKEKArgon2(passphrase, salt)}, nil
}

// Seal encrypts plaintext under the vault's key.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	return crypto.SealRandom(v.key, plaintext)
}

// Open decrypts a blob previously produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	return crypto.OpenRandom(v.key, sealed)
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, vaultSaltFile)
	if b, err := readFile(path); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}

	salt := make([]byte, vaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := writeFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}
