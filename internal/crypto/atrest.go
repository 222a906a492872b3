package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id tunables for the vault master key used to encrypt everything in
// internal/store other than the identity file (which keeps its own
// scrypt-keyed versioned blob format; see internal/store/crypto_envelope.go).
const (
	Argon2Time    = 1
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4
	argon2KeyLen  = 32
)

// DeriveKEKArgon2 derives a 32-byte key-encryption-key from passphrase and
// salt using Argon2id.
func DeriveKEKArgon2(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, argon2KeyLen)
}

// SealAtRest encrypts plaintext under a KEK derived from passphrase and
// salt, returning nonce||ciphertext.
func SealAtRest(passphrase string, salt, plaintext []byte) ([]byte, error) {
	key := DeriveKEKArgon2(passphrase, salt)
	defer Wipe(key)
	sealed, err := SealRandom(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("atrest: seal: %w", err)
	}
	return sealed, nil
}

// OpenAtRest is the inverse of SealAtRest.
func OpenAtRest(passphrase string, salt, sealed []byte) ([]byte, error) {
	key := DeriveKEKArgon2(passphrase, salt)
	defer Wipe(key)
	pt, err := OpenRandom(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("atrest: open: %w", err)
	}
	return pt, nil
}
