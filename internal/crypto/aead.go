package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// nonceInfo is the HKDF info string binding a message key to the body AEAD
// nonce derived from it.
const nonceInfo = "Nonce"

// DeterministicNonce derives the 12-byte nonce for a message body from mk via
// HKDF-SHA256(mk, info="Nonce"). Since mk is only ever used for a single
// message, the nonce it derives is unique per (key, nonce) pair without
// needing a separately tracked counter. Exposed so callers that already hold
// mk can reproduce the nonce without re-deriving it.
func DeterministicNonce(mk []byte) ([]byte, error) {
	return HKDF(mk, nil, []byte(nonceInfo), chacha20poly1305.NonceSize)
}

// SealDeterministic encrypts plaintext under key (the message key mk) with a
// nonce derived from mk itself, which is safe because every message key is
// used exactly once. This is how the ratchet seals message bodies
// (MKENCRYPT).
func SealDeterministic(key []byte, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	nonce, err := DeterministicNonce(key)
	if err != nil {
		return nil, fmt.Errorf("aead: derive nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// OpenDeterministic is the inverse of SealDeterministic.
func OpenDeterministic(key []byte, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	nonce, err := DeterministicNonce(key)
	if err != nil {
		return nil, fmt.Errorf("aead: derive nonce: %w", err)
	}
	return aead.Open(nil, nonce, ciphertext, ad)
}

// SealRandom encrypts plaintext under key with a fresh random nonce,
// returning nonce||ciphertext. The header key is reused across every
// message in a chain, so (unlike the message key) it cannot supply its own
// uniqueness and needs a random nonce per the Double-Ratchet-with-Header-
// Encryption construction (HENCRYPT).
func SealRandom(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aead: read nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// OpenRandom is the inverse of SealRandom (HDECRYPT): it splits the leading
// nonce off sealed and opens the remainder under key.
func OpenRandom(key, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("aead: sealed header too short")
	}
	aead, err := chacha20poly1305.New(key[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("aead: new cipher: %w", err)
	}
	nonce := sealed[:chacha20poly1305.NonceSize]
	ct := sealed[chacha20poly1305.NonceSize:]
	return aead.Open(nil, nonce, ct, nil)
}
