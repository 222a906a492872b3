package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF derives outLen bytes of key material from ikm using HKDF-SHA256
// (RFC 5869) with the given salt and info, shared by X3DH's SK derivation
// and the ratchet's KDF_RK.
func HKDF(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// HMACSHA256 computes HMAC-SHA256(key, data), used by the ratchet's KDF_CK
// to advance a chain key and derive a message key in one step.
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
