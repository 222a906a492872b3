// Package crypto exposes the minimal primitives used by duskwire.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     ClampX25519PrivateKey, DH)
//   - XEdDSA signing and verification over a Curve25519 identity key
//     (XEdDSASign, XEdDSAVerify, XEdDSAPublic), converting between the
//     Montgomery and Edwards forms of the same curve
//   - HKDF-SHA256 and HMAC-SHA256 wrappers shared by X3DH and the ratchet
//     (HKDF, HMACSHA256)
//   - ChaCha20-Poly1305 sealing with deterministic and random nonces
//     (SealDeterministic, OpenDeterministic, SealRandom, OpenRandom)
//   - Passphrase-based encryption of data at rest (SealAtRest, OpenAtRest)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key generation and Diffie–Hellman (GenerateX25519, DH, XEdDSAPublic) return
// fixed-size array types defined in internal/domain; the KDF, AEAD and
// signing helpers return byte slices. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
package crypto
