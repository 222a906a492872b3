package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"

	"duskwire/internal/domain"
)

// XEdDSA lets a single Curve25519 identity key sign and verify messages,
// without needing a second Ed25519 keypair. It works by converting the
// Montgomery-form scalar/point to Edwards form and running an
// Ed25519-compatible Schnorr signature beneath that conversion, following
// Signal's XEdDSA construction.
//
// domainSep namespaces the nonce hash so a signature here can never be
// confused with a signature produced by some other XEdDSA-using protocol
// sharing the same key.
const domainSep = "duskwire-XEdDSA-v1"

// XEdDSAPublic derives the Edwards25519 verifying key for priv, i.e. the
// same public value XEdDSAVerify will reconstruct from the matching
// X25519Public by way of the Montgomery<->Edwards birational map.
func XEdDSAPublic(priv domain.X25519Private) (domain.Ed25519Public, error) {
	s, err := signingScalar(priv)
	if err != nil {
		return domain.Ed25519Public{}, err
	}
	_, aBytes := publicPoint(s)
	var out domain.Ed25519Public
	copy(out[:], aBytes)
	return out, nil
}

// XEdDSASign signs msg with the Curve25519 identity scalar priv, returning a
// 64-byte (R || s) signature compatible with crypto/ed25519.Verify once the
// public key has been converted via XEdDSAVerify's path.
func XEdDSASign(priv domain.X25519Private, msg []byte) ([]byte, error) {
	s, err := signingScalar(priv)
	if err != nil {
		return nil, err
	}
	_, aBytes := publicPoint(s)

	var z [64]byte
	if _, err := rand.Read(z[:]); err != nil {
		return nil, fmt.Errorf("xeddsa: read nonce entropy: %w", err)
	}

	nonceHash := sha512.New()
	nonceHash.Write([]byte(domainSep + "|nonce"))
	nonceHash.Write(s.Bytes())
	nonceHash.Write(msg)
	nonceHash.Write(z[:])
	r, err := edwards25519.NewScalar().SetUniformBytes(nonceHash.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("xeddsa: derive nonce scalar: %w", err)
	}

	R := new(edwards25519.Point).ScalarBaseMult(r)
	rBytes := R.Bytes()

	challengeHash := sha512.New()
	challengeHash.Write(rBytes)
	challengeHash.Write(aBytes)
	challengeHash.Write(msg)
	h, err := edwards25519.NewScalar().SetUniformBytes(challengeHash.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("xeddsa: derive challenge scalar: %w", err)
	}

	sigS := new(edwards25519.Scalar).MultiplyAdd(h, s, r)

	sig := make([]byte, 64)
	copy(sig[:32], rBytes)
	copy(sig[32:], sigS.Bytes())
	return sig, nil
}

// XEdDSAVerify checks sig over msg against the Curve25519 public key pub,
// recovering the Edwards point from pub's Montgomery u-coordinate and
// delegating to crypto/ed25519's verification equation.
func XEdDSAVerify(pub domain.X25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	edPub, err := montgomeryToEdwardsPublic(pub)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(edPub[:]), msg, sig)
}

// signingScalar clamps priv exactly as X25519 does (SetBytesWithClamping
// applies the identical RFC7748 clamp), then negates it if necessary so the
// resulting Edwards public key always has sign bit 0 — the convention
// XEdDSAVerify's Montgomery->Edwards map also produces.
func signingScalar(priv domain.X25519Private) (*edwards25519.Scalar, error) {
	raw := append([]byte(nil), priv[:]...)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(raw)
	if err != nil {
		return nil, fmt.Errorf("xeddsa: clamp scalar: %w", err)
	}
	A := new(edwards25519.Point).ScalarBaseMult(s)
	if A.Bytes()[31]&0x80 != 0 {
		s = new(edwards25519.Scalar).Negate(s)
	}
	return s, nil
}

func publicPoint(s *edwards25519.Scalar) (*edwards25519.Point, []byte) {
	A := new(edwards25519.Point).ScalarBaseMult(s)
	return A, A.Bytes()
}

// montgomeryToEdwardsPublic converts a Curve25519 public key (Montgomery
// u-coordinate) to the corresponding Edwards25519 compressed point with sign
// bit 0, via the standard birational map y = (u-1)/(u+1).
func montgomeryToEdwardsPublic(pub domain.X25519Public) (domain.Ed25519Public, error) {
	u, err := new(field.Element).SetBytes(pub[:])
	if err != nil {
		return domain.Ed25519Public{}, fmt.Errorf("xeddsa: decode u-coordinate: %w", err)
	}
	one := new(field.Element).One()
	numerator := new(field.Element).Subtract(u, one)
	denominator := new(field.Element).Add(u, one)
	denomInv := new(field.Element).Invert(denominator)
	y := new(field.Element).Multiply(numerator, denomInv)

	var out domain.Ed25519Public
	copy(out[:], y.Bytes())
	// field.Element.Bytes() is always < 2^255, so bit 255 (the sign bit in
	// compressed Edwards encoding) is already clear — matching the
	// convention enforced in signingScalar.
	return out, nil
}
