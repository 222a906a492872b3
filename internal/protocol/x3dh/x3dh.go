// Package x3dh implements the Extended Triple Diffie-Hellman handshake used
// to derive the shared root key two parties feed into the Double Ratchet.
package x3dh

import (
	"bytes"
	"errors"
	"fmt"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
)

const (
	hkdfInfo   = "X3DH"
	padLen     = 32
	rootKeyLen = 32
)

var (
	// ErrInvalidSignature is returned when a peer's signed pre-key signature
	// does not verify against their identity key.
	ErrInvalidSignature = errors.New("x3dh: signed pre-key signature invalid")
	// ErrUnknownOneTimeKey is returned when a handshake message names a
	// one-time pre-key id the responder does not have (already consumed, or
	// never issued). The message is dropped rather than silently proceeding
	// without the extra DH term, since skipping it would weaken the derived
	// root key without either party noticing.
	ErrUnknownOneTimeKey = errors.New("x3dh: referenced one-time pre-key not found")
)

// padIKM prepends the fixed 0xFF*32 padding before the DH outputs, for
// domain separation from an all-zero low-order DH result on Curve25519.
func padIKM(dhs ...[32]byte) []byte {
	ikm := make([]byte, 0, padLen+32*len(dhs))
	ikm = append(ikm, bytes.Repeat([]byte{0xFF}, padLen)...)
	for _, dh := range dhs {
		ikm = append(ikm, dh[:]...)
	}
	return ikm
}

func deriveSK(dhs ...[32]byte) ([]byte, error) {
	ikm := padIKM(dhs...)
	defer crypto.Wipe(ikm)
	salt := make([]byte, 32) // zero salt per the construction
	sk, err := crypto.HKDF(ikm, salt, []byte(hkdfInfo), rootKeyLen)
	if err != nil {
		return nil, fmt.Errorf("x3dh: derive SK: %w", err)
	}
	return sk, nil
}

// AssociatedData returns AD = selfIdentity || peerIdentity, the associated
// data the handshake's implicit authentication and every subsequent
// ratchet message bind to.
func AssociatedData(selfIdentity, peerIdentity domain.X25519Public) []byte {
	ad := make([]byte, 0, 64)
	ad = append(ad, selfIdentity[:]...)
	ad = append(ad, peerIdentity[:]...)
	return ad
}

// VerifyPreKeySignature checks a peer's PreKeyBundle.SignedPreKeySignature
// against their identity key using XEdDSA.
func VerifyPreKeySignature(bundle domain.PreKeyBundle) bool {
	return crypto.XEdDSAVerify(bundle.IdentityKey, bundle.SignedPreKey.Slice(), bundle.SignedPreKeySignature)
}

// chooseOneTimeKey returns the first available one-time pre-key in bundle,
// if any.
func chooseOneTimeKey(bundle domain.PreKeyBundle) (domain.OneTimePreKeyPublic, bool) {
	if len(bundle.OneTimePreKeys) == 0 {
		return domain.OneTimePreKeyPublic{}, false
	}
	return bundle.OneTimePreKeys[0], true
}

// InitiatorRoot runs X3DH as the initiator against a peer's PreKeyBundle,
// returning the derived root key, which SPK/OPK ids were used (so they can
// be recorded in the handshake message sent to the peer), and the fresh
// ephemeral public key generated for the handshake.
func InitiatorRoot(
	identity domain.Identity,
	bundle domain.PreKeyBundle,
) (
	rootKey []byte,
	spkID domain.SignedPreKeyID,
	opkID domain.OneTimePreKeyID,
	ephemeralPub domain.X25519Public,
	err error,
) {
	if !VerifyPreKeySignature(bundle) {
		return nil, "", "", domain.X25519Public{}, ErrInvalidSignature
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, "", "", domain.X25519Public{}, fmt.Errorf("x3dh: generate ephemeral key: %w", err)
	}

	dh1, err := crypto.DH(identity.XPriv, bundle.SignedPreKey) // IK_A . SPK_B
	if err != nil {
		return nil, "", "", domain.X25519Public{}, err
	}
	dh2, err := crypto.DH(ephPriv, bundle.IdentityKey) // EK_A . IK_B
	if err != nil {
		return nil, "", "", domain.X25519Public{}, err
	}
	dh3, err := crypto.DH(ephPriv, bundle.SignedPreKey) // EK_A . SPK_B
	if err != nil {
		return nil, "", "", domain.X25519Public{}, err
	}

	if chosenOPK, ok := chooseOneTimeKey(bundle); ok {
		dh4, err := crypto.DH(ephPriv, chosenOPK.Pub) // EK_A . OPK_B
		if err != nil {
			return nil, "", "", domain.X25519Public{}, err
		}
		rootKey, err = deriveSK(dh1, dh2, dh3, dh4)
		if err != nil {
			return nil, "", "", domain.X25519Public{}, err
		}
		return rootKey, bundle.SignedPreKeyID, chosenOPK.ID, ephPub, nil
	}

	rootKey, err = deriveSK(dh1, dh2, dh3)
	if err != nil {
		return nil, "", "", domain.X25519Public{}, err
	}
	return rootKey, bundle.SignedPreKeyID, "", ephPub, nil
}

// ResponderRoot runs X3DH as the responder, reconstructing the same root
// key the initiator derived in InitiatorRoot from our long-term/signed/
// one-time private keys and the initiator's handshake message.
//
// A caller that looked msg.OneTimePreKeyID up in its pre-key store and
// found nothing must still call ResponderRoot with oneTimePreKeyPriv == nil
// so that case is rejected here as ErrUnknownOneTimeKey, rather than being
// silently treated as "no one-time key was ever requested".
func ResponderRoot(
	identity domain.Identity,
	signedPreKeyPriv domain.X25519Private,
	oneTimePreKeyPriv *domain.X25519Private,
	msg domain.PreKeyMessage,
) ([]byte, error) {
	if msg.OneTimePreKeyID != "" && oneTimePreKeyPriv == nil {
		return nil, ErrUnknownOneTimeKey
	}

	dh1, err := crypto.DH(signedPreKeyPriv, msg.InitiatorIdentityKey) // SPK_B . IK_A
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(identity.XPriv, msg.EphemeralKey) // IK_B . EK_A
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(signedPreKeyPriv, msg.EphemeralKey) // SPK_B . EK_A
	if err != nil {
		return nil, err
	}

	if oneTimePreKeyPriv != nil {
		dh4, err := crypto.DH(*oneTimePreKeyPriv, msg.EphemeralKey) // OPK_B . EK_A
		if err != nil {
			return nil, err
		}
		return deriveSK(dh1, dh2, dh3, dh4)
	}
	return deriveSK(dh1, dh2, dh3)
}
