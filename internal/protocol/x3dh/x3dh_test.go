package x3dh_test

import (
	"bytes"
	"testing"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
	"duskwire/internal/protocol/x3dh"
)

func makeIdentity(t *testing.T) domain.Identity {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return domain.Identity{XPub: xPub, XPriv: xPriv}
}

func signedPreKey(t *testing.T, owner domain.Identity) (domain.X25519Private, domain.X25519Public, []byte) {
	t.Helper()
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	sig, err := crypto.XEdDSASign(owner.XPriv, spkPub.Slice())
	if err != nil {
		t.Fatalf("XEdDSASign: %v", err)
	}
	return spkPriv, spkPub, sig
}

func TestInitiatorAndResponderRoot_NoOPK(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	spkPriv, spkPub, sig := signedPreKey(t, bob)

	bundle := domain.PreKeyBundle{
		Username:              "bob",
		IdentityKey:           bob.XPub,
		SignedPreKeyID:        "spk-test",
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
	}

	rkA, spkID, opkID, ephPub, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	if spkID != "spk-test" {
		t.Fatalf("want spkID=spk-test, got %q", spkID)
	}
	if opkID != "" {
		t.Fatalf("want empty opkID, got %q", opkID)
	}

	pm := domain.PreKeyMessage{
		InitiatorIdentityKey: alice.XPub,
		EphemeralKey:         ephPub,
		SignedPreKeyID:       spkID,
		OneTimePreKeyID:      opkID,
	}

	rkB, err := x3dh.ResponderRoot(bob, spkPriv, nil, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rkA, rkB) {
		t.Fatal("root keys differ (no OPK)")
	}
}

func TestInitiatorAndResponderRoot_WithOPK(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)

	spkPriv, spkPub, sig := signedPreKey(t, bob)

	opkPriv, opkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519 (opk): %v", err)
	}

	bundle := domain.PreKeyBundle{
		Username:              "bob",
		IdentityKey:           bob.XPub,
		SignedPreKeyID:        "spk-test",
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
		OneTimePreKeys: []domain.OneTimePreKeyPublic{
			{ID: "opk-1", Pub: opkPub},
		},
	}

	rkA, spkID, opkID, ephPub, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	if spkID != "spk-test" || opkID != "opk-1" {
		t.Fatalf("unexpected IDs spk=%q opk=%q", spkID, opkID)
	}

	pm := domain.PreKeyMessage{
		InitiatorIdentityKey: alice.XPub,
		EphemeralKey:         ephPub,
		SignedPreKeyID:       spkID,
		OneTimePreKeyID:      opkID,
	}

	rkB, err := x3dh.ResponderRoot(bob, spkPriv, &opkPriv, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rkA, rkB) {
		t.Fatal("root keys differ (with OPK)")
	}
}

func TestInitiatorRoot_RejectsBadSignature(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	_, spkPub, sig := signedPreKey(t, bob)
	sig[0] ^= 0xFF

	bundle := domain.PreKeyBundle{
		Username:              "bob",
		IdentityKey:           bob.XPub,
		SignedPreKeyID:        "spk-test",
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
	}

	if _, _, _, _, err := x3dh.InitiatorRoot(alice, bundle); err != x3dh.ErrInvalidSignature {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestResponderRoot_RejectsUnknownOneTimeKey(t *testing.T) {
	bob := makeIdentity(t)
	spkPriv, _, _ := signedPreKey(t, bob)

	msg := domain.PreKeyMessage{OneTimePreKeyID: "opk-1"}
	if _, err := x3dh.ResponderRoot(bob, spkPriv, nil, msg); err != x3dh.ErrUnknownOneTimeKey {
		t.Fatalf("want ErrUnknownOneTimeKey, got %v", err)
	}
}
