package ratchet_test

import (
	"bytes"
	"reflect"
	"testing"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
	"duskwire/internal/protocol/ratchet"
)

func sharedRoot(t *testing.T) []byte {
	t.Helper()
	return bytes.Repeat([]byte{0x42}, 32)
}

// handshake wires up a sender (who ratchets against bob's current DH public
// key, as X3DH's initiator would) and a receiver (seeded the way X3DH's
// responder would be, from its own signed pre-key pair).
func handshake(t *testing.T) (alice, bob domain.RatchetState) {
	t.Helper()
	rk := sharedRoot(t)

	bobPriv, bobPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	alice, err = ratchet.InitAsSender(rk, bobPub)
	if err != nil {
		t.Fatalf("InitAsSender: %v", err)
	}
	bob, err = ratchet.InitAsReceiver(rk, bobPriv, bobPub)
	if err != nil {
		t.Fatalf("InitAsReceiver: %v", err)
	}
	return alice, bob
}

func TestRatchet_OneRoundTrip(t *testing.T) {
	alice, bob := handshake(t)

	encHeader, ct, err := ratchet.Encrypt(&alice, nil, []byte("hello bob"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := ratchet.Decrypt(&bob, nil, encHeader, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hello bob" {
		t.Fatalf("got %q, want %q", pt, "hello bob")
	}
}

func TestRatchet_HeaderIsNotPlaintext(t *testing.T) {
	alice, _ := handshake(t)
	encHeader, _, err := ratchet.Encrypt(&alice, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(encHeader, alice.DiffieHellmanPublic.Slice()) {
		t.Fatal("encrypted header leaks the sender's DH public key in the clear")
	}
}

func TestRatchet_PingPong(t *testing.T) {
	alice, bob := handshake(t)

	for i := 0; i < 6; i++ {
		var sender, receiver *domain.RatchetState
		var msg string
		if i%2 == 0 {
			sender, receiver, msg = &alice, &bob, "from alice"
		} else {
			sender, receiver, msg = &bob, &alice, "from bob"
		}

		h, ct, err := ratchet.Encrypt(sender, nil, []byte(msg))
		if err != nil {
			t.Fatalf("round %d Encrypt: %v", i, err)
		}
		pt, err := ratchet.Decrypt(receiver, nil, h, ct)
		if err != nil {
			t.Fatalf("round %d Decrypt: %v", i, err)
		}
		if string(pt) != msg {
			t.Fatalf("round %d: got %q, want %q", i, pt, msg)
		}
	}
}

func TestRatchet_OutOfOrderDelivery(t *testing.T) {
	alice, bob := handshake(t)

	type sealed struct {
		header []byte
		ct     []byte
		pt     string
	}
	var msgs []sealed
	for i, m := range []string{"one", "two", "three"} {
		h, ct, err := ratchet.Encrypt(&alice, nil, []byte(m))
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		msgs = append(msgs, sealed{h, ct, m})
	}

	// Deliver 3, then 1, then 2: message 1 and 2 land in the skipped store.
	order := []int{2, 0, 1}
	for _, idx := range order {
		pt, err := ratchet.Decrypt(&bob, nil, msgs[idx].header, msgs[idx].ct)
		if err != nil {
			t.Fatalf("Decrypt msg %d: %v", idx, err)
		}
		if string(pt) != msgs[idx].pt {
			t.Fatalf("msg %d: got %q, want %q", idx, pt, msgs[idx].pt)
		}
	}
}

func TestRatchet_LostMessageNeverDelivered(t *testing.T) {
	alice, bob := handshake(t)

	_, _, err := ratchet.Encrypt(&alice, nil, []byte("lost forever"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	h2, ct2, err := ratchet.Encrypt(&alice, nil, []byte("second message"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	pt, err := ratchet.Decrypt(&bob, nil, h2, ct2)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "second message" {
		t.Fatalf("got %q", pt)
	}
	if len(bob.Skipped) != 1 {
		t.Fatalf("want 1 skipped message key, got %d", len(bob.Skipped))
	}
}

func TestRatchet_HeaderKeyRotatesAcrossDHStep(t *testing.T) {
	alice, bob := handshake(t)

	h1, ct1, err := ratchet.Encrypt(&alice, nil, []byte("alice 1"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ratchet.Decrypt(&bob, nil, h1, ct1); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	hkBeforeReply := append([]byte(nil), bob.HeaderKeySend...)

	hReply, ctReply, err := ratchet.Encrypt(&bob, nil, []byte("bob replies"))
	if err != nil {
		t.Fatalf("Encrypt reply: %v", err)
	}
	if _, err := ratchet.Decrypt(&alice, nil, hReply, ctReply); err != nil {
		t.Fatalf("Decrypt reply: %v", err)
	}

	if bytes.Equal(hkBeforeReply, bob.HeaderKeySend) {
		t.Fatal("expected header send key to rotate on a new DH ratchet step")
	}
	if bytes.Equal(alice.HeaderKeyRecv, bob.HeaderKeySend) == false {
		t.Fatal("alice's receive header key should track bob's rotated send header key")
	}
}

// TestRatchet_SkipOverflow_TooManySkippedLeavesSessionUnchanged is scenario
// S4: a single receive whose skip distance exceeds the skipped-key limit
// must be rejected outright, undecrypted, with the session byte-identical
// to its pre-call state — never silently evicted into and decrypted.
func TestRatchet_SkipOverflow_TooManySkippedLeavesSessionUnchanged(t *testing.T) {
	alice, bob := handshake(t)

	const overflow = 1002 // last message's index (1001) exceeds maxSkippedMK (1000) in one jump
	var last struct {
		header []byte
		ct     []byte
	}
	for i := 0; i < overflow; i++ {
		h, ct, err := ratchet.Encrypt(&alice, nil, []byte("msg"))
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		last.header, last.ct = h, ct
	}

	before := bob.Clone()
	if _, err := ratchet.Decrypt(&bob, nil, last.header, last.ct); err != ratchet.ErrTooManySkipped {
		t.Fatalf("want ErrTooManySkipped, got %v", err)
	}
	if !reflect.DeepEqual(before, bob) {
		t.Fatal("session state must be unchanged after a rejected skip-overflow receive")
	}
}

// TestRatchet_SkippedStoreFIFOEvictsOldestAcrossReceives demonstrates the
// store-capacity eviction from §4.4.6: each individual receive here only
// ever skips a single key (well under the per-receive limit), but skipped
// entries banked across many receives still accumulate past maxSkippedMK
// and must be FIFO-evicted rather than grown without bound.
func TestRatchet_SkippedStoreFIFOEvictsOldestAcrossReceives(t *testing.T) {
	alice, bob := handshake(t)

	const total = 2010
	type sealed struct {
		header []byte
		ct     []byte
	}
	msgs := make([]sealed, total)
	for i := 0; i < total; i++ {
		h, ct, err := ratchet.Encrypt(&alice, nil, []byte("msg"))
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		msgs[i] = sealed{h, ct}
	}

	for i := 0; i < total; i += 2 {
		if _, err := ratchet.Decrypt(&bob, nil, msgs[i].header, msgs[i].ct); err != nil {
			t.Fatalf("Decrypt %d: %v", i, err)
		}
	}

	if len(bob.Skipped) != 1000 {
		t.Fatalf("want skipped store capped at 1000, got %d", len(bob.Skipped))
	}
}

func TestRatchet_TamperedCiphertextRejected(t *testing.T) {
	alice, bob := handshake(t)

	h, ct, err := ratchet.Encrypt(&alice, nil, []byte("integrity matters"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct[0] ^= 0xFF

	if _, err := ratchet.Decrypt(&bob, nil, h, ct); err == nil {
		t.Fatal("expected tampered ciphertext to be rejected")
	}
}

func TestRatchet_TamperedHeaderRejected(t *testing.T) {
	alice, bob := handshake(t)

	h, ct, err := ratchet.Encrypt(&alice, nil, []byte("integrity matters"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	h[0] ^= 0xFF

	if _, err := ratchet.Decrypt(&bob, nil, h, ct); err != ratchet.ErrHeaderDecryptFailed {
		t.Fatalf("want ErrHeaderDecryptFailed, got %v", err)
	}
}

func TestRatchet_AssociatedDataMismatchRejected(t *testing.T) {
	alice, bob := handshake(t)

	h, ct, err := ratchet.Encrypt(&alice, []byte("ad-alice"), []byte("bound message"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := ratchet.Decrypt(&bob, []byte("ad-bob"), h, ct); err == nil {
		t.Fatal("expected associated-data mismatch to be rejected")
	}
}
