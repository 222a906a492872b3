package ratchet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
)

const (
	maxSkippedMK   = 1000
	rkInfo         = "RootKey-HE"
	headerSeedInfo = "X3DH-HE-headers"
)

var (
	errChainUninitialised = errors.New("ratchet: chain key uninitialised")
	// ErrHeaderDecryptFailed is returned by Decrypt when an encrypted header
	// cannot be opened under the skipped-key store, the current receive
	// header key, or the next receive header key. This covers both a
	// corrupted/foreign message and a message addressed to a session state
	// that has since moved on.
	ErrHeaderDecryptFailed = errors.New("ratchet: header decryption failed under any known key")
	// ErrTooManySkipped is returned by Decrypt when a message's index is far
	// enough ahead of the receive chain that banking every intervening
	// message key would exceed maxSkippedMK. The session is left untouched;
	// the message is dropped rather than decrypted.
	ErrTooManySkipped = errors.New("ratchet: skip distance exceeds the skipped-message-key limit")
)

// deriveHeaderSeeds expands the X3DH root key into the two initial header
// keys the handshake implicitly agrees on: the key the sender uses for its
// very first header (hka), and the key the responder rotates into once it
// receives that first header (nhkb).
func deriveHeaderSeeds(root []byte) (hka, nhkb []byte, err error) {
	seed, err := crypto.HKDF(root, nil, []byte(headerSeedInfo), 64)
	if err != nil {
		return nil, nil, fmt.Errorf("ratchet: derive header seeds: %w", err)
	}
	return seed[:32], seed[32:], nil
}

// InitAsSender initialises the ratchet state for the party sending the
// first message (the X3DH initiator), deriving a fresh send chain against
// the peer's current ratchet public key (their signed pre-key).
func InitAsSender(root []byte, peerDHPub domain.X25519Public) (domain.RatchetState, error) {
	hka, nhkb, err := deriveHeaderSeeds(root)
	if err != nil {
		return domain.RatchetState{}, err
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(priv, peerDHPub)
	if err != nil {
		return domain.RatchetState{}, err
	}
	newRoot, ck, nhks := kdfRK(root, dh[:])
	crypto.Wipe(dh[:])

	return domain.RatchetState{
		RootKey:                 newRoot,
		DiffieHellmanPrivate:    priv,
		DiffieHellmanPublic:     pub,
		PeerDiffieHellmanPublic: peerDHPub,
		SendChainKey:            ck,
		HeaderKeySend:           hka,
		NextHeaderKeySend:       nhks,
		NextHeaderKeyRecv:       nhkb,
	}, nil
}

// InitAsReceiver initialises the ratchet state for the party receiving the
// first message (the X3DH responder). Its own ratchet key pair starts out
// as its signed pre-key pair; the peer's ratchet public key and the receive
// chain remain unknown until the first message's header is opened with
// NextHeaderKeyRecv, which triggers a DH ratchet step in Decrypt.
func InitAsReceiver(
	root []byte,
	ourDHPriv domain.X25519Private,
	ourDHPub domain.X25519Public,
) (domain.RatchetState, error) {
	hka, nhkb, err := deriveHeaderSeeds(root)
	if err != nil {
		return domain.RatchetState{}, err
	}

	return domain.RatchetState{
		RootKey:              root,
		DiffieHellmanPrivate: ourDHPriv,
		DiffieHellmanPublic:  ourDHPub,
		NextHeaderKeySend:    nhkb,
		NextHeaderKeyRecv:    hka,
	}, nil
}

// Encrypt encrypts plaintext under the send chain, performing a lazy
// ratchet step on the first send after initialisation or after a DH
// ratchet step flips this side back into the sender role.
func Encrypt(st *domain.RatchetState, ad, plaintext []byte) (encHeader, ciphertext []byte, err error) {
	if st == nil {
		return nil, nil, errors.New("ratchet: state uninitialised")
	}

	if st.SendChainKey == nil {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, nil, err
		}
		dh, err := crypto.DH(priv, st.PeerDiffieHellmanPublic)
		if err != nil {
			return nil, nil, err
		}
		newRoot, ck, nhks := kdfRK(st.RootKey, dh[:])
		crypto.Wipe(dh[:])

		st.PreviousChainLength = st.SendMessageIndex
		st.SendMessageIndex = 0
		st.RootKey = newRoot
		st.DiffieHellmanPrivate, st.DiffieHellmanPublic = priv, pub
		st.SendChainKey = ck
		st.HeaderKeySend = st.NextHeaderKeySend
		st.NextHeaderKeySend = nhks
	}

	mk, err := kdfCKSend(st)
	if err != nil {
		return nil, nil, err
	}
	header := domain.RatchetHeader{
		DiffieHellmanPublicKey: st.DiffieHellmanPublic.Slice(),
		PreviousChainLength:    st.PreviousChainLength,
		MessageIndex:           st.SendMessageIndex,
	}

	encHeader, err = crypto.SealRandom(st.HeaderKeySend, headerBytes(header))
	if err != nil {
		crypto.Wipe(mk)
		return nil, nil, fmt.Errorf("ratchet: seal header: %w", err)
	}
	ciphertext, err = crypto.SealDeterministic(mk, append(append([]byte(nil), ad...), encHeader...), plaintext)
	crypto.Wipe(mk)
	if err != nil {
		return nil, nil, fmt.Errorf("ratchet: seal body: %w", err)
	}

	st.SendMessageIndex++
	return encHeader, ciphertext, nil
}

// Decrypt opens an encrypted header and its body, trying in order: the
// skipped-message-key store, the current receive header key, and the next
// receive header key (which, on success, triggers a DH ratchet step). Every
// mutation happens on a clone of st; the clone only replaces st once the
// AEAD body decrypt has actually succeeded, so a message that fails to
// authenticate can never leave the session partially advanced.
func Decrypt(st *domain.RatchetState, ad, encHeader, ciphertext []byte) ([]byte, error) {
	if st == nil {
		return nil, errors.New("ratchet: state uninitialised")
	}

	if pt, newState, ok, err := trySkipped(*st, ad, encHeader, ciphertext); ok {
		if err != nil {
			return nil, err
		}
		*st = newState
		return pt, nil
	}

	if st.HeaderKeyRecv != nil {
		if headerPT, err := crypto.OpenRandom(st.HeaderKeyRecv, encHeader); err == nil {
			header, perr := parseHeaderBytes(headerPT)
			if perr != nil {
				return nil, perr
			}
			if header.MessageIndex < st.ReceiveMessageIndex {
				return nil, ErrHeaderDecryptFailed
			}
			clone := st.Clone()
			if err := skipUntil(&clone, clone.HeaderKeyRecv, header.MessageIndex); err != nil {
				return nil, err
			}
			mk, err := kdfCKRecv(&clone)
			if err != nil {
				return nil, err
			}
			pt, err := crypto.OpenDeterministic(mk, append(append([]byte(nil), ad...), encHeader...), ciphertext)
			crypto.Wipe(mk)
			if err != nil {
				return nil, fmt.Errorf("ratchet: open body: %w", err)
			}
			clone.ReceiveMessageIndex = header.MessageIndex + 1
			*st = clone
			return pt, nil
		}
	}

	if st.NextHeaderKeyRecv != nil {
		if headerPT, err := crypto.OpenRandom(st.NextHeaderKeyRecv, encHeader); err == nil {
			header, perr := parseHeaderBytes(headerPT)
			if perr != nil {
				return nil, perr
			}
			var peerPub domain.X25519Public
			copy(peerPub[:], header.DiffieHellmanPublicKey)

			clone := st.Clone()
			if clone.HeaderKeyRecv != nil {
				if err := skipUntil(&clone, clone.HeaderKeyRecv, header.PreviousChainLength); err != nil {
					return nil, err
				}
			}

			dh, err := crypto.DH(clone.DiffieHellmanPrivate, peerPub)
			if err != nil {
				return nil, err
			}
			newRoot, ckRecv, nhkRecv := kdfRK(clone.RootKey, dh[:])
			crypto.Wipe(dh[:])

			clone.HeaderKeyRecv = clone.NextHeaderKeyRecv
			clone.NextHeaderKeyRecv = nhkRecv
			clone.PeerDiffieHellmanPublic = peerPub
			clone.RootKey = newRoot
			clone.ReceiveChainKey = ckRecv
			clone.ReceiveMessageIndex = 0

			// Invalidate the send chain rather than stepping it here: the
			// next Encrypt call performs the matching DH ratchet step
			// lazily, once this side actually has something to send.
			clone.SendChainKey = nil

			if err := skipUntil(&clone, clone.HeaderKeyRecv, header.MessageIndex); err != nil {
				return nil, err
			}
			mk, err := kdfCKRecv(&clone)
			if err != nil {
				return nil, err
			}
			pt, err := crypto.OpenDeterministic(mk, append(append([]byte(nil), ad...), encHeader...), ciphertext)
			crypto.Wipe(mk)
			if err != nil {
				return nil, fmt.Errorf("ratchet: open body: %w", err)
			}
			clone.ReceiveMessageIndex = header.MessageIndex + 1
			*st = clone
			return pt, nil
		}
	}

	return nil, ErrHeaderDecryptFailed
}

// trySkipped attempts to open encHeader/ciphertext against every distinct
// header key present in the skipped-message-key store. ok is true only once
// a header successfully decrypted AND a matching (header key, index) entry
// was found and consumed; err carries a body-decryption failure in that
// case so the caller can distinguish "not a skipped message" from "was a
// skipped message but failed to authenticate".
func trySkipped(st domain.RatchetState, ad, encHeader, ciphertext []byte) ([]byte, domain.RatchetState, bool, error) {
	tried := map[string]bool{}
	for _, entry := range st.Skipped {
		hkStr := string(entry.HeaderKey)
		if tried[hkStr] {
			continue
		}
		tried[hkStr] = true

		headerPT, err := crypto.OpenRandom(entry.HeaderKey, encHeader)
		if err != nil {
			continue
		}
		header, perr := parseHeaderBytes(headerPT)
		if perr != nil {
			return nil, st, true, perr
		}

		idx := -1
		for i, e := range st.Skipped {
			if string(e.HeaderKey) == hkStr && e.N == header.MessageIndex {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}

		mk := st.Skipped[idx].MessageKey
		pt, err := crypto.OpenDeterministic(mk, append(append([]byte(nil), ad...), encHeader...), ciphertext)
		newState := st.Clone()
		newState.Skipped = append(newState.Skipped[:idx], newState.Skipped[idx+1:]...)
		if err != nil {
			return nil, st, true, fmt.Errorf("ratchet: open body: %w", err)
		}
		return pt, newState, true, nil
	}
	return nil, st, false, nil
}

// --- Helpers ---

// kdfRK derives a new root key, chain key, and next header key from the DH
// output, salted by the current root key (KDF_RK_HE).
func kdfRK(root, dh []byte) (newRoot, ck, nhk []byte) {
	out, err := crypto.HKDF(dh, root, []byte(rkInfo), 96)
	if err != nil {
		// HKDF only fails on a caller bug (bad output length); we pass a
		// fixed 96 so this cannot happen in practice.
		panic(err)
	}
	return out[:32], out[32:64], out[64:96]
}

// kdfCKSend advances the send-chain key, returning the next message key.
func kdfCKSend(st *domain.RatchetState) ([]byte, error) {
	if st.SendChainKey == nil {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.SendChainKey)
	st.SendChainKey = nextCK
	return mk, nil
}

// kdfCKRecv advances the receive-chain key, returning the next message key.
func kdfCKRecv(st *domain.RatchetState) ([]byte, error) {
	if st.ReceiveChainKey == nil {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.ReceiveChainKey)
	st.ReceiveChainKey = nextCK
	return mk, nil
}

// kdfCK implements KDF_CK: HMAC-SHA256(ck, 0x02) is the next chain key,
// HMAC-SHA256(ck, 0x01) is the message key.
func kdfCK(ck []byte) (nextCK, mk []byte) {
	return crypto.HMACSHA256(ck, []byte{0x02}), crypto.HMACSHA256(ck, []byte{0x01})
}

// headerBytes serialises a RatchetHeader for sealing under a header key.
func headerBytes(h domain.RatchetHeader) []byte {
	out := make([]byte, 0, 40)
	out = append(out, h.DiffieHellmanPublicKey...)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], h.PreviousChainLength)
	out = append(out, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], h.MessageIndex)
	return append(out, tmp[:]...)
}

func parseHeaderBytes(b []byte) (domain.RatchetHeader, error) {
	if len(b) != 40 {
		return domain.RatchetHeader{}, fmt.Errorf("ratchet: malformed header plaintext (%d bytes)", len(b))
	}
	return domain.RatchetHeader{
		DiffieHellmanPublicKey: append([]byte(nil), b[:32]...),
		PreviousChainLength:    binary.BigEndian.Uint32(b[32:36]),
		MessageIndex:           binary.BigEndian.Uint32(b[36:40]),
	}, nil
}

// skipUntil derives and stores skipped message keys for the receive chain
// up to (not including) n. If doing so would bank more than maxSkippedMK
// keys in this single call, it returns ErrTooManySkipped without deriving
// or storing anything, leaving st untouched; callers must discard their
// working clone on that error rather than commit it.
//
// Once past that per-call check, storing a newly skipped key still evicts
// the oldest already-banked entry first if the store is already at
// maxSkippedMK capacity (FIFO per §4.4.6): that loss applies only to keys
// banked by earlier receives, and a message arriving late enough to target
// an evicted key simply fails to decrypt under any known key later
// (ErrHeaderDecryptFailed), which is the documented trade-off.
func skipUntil(st *domain.RatchetState, headerKey []byte, n uint32) error {
	if n > st.ReceiveMessageIndex && n-st.ReceiveMessageIndex > maxSkippedMK {
		return ErrTooManySkipped
	}
	for st.ReceiveMessageIndex < n {
		mk, err := kdfCKRecv(st)
		if err != nil {
			return err
		}
		if len(st.Skipped) >= maxSkippedMK {
			st.Skipped = st.Skipped[1:]
		}
		st.Skipped = append(st.Skipped, domain.SkippedMessageKey{
			HeaderKey:  append([]byte(nil), headerKey...),
			N:          st.ReceiveMessageIndex,
			MessageKey: mk,
		})
		st.ReceiveMessageIndex++
	}
	return nil
}
