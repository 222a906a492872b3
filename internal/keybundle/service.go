package keybundle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
)

// ErrNotFound is returned by Take and SignedPreKeyPrivate when the requested
// id names no pre-key in the store — already consumed, never generated, or
// simply unknown.
var ErrNotFound = errors.New("keybundle: not found")

// Store is the subset of the pre-key store the Service needs; satisfied by
// internal/store's file-backed implementation.
type Store = domain.PreKeyStore

// Service generates, rotates, and assembles pre-key bundles for one local
// identity.
type Service struct {
	identity domain.IdentityService
	store    Store
}

// New builds a Service over the given identity service and pre-key store.
func New(identity domain.IdentityService, store Store) *Service {
	return &Service{identity: identity, store: store}
}

var _ domain.PreKeyService = (*Service)(nil)

// GenerateAndStorePreKeys creates a fresh signed pre-key (replacing any
// current one) and count one-time pre-keys, persists them, and returns
// their public halves.
func (s *Service) GenerateAndStorePreKeys(passphrase string, count int) (
	domain.X25519Public,
	[]domain.X25519Public,
	error,
) {
	id, err := s.identity.LoadIdentity(passphrase)
	if err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("keybundle: load identity: %w", err)
	}

	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("keybundle: generate signed pre-key: %w", err)
	}
	sig, err := crypto.XEdDSASign(id.XPriv, spkPub.Slice())
	if err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("keybundle: sign pre-key: %w", err)
	}
	spkID := domain.SignedPreKeyID(uuid.NewString())
	if err := s.store.SaveSignedPreKey(spkID, spkPriv, spkPub, sig); err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("keybundle: save signed pre-key: %w", err)
	}
	if err := s.store.SetCurrentSignedPreKeyID(spkID); err != nil {
		return domain.X25519Public{}, nil, fmt.Errorf("keybundle: set current signed pre-key: %w", err)
	}

	pairs := make([]domain.OneTimePreKeyPair, 0, count)
	pubs := make([]domain.X25519Public, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return domain.X25519Public{}, nil, fmt.Errorf("keybundle: generate one-time pre-key: %w", err)
		}
		pairs = append(pairs, domain.OneTimePreKeyPair{
			ID:   domain.OneTimePreKeyID(uuid.NewString()),
			Priv: priv,
			Pub:  pub,
		})
		pubs = append(pubs, pub)
	}
	if len(pairs) > 0 {
		if err := s.store.SaveOneTimePreKeys(pairs); err != nil {
			return domain.X25519Public{}, nil, fmt.Errorf("keybundle: save one-time pre-keys: %w", err)
		}
	}

	return spkPub, pubs, nil
}

// LoadPreKeyBundle assembles the bundle for username from the currently
// stored identity, signed pre-key, and remaining one-time pre-keys.
// serverURL is accepted for parity with the published bundle's provenance
// but is not otherwise consulted here; the relay client attaches it.
func (s *Service) LoadPreKeyBundle(
	passphrase string,
	username domain.Username,
	serverURL string,
) (domain.PreKeyBundle, error) {
	id, err := s.identity.LoadIdentity(passphrase)
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: load identity: %w", err)
	}

	spkID, ok, err := s.store.CurrentSignedPreKeyID()
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: load current signed pre-key id: %w", err)
	}
	if !ok {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: no signed pre-key has been generated")
	}
	_, spkPub, sig, ok, err := s.store.LoadSignedPreKey(spkID)
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: load signed pre-key: %w", err)
	}
	if !ok {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: signed pre-key %s not found", spkID)
	}

	otks, err := s.store.ListOneTimePreKeyPublics()
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: list one-time pre-keys: %w", err)
	}
	signingKey, err := crypto.XEdDSAPublic(id.XPriv)
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("keybundle: derive verifying key: %w", err)
	}

	return domain.PreKeyBundle{
		Username:              username,
		IdentityKey:           id.XPub,
		SigningKey:            signingKey,
		SignedPreKeyID:        spkID,
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
		OneTimePreKeys:        otks,
	}, nil
}

// Take removes and returns the private half of a one-time pre-key by id, so
// the responder side of a handshake can complete the fourth X3DH DH term
// exactly once. Returns ErrNotFound if id names no one-time pre-key in the
// pool (already consumed by an earlier handshake, or never published).
func (s *Service) Take(id domain.OneTimePreKeyID) (domain.X25519Private, error) {
	priv, _, ok, err := s.store.ConsumeOneTimePreKey(id)
	if err != nil {
		return domain.X25519Private{}, fmt.Errorf("keybundle: consume one-time pre-key: %w", err)
	}
	if !ok {
		return domain.X25519Private{}, ErrNotFound
	}
	return priv, nil
}

// SignedPreKeyPrivate returns the private half of a signed pre-key by id,
// used by the responder side of a handshake. Returns ErrNotFound if id names
// no signed pre-key in the store.
func (s *Service) SignedPreKeyPrivate(id domain.SignedPreKeyID) (domain.X25519Private, error) {
	priv, _, _, ok, err := s.store.LoadSignedPreKey(id)
	if err != nil {
		return domain.X25519Private{}, fmt.Errorf("keybundle: load signed pre-key: %w", err)
	}
	if !ok {
		return domain.X25519Private{}, ErrNotFound
	}
	return priv, nil
}
