package identity

import (
	"fmt"

	"duskwire/internal/crypto"
	"duskwire/internal/domain"
)

// Service generates and retrieves the single long-term Curve25519 identity
// key pair a local user signs and authenticates X3DH handshakes with.
type Service struct {
	store domain.IdentityStore
}

// New builds a Service over the given identity store.
func New(s domain.IdentityStore) *Service {
	return &Service{store: s}
}

var _ domain.IdentityService = (*Service)(nil)

// GenerateIdentity creates a fresh identity key pair, persists it encrypted
// under passphrase, and returns it along with its public fingerprint.
func (s *Service) GenerateIdentity(passphrase string) (domain.Identity, domain.Fingerprint, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("identity: generate key pair: %w", err)
	}
	id := domain.Identity{XPub: pub, XPriv: priv}

	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", fmt.Errorf("identity: save: %w", err)
	}
	return id, domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice())), nil
}

// LoadIdentity decrypts and returns the stored identity key pair.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: load: %w", err)
	}
	return id, nil
}

// FingerprintIdentity returns the public fingerprint of the stored identity,
// suitable for out-of-band verification between two users.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice())), nil
}
