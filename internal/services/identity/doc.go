// Package identity manages creation, encryption and loading of the local
// identity.
//
// It generates the single long-term Curve25519 key pair an identity signs
// pre-keys and authenticates handshakes with (see internal/crypto's XEdDSA),
// and persists it via the domain.IdentityStore.
package identity
