// Package keybundle generates, persists, and assembles the signed and
// one-time pre-keys a party publishes so others can start an X3DH session
// with it asynchronously, while it is offline.
//
// A signed pre-key (SPK) is a medium-lived X25519 key pair, published
// together with an XEdDSA signature over its public half made with the
// owner's identity key. One-time pre-keys (OPKs) are single-use X25519 key
// pairs; each is deleted from the store the moment a peer's handshake
// consumes it; a replayed PreKeyMessage referencing an already-consumed
// OPK id is rejected by internal/protocol/x3dh.ResponderRoot, not here.
package keybundle
