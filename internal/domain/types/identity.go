package types

// Identity holds your long-term Curve25519 identity key. XEdDSA signatures
// and the public verifying key used in PreKeyBundle are both derived from
// this single keypair rather than a second Ed25519 keypair.
type Identity struct {
	XPub  X25519Public  `json:"xpub"`
	XPriv X25519Private `json:"xpriv"`
}
