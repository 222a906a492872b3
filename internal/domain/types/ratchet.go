package types

// RatchetHeader carries the plaintext header fields that get sealed under
// the header-encryption key before being placed on the wire (see
// internal/wire); they never travel in the clear.
type RatchetHeader struct {
	DiffieHellmanPublicKey []byte `json:"dh_pub"`
	PreviousChainLength    uint32 `json:"pn"`
	MessageIndex           uint32 `json:"n"`
}

// SkippedMessageKey is one entry of the skipped-message-key store
// (MKSKIPPED). Entries are kept in arrival order so eviction under
// MAX_SKIP_STORE drops the oldest entry first (FIFO), replacing an
// unordered map representation with one that has a well-defined eviction
// order.
type SkippedMessageKey struct {
	HeaderKey  []byte `json:"hk"`
	N          uint32 `json:"n"`
	MessageKey []byte `json:"mk"`
}

// RatchetState contains all fields the Double Ratchet with Header Encryption
// needs to track for one conversation partner.
type RatchetState struct {
	RootKey                 []byte        `json:"root_key"`
	DiffieHellmanPrivate    X25519Private `json:"dh_priv"`
	DiffieHellmanPublic     X25519Public  `json:"dh_pub"`
	PeerDiffieHellmanPublic X25519Public  `json:"peer_dh_pub"`
	SendChainKey            []byte        `json:"send_ck,omitempty"`
	ReceiveChainKey         []byte        `json:"recv_ck,omitempty"`
	SendMessageIndex        uint32        `json:"ns"`
	ReceiveMessageIndex     uint32        `json:"nr"`
	PreviousChainLength     uint32        `json:"pn"`

	HeaderKeySend     []byte `json:"hk_s,omitempty"`
	HeaderKeyRecv     []byte `json:"hk_r,omitempty"`
	NextHeaderKeySend []byte `json:"nhk_s"`
	NextHeaderKeyRecv []byte `json:"nhk_r"`

	// Skipped is deliberately excluded from this struct's JSON encoding
	// (internal/store persists it separately, via a dedicated
	// length-prefixed binary encoding of (HK, N, MK) triples, rather than
	// nesting it as base64-in-JSON alongside the rest of the state).
	Skipped []SkippedMessageKey `json:"-"`
}

// Clone returns a deep copy of st. The ratchet package stages every receive
// on a clone and only adopts it after the AEAD body decrypt succeeds, so a
// malformed or unauthenticated message can never leave the live state
// partially advanced.
func (st RatchetState) Clone() RatchetState {
	out := st
	out.RootKey = append([]byte(nil), st.RootKey...)
	out.SendChainKey = append([]byte(nil), st.SendChainKey...)
	out.ReceiveChainKey = append([]byte(nil), st.ReceiveChainKey...)
	out.HeaderKeySend = append([]byte(nil), st.HeaderKeySend...)
	out.HeaderKeyRecv = append([]byte(nil), st.HeaderKeyRecv...)
	out.NextHeaderKeySend = append([]byte(nil), st.NextHeaderKeySend...)
	out.NextHeaderKeyRecv = append([]byte(nil), st.NextHeaderKeyRecv...)
	out.Skipped = append([]SkippedMessageKey(nil), st.Skipped...)
	return out
}

// Conversation persists the ratchet state for a peer, plus the identity key
// the X3DH handshake bound it to, so a later envelope's pre-key message can
// be checked against the conversation it claims to open rather than trusted
// outright.
type Conversation struct {
	Peer            ConversationID `json:"peer"`
	PeerIdentityKey X25519Public   `json:"peer_identity_key"`
	State           RatchetState   `json:"state"`
}
