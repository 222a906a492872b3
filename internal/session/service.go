package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"duskwire/internal/domain"
	"duskwire/internal/protocol/ratchet"
	"duskwire/internal/protocol/x3dh"
	"duskwire/internal/wire"
)

const headerNonceSize = 12

// ErrNoSession indicates there is no stored X3DH session with the peer yet;
// call InitiateSession first.
var ErrNoSession = errors.New("session: no session with peer, run InitiateSession first")

// ErrPeerIdentityMismatch indicates an envelope's pre-key message names a
// different initiator identity key than the one the existing conversation
// was established with — a changed or spoofed identity, not a benign
// retransmission of the original handshake preamble.
var ErrPeerIdentityMismatch = errors.New("session: pre-key message identity key does not match established conversation")

// Service establishes X3DH sessions and encrypts/decrypts messages over the
// resulting Double Ratchet conversations.
type Service struct {
	idStore      domain.IdentityStore
	prekeyStore  domain.PreKeyStore
	bundleStore  domain.PreKeyBundleStore
	sessionStore domain.SessionStore
	ratchetStore domain.RatchetStore
	relayClient  domain.RelayClient
	accountStore domain.AccountStore
	serverURL    *url.URL

	mu    sync.Mutex
	locks map[domain.ConversationID]*sync.Mutex
}

// New constructs a Service over the given stores and relay client.
// serverURL, if non-empty and well-formed, scopes account-profile lookups
// during SendMessage; with an invalid or empty value, SendMessage returns an
// error.
func New(
	idStore domain.IdentityStore,
	prekeyStore domain.PreKeyStore,
	bundleStore domain.PreKeyBundleStore,
	sessionStore domain.SessionStore,
	ratchetStore domain.RatchetStore,
	relayClient domain.RelayClient,
	accountStore domain.AccountStore,
	serverURL string,
) *Service {
	var parsed *url.URL
	if serverURL != "" {
		if u, err := url.Parse(serverURL); err == nil && u.Scheme != "" && u.Host != "" {
			parsed = u
		}
	}
	return &Service{
		idStore:      idStore,
		prekeyStore:  prekeyStore,
		bundleStore:  bundleStore,
		sessionStore: sessionStore,
		ratchetStore: ratchetStore,
		relayClient:  relayClient,
		accountStore: accountStore,
		serverURL:    parsed,
		locks:        make(map[domain.ConversationID]*sync.Mutex),
	}
}

var (
	_ domain.SessionService = (*Service)(nil)
	_ domain.MessageService = (*Service)(nil)
)

// lockFor returns the mutex guarding conversation id's ratchet state,
// creating it on first use.
func (s *Service) lockFor(id domain.ConversationID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// InitiateSession runs X3DH as the initiator against peer's published
// pre-key bundle and persists the derived root key and handshake metadata.
func (s *Service) InitiateSession(
	ctx context.Context,
	passphrase string,
	peer domain.Username,
) (domain.Session, error) {
	id, err := s.idStore.LoadIdentity(passphrase)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: load identity: %w", err)
	}

	bundle, err := s.relayClient.FetchPreKeyBundle(ctx, peer)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: fetch pre-key bundle: %w", err)
	}

	rootKey, spkID, opkID, ephemeralPub, err := x3dh.InitiatorRoot(id, bundle)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: x3dh initiator: %w", err)
	}

	sess := domain.Session{
		PeerUsername:          peer,
		RootKey:               rootKey,
		PeerSignedPreKey:      bundle.SignedPreKey,
		PeerIdentityKey:       bundle.IdentityKey,
		CreatedUTC:            time.Now().Unix(),
		SignedPreKeyID:        spkID,
		OneTimePreKeyID:       opkID,
		InitiatorEphemeralKey: ephemeralPub,
	}
	if err := s.sessionStore.SaveSession(peer, sess); err != nil {
		return domain.Session{}, fmt.Errorf("session: save: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a previously established session with peer.
func (s *Service) GetSession(peer domain.Username) (domain.Session, bool, error) {
	return s.sessionStore.LoadSession(peer)
}

// SendMessage encrypts plaintext under the Double Ratchet conversation with
// to, establishing the ratchet's send chain (and attaching a PreKeyMessage)
// on the first message of a conversation.
func (s *Service) SendMessage(
	ctx context.Context,
	passphrase string,
	from domain.Username,
	to domain.Username,
	plaintext []byte,
) error {
	if s.serverURL == nil {
		return errors.New("session: relay URL is not configured or invalid")
	}

	profile, found, err := s.accountStore.LoadAccountProfile(s.serverURL.String(), from)
	if err != nil {
		return fmt.Errorf("session: load account profile: %w", err)
	}
	if !found {
		return fmt.Errorf("session: no account profile for %s on %s; run register", from, s.serverURL)
	}
	canary, err := s.relayClient.FetchAccountCanary(ctx, from)
	if err != nil {
		return fmt.Errorf("session: fetch account canary: %w", err)
	}
	if canary != profile.Canary {
		return fmt.Errorf("session: relay canary mismatch: expected %s got %s", profile.Canary, canary)
	}

	sess, hasSession, err := s.GetSession(to)
	if err != nil {
		return fmt.Errorf("session: load session: %w", err)
	}
	if !hasSession {
		return ErrNoSession
	}

	conversationID := domain.ConversationID(to.String())
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conversation, found, err := s.ratchetStore.LoadConversation(conversationID)
	if err != nil {
		return fmt.Errorf("session: load conversation: %w", err)
	}

	identity, err := s.idStore.LoadIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("session: load identity: %w", err)
	}
	ad := x3dh.AssociatedData(identity.XPub, sess.PeerIdentityKey)

	var preKeyMessage *domain.PreKeyMessage
	if !found {
		state, err := ratchet.InitAsSender(sess.RootKey, sess.PeerSignedPreKey)
		if err != nil {
			return fmt.Errorf("session: init ratchet as sender: %w", err)
		}
		conversation = domain.Conversation{Peer: conversationID, PeerIdentityKey: sess.PeerIdentityKey, State: state}

		preKeyMessage = &domain.PreKeyMessage{
			InitiatorIdentityKey: identity.XPub,
			EphemeralKey:         sess.InitiatorEphemeralKey,
			SignedPreKeyID:       sess.SignedPreKeyID,
			OneTimePreKeyID:      sess.OneTimePreKeyID,
		}
	}

	encHeader, ciphertext, err := ratchet.Encrypt(&conversation.State, ad, plaintext)
	if err != nil {
		return fmt.Errorf("session: encrypt: %w", err)
	}

	// Persist before sending so a crash never loses ratchet state we've
	// already advanced past.
	if err := s.ratchetStore.SaveConversation(conversationID, conversation); err != nil {
		return fmt.Errorf("session: save conversation: %w", err)
	}

	wireBytes, err := encodeWireMessage(encHeader, ciphertext)
	if err != nil {
		return fmt.Errorf("session: encode wire message: %w", err)
	}

	envelope := domain.Envelope{
		From:           from,
		To:             to,
		Wire:           wireBytes,
		AssociatedData: ad,
		PreKey:         preKeyMessage,
		Timestamp:      time.Now().Unix(),
	}
	if err := s.relayClient.SendMessage(ctx, envelope); err != nil {
		return fmt.Errorf("session: send: %w", err)
	}
	return nil
}

// ReceiveMessage fetches and decrypts up to limit pending messages for me,
// bootstrapping a responder ratchet state from a PreKeyMessage the first
// time a peer is heard from. Only envelopes that decrypt successfully are
// acknowledged to the relay; a decrypt failure stops processing and leaves
// the remaining envelopes queued.
func (s *Service) ReceiveMessage(
	ctx context.Context,
	passphrase string,
	me domain.Username,
	limit int,
) ([]domain.DecryptedMessage, error) {
	envelopes, err := s.relayClient.FetchMessages(ctx, me, limit)
	if err != nil {
		return nil, fmt.Errorf("session: fetch messages: %w", err)
	}

	decrypted := make([]domain.DecryptedMessage, 0, len(envelopes))
	processed := 0
	var recvErr error

	for i, envelope := range envelopes {
		conversationID := domain.ConversationID(envelope.From.String())
		lock := s.lockFor(conversationID)
		plaintext, err := s.receiveOne(ctx, passphrase, conversationID, envelope)
		if err != nil {
			lock.Unlock()
			recvErr = fmt.Errorf("session: receive from %s: %w", envelope.From, err)
			break
		}
		lock.Unlock()

		decrypted = append(decrypted, domain.DecryptedMessage{
			From:      envelope.From,
			To:        envelope.To,
			Plaintext: plaintext,
			Timestamp: envelope.Timestamp,
		})
		processed = i + 1
	}

	if processed > 0 {
		if err := s.relayClient.AckMessages(ctx, me, processed); err != nil {
			return decrypted, fmt.Errorf("session: ack %d messages: %w", processed, err)
		}
	}
	return decrypted, recvErr
}

// receiveOne processes a single envelope under conversationID's lock,
// bootstrapping the responder ratchet state from envelope.PreKey when this
// is the first message seen from that peer.
func (s *Service) receiveOne(
	ctx context.Context,
	passphrase string,
	conversationID domain.ConversationID,
	envelope domain.Envelope,
) ([]byte, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	// Left locked on both return paths; ReceiveMessage always unlocks after
	// calling this, whether decryption succeeded or failed.

	conversation, found, err := s.ratchetStore.LoadConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	if found && envelope.PreKey != nil {
		// A pre-key message on an already-established conversation is only
		// a problem if it claims a different initiator identity than the
		// one this conversation was opened with; a matching preamble is a
		// benign retransmission and is simply ignored.
		if envelope.PreKey.InitiatorIdentityKey != conversation.PeerIdentityKey {
			return nil, ErrPeerIdentityMismatch
		}
	}

	if !found {
		if envelope.PreKey == nil {
			return nil, fmt.Errorf("first message from peer carries no pre-key message")
		}
		identity, err := s.idStore.LoadIdentity(passphrase)
		if err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
		if envelope.PreKey.SignedPreKeyID == "" {
			return nil, fmt.Errorf("missing signed pre-key id in pre-key message")
		}
		spkPriv, spkPub, _, spkFound, err := s.prekeyStore.LoadSignedPreKey(envelope.PreKey.SignedPreKeyID)
		if err != nil {
			return nil, fmt.Errorf("load signed pre-key: %w", err)
		}
		if !spkFound {
			return nil, fmt.Errorf("signed pre-key %q not found", envelope.PreKey.SignedPreKeyID)
		}

		var opkPriv *domain.X25519Private
		if envelope.PreKey.OneTimePreKeyID != "" {
			priv, _, opkFound, err := s.prekeyStore.ConsumeOneTimePreKey(envelope.PreKey.OneTimePreKeyID)
			if err != nil {
				return nil, fmt.Errorf("consume one-time pre-key: %w", err)
			}
			if opkFound {
				opkPriv = &priv
			}
		}

		rootKey, err := x3dh.ResponderRoot(identity, spkPriv, opkPriv, *envelope.PreKey)
		if err != nil {
			return nil, fmt.Errorf("x3dh responder: %w", err)
		}
		state, err := ratchet.InitAsReceiver(rootKey, spkPriv, spkPub)
		if err != nil {
			return nil, fmt.Errorf("init ratchet as receiver: %w", err)
		}
		conversation = domain.Conversation{
			Peer:            conversationID,
			PeerIdentityKey: envelope.PreKey.InitiatorIdentityKey,
			State:           state,
		}
	}

	encHeader, ciphertext, err := decodeWireMessage(envelope.Wire)
	if err != nil {
		return nil, fmt.Errorf("decode wire message: %w", err)
	}

	plaintext, err := ratchet.Decrypt(&conversation.State, envelope.AssociatedData, encHeader, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	if err := s.ratchetStore.SaveConversation(conversationID, conversation); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return plaintext, nil
}

// encodeWireMessage packs a ratchet-encrypted header and body into the
// binary WireMessage layout. encHeader is SealRandom's nonce||ciphertext
// output. The body_nonce field is left zeroed: it is derived from the
// message key mk via HKDF, and mk never leaves the ratchet package (it is
// wiped immediately after sealing/opening the body), so there is nothing
// outside ratchet.Encrypt that could reproduce it here. decodeWireMessage
// ignores the field on the receiving side for the same reason.
func encodeWireMessage(encHeader, ciphertext []byte) ([]byte, error) {
	if len(encHeader) < headerNonceSize {
		return nil, fmt.Errorf("encrypted header too short (%d bytes)", len(encHeader))
	}
	var m wire.WireMessage
	copy(m.HeaderNonce[:], encHeader[:headerNonceSize])
	m.HeaderCT = encHeader[headerNonceSize:]
	m.Body = ciphertext
	return wire.Encode(m)
}

// decodeWireMessage is the inverse of encodeWireMessage, reassembling the
// nonce||ciphertext header blob ratchet.Decrypt expects. BodyNonce is
// ignored: ratchet.Decrypt recomputes the body nonce itself from the message
// key once it has derived it.
func decodeWireMessage(b []byte) (encHeader, ciphertext []byte, err error) {
	m, err := wire.Decode(b)
	if err != nil {
		return nil, nil, err
	}
	encHeader = append(append([]byte(nil), m.HeaderNonce[:]...), m.HeaderCT...)
	return encHeader, m.Body, nil
}
