package session_test

import (
	"context"
	"sync"
	"testing"

	"duskwire/internal/domain"
	"duskwire/internal/keybundle"
	"duskwire/internal/services/identity"
	"duskwire/internal/session"
	"duskwire/internal/store"
)

// fakeRelay is an in-memory stand-in for the HTTP relay client: a bundle
// registry plus a per-recipient mailbox, guarded by one mutex.
type fakeRelay struct {
	mu       sync.Mutex
	bundles  map[domain.Username]domain.PreKeyBundle
	mailbox  map[domain.Username][]domain.Envelope
	canaries map[domain.Username]string
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		bundles:  make(map[domain.Username]domain.PreKeyBundle),
		mailbox:  make(map[domain.Username][]domain.Envelope),
		canaries: make(map[domain.Username]string),
	}
}

func (r *fakeRelay) RegisterPreKeyBundle(_ context.Context, bundle domain.PreKeyBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[bundle.Username] = bundle
	if _, ok := r.canaries[bundle.Username]; !ok {
		r.canaries[bundle.Username] = "canary-" + bundle.Username.String()
	}
	return nil
}

func (r *fakeRelay) FetchPreKeyBundle(_ context.Context, username domain.Username) (domain.PreKeyBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bundles[username], nil
}

func (r *fakeRelay) SendMessage(_ context.Context, envelope domain.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailbox[envelope.To] = append(r.mailbox[envelope.To], envelope)
	return nil
}

func (r *fakeRelay) FetchMessages(_ context.Context, username domain.Username, limit int) ([]domain.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.mailbox[username]
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	out := make([]domain.Envelope, len(pending))
	copy(out, pending)
	return out, nil
}

func (r *fakeRelay) AckMessages(_ context.Context, username domain.Username, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.mailbox[username]
	if count >= len(pending) {
		r.mailbox[username] = nil
		return nil
	}
	r.mailbox[username] = pending[count:]
	return nil
}

func (r *fakeRelay) FetchAccountCanary(_ context.Context, username domain.Username) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canaries[username], nil
}

var _ domain.RelayClient = (*fakeRelay)(nil)

const testRelayURL = "https://relay.test"

// party bundles together one simulated user's stores and services, all
// rooted at its own temp directory so Alice and Bob never share state
// except through the shared fakeRelay.
type party struct {
	username   domain.Username
	passphrase string
	identity   *identity.Service
	preKeys    *keybundle.Service
	svc        *session.Service
}

func newParty(t *testing.T, username domain.Username, relay domain.RelayClient) *party {
	t.Helper()
	dir := t.TempDir()
	passphrase := "pass-" + username.String()

	vault, err := store.OpenVault(dir, passphrase)
	if err != nil {
		t.Fatalf("open vault for %s: %v", username, err)
	}

	idStore := store.NewIdentityFileStore(dir)
	prekeyStore := store.NewPreKeyFileStore(dir, vault)
	bundleStore := store.NewBundleFileStore(dir)
	sessionStore := store.NewSessionFileStore(dir, vault)
	ratchetStore := store.NewRatchetFileStore(dir, vault)
	accountStore := store.NewAccountFileStore(dir)

	idSvc := identity.New(idStore)
	if _, _, err := idSvc.GenerateIdentity(passphrase); err != nil {
		t.Fatalf("generate identity for %s: %v", username, err)
	}

	preKeySvc := keybundle.New(idSvc, prekeyStore)
	if _, _, err := preKeySvc.GenerateAndStorePreKeys(passphrase, 5); err != nil {
		t.Fatalf("generate pre-keys for %s: %v", username, err)
	}
	bundle, err := preKeySvc.LoadPreKeyBundle(passphrase, username, testRelayURL)
	if err != nil {
		t.Fatalf("load bundle for %s: %v", username, err)
	}
	bundle.Username = username
	if err := relay.RegisterPreKeyBundle(context.Background(), bundle); err != nil {
		t.Fatalf("register bundle for %s: %v", username, err)
	}
	if err := bundleStore.SavePreKeyBundle(bundle); err != nil {
		t.Fatalf("cache bundle for %s: %v", username, err)
	}

	if err := accountStore.SaveAccountProfile(domain.AccountProfile{
		ServerURL: testRelayURL,
		Username:  username,
		Canary:    "canary-" + username.String(),
	}); err != nil {
		t.Fatalf("save account profile for %s: %v", username, err)
	}

	svc := session.New(idStore, prekeyStore, bundleStore, sessionStore, ratchetStore, relay, accountStore, testRelayURL)
	return &party{username: username, passphrase: passphrase, identity: idSvc, preKeys: preKeySvc, svc: svc}
}

func TestSendReceive_RoundTrip(t *testing.T) {
	relay := newFakeRelay()
	alice := newParty(t, domain.Username("alice"), relay)
	bob := newParty(t, domain.Username("bob"), relay)
	ctx := context.Background()

	if _, err := alice.svc.InitiateSession(ctx, alice.passphrase, bob.username); err != nil {
		t.Fatalf("alice initiate session: %v", err)
	}

	want := []byte("hello bob, this is alice")
	if err := alice.svc.SendMessage(ctx, alice.passphrase, alice.username, bob.username, want); err != nil {
		t.Fatalf("alice send: %v", err)
	}

	got, err := bob.svc.ReceiveMessage(ctx, bob.passphrase, bob.username, 0)
	if err != nil {
		t.Fatalf("bob receive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("bob received %d messages, want 1", len(got))
	}
	if string(got[0].Plaintext) != string(want) {
		t.Fatalf("plaintext mismatch: got %q want %q", got[0].Plaintext, want)
	}
	if got[0].From != alice.username {
		t.Fatalf("from mismatch: got %s want %s", got[0].From, alice.username)
	}

	// messages are acked after a successful receive
	again, err := bob.svc.ReceiveMessage(ctx, bob.passphrase, bob.username, 0)
	if err != nil {
		t.Fatalf("bob second receive: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected mailbox drained after ack, got %d messages", len(again))
	}
}

func TestSendReceive_MultipleMessagesAdvanceRatchet(t *testing.T) {
	relay := newFakeRelay()
	alice := newParty(t, domain.Username("alice"), relay)
	bob := newParty(t, domain.Username("bob"), relay)
	ctx := context.Background()

	if _, err := alice.svc.InitiateSession(ctx, alice.passphrase, bob.username); err != nil {
		t.Fatalf("alice initiate session: %v", err)
	}

	messages := [][]byte{
		[]byte("first"),
		[]byte("second"),
		[]byte("third"),
	}
	for _, m := range messages {
		if err := alice.svc.SendMessage(ctx, alice.passphrase, alice.username, bob.username, m); err != nil {
			t.Fatalf("alice send %q: %v", m, err)
		}
	}

	got, err := bob.svc.ReceiveMessage(ctx, bob.passphrase, bob.username, 0)
	if err != nil {
		t.Fatalf("bob receive: %v", err)
	}
	if len(got) != len(messages) {
		t.Fatalf("got %d messages, want %d", len(got), len(messages))
	}
	for i, m := range messages {
		if string(got[i].Plaintext) != string(m) {
			t.Fatalf("message %d: got %q want %q", i, got[i].Plaintext, m)
		}
	}
}

func TestSendMessage_NoSession_ReturnsErrNoSession(t *testing.T) {
	relay := newFakeRelay()
	alice := newParty(t, domain.Username("alice"), relay)
	bob := newParty(t, domain.Username("bob"), relay)
	ctx := context.Background()

	err := alice.svc.SendMessage(ctx, alice.passphrase, alice.username, bob.username, []byte("hi"))
	if err != session.ErrNoSession {
		t.Fatalf("got err %v, want %v", err, session.ErrNoSession)
	}
}

func TestReceiveMessage_TamperedWire_FailsAndLeavesMessageQueued(t *testing.T) {
	relay := newFakeRelay()
	alice := newParty(t, domain.Username("alice"), relay)
	bob := newParty(t, domain.Username("bob"), relay)
	ctx := context.Background()

	if _, err := alice.svc.InitiateSession(ctx, alice.passphrase, bob.username); err != nil {
		t.Fatalf("alice initiate session: %v", err)
	}
	if err := alice.svc.SendMessage(ctx, alice.passphrase, alice.username, bob.username, []byte("hello")); err != nil {
		t.Fatalf("alice send: %v", err)
	}

	relay.mu.Lock()
	relay.mailbox[bob.username][0].Wire[10] ^= 0xFF
	relay.mu.Unlock()

	if _, err := bob.svc.ReceiveMessage(ctx, bob.passphrase, bob.username, 0); err == nil {
		t.Fatalf("expected decrypt failure on tampered wire payload")
	}

	relay.mu.Lock()
	remaining := len(relay.mailbox[bob.username])
	relay.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("tampered message should remain queued, got %d pending", remaining)
	}
}
