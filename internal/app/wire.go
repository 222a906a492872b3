package app

import (
	"fmt"
	"net/http"

	"duskwire/internal/keybundle"
	"duskwire/internal/relay"
	identitysvc "duskwire/internal/services/identity"
	"duskwire/internal/session"
	"duskwire/internal/store"
)

// NewWire constructs the dependency graph from cfg.
//
// The Argon2id vault is opened once here, under the same passphrase that
// unlocks the identity file, and shared by every store that holds private
// key material besides the identity itself (pre-keys, sessions, ratchet
// state). Pre-key bundle caches and account profiles hold only public
// metadata and need no vault.
func NewWire(cfg Config) (*Wire, error) {
	vault, err := store.OpenVault(cfg.HomeDir, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("app: open vault: %w", err)
	}

	idStore := store.NewIdentityFileStore(cfg.HomeDir)
	prekeyStore := store.NewPreKeyFileStore(cfg.HomeDir, vault)
	bundleStore := store.NewBundleFileStore(cfg.HomeDir)
	sessionStore := store.NewSessionFileStore(cfg.HomeDir, vault)
	ratchetStore := store.NewRatchetFileStore(cfg.HomeDir, vault)
	accountStore := store.NewAccountFileStore(cfg.HomeDir)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	relayClient := relay.NewHTTP(cfg.RelayURL, httpClient)

	idSvc := identitysvc.New(idStore)
	preKeySvc := keybundle.New(idSvc, prekeyStore)
	sessSvc := session.New(
		idStore,
		prekeyStore,
		bundleStore,
		sessionStore,
		ratchetStore,
		relayClient,
		accountStore,
		cfg.RelayURL,
	)

	return &Wire{
		Identity:       idSvc,
		PreKeyService:  preKeySvc,
		SessionService: sessSvc,
		MessageService: sessSvc,
		RelayClient:    relayClient,
	}, nil
}
