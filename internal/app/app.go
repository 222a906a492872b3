package app

import "duskwire/internal/domain"

// Wire gathers the services and clients the CLI commands use.
type Wire struct {
	Identity      domain.IdentityService
	PreKeyService domain.PreKeyService
	SessionService domain.SessionService
	MessageService domain.MessageService
	RelayClient   domain.RelayClient
}
