package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"duskwire/internal/domain"
)

const (
	convFile    = "conversations.json.enc"
	skippedFile = "skipped_keys.bin.enc"
)

// RatchetFileStore persists Double Ratchet conversation state to disk,
// sealed under vault since the state carries chain keys and the local
// Diffie-Hellman private key.
//
// The skipped-message-key store (MKSKIPPED) for every conversation is kept
// in a separate sealed side-file, encoded as length-prefixed (HK, N, MK)
// triples (skipped.go), rather than embedded inside the JSON conversation
// blob: RatchetState.Skipped is tagged json:"-" for exactly this reason.
type RatchetFileStore struct {
	dir   string
	vault *Vault
	mu    sync.Mutex
}

// NewRatchetFileStore returns a RatchetFileStore rooted at dir, sealing
// conversation blobs under vault.
func NewRatchetFileStore(dir string, vault *Vault) *RatchetFileStore {
	return &RatchetFileStore{dir: dir, vault: vault}
}

func (s *RatchetFileStore) readConversations() (map[domain.ConversationID]domain.Conversation, error) {
	path := filepath.Join(s.dir, convFile)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[domain.ConversationID]domain.Conversation)
	if b == nil {
		return m, nil
	}
	pt, err := s.vault.Open(b)
	if err != nil {
		return nil, fmt.Errorf("ratchet store: open %s: %w", convFile, err)
	}
	if err := unmarshalJSON(pt, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *RatchetFileStore) writeConversations(m map[domain.ConversationID]domain.Conversation) error {
	raw, err := marshalJSON(m)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal(raw)
	if err != nil {
		return fmt.Errorf("ratchet store: seal %s: %w", convFile, err)
	}
	path := filepath.Join(s.dir, convFile)
	return writeFile(path, sealed, 0o600)
}

func (s *RatchetFileStore) readSkippedTable() (map[domain.ConversationID][]domain.SkippedMessageKey, error) {
	path := filepath.Join(s.dir, skippedFile)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return make(map[domain.ConversationID][]domain.SkippedMessageKey), nil
	}
	pt, err := s.vault.Open(b)
	if err != nil {
		return nil, fmt.Errorf("ratchet store: open %s: %w", skippedFile, err)
	}
	return decodeSkippedTable(pt)
}

func (s *RatchetFileStore) writeSkippedTable(table map[domain.ConversationID][]domain.SkippedMessageKey) error {
	raw, err := encodeSkippedTable(table)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal(raw)
	if err != nil {
		return fmt.Errorf("ratchet store: seal %s: %w", skippedFile, err)
	}
	path := filepath.Join(s.dir, skippedFile)
	return writeFile(path, sealed, 0o600)
}

// SaveConversation stores or replaces the ratchet state for peer, splitting
// its skipped-message-key entries off into the binary side-file.
func (s *RatchetFileStore) SaveConversation(peer domain.ConversationID, conversation domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readConversations()
	if err != nil {
		return err
	}
	skipped := conversation.State.Skipped
	conversation.State.Skipped = nil
	m[peer] = conversation
	if err := s.writeConversations(m); err != nil {
		return err
	}

	table, err := s.readSkippedTable()
	if err != nil {
		return err
	}
	if len(skipped) == 0 {
		delete(table, peer)
	} else {
		table[peer] = skipped
	}
	return s.writeSkippedTable(table)
}

// LoadConversation retrieves the ratchet state for peer, if any, rejoining
// its skipped-message-key entries from the binary side-file.
func (s *RatchetFileStore) LoadConversation(peer domain.ConversationID) (domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readConversations()
	if err != nil {
		return domain.Conversation{}, false, err
	}
	c, ok := m[peer]
	if !ok {
		return domain.Conversation{}, false, nil
	}

	table, err := s.readSkippedTable()
	if err != nil {
		return domain.Conversation{}, false, err
	}
	c.State.Skipped = table[peer]
	return c, true, nil
}

var _ domain.RatchetStore = (*RatchetFileStore)(nil)
