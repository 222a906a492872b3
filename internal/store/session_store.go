package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"duskwire/internal/domain"
)

const sessionFile = "sessions.json.enc"

// SessionFileStore persists X3DH-derived sessions to disk, sealed under
// vault since each session carries the shared root key.
type SessionFileStore struct {
	dir   string
	vault *Vault
	mu    sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir, sealing
// session blobs under vault.
func NewSessionFileStore(dir string, vault *Vault) *SessionFileStore {
	return &SessionFileStore{dir: dir, vault: vault}
}

func (s *SessionFileStore) readSessions() (map[string]domain.Session, error) {
	path := filepath.Join(s.dir, sessionFile)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string]domain.Session)
	if b == nil {
		return m, nil
	}
	pt, err := s.vault.Open(b)
	if err != nil {
		return nil, fmt.Errorf("session store: open %s: %w", sessionFile, err)
	}
	if err := unmarshalJSON(pt, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SessionFileStore) writeSessions(m map[string]domain.Session) error {
	raw, err := marshalJSON(m)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal(raw)
	if err != nil {
		return fmt.Errorf("session store: seal %s: %w", sessionFile, err)
	}
	path := filepath.Join(s.dir, sessionFile)
	return writeFile(path, sealed, 0o600)
}

// SaveSession stores or replaces the session with peer.
func (s *SessionFileStore) SaveSession(peer domain.Username, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readSessions()
	if err != nil {
		return err
	}
	m[peer.String()] = session
	return s.writeSessions(m)
}

// LoadSession retrieves the session with peer, if any.
func (s *SessionFileStore) LoadSession(peer domain.Username) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readSessions()
	if err != nil {
		return domain.Session{}, false, err
	}
	sess, ok := m[peer.String()]
	return sess, ok, nil
}

var _ domain.SessionStore = (*SessionFileStore)(nil)
