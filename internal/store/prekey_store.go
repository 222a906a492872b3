package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"duskwire/internal/domain"
)

const (
	spkPairsFile   = "spk_pairs.json.enc"
	opkPairsFile   = "opk_pairs.json.enc"
	prekeyMetaFile = "prekey_meta.json"
)

// PreKeyFileStore persists signed and one-time pre-key state to disk. Key
// material (spkPairsFile, opkPairsFile) is sealed under vault; the small
// bookkeeping record of which signed pre-key id is current is not secret
// and is kept as plain JSON.
type PreKeyFileStore struct {
	dir   string
	vault *Vault
	mu    sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir, sealing
// key-bearing blobs under vault.
func NewPreKeyFileStore(dir string, vault *Vault) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir, vault: vault}
}

type spkPair struct {
	Priv [32]byte `json:"priv"`
	Pub  [32]byte `json:"pub"`
	Sig  []byte   `json:"sig"`
}

type opkPair struct {
	Priv [32]byte `json:"priv"`
	Pub  [32]byte `json:"pub"`
}

type prekeyMeta struct {
	CurrentSignedPreKeyID string `json:"current_signed_pre_key_id"`
}

func (s *PreKeyFileStore) readSealedMap(path string, out any) error {
	b, err := readFile(path)
	if err != nil || b == nil {
		return err
	}
	pt, err := s.vault.Open(b)
	if err != nil {
		return fmt.Errorf("prekey store: open %s: %w", filepath.Base(path), err)
	}
	return unmarshalJSON(pt, out)
}

func (s *PreKeyFileStore) writeSealedMap(path string, v any) error {
	raw, err := marshalJSON(v)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal(raw)
	if err != nil {
		return fmt.Errorf("prekey store: seal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, sealed, 0o600)
}

// SaveSignedPreKey stores a signed pre-key by id.
func (s *PreKeyFileStore) SaveSignedPreKey(
	id domain.SignedPreKeyID,
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, spkPairsFile)
	m := map[domain.SignedPreKeyID]spkPair{}
	if err := s.readSealedMap(path, &m); err != nil {
		return err
	}
	m[id] = spkPair{Priv: priv, Pub: pub, Sig: sig}
	return s.writeSealedMap(path, m)
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *PreKeyFileStore) LoadSignedPreKey(
	id domain.SignedPreKeyID,
) (
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
	ok bool,
	err error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, spkPairsFile)
	m := map[domain.SignedPreKeyID]spkPair{}
	if err = s.readSealedMap(path, &m); err != nil {
		return priv, pub, nil, false, err
	}
	p, ok := m[id]
	if !ok {
		return priv, pub, nil, false, nil
	}
	return p.Priv, p.Pub, p.Sig, true, nil
}

// SaveOneTimePreKeys merges the given one-time pre-key pairs into the store.
func (s *PreKeyFileStore) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, opkPairsFile)
	m := map[domain.OneTimePreKeyID]opkPair{}
	if err := s.readSealedMap(path, &m); err != nil {
		return err
	}
	for _, p := range pairs {
		m[p.ID] = opkPair{Priv: p.Priv, Pub: p.Pub}
	}
	return s.writeSealedMap(path, m)
}

// ConsumeOneTimePreKey removes and returns a single one-time pre-key by id.
func (s *PreKeyFileStore) ConsumeOneTimePreKey(
	id domain.OneTimePreKeyID,
) (
	priv domain.X25519Private,
	pub domain.X25519Public,
	ok bool,
	err error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, opkPairsFile)
	m := map[domain.OneTimePreKeyID]opkPair{}
	if err = s.readSealedMap(path, &m); err != nil {
		return priv, pub, false, err
	}
	p, ok := m[id]
	if !ok {
		return priv, pub, false, nil
	}
	delete(m, id)
	if err = s.writeSealedMap(path, m); err != nil {
		return priv, pub, false, err
	}
	return p.Priv, p.Pub, true, nil
}

// ListOneTimePreKeyPublics exposes only the public halves, for bundling.
func (s *PreKeyFileStore) ListOneTimePreKeyPublics() ([]domain.OneTimePreKeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, opkPairsFile)
	m := map[domain.OneTimePreKeyID]opkPair{}
	if err := s.readSealedMap(path, &m); err != nil {
		return nil, err
	}

	out := make([]domain.OneTimePreKeyPublic, 0, len(m))
	for id, p := range m {
		out = append(out, domain.OneTimePreKeyPublic{ID: id, Pub: p.Pub})
	}
	return out, nil
}

// SetCurrentSignedPreKeyID records which signed pre-key id is current.
func (s *PreKeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, prekeyMetaFile)
	return writeJSON(path, prekeyMeta{CurrentSignedPreKeyID: string(id)}, 0o600)
}

// CurrentSignedPreKeyID returns the recorded current signed pre-key id.
func (s *PreKeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, prekeyMetaFile)
	var meta prekeyMeta
	if err := readJSON(path, &meta); err != nil {
		return "", false, err
	}
	if meta.CurrentSignedPreKeyID == "" {
		return "", false, nil
	}
	return domain.SignedPreKeyID(meta.CurrentSignedPreKeyID), true, nil
}

var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
