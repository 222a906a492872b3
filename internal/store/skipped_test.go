package store

import (
	"bytes"
	"testing"

	"duskwire/internal/domain"
)

func TestSkippedTable_EncodeDecode_RoundTrips(t *testing.T) {
	in := map[domain.ConversationID][]domain.SkippedMessageKey{
		"alice": {
			{HeaderKey: []byte("hk-a1"), N: 3, MessageKey: []byte("mk-a1")},
			{HeaderKey: []byte("hk-a2"), N: 4, MessageKey: []byte("mk-a2")},
		},
		"bob": {
			{HeaderKey: []byte("hk-b1"), N: 0, MessageKey: []byte("mk-b1")},
		},
		"carol": {},
	}

	b, err := encodeSkippedTable(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := decodeSkippedTable(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for peer, entries := range in {
		if len(entries) == 0 {
			continue
		}
		got := out[peer]
		if len(got) != len(entries) {
			t.Fatalf("peer %s: got %d entries, want %d", peer, len(got), len(entries))
		}
		for i, e := range entries {
			if !bytes.Equal(got[i].HeaderKey, e.HeaderKey) || got[i].N != e.N || !bytes.Equal(got[i].MessageKey, e.MessageKey) {
				t.Fatalf("peer %s entry %d mismatch: got %+v, want %+v", peer, i, got[i], e)
			}
		}
	}
}

func TestSkippedTable_DecodeEmpty(t *testing.T) {
	table, err := decodeSkippedTable(nil)
	if err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("want empty table, got %d entries", len(table))
	}
}

func TestSkippedTable_DecodeRejectsTrailingBytes(t *testing.T) {
	b, err := encodeSkippedTable(map[domain.ConversationID][]domain.SkippedMessageKey{
		"alice": {{HeaderKey: []byte("hk"), N: 1, MessageKey: []byte("mk")}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b = append(b, 0xAA)
	if _, err := decodeSkippedTable(b); err == nil {
		t.Fatal("expected trailing-byte rejection")
	}
}

func TestRatchetFileStore_SaveLoad_SplitsSkippedIntoSideFile(t *testing.T) {
	dir := t.TempDir()
	vault, err := OpenVault(dir, "pass")
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	s := NewRatchetFileStore(dir, vault)

	conv := domain.Conversation{
		Peer:            "bob",
		PeerIdentityKey: domain.X25519Public{1},
		State: domain.RatchetState{
			RootKey: []byte("root"),
			Skipped: []domain.SkippedMessageKey{
				{HeaderKey: []byte("hk"), N: 2, MessageKey: []byte("mk")},
			},
		},
	}
	if err := s.SaveConversation(conv.Peer, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := s.LoadConversation(conv.Peer)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected conversation to be found")
	}
	if len(got.State.Skipped) != 1 || !bytes.Equal(got.State.Skipped[0].HeaderKey, []byte("hk")) {
		t.Fatalf("skipped entries not round-tripped: %+v", got.State.Skipped)
	}
	if got.PeerIdentityKey != conv.PeerIdentityKey {
		t.Fatal("peer identity key not round-tripped")
	}

	// The main conversation blob itself must never carry the skipped keys.
	m, err := s.readConversations()
	if err != nil {
		t.Fatalf("readConversations: %v", err)
	}
	if len(m[conv.Peer].State.Skipped) != 0 {
		t.Fatal("main conversation blob must not embed skipped-message-key entries")
	}
}
