package store

import (
	"encoding/binary"
	"fmt"

	"duskwire/internal/domain"
)

// encodeSkippedTable serialises every conversation's skipped-message-key
// store as length-prefixed (HK, N, MK) triples, grouped by peer. This is
// kept out of the main JSON conversation blob on purpose: nesting a binary
// format as base64-in-JSON is exactly the "one serialization format inside
// another" layering this side-file avoids.
//
// Layout, all integers big-endian:
//
//	u32 peer_count
//	peer_count * {
//	  u16 peer_len; peer (bytes of ConversationID)
//	  u32 entry_count
//	  entry_count * {
//	    u16 hk_len; hk
//	    u32 n
//	    u16 mk_len; mk
//	  }
//	}
func encodeSkippedTable(table map[domain.ConversationID][]domain.SkippedMessageKey) ([]byte, error) {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(table)))

	for peer, entries := range table {
		peerBytes := []byte(peer)
		if len(peerBytes) > 0xFFFF {
			return nil, fmt.Errorf("store: peer id too large (%d bytes)", len(peerBytes))
		}
		var u16 [2]byte
		binary.BigEndian.PutUint16(u16[:], uint16(len(peerBytes)))
		out = append(out, u16[:]...)
		out = append(out, peerBytes...)

		var u32 [4]byte
		binary.BigEndian.PutUint32(u32[:], uint32(len(entries)))
		out = append(out, u32[:]...)

		for _, e := range entries {
			if len(e.HeaderKey) > 0xFFFF || len(e.MessageKey) > 0xFFFF {
				return nil, fmt.Errorf("store: skipped-key field too large")
			}
			binary.BigEndian.PutUint16(u16[:], uint16(len(e.HeaderKey)))
			out = append(out, u16[:]...)
			out = append(out, e.HeaderKey...)

			binary.BigEndian.PutUint32(u32[:], e.N)
			out = append(out, u32[:]...)

			binary.BigEndian.PutUint16(u16[:], uint16(len(e.MessageKey)))
			out = append(out, u16[:]...)
			out = append(out, e.MessageKey...)
		}
	}
	return out, nil
}

// decodeSkippedTable is the inverse of encodeSkippedTable.
func decodeSkippedTable(b []byte) (map[domain.ConversationID][]domain.SkippedMessageKey, error) {
	table := make(map[domain.ConversationID][]domain.SkippedMessageKey)
	if len(b) == 0 {
		return table, nil
	}

	if len(b) < 4 {
		return nil, fmt.Errorf("store: truncated skipped-key table")
	}
	peerCount := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	for i := uint32(0); i < peerCount; i++ {
		if len(b) < 2 {
			return nil, fmt.Errorf("store: truncated peer id length")
		}
		peerLen := int(binary.BigEndian.Uint16(b[:2]))
		b = b[2:]
		if len(b) < peerLen {
			return nil, fmt.Errorf("store: truncated peer id")
		}
		peer := domain.ConversationID(b[:peerLen])
		b = b[peerLen:]

		if len(b) < 4 {
			return nil, fmt.Errorf("store: truncated entry count")
		}
		entryCount := binary.BigEndian.Uint32(b[:4])
		b = b[4:]

		entries := make([]domain.SkippedMessageKey, 0, entryCount)
		for j := uint32(0); j < entryCount; j++ {
			if len(b) < 2 {
				return nil, fmt.Errorf("store: truncated header key length")
			}
			hkLen := int(binary.BigEndian.Uint16(b[:2]))
			b = b[2:]
			if len(b) < hkLen {
				return nil, fmt.Errorf("store: truncated header key")
			}
			hk := append([]byte(nil), b[:hkLen]...)
			b = b[hkLen:]

			if len(b) < 4 {
				return nil, fmt.Errorf("store: truncated message index")
			}
			n := binary.BigEndian.Uint32(b[:4])
			b = b[4:]

			if len(b) < 2 {
				return nil, fmt.Errorf("store: truncated message key length")
			}
			mkLen := int(binary.BigEndian.Uint16(b[:2]))
			b = b[2:]
			if len(b) < mkLen {
				return nil, fmt.Errorf("store: truncated message key")
			}
			mk := append([]byte(nil), b[:mkLen]...)
			b = b[mkLen:]

			entries = append(entries, domain.SkippedMessageKey{HeaderKey: hk, N: n, MessageKey: mk})
		}
		table[peer] = entries
	}

	if len(b) != 0 {
		return nil, fmt.Errorf("store: %d trailing bytes in skipped-key table", len(b))
	}
	return table, nil
}
