package wire

import (
	"encoding/binary"
	"fmt"
)

// Version is the only WireMessage format this package emits or accepts.
const Version uint8 = 0x01

const (
	flagHasPreamble = 1 << 0
	nonceSize       = 12
	pubKeySize      = 32
)

// Preamble carries the X3DH handshake parameters attached to the first
// message of a conversation.
type Preamble struct {
	IKSender [pubKeySize]byte
	EKSender [pubKeySize]byte
	OPKUsed  *[pubKeySize]byte // nil if the handshake used no one-time key
}

// WireMessage is the on-wire representation of a single ratchet message.
type WireMessage struct {
	Preamble    *Preamble
	HeaderCT    []byte
	HeaderNonce [nonceSize]byte
	Body        []byte
	BodyNonce   [nonceSize]byte
}

// Encode serialises m per the fixed binary layout:
//
//	u8  version
//	u8  flags                    (bit0 = has_preamble)
//	Preamble preamble?           (present iff flags.bit0)
//	u16 header_ct_len; header_ct
//	u8  header_nonce[12]
//	u32 body_len; body
//	u8  body_nonce[12]
func Encode(m WireMessage) ([]byte, error) {
	if len(m.HeaderCT) > 0xFFFF {
		return nil, fmt.Errorf("wire: header_ct too large (%d bytes)", len(m.HeaderCT))
	}
	if uint64(len(m.Body)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("wire: body too large (%d bytes)", len(m.Body))
	}

	var flags uint8
	if m.Preamble != nil {
		flags |= flagHasPreamble
	}

	size := 2 + 2 + len(m.HeaderCT) + nonceSize + 4 + len(m.Body) + nonceSize
	if m.Preamble != nil {
		size += pubKeySize + pubKeySize + 1
		if m.Preamble.OPKUsed != nil {
			size += pubKeySize
		}
	}

	out := make([]byte, 0, size)
	out = append(out, Version, flags)

	if m.Preamble != nil {
		out = append(out, m.Preamble.IKSender[:]...)
		out = append(out, m.Preamble.EKSender[:]...)
		if m.Preamble.OPKUsed != nil {
			out = append(out, 1)
			out = append(out, m.Preamble.OPKUsed[:]...)
		} else {
			out = append(out, 0)
		}
	}

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(m.HeaderCT)))
	out = append(out, u16[:]...)
	out = append(out, m.HeaderCT...)
	out = append(out, m.HeaderNonce[:]...)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(m.Body)))
	out = append(out, u32[:]...)
	out = append(out, m.Body...)
	out = append(out, m.BodyNonce[:]...)

	return out, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (WireMessage, error) {
	var m WireMessage

	if len(b) < 2 {
		return m, fmt.Errorf("wire: truncated message (%d bytes)", len(b))
	}
	version, flags := b[0], b[1]
	if version != Version {
		return m, fmt.Errorf("wire: unsupported version %#x", version)
	}
	b = b[2:]

	if flags&flagHasPreamble != 0 {
		if len(b) < pubKeySize*2+1 {
			return m, fmt.Errorf("wire: truncated preamble")
		}
		p := &Preamble{}
		copy(p.IKSender[:], b[:pubKeySize])
		b = b[pubKeySize:]
		copy(p.EKSender[:], b[:pubKeySize])
		b = b[pubKeySize:]
		present := b[0]
		b = b[1:]
		switch present {
		case 0:
		case 1:
			if len(b) < pubKeySize {
				return m, fmt.Errorf("wire: truncated preamble opk_used")
			}
			var opk [pubKeySize]byte
			copy(opk[:], b[:pubKeySize])
			p.OPKUsed = &opk
			b = b[pubKeySize:]
		default:
			return m, fmt.Errorf("wire: invalid opk_used_present byte %d", present)
		}
		m.Preamble = p
	}

	if len(b) < 2 {
		return m, fmt.Errorf("wire: truncated header_ct_len")
	}
	headerLen := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < headerLen+nonceSize {
		return m, fmt.Errorf("wire: truncated header_ct/header_nonce")
	}
	m.HeaderCT = append([]byte(nil), b[:headerLen]...)
	b = b[headerLen:]
	copy(m.HeaderNonce[:], b[:nonceSize])
	b = b[nonceSize:]

	if len(b) < 4 {
		return m, fmt.Errorf("wire: truncated body_len")
	}
	bodyLen := int(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	if len(b) < bodyLen+nonceSize {
		return m, fmt.Errorf("wire: truncated body/body_nonce")
	}
	m.Body = append([]byte(nil), b[:bodyLen]...)
	b = b[bodyLen:]
	copy(m.BodyNonce[:], b[:nonceSize])
	b = b[nonceSize:]

	if len(b) != 0 {
		return m, fmt.Errorf("wire: %d trailing bytes", len(b))
	}
	return m, nil
}
