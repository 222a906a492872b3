package wire_test

import (
	"bytes"
	"testing"

	"duskwire/internal/wire"
)

func sample() wire.WireMessage {
	var m wire.WireMessage
	m.HeaderCT = []byte("sealed-header-bytes")
	for i := range m.HeaderNonce {
		m.HeaderNonce[i] = byte(i)
	}
	m.Body = []byte("sealed-body-bytes-of-some-length")
	for i := range m.BodyNonce {
		m.BodyNonce[i] = byte(0xF0 + i%10)
	}
	return m
}

func TestEncodeDecode_NoPreamble_RoundTrips(t *testing.T) {
	in := sample()

	b, err := wire.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if b[0] != wire.Version {
		t.Fatalf("version byte = %#x, want %#x", b[0], wire.Version)
	}
	if b[1]&1 != 0 {
		t.Fatalf("has_preamble flag set on a no-preamble message")
	}

	out, err := wire.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Preamble != nil {
		t.Fatalf("decoded Preamble = %+v, want nil", out.Preamble)
	}
	if !bytes.Equal(out.HeaderCT, in.HeaderCT) || !bytes.Equal(out.Body, in.Body) {
		t.Fatalf("decoded payload mismatch")
	}
	if out.HeaderNonce != in.HeaderNonce || out.BodyNonce != in.BodyNonce {
		t.Fatalf("decoded nonce mismatch")
	}
}

func TestEncodeDecode_WithPreamble_NoOPK(t *testing.T) {
	in := sample()
	p := &wire.Preamble{}
	for i := range p.IKSender {
		p.IKSender[i] = byte(i + 1)
	}
	for i := range p.EKSender {
		p.EKSender[i] = byte(i + 2)
	}
	in.Preamble = p

	b, err := wire.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if b[1]&1 == 0 {
		t.Fatalf("has_preamble flag not set")
	}

	out, err := wire.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Preamble == nil {
		t.Fatalf("decoded Preamble = nil, want present")
	}
	if out.Preamble.IKSender != p.IKSender || out.Preamble.EKSender != p.EKSender {
		t.Fatalf("decoded preamble keys mismatch")
	}
	if out.Preamble.OPKUsed != nil {
		t.Fatalf("decoded OPKUsed = %+v, want nil", out.Preamble.OPKUsed)
	}
}

func TestEncodeDecode_WithPreamble_WithOPK(t *testing.T) {
	in := sample()
	opk := [32]byte{}
	for i := range opk {
		opk[i] = byte(i + 3)
	}
	in.Preamble = &wire.Preamble{OPKUsed: &opk}

	b, err := wire.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := wire.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Preamble == nil || out.Preamble.OPKUsed == nil {
		t.Fatalf("decoded preamble/opk_used missing")
	}
	if *out.Preamble.OPKUsed != opk {
		t.Fatalf("decoded opk_used mismatch")
	}
}

func TestDecode_RejectsWrongVersion(t *testing.T) {
	b, err := wire.Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b[0] = 0x02
	if _, err := wire.Decode(b); err == nil {
		t.Fatalf("Decode accepted an unsupported version")
	}
}

func TestDecode_RejectsTruncatedInput(t *testing.T) {
	b, err := wire.Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := wire.Decode(b[:len(b)-5]); err == nil {
		t.Fatalf("Decode accepted truncated input")
	}
}

func TestDecode_RejectsTrailingBytes(t *testing.T) {
	b, err := wire.Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b = append(b, 0xAA)
	if _, err := wire.Decode(b); err == nil {
		t.Fatalf("Decode accepted trailing bytes")
	}
}
