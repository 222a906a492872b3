// Package wire encodes and decodes the fixed binary WireMessage layout: a
// one-byte version, a flags byte (bit0 signals a present handshake
// Preamble), the AEAD-sealed ratchet header with its nonce, and the AEAD-
// sealed body with its nonce. Field order and widths are fixed; see Encode
// and Decode.
//
// internal/session uses this package for the header_ct/header_nonce/
// body/body_nonce portion of every outgoing and incoming message. The
// X3DH handshake preamble itself travels separately as JSON (domain.
// PreKeyMessage, keyed by signed/one-time pre-key id rather than raw public
// keys, matching internal/store's id-keyed pre-key lookups); Preamble and
// the has_preamble flag exist here for wire-format completeness and are
// exercised directly by this package's own tests.
package wire
