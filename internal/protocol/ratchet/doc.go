// Package ratchet implements the Double Ratchet algorithm with header
// encryption (DR-HE), following Signal's design.
//
// The algorithm maintains a root key and two message chains (send and
// receive). Each message advances a KDF chain so that keys are forward
// secure. When a party changes its DH ratchet public key, both sides derive
// new chain keys from a new root derived via DH. Unlike plain Double
// Ratchet, the header carrying the DH public key, previous chain length and
// message index is itself AEAD-sealed under a rotating header key (HK) and
// a next-header-key (NHK); a receiver recognises a new DH ratchet step by
// trial-decrypting the header with NHK rather than comparing a plaintext DH
// public key field.
//
// Concurrency: RatchetState is NOT safe for concurrent use. Callers must
// serialise access per conversation (see internal/session).
package ratchet
