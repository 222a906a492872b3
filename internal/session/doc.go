// Package session ties X3DH key agreement and the Double Ratchet together
// into the two operations a caller actually needs: establish a session with
// a peer, and send/receive messages over it.
//
// Establishing a session (InitiateSession) runs X3DH against a peer's
// published pre-key bundle and persists the resulting root key. The first
// message sent afterwards carries a PreKeyMessage so the peer can run the
// responder side of X3DH and bootstrap its own ratchet state; every message
// after that carries only the Double-Ratchet-with-Header-Encryption
// envelope. RatchetState is not safe for concurrent use, so Service
// serialises all ratchet access per conversation partner with a dedicated
// mutex.
package session
