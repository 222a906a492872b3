// Package store provides file-based persistence for the domain storage
// interfaces, serialising data as JSON on disk, except the skipped-message-key
// side-file, which uses a binary encoding (skipped.go). All methods are
// concurrency-safe via internal locking. Stored files typically live under
// the user's configured home directory.
//
// Two at-rest encryption lineages are kept side by side: the identity file
// alone uses crypto_envelope.go's versioned scrypt-keyed blob format, while
// everything else that holds private key material (pre-keys, sessions,
// ratchet state) is sealed under Vault's Argon2id-derived key (vault.go).
// Pre-key bundle caches and account profiles hold only public/non-secret
// metadata and are stored as plain JSON.
//
// The package includes stores for:
//   - Identity keys (IdentityFileStore)
//   - Pre-keys (PreKeyFileStore)
//   - Pre-key bundles (BundleFileStore)
//   - Account profiles (AccountFileStore)
//   - Sessions (SessionFileStore)
//   - Double Ratchet conversation state (RatchetFileStore)
package store
