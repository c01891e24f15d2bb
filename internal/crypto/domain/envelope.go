package domain

import "time"

// EncryptedData is ciphertext plus the nonce needed to decrypt it, bundled
// together so callers never have to track the two separately.
type EncryptedData struct {
	Nonce      []byte
	Ciphertext []byte
}

// CloudKeyPair is an X25519 keypair used for envelope encryption when sharing
// a DEK with another device or user. Only the public key ever leaves the device.
type CloudKeyPair struct {
	Secret [32]byte
	Public [32]byte
}

// SealedEnvelope is a DEK sealed for a recipient's X25519 public key using an
// ephemeral keypair, so the sender's own identity never appears in the envelope.
type SealedEnvelope struct {
	// EphemeralPublicKey is the sender side of the Diffie-Hellman exchange.
	EphemeralPublicKey [32]byte
	// Nonce is the XSalsa20 nonce used by the NaCl box.
	Nonce [24]byte
	// Ciphertext is the sealed DEK, including its Poly1305 authentication tag.
	Ciphertext []byte
}

// KdfParams configures the Argon2id key-derivation function used to turn a
// passphrase or recovery mnemonic into a symmetric key.
type KdfParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKdfParams returns the Argon2id parameters used throughout the crypto
// package for passphrase and mnemonic key derivation.
func DefaultKdfParams() KdfParams {
	return KdfParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// PassphraseProtectedKey is a private key encrypted with a passphrase-derived
// key. The Argon2id salt travels with the ciphertext so the passphrase alone
// is enough to decrypt it.
type PassphraseProtectedKey struct {
	Salt      [16]byte
	Encrypted EncryptedData
}

// RecoveryBlob is a master or cloud private key encrypted with a key derived
// from a BIP-39 recovery mnemonic, allowing offline recovery without the
// original passphrase.
type RecoveryBlob struct {
	EncryptedKey EncryptedData
	CreatedAt    time.Time
}
