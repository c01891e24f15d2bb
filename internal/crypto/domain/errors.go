// Package domain defines core cryptographic domain models for client-side envelope
// encryption: device keypairs, sealed envelopes used to share DEKs, and passphrase
// or mnemonic protected private keys used for account recovery.
package domain

import (
	"github.com/allisson/secrets/internal/errors"
)

// Cryptographic operation errors.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates the cryptographic key size is invalid (must be 32 bytes).
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates decryption failed due to wrong key or corrupted data.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrSealFailed indicates anonymous envelope sealing failed.
	ErrSealFailed = errors.Wrap(errors.ErrInvalidInput, "envelope seal failed")

	// ErrOpenFailed indicates an envelope could not be opened with the given keypair.
	ErrOpenFailed = errors.Wrap(errors.ErrInvalidInput, "envelope open failed")

	// ErrInvalidPassphrase indicates a passphrase-protected key could not be decrypted,
	// either because the passphrase is wrong or the ciphertext was tampered with.
	ErrInvalidPassphrase = errors.Wrap(errors.ErrInvalidInput, "invalid passphrase")

	// ErrInvalidMnemonic indicates a recovery mnemonic failed BIP-39 checksum validation.
	ErrInvalidMnemonic = errors.Wrap(errors.ErrInvalidInput, "invalid recovery mnemonic")

	// ErrInvalidRecoveryBlob indicates a recovery blob could not be decrypted with the
	// derived mnemonic key, either because the mnemonic is wrong or the blob is corrupt.
	ErrInvalidRecoveryBlob = errors.Wrap(errors.ErrInvalidInput, "invalid recovery blob")
)
