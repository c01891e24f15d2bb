// Package service provides cryptographic service interfaces and implementations.
//
// This package implements the service layer for client-side envelope encryption,
// providing concrete implementations of authenticated encryption algorithms plus
// the key-derivation, envelope-sealing, and recovery services built on top of them.
//
// # Services Overview
//
// AEADManagerService: Factory for creating AEAD cipher instances.
// Supports AES-256-GCM and ChaCha20-Poly1305 algorithms.
//
// AESGCMCipher: Implements AEAD using AES-256-GCM with hardware acceleration support.
//
// ChaCha20Poly1305Cipher: Implements AEAD using ChaCha20-Poly1305 for platforms
// without AES hardware acceleration.
//
// KdfService: Derives symmetric keys from a user passphrase using Argon2id.
//
// MnemonicService: Generates and validates BIP-39 recovery mnemonics.
//
// EnvelopeService: Seals and opens anonymous NaCl box envelopes used to hand a DEK
// to another device's X25519 public key without authenticating the sender.
//
// # Usage Example
//
//	aeadManager := NewAEADManager()
//	cipher, err := aeadManager.CreateCipher(dek, cryptoDomain.AESGCM)
//	if err != nil {
//	    return err
//	}
//	ciphertext, nonce, err := cipher.Encrypt(plaintext, nil)
//
// # Thread Safety
//
// All service implementations are stateless and thread-safe. Multiple goroutines
// can safely use the same service instances for concurrent operations.
//
// # Algorithm Selection
//
//   - Use AESGCM on servers and modern CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on mobile devices, embedded systems, or platforms without AES-NI
//   - Both provide equivalent 256-bit security when properly implemented
package service

import (
	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
//
// AEAD encryption provides both confidentiality and authenticity guarantees,
// protecting against unauthorized access and tampering. Implementations ensure
// that any modification to the ciphertext or AAD will be detected during decryption.
//
// Security requirements:
//   - Nonces must be unique for each encryption with the same key
//   - Keys should be at least 256 bits for strong security
//   - The same AAD used during encryption must be provided during decryption
//
// Implementations: AESGCMCipher, ChaCha20Poly1305Cipher
type AEAD interface {
	// Encrypt encrypts plaintext with optional additional authenticated data (AAD).
	//
	// The AAD parameter allows binding the ciphertext to additional context
	// (e.g., entity ID, workspace ID) without encrypting it. This prevents
	// ciphertext from being used in a different context even if intercepted.
	//
	// A unique nonce is automatically generated for each encryption operation.
	// The nonce must be stored alongside the ciphertext for later decryption.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	//
	// This method verifies the authentication tag before returning plaintext,
	// ensuring the ciphertext hasn't been tampered with. If authentication fails,
	// no plaintext is returned to prevent processing of modified data.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
//
// This interface acts as a factory for creating authenticated encryption cipher
// instances. It abstracts the cipher creation logic, allowing callers to obtain
// cipher instances without knowing the specific implementation details.
//
// The manager supports two algorithms:
//   - AESGCM: AES-256-GCM (best on hardware with AES-NI acceleration)
//   - ChaCha20: ChaCha20-Poly1305 (best on mobile/embedded systems)
//
// Implementation: AEADManagerService
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	//
	// The key must be exactly 32 bytes (256 bits) for both supported algorithms.
	// The returned cipher is stateless and thread-safe, allowing concurrent
	// encryption/decryption operations with the same cipher instance.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}
