package service

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

// Envelope seals and opens DEKs for sharing, and encrypts private keys at
// rest under a passphrase or recovery mnemonic.
type Envelope interface {
	// GenerateKeyPair creates a new X25519 keypair for cloud sync envelope encryption.
	GenerateKeyPair() (cryptoDomain.CloudKeyPair, error)

	// SealDek encrypts dek for recipientPublicKey using an ephemeral keypair,
	// so the sealed envelope reveals nothing about who sent it.
	SealDek(dek []byte, recipientPublicKey [32]byte) (cryptoDomain.SealedEnvelope, error)

	// OpenDek decrypts envelope using the recipient's keypair.
	OpenDek(envelope cryptoDomain.SealedEnvelope, recipient cryptoDomain.CloudKeyPair) ([]byte, error)

	// EncryptPrivateKey encrypts a 32-byte secret key with a passphrase-derived key.
	EncryptPrivateKey(secretKey [32]byte, passphrase string) (cryptoDomain.PassphraseProtectedKey, error)

	// DecryptPrivateKey reverses EncryptPrivateKey.
	DecryptPrivateKey(protected cryptoDomain.PassphraseProtectedKey, passphrase string) ([32]byte, error)
}

// EnvelopeService implements Envelope using NaCl anonymous boxes for sealing
// and an AEADManager plus Kdf for passphrase-protected key storage.
type EnvelopeService struct {
	aeadManager AEADManager
	kdf         Kdf
}

// NewEnvelope creates a new EnvelopeService.
func NewEnvelope(aeadManager AEADManager, kdf Kdf) *EnvelopeService {
	return &EnvelopeService{aeadManager: aeadManager, kdf: kdf}
}

// GenerateKeyPair creates a new X25519 keypair.
func (e *EnvelopeService) GenerateKeyPair() (cryptoDomain.CloudKeyPair, error) {
	public, secret, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return cryptoDomain.CloudKeyPair{}, err
	}
	return cryptoDomain.CloudKeyPair{Secret: *secret, Public: *public}, nil
}

// SealDek encrypts dek for recipientPublicKey using a fresh ephemeral X25519
// keypair and a random nonce, giving forward secrecy: compromising one
// envelope's ephemeral key reveals nothing about any other envelope.
func (e *EnvelopeService) SealDek(
	dek []byte,
	recipientPublicKey [32]byte,
) (cryptoDomain.SealedEnvelope, error) {
	ephemeralPublic, ephemeralSecret, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return cryptoDomain.SealedEnvelope{}, cryptoDomain.ErrSealFailed
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return cryptoDomain.SealedEnvelope{}, cryptoDomain.ErrSealFailed
	}

	ciphertext := box.Seal(nil, dek, &nonce, &recipientPublicKey, ephemeralSecret)

	return cryptoDomain.SealedEnvelope{
		EphemeralPublicKey: *ephemeralPublic,
		Nonce:              nonce,
		Ciphertext:         ciphertext,
	}, nil
}

// OpenDek decrypts envelope using the recipient's X25519 secret key.
func (e *EnvelopeService) OpenDek(
	envelope cryptoDomain.SealedEnvelope,
	recipient cryptoDomain.CloudKeyPair,
) ([]byte, error) {
	plaintext, ok := box.Open(nil, envelope.Ciphertext, &envelope.Nonce, &envelope.EphemeralPublicKey, &recipient.Secret)
	if !ok {
		return nil, cryptoDomain.ErrOpenFailed
	}
	return plaintext, nil
}

// EncryptPrivateKey encrypts secretKey with a key derived from passphrase via
// Argon2id, bundling the salt with the ciphertext.
func (e *EnvelopeService) EncryptPrivateKey(
	secretKey [32]byte,
	passphrase string,
) (cryptoDomain.PassphraseProtectedKey, error) {
	salt, err := e.kdf.RandomSalt()
	if err != nil {
		return cryptoDomain.PassphraseProtectedKey{}, err
	}

	derived := e.kdf.DeriveKey(passphrase, salt, cryptoDomain.DefaultKdfParams())
	cipher, err := e.aeadManager.CreateCipher(derived, cryptoDomain.ChaCha20)
	if err != nil {
		return cryptoDomain.PassphraseProtectedKey{}, err
	}

	ciphertext, nonce, err := cipher.Encrypt(secretKey[:], nil)
	if err != nil {
		return cryptoDomain.PassphraseProtectedKey{}, err
	}

	return cryptoDomain.PassphraseProtectedKey{
		Salt:      salt,
		Encrypted: cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext},
	}, nil
}

// DecryptPrivateKey reverses EncryptPrivateKey, returning ErrInvalidPassphrase
// if passphrase is wrong or the ciphertext has been tampered with.
func (e *EnvelopeService) DecryptPrivateKey(
	protected cryptoDomain.PassphraseProtectedKey,
	passphrase string,
) ([32]byte, error) {
	var secretKey [32]byte

	derived := e.kdf.DeriveKey(passphrase, protected.Salt, cryptoDomain.DefaultKdfParams())
	cipher, err := e.aeadManager.CreateCipher(derived, cryptoDomain.ChaCha20)
	if err != nil {
		return secretKey, err
	}

	plaintext, err := cipher.Decrypt(protected.Encrypted.Ciphertext, protected.Encrypted.Nonce, nil)
	if err != nil {
		return secretKey, cryptoDomain.ErrInvalidPassphrase
	}
	if len(plaintext) != 32 {
		return secretKey, cryptoDomain.ErrInvalidPassphrase
	}

	copy(secretKey[:], plaintext)
	return secretKey, nil
}
