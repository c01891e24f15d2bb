package service

import (
	"time"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

// Recovery creates and opens recovery blobs: a master or cloud private key
// encrypted under a key derived from a BIP-39 mnemonic, so a user can regain
// access to their account from a phrase they wrote down instead of a password.
type Recovery interface {
	// CreateBlob generates a fresh mnemonic and encrypts key with it, returning
	// the mnemonic (show once, never persist) and the blob (persist in metadata).
	CreateBlob(key [32]byte) (mnemonic string, blob cryptoDomain.RecoveryBlob, err error)

	// CreateBlobWithMnemonic encrypts key with a caller-supplied mnemonic,
	// used when multiple keys must share one recovery phrase.
	CreateBlobWithMnemonic(key [32]byte, mnemonic string) (cryptoDomain.RecoveryBlob, error)

	// OpenBlob decrypts blob using mnemonic, returning ErrInvalidRecoveryBlob
	// if the mnemonic is wrong or the blob has been tampered with.
	OpenBlob(blob cryptoDomain.RecoveryBlob, mnemonic string) ([32]byte, error)

	// Reencrypt verifies mnemonic against blob, then re-encrypts newKey with the
	// same mnemonic, preserving blob.CreatedAt so an issued recovery document
	// stays valid after a key rotation.
	Reencrypt(
		blob cryptoDomain.RecoveryBlob,
		mnemonic string,
		newKey [32]byte,
	) (cryptoDomain.RecoveryBlob, error)
}

// RecoveryService implements Recovery on top of a Mnemonic generator and an
// AEADManager for the underlying symmetric encryption.
type RecoveryService struct {
	mnemonic    Mnemonic
	aeadManager AEADManager
}

// NewRecovery creates a new RecoveryService.
func NewRecovery(mnemonic Mnemonic, aeadManager AEADManager) *RecoveryService {
	return &RecoveryService{mnemonic: mnemonic, aeadManager: aeadManager}
}

// CreateBlob generates a fresh mnemonic and encrypts key with it.
func (r *RecoveryService) CreateBlob(
	key [32]byte,
) (string, cryptoDomain.RecoveryBlob, error) {
	phrase, err := r.mnemonic.Generate()
	if err != nil {
		return "", cryptoDomain.RecoveryBlob{}, err
	}

	blob, err := r.CreateBlobWithMnemonic(key, phrase)
	if err != nil {
		return "", cryptoDomain.RecoveryBlob{}, err
	}

	return phrase, blob, nil
}

// CreateBlobWithMnemonic encrypts key with a caller-supplied mnemonic.
func (r *RecoveryService) CreateBlobWithMnemonic(
	key [32]byte,
	mnemonic string,
) (cryptoDomain.RecoveryBlob, error) {
	recoveryKey := r.mnemonic.DeriveKey(mnemonic)

	cipher, err := r.aeadManager.CreateCipher(recoveryKey, cryptoDomain.ChaCha20)
	if err != nil {
		return cryptoDomain.RecoveryBlob{}, err
	}

	ciphertext, nonce, err := cipher.Encrypt(key[:], nil)
	if err != nil {
		return cryptoDomain.RecoveryBlob{}, err
	}

	return cryptoDomain.RecoveryBlob{
		EncryptedKey: cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext},
		CreatedAt:    time.Now(),
	}, nil
}

// OpenBlob decrypts blob using mnemonic.
func (r *RecoveryService) OpenBlob(
	blob cryptoDomain.RecoveryBlob,
	mnemonic string,
) ([32]byte, error) {
	var key [32]byte

	if !r.mnemonic.Validate(mnemonic) {
		return key, cryptoDomain.ErrInvalidMnemonic
	}

	recoveryKey := r.mnemonic.DeriveKey(mnemonic)
	cipher, err := r.aeadManager.CreateCipher(recoveryKey, cryptoDomain.ChaCha20)
	if err != nil {
		return key, err
	}

	plaintext, err := cipher.Decrypt(blob.EncryptedKey.Ciphertext, blob.EncryptedKey.Nonce, nil)
	if err != nil {
		return key, cryptoDomain.ErrInvalidRecoveryBlob
	}
	if len(plaintext) != 32 {
		return key, cryptoDomain.ErrInvalidRecoveryBlob
	}

	copy(key[:], plaintext)
	return key, nil
}

// Reencrypt verifies mnemonic against blob, then re-encrypts newKey with the
// same mnemonic, preserving the original CreatedAt.
func (r *RecoveryService) Reencrypt(
	blob cryptoDomain.RecoveryBlob,
	mnemonic string,
	newKey [32]byte,
) (cryptoDomain.RecoveryBlob, error) {
	if _, err := r.OpenBlob(blob, mnemonic); err != nil {
		return cryptoDomain.RecoveryBlob{}, err
	}

	newBlob, err := r.CreateBlobWithMnemonic(newKey, mnemonic)
	if err != nil {
		return cryptoDomain.RecoveryBlob{}, err
	}

	newBlob.CreatedAt = blob.CreatedAt
	return newBlob, nil
}
