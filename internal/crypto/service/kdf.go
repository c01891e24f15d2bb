package service

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

// Kdf derives symmetric keys from low-entropy secrets (passphrases, recovery
// mnemonics) using Argon2id.
type Kdf interface {
	// RandomSalt returns a fresh 16-byte salt suitable for DeriveKey.
	RandomSalt() ([16]byte, error)

	// DeriveKey derives a 32-byte key from secret and salt using params.
	DeriveKey(secret string, salt [16]byte, params cryptoDomain.KdfParams) []byte
}

// KdfService implements Kdf using Argon2id.
type KdfService struct{}

// NewKdf creates a new KdfService.
func NewKdf() *KdfService {
	return &KdfService{}
}

// RandomSalt generates a cryptographically random 16-byte Argon2id salt.
func (k *KdfService) RandomSalt() ([16]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, err
	}
	return salt, nil
}

// DeriveKey derives a 32-byte key from secret and salt using Argon2id.
func (k *KdfService) DeriveKey(secret string, salt [16]byte, params cryptoDomain.KdfParams) []byte {
	return argon2.IDKey([]byte(secret), salt[:], params.Iterations, params.MemoryKiB, params.Parallelism, 32)
}
