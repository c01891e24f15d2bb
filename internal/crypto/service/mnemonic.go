package service

import (
	"crypto/rand"

	"github.com/tyler-smith/go-bip39"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

// mnemonicDomainSalt is a fixed, domain-separated salt used to derive a key
// straight from a recovery mnemonic. Reusing the same salt for every user is
// safe here because a 12-word BIP-39 mnemonic carries 128 bits of entropy,
// far more than Argon2id needs a random salt to defend against.
var mnemonicDomainSalt = [16]byte{'p', 'r', 'i', 'v', 's', 't', 'a', 'c', 'k', '-', 'm', 'n', 'e', 'm', 'o', 0}

// Mnemonic generates and validates BIP-39 recovery mnemonics and derives keys
// from them.
type Mnemonic interface {
	// Generate returns a new 12-word BIP-39 mnemonic built from 128 bits of entropy.
	Generate() (string, error)

	// Validate reports whether phrase is a well-formed BIP-39 mnemonic.
	Validate(phrase string) bool

	// DeriveKey derives a 32-byte key from phrase using Argon2id with a fixed
	// domain-separated salt. phrase must already have passed Validate.
	DeriveKey(phrase string) []byte
}

// MnemonicService implements Mnemonic on top of go-bip39 and a Kdf.
type MnemonicService struct {
	kdf    Kdf
	params cryptoDomain.KdfParams
}

// NewMnemonic creates a new MnemonicService using kdf for key derivation.
func NewMnemonic(kdf Kdf) *MnemonicService {
	return &MnemonicService{kdf: kdf, params: cryptoDomain.DefaultKdfParams()}
}

// Generate returns a new 12-word BIP-39 mnemonic.
func (m *MnemonicService) Generate() (string, error) {
	entropy := make([]byte, 16)
	if _, err := rand.Read(entropy); err != nil {
		return "", err
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}

	return phrase, nil
}

// Validate reports whether phrase is a well-formed BIP-39 mnemonic.
func (m *MnemonicService) Validate(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}

// DeriveKey derives a 32-byte key from phrase using a fixed domain salt.
func (m *MnemonicService) DeriveKey(phrase string) []byte {
	return m.kdf.DeriveKey(phrase, mnemonicDomainSalt, m.params)
}
