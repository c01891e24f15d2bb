package service

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
)

func newEnvelopeService() *EnvelopeService {
	return NewEnvelope(NewAEADManager(), NewKdf())
}

func TestEnvelopeService_SealAndOpenDek(t *testing.T) {
	envelope := newEnvelopeService()

	recipient, err := envelope.GenerateKeyPair()
	require.NoError(t, err)

	dek := make([]byte, 32)
	_, err = rand.Read(dek)
	require.NoError(t, err)

	sealed, err := envelope.SealDek(dek, recipient.Public)
	require.NoError(t, err)
	assert.NotEqual(t, [32]byte{}, sealed.EphemeralPublicKey)

	opened, err := envelope.OpenDek(sealed, recipient)
	require.NoError(t, err)
	assert.Equal(t, dek, opened)
}

func TestEnvelopeService_SealDek_RepeatedSealsAreUnlinkable(t *testing.T) {
	envelope := newEnvelopeService()

	recipient, err := envelope.GenerateKeyPair()
	require.NoError(t, err)

	dek := make([]byte, 32)
	_, err = rand.Read(dek)
	require.NoError(t, err)

	first, err := envelope.SealDek(dek, recipient.Public)
	require.NoError(t, err)
	second, err := envelope.SealDek(dek, recipient.Public)
	require.NoError(t, err)

	assert.NotEqual(t, first.EphemeralPublicKey, second.EphemeralPublicKey)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	openedFirst, err := envelope.OpenDek(first, recipient)
	require.NoError(t, err)
	openedSecond, err := envelope.OpenDek(second, recipient)
	require.NoError(t, err)
	assert.Equal(t, dek, openedFirst)
	assert.Equal(t, dek, openedSecond)
}

func TestEnvelopeService_OpenDek_WrongRecipient(t *testing.T) {
	envelope := newEnvelopeService()

	recipient, err := envelope.GenerateKeyPair()
	require.NoError(t, err)
	other, err := envelope.GenerateKeyPair()
	require.NoError(t, err)

	dek := make([]byte, 32)
	_, err = rand.Read(dek)
	require.NoError(t, err)

	sealed, err := envelope.SealDek(dek, recipient.Public)
	require.NoError(t, err)

	_, err = envelope.OpenDek(sealed, other)
	assert.ErrorIs(t, err, cryptoDomain.ErrOpenFailed)
}

func TestEnvelopeService_EncryptAndDecryptPrivateKey(t *testing.T) {
	envelope := newEnvelopeService()

	var secretKey [32]byte
	_, err := rand.Read(secretKey[:])
	require.NoError(t, err)

	protected, err := envelope.EncryptPrivateKey(secretKey, "correct horse battery staple")
	require.NoError(t, err)

	decrypted, err := envelope.DecryptPrivateKey(protected, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, secretKey, decrypted)
}

func TestEnvelopeService_DecryptPrivateKey_WrongPassphrase(t *testing.T) {
	envelope := newEnvelopeService()

	var secretKey [32]byte
	_, err := rand.Read(secretKey[:])
	require.NoError(t, err)

	protected, err := envelope.EncryptPrivateKey(secretKey, "correct horse battery staple")
	require.NoError(t, err)

	_, err = envelope.DecryptPrivateKey(protected, "wrong passphrase")
	assert.ErrorIs(t, err, cryptoDomain.ErrInvalidPassphrase)
}
