// Package envelope orchestrates sharing an entity's DEK with other users
// (C7): it wraps the crypto package's envelope primitives with the
// control-plane lookups needed to find a recipient's public key and persist
// a sealed envelope for them.
package envelope

import (
	"context"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
	cryptoService "github.com/allisson/secrets/internal/crypto/service"
)

// KeyDirectory is the subset of the control-plane client the manager needs
// to resolve recipients and persist sealed envelopes.
type KeyDirectory interface {
	GetPublicKey(ctx context.Context, userID int64) ([32]byte, error)
	StoreShareKey(ctx context.Context, entityID string, recipientUserID int64, ephemeralPublicKey, nonce, ciphertext []byte) error
	GetShareKey(ctx context.Context, entityID string) (ephemeralPublicKey, nonce, ciphertext []byte, err error)
}

// Manager owns at most one CloudKeyPair and coordinates sealing a DEK for a
// recipient or opening one addressed to the held keypair.
type Manager struct {
	directory KeyDirectory
	envelope  cryptoService.Envelope

	keypair *cryptoDomain.CloudKeyPair
}

// New creates a Manager with no keypair loaded.
func New(directory KeyDirectory, envelopeService cryptoService.Envelope) *Manager {
	return &Manager{directory: directory, envelope: envelopeService}
}

// SetKeypair installs kp, typically after a passphrase unlock or mnemonic
// recovery loaded it from storage.
func (m *Manager) SetKeypair(kp cryptoDomain.CloudKeyPair) {
	m.keypair = &kp
}

// HasKeypair reports whether a keypair is currently loaded.
func (m *Manager) HasKeypair() bool {
	return m.keypair != nil
}

// PublicKeyBytes returns the loaded keypair's public half, if any.
func (m *Manager) PublicKeyBytes() ([32]byte, bool) {
	if m.keypair == nil {
		return [32]byte{}, false
	}
	return m.keypair.Public, true
}

// SealDekForUser fetches recipientUserID's public key and seals dek for them
// with a fresh ephemeral keypair.
func (m *Manager) SealDekForUser(ctx context.Context, dek []byte, recipientUserID int64) (cryptoDomain.SealedEnvelope, error) {
	recipientPublicKey, err := m.directory.GetPublicKey(ctx, recipientUserID)
	if err != nil {
		return cryptoDomain.SealedEnvelope{}, err
	}
	return m.envelope.SealDek(dek, recipientPublicKey)
}

// OpenDek decrypts envelope using the loaded keypair.
func (m *Manager) OpenDek(envelope cryptoDomain.SealedEnvelope) ([]byte, error) {
	if m.keypair == nil {
		return nil, cryptoDomain.ErrOpenFailed
	}
	return m.envelope.OpenDek(envelope, *m.keypair)
}

// CreateAndStoreEnvelope seals dek for recipientUserID and persists the
// result with the control plane under entityID.
func (m *Manager) CreateAndStoreEnvelope(ctx context.Context, entityID string, dek []byte, recipientUserID int64) error {
	sealed, err := m.SealDekForUser(ctx, dek, recipientUserID)
	if err != nil {
		return err
	}
	return m.directory.StoreShareKey(ctx, entityID, recipientUserID, sealed.EphemeralPublicKey[:], sealed.Nonce[:], sealed.Ciphertext)
}

// RetrieveAndOpenDek fetches the sealed envelope stored for entityID and
// opens it with the loaded keypair.
func (m *Manager) RetrieveAndOpenDek(ctx context.Context, entityID string) ([]byte, error) {
	ephemeralPublicKey, nonce, ciphertext, err := m.directory.GetShareKey(ctx, entityID)
	if err != nil {
		return nil, err
	}

	sealed := cryptoDomain.SealedEnvelope{Ciphertext: ciphertext}
	copy(sealed.EphemeralPublicKey[:], ephemeralPublicKey)
	copy(sealed.Nonce[:], nonce)

	return m.OpenDek(sealed)
}
