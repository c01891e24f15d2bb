// Package blob manages file-attachment upload and download (C11): blobs are
// encrypted with the owning entity's DEK before they leave the device, and
// registered with the control plane for quota accounting and share-partner
// access.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/secrets/internal/compaction"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
	cryptoService "github.com/allisson/secrets/internal/crypto/service"

	"github.com/allisson/secrets/internal/clouderror"
	cpdomain "github.com/allisson/secrets/internal/controlplane/domain"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

// metricsDomain is the business-metrics domain label this package records
// under, matching the sync engine's own "cloud_sync" domain.
const metricsDomain = "cloud_sync"

// API is the subset of the control-plane client the blob manager needs for
// metadata registration and lookup.
type API interface {
	RegisterBlob(ctx context.Context, req cpdomain.RegisterBlobRequest) error
	GetEntityBlobs(ctx context.Context, entityID string) ([]cpdomain.BlobMeta, error)
}

// CredentialSource supplies the object-store credentials used to transfer
// blob bytes. Satisfied by *credentials/service.Manager.
type CredentialSource interface {
	GetCredentials(ctx context.Context) (credDomain.STSCredentials, error)
}

// Transport is the subset of the object store the manager moves bytes
// through. Satisfied by objectstore.Store.
type Transport interface {
	Upload(ctx context.Context, creds credDomain.STSCredentials, key string, data []byte) error
	Download(ctx context.Context, creds credDomain.STSCredentials, key string) ([]byte, error)
}

// Manager encrypts and uploads blobs, and downloads and decrypts them again.
type Manager struct {
	api       API
	transport Transport
	creds     CredentialSource
	aead      cryptoService.AEADManager
	logger    *slog.Logger
	metrics   metrics.BusinessMetrics
}

// New creates a Manager. businessMetrics records "blob_upload" and
// "blob_download" operations around UploadBlob and DownloadBlob.
func New(
	api API,
	transport Transport,
	creds CredentialSource,
	aead cryptoService.AEADManager,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *Manager {
	return &Manager{api: api, transport: transport, creds: creds, aead: aead, logger: logger, metrics: businessMetrics}
}

// UploadBlob encrypts data with entityDek, uploads the ciphertext under the
// blob's storage key, and registers its metadata with the control plane for
// quota accounting. entityID is optional: a nil value means the blob is not
// attached to a specific entity.
func (m *Manager) UploadBlob(
	ctx context.Context,
	userID int64,
	workspaceID, blobID string,
	entityID *string,
	data []byte,
	entityDek [32]byte,
) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.metrics.RecordOperation(ctx, metricsDomain, "blob_upload", status)
		m.metrics.RecordDuration(ctx, metricsDomain, "blob_upload", time.Since(start), status)
	}()

	cipher, err := m.aead.CreateCipher(entityDek[:], cryptoDomain.ChaCha20)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("blob encryption setup failed: %s", err))
	}

	ciphertext, nonce, err := cipher.Encrypt(data, nil)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("blob encryption failed: %s", err))
	}

	encryptedBytes, err := json.Marshal(cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return clouderror.New(clouderror.Serialization, err.Error())
	}

	s3Key := compaction.BlobKey(userID, workspaceID, blobID)
	contentHash := hex.EncodeToString(sha256Sum(data))

	creds, err := m.creds.GetCredentials(ctx)
	if err != nil {
		return err
	}
	if err := m.transport.Upload(ctx, creds, s3Key, encryptedBytes); err != nil {
		return err
	}

	if err := m.api.RegisterBlob(ctx, cpdomain.RegisterBlobRequest{
		WorkspaceID: workspaceID,
		BlobID:      blobID,
		EntityID:    entityID,
		S3Key:       s3Key,
		SizeBytes:   uint64(len(encryptedBytes)),
		ContentHash: &contentHash,
	}); err != nil {
		return err
	}

	m.logger.Debug("uploaded blob", "blob_id", blobID, "encrypted_bytes", len(encryptedBytes))
	return nil
}

// DownloadBlob fetches the ciphertext at s3Key and decrypts it with entityDek.
func (m *Manager) DownloadBlob(ctx context.Context, s3Key string, entityDek [32]byte) (plaintext []byte, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.metrics.RecordOperation(ctx, metricsDomain, "blob_download", status)
		m.metrics.RecordDuration(ctx, metricsDomain, "blob_download", time.Since(start), status)
	}()

	creds, err := m.creds.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}

	encryptedBytes, err := m.transport.Download(ctx, creds, s3Key)
	if err != nil {
		return nil, err
	}

	var encrypted cryptoDomain.EncryptedData
	if err := json.Unmarshal(encryptedBytes, &encrypted); err != nil {
		return nil, clouderror.New(clouderror.Serialization, err.Error())
	}

	cipher, err := m.aead.CreateCipher(entityDek[:], cryptoDomain.ChaCha20)
	if err != nil {
		return nil, clouderror.New(clouderror.Envelope, fmt.Sprintf("blob decryption setup failed: %s", err))
	}

	plaintext, err = cipher.Decrypt(encrypted.Ciphertext, encrypted.Nonce, nil)
	if err != nil {
		return nil, clouderror.New(clouderror.Envelope, fmt.Sprintf("blob decryption failed: %s", err))
	}
	return plaintext, nil
}

// GetEntityBlobs lists blob metadata attached to entityID.
func (m *Manager) GetEntityBlobs(ctx context.Context, entityID string) ([]cpdomain.BlobMeta, error) {
	return m.api.GetEntityBlobs(ctx, entityID)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
