package compaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
	cryptoService "github.com/allisson/secrets/internal/crypto/service"

	"github.com/allisson/secrets/internal/clouderror"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

// metricsDomain is the business-metrics domain label this package records
// under, matching the sync engine's own "cloud_sync" domain.
const metricsDomain = "cloud_sync"

// API is the subset of the control-plane client the coordinator needs to
// notify the server that a snapshot makes earlier batches obsolete.
type API interface {
	NotifySnapshot(ctx context.Context, entityID, workspaceID, s3Key string, cursor int64) error
}

// CredentialSource supplies the object-store credentials used to upload a
// snapshot. Satisfied by *credentials/service.Manager.
type CredentialSource interface {
	GetCredentials(ctx context.Context) (credDomain.STSCredentials, error)
}

// Transport is the subset of the object store the coordinator uploads
// through. Satisfied by objectstore.Store.
type Transport interface {
	Upload(ctx context.Context, creds credDomain.STSCredentials, key string, data []byte) error
}

// Coordinator generates and uploads snapshots, then notifies the control
// plane so it can delete the batches the snapshot supersedes. Clients never
// hold S3 delete permission, so that cleanup always happens server-side.
type Coordinator struct {
	api       API
	transport Transport
	creds     CredentialSource
	aead      cryptoService.AEADManager
	logger    *slog.Logger
	metrics   metrics.BusinessMetrics
}

// New creates a Coordinator. businessMetrics records a "compaction_request"
// operation around every CreateSnapshot call.
func New(
	api API,
	transport Transport,
	creds CredentialSource,
	aead cryptoService.AEADManager,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *Coordinator {
	return &Coordinator{api: api, transport: transport, creds: creds, aead: aead, logger: logger, metrics: businessMetrics}
}

// CreateSnapshot encrypts serializedState with entityDek, uploads it under
// the entity's snapshot key, and notifies the control plane so it can
// compact away batches at or before cursorPosition.
func (c *Coordinator) CreateSnapshot(
	ctx context.Context,
	userID int64,
	workspaceID, entityID string,
	entityDek [32]byte,
	serializedState []byte,
	cursorPosition int64,
) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordOperation(ctx, metricsDomain, "compaction_request", status)
		c.metrics.RecordDuration(ctx, metricsDomain, "compaction_request", time.Since(start), status)
	}()

	cipher, err := c.aead.CreateCipher(entityDek[:], cryptoDomain.ChaCha20)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("snapshot encryption setup failed: %s", err))
	}

	ciphertext, nonce, err := cipher.Encrypt(serializedState, nil)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("snapshot encryption failed: %s", err))
	}

	snapshotBytes, err := json.Marshal(cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return clouderror.New(clouderror.Serialization, err.Error())
	}

	s3Key := SnapshotKey(userID, workspaceID, entityID, cursorPosition)

	creds, err := c.creds.GetCredentials(ctx)
	if err != nil {
		return err
	}
	if err := c.transport.Upload(ctx, creds, s3Key, snapshotBytes); err != nil {
		return err
	}

	c.logger.Info("uploaded snapshot", "entity_id", entityID, "cursor", cursorPosition)

	if err := c.api.NotifySnapshot(ctx, entityID, workspaceID, s3Key, cursorPosition); err != nil {
		return err
	}

	c.logger.Debug("notified control plane for compaction", "entity_id", entityID)
	return nil
}
