// Package share orchestrates the entity-sharing lifecycle (C10): creating a
// share record, sealing the entity's DEK for the recipient, accepting and
// revoking invitations. It coordinates the control-plane client with the
// envelope manager but holds no cryptographic state itself.
package share

import (
	"context"
	"log/slog"
	"time"

	cpdomain "github.com/allisson/secrets/internal/controlplane/domain"
	"github.com/allisson/secrets/internal/metrics"
)

// metricsDomain is the business-metrics domain label this package records
// under, matching the sync engine's own "cloud_sync" domain.
const metricsDomain = "cloud_sync"

// API is the subset of the control-plane client the share manager needs.
type API interface {
	CreateShare(ctx context.Context, req cpdomain.CreateShareRequest) (cpdomain.ShareInfo, error)
	AcceptShare(ctx context.Context, invitationToken string) error
	RevokeShare(ctx context.Context, entityID, recipientEmail string) error
	GetEntityShares(ctx context.Context, entityID string) ([]cpdomain.ShareInfo, error)
	GetSharedWithMe(ctx context.Context) ([]cpdomain.SharedEntity, error)
}

// EnvelopeCreator creates and stores a sealed DEK envelope for a share
// recipient. Satisfied by *envelope.Manager.
type EnvelopeCreator interface {
	CreateAndStoreEnvelope(ctx context.Context, entityID string, dek []byte, recipientUserID int64) error
}

// Manager orchestrates the share workflow described above.
type Manager struct {
	api     API
	logger  *slog.Logger
	metrics metrics.BusinessMetrics
}

// New creates a Manager. businessMetrics records "share_create" and
// "share_revoke" operations around CreateShare and RevokeShare.
func New(api API, logger *slog.Logger, businessMetrics metrics.BusinessMetrics) *Manager {
	return &Manager{api: api, logger: logger, metrics: businessMetrics}
}

// CreateShare registers a share invitation with the control plane.
func (m *Manager) CreateShare(ctx context.Context, req cpdomain.CreateShareRequest) (cpdomain.ShareInfo, error) {
	start := time.Now()
	share, err := m.api.CreateShare(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordOperation(ctx, metricsDomain, "share_create", status)
	m.metrics.RecordDuration(ctx, metricsDomain, "share_create", time.Since(start), status)
	if err != nil {
		return cpdomain.ShareInfo{}, err
	}
	m.logger.Info("created share", "entity_id", req.EntityID, "recipient_email", req.RecipientEmail)
	return share, nil
}

// CreateEnvelopeForShare seals entityDek for recipientUserID and stores it.
// Call this after CreateShare once the entity's DEK is available.
func (m *Manager) CreateEnvelopeForShare(
	ctx context.Context,
	envelopeMgr EnvelopeCreator,
	entityID string,
	entityDek []byte,
	recipientUserID int64,
) error {
	return envelopeMgr.CreateAndStoreEnvelope(ctx, entityID, entityDek, recipientUserID)
}

// AcceptShare accepts a pending share invitation by token.
func (m *Manager) AcceptShare(ctx context.Context, invitationToken string) error {
	if err := m.api.AcceptShare(ctx, invitationToken); err != nil {
		return err
	}
	m.logger.Info("accepted share invitation")
	return nil
}

// RevokeShare revokes a share. The caller is responsible for rotating the
// entity's DEK afterward; revocation alone does not invalidate envelopes
// the recipient already retrieved.
func (m *Manager) RevokeShare(ctx context.Context, entityID, recipientEmail string) error {
	start := time.Now()
	err := m.api.RevokeShare(ctx, entityID, recipientEmail)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordOperation(ctx, metricsDomain, "share_revoke", status)
	m.metrics.RecordDuration(ctx, metricsDomain, "share_revoke", time.Since(start), status)
	if err != nil {
		return err
	}
	m.logger.Info("revoked share", "entity_id", entityID, "recipient_email", recipientEmail)
	return nil
}

// GetEntityShares lists shares the current user has created for entityID.
func (m *Manager) GetEntityShares(ctx context.Context, entityID string) ([]cpdomain.ShareInfo, error) {
	return m.api.GetEntityShares(ctx, entityID)
}

// GetSharedWithMe lists entities shared with the current user.
func (m *Manager) GetSharedWithMe(ctx context.Context) ([]cpdomain.SharedEntity, error) {
	return m.api.GetSharedWithMe(ctx)
}
