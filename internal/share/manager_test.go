package share

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cpdomain "github.com/allisson/secrets/internal/controlplane/domain"
	"github.com/allisson/secrets/internal/metrics"
)

type fakeAPI struct {
	createShareReq    cpdomain.CreateShareRequest
	createShareResult cpdomain.ShareInfo
	createShareErr    error

	acceptedToken string
	acceptErr     error

	revokedEntityID string
	revokedEmail    string
	revokeErr       error

	entityShares []cpdomain.ShareInfo
	sharedWithMe []cpdomain.SharedEntity
}

func (f *fakeAPI) CreateShare(ctx context.Context, req cpdomain.CreateShareRequest) (cpdomain.ShareInfo, error) {
	f.createShareReq = req
	return f.createShareResult, f.createShareErr
}

func (f *fakeAPI) AcceptShare(ctx context.Context, invitationToken string) error {
	f.acceptedToken = invitationToken
	return f.acceptErr
}

func (f *fakeAPI) RevokeShare(ctx context.Context, entityID, recipientEmail string) error {
	f.revokedEntityID = entityID
	f.revokedEmail = recipientEmail
	return f.revokeErr
}

func (f *fakeAPI) GetEntityShares(ctx context.Context, entityID string) ([]cpdomain.ShareInfo, error) {
	return f.entityShares, nil
}

func (f *fakeAPI) GetSharedWithMe(ctx context.Context) ([]cpdomain.SharedEntity, error) {
	return f.sharedWithMe, nil
}

type fakeEnvelopeCreator struct {
	entityID          string
	dek               []byte
	recipientUserID   int64
	createAndStoreErr error
}

func (f *fakeEnvelopeCreator) CreateAndStoreEnvelope(ctx context.Context, entityID string, dek []byte, recipientUserID int64) error {
	f.entityID = entityID
	f.dek = dek
	f.recipientUserID = recipientUserID
	return f.createAndStoreErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_CreateShare(t *testing.T) {
	api := &fakeAPI{createShareResult: cpdomain.ShareInfo{ShareID: 7, EntityID: "entity-1"}}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	req := cpdomain.CreateShareRequest{EntityID: "entity-1", RecipientEmail: "bob@example.com"}
	share, err := manager.CreateShare(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), share.ShareID)
	assert.Equal(t, req, api.createShareReq)
}

func TestManager_CreateShare_PropagatesError(t *testing.T) {
	api := &fakeAPI{createShareErr: errors.New("boom")}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	_, err := manager.CreateShare(t.Context(), cpdomain.CreateShareRequest{})
	assert.Error(t, err)
}

func TestManager_CreateEnvelopeForShare_DelegatesToEnvelopeManager(t *testing.T) {
	manager := New(&fakeAPI{}, discardLogger(), metrics.NewNoOpBusinessMetrics())
	envelopeCreator := &fakeEnvelopeCreator{}

	dek := []byte("thirty-two-byte-dek-material!!!")
	err := manager.CreateEnvelopeForShare(t.Context(), envelopeCreator, "entity-1", dek, 99)
	require.NoError(t, err)

	assert.Equal(t, "entity-1", envelopeCreator.entityID)
	assert.Equal(t, dek, envelopeCreator.dek)
	assert.Equal(t, int64(99), envelopeCreator.recipientUserID)
}

func TestManager_AcceptShare(t *testing.T) {
	api := &fakeAPI{}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	require.NoError(t, manager.AcceptShare(t.Context(), "invitation-token"))
	assert.Equal(t, "invitation-token", api.acceptedToken)
}

func TestManager_RevokeShare(t *testing.T) {
	api := &fakeAPI{}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	require.NoError(t, manager.RevokeShare(t.Context(), "entity-1", "bob@example.com"))
	assert.Equal(t, "entity-1", api.revokedEntityID)
	assert.Equal(t, "bob@example.com", api.revokedEmail)
}

func TestManager_GetEntityShares(t *testing.T) {
	api := &fakeAPI{entityShares: []cpdomain.ShareInfo{{ShareID: 1}, {ShareID: 2}}}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	shares, err := manager.GetEntityShares(t.Context(), "entity-1")
	require.NoError(t, err)
	assert.Len(t, shares, 2)
}

func TestManager_GetSharedWithMe(t *testing.T) {
	api := &fakeAPI{sharedWithMe: []cpdomain.SharedEntity{{EntityID: "entity-2"}}}
	manager := New(api, discardLogger(), metrics.NewNoOpBusinessMetrics())

	shared, err := manager.GetSharedWithMe(t.Context())
	require.NoError(t, err)
	assert.Len(t, shared, 1)
}
