package compaction

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoService "github.com/allisson/secrets/internal/crypto/service"

	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

type fakeNotifyAPI struct {
	entityID, workspaceID, s3Key string
	cursor                       int64
}

func (f *fakeNotifyAPI) NotifySnapshot(ctx context.Context, entityID, workspaceID, s3Key string, cursor int64) error {
	f.entityID, f.workspaceID, f.s3Key, f.cursor = entityID, workspaceID, s3Key, cursor
	return nil
}

type fakeCredentialSource struct{}

func (fakeCredentialSource) GetCredentials(ctx context.Context) (credDomain.STSCredentials, error) {
	return credDomain.STSCredentials{ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeTransport struct {
	key  string
	data []byte
}

func (f *fakeTransport) Upload(ctx context.Context, creds credDomain.STSCredentials, key string, data []byte) error {
	f.key, f.data = key, data
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_CreateSnapshot(t *testing.T) {
	api := &fakeNotifyAPI{}
	transport := &fakeTransport{}
	coordinator := New(api, transport, fakeCredentialSource{}, cryptoService.NewAEADManager(), discardLogger(), metrics.NewNoOpBusinessMetrics())

	var dek [32]byte
	_, err := rand.Read(dek[:])
	require.NoError(t, err)

	err = coordinator.CreateSnapshot(t.Context(), 1, "ws-1", "entity-1", dek, []byte("serialized state"), 42)
	require.NoError(t, err)

	assert.Equal(t, "entity-1", api.entityID)
	assert.Equal(t, "ws-1", api.workspaceID)
	assert.Equal(t, int64(42), api.cursor)
	assert.Equal(t, "1/ws-1/entities/entity-1/snapshot_42.enc", transport.key)
	assert.NotEmpty(t, transport.data)
}
