package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

type fakeIssuer struct {
	calls int32
	creds credDomain.STSCredentials
	err   error
}

func (f *fakeIssuer) IssueCredentials(
	ctx context.Context,
	workspaceID string,
) (credDomain.STSCredentials, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.creds, f.err
}

func TestManager_GetCredentials_FastPath(t *testing.T) {
	issuer := &fakeIssuer{creds: credDomain.STSCredentials{
		AccessKeyID: "AKIA",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	manager := New(issuer, "ws-1", 5*time.Minute, metrics.NewNoOpBusinessMetrics())

	first, err := manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", first.AccessKeyID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&issuer.calls))

	second, err := manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&issuer.calls), "cached credentials should not trigger a refresh")
}

func TestManager_GetCredentials_RefreshesWhenWithinMargin(t *testing.T) {
	issuer := &fakeIssuer{creds: credDomain.STSCredentials{
		AccessKeyID: "AKIA",
		ExpiresAt:   time.Now().Add(time.Minute),
	}}
	manager := New(issuer, "ws-1", 5*time.Minute, metrics.NewNoOpBusinessMetrics())

	_, err := manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&issuer.calls))

	_, err = manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&issuer.calls), "near-expiry credentials should trigger a refresh")
}

func TestManager_HasValidCredentials(t *testing.T) {
	issuer := &fakeIssuer{creds: credDomain.STSCredentials{ExpiresAt: time.Now().Add(time.Hour)}}
	manager := New(issuer, "ws-1", 5*time.Minute, metrics.NewNoOpBusinessMetrics())

	assert.False(t, manager.HasValidCredentials())

	_, err := manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.True(t, manager.HasValidCredentials())
}

func TestManager_Clear(t *testing.T) {
	issuer := &fakeIssuer{creds: credDomain.STSCredentials{ExpiresAt: time.Now().Add(time.Hour)}}
	manager := New(issuer, "ws-1", 5*time.Minute, metrics.NewNoOpBusinessMetrics())

	_, err := manager.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.True(t, manager.HasValidCredentials())

	manager.Clear()
	assert.False(t, manager.HasValidCredentials())
}

func TestManager_ConcurrentGetCredentials(t *testing.T) {
	issuer := &fakeIssuer{creds: credDomain.STSCredentials{ExpiresAt: time.Now().Add(time.Hour)}}
	manager := New(issuer, "ws-1", 5*time.Minute, metrics.NewNoOpBusinessMetrics())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.GetCredentials(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
