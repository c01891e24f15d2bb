// Package service implements the credential manager (C5): it caches STS
// credentials and refreshes them from the control plane when they are
// within a configured safety margin of expiry.
package service

import (
	"context"
	"sync"
	"time"

	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

// metricsDomain is the business-metrics domain label this package records
// under, matching the sync engine's own "cloud_sync" domain.
const metricsDomain = "cloud_sync"

// CredentialIssuer is the subset of the control-plane client the credential
// manager needs: issuing fresh short-lived object-store credentials for a
// workspace.
type CredentialIssuer interface {
	IssueCredentials(ctx context.Context, workspaceID string) (credDomain.STSCredentials, error)
}

// Manager caches STS credentials for one workspace, refreshing through an
// issuer when the cached value is missing or within its refresh margin.
//
// Readers never observe a partially updated credential; a refresh replaces
// the cached value in one atomic pointer swap under the lock.
type Manager struct {
	issuer      CredentialIssuer
	workspaceID string
	margin      time.Duration
	metrics     metrics.BusinessMetrics

	mu    sync.RWMutex
	creds *credDomain.STSCredentials
}

// New creates a credential manager for workspaceID, refreshing through issuer
// whenever cached credentials are absent or expire within margin. businessMetrics
// records a "credential_refresh" operation around every Refresh call.
func New(
	issuer CredentialIssuer,
	workspaceID string,
	margin time.Duration,
	businessMetrics metrics.BusinessMetrics,
) *Manager {
	return &Manager{issuer: issuer, workspaceID: workspaceID, margin: margin, metrics: businessMetrics}
}

// GetCredentials returns cached credentials if they are still valid beyond
// the refresh margin, otherwise synchronously refreshes and returns the new
// value. This is the fast path: no network I/O when the cache is warm.
func (m *Manager) GetCredentials(ctx context.Context) (credDomain.STSCredentials, error) {
	m.mu.RLock()
	cached := m.creds
	m.mu.RUnlock()

	if cached != nil && !cached.ExpiresWithin(m.margin) {
		return *cached, nil
	}

	return m.Refresh(ctx)
}

// Refresh unconditionally fetches new credentials from the control plane and
// replaces the cache. Concurrent refreshes may race; the cache ends up
// holding whichever response lands last, and every reader after that sees it.
func (m *Manager) Refresh(ctx context.Context) (credDomain.STSCredentials, error) {
	start := time.Now()
	creds, err := m.issuer.IssueCredentials(ctx, m.workspaceID)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordOperation(ctx, metricsDomain, "credential_refresh", status)
	m.metrics.RecordDuration(ctx, metricsDomain, "credential_refresh", time.Since(start), status)
	if err != nil {
		return credDomain.STSCredentials{}, err
	}

	m.mu.Lock()
	m.creds = &creds
	m.mu.Unlock()

	return creds, nil
}

// HasValidCredentials reports whether cached credentials exist and will not
// expire within the refresh margin, without triggering a refresh.
func (m *Manager) HasValidCredentials() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds != nil && !m.creds.ExpiresWithin(m.margin)
}

// Clear drops the cached credentials, forcing the next GetCredentials call
// to refresh.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
}
