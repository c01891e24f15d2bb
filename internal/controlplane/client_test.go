package controlplane

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/secrets/internal/clouderror"
	"github.com/allisson/secrets/internal/metrics"
)

func TestClient_Authenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "access-1", RefreshToken: "refresh-1",
			User: struct {
				ID    int64  `json:"id"`
				Email string `json:"email"`
			}{ID: 42, Email: "a@example.com"},
		})
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	tokens, err := client.Authenticate(t.Context(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, int64(42), tokens.UserID)
	assert.True(t, client.IsAuthenticated())
}

func TestClient_AuthDo_RetriesExactlyOnceOn401(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"})
		case "/api/cloud/quota":
			n := calls.Add(1)
			if n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"storage_used_bytes": 1, "storage_quota_bytes": 2, "usage_percent": 50.0,
			})
		}
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("stale-token", "refresh-1", 1)

	quota, err := client.GetQuota(t.Context(), "ws-1")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, quota.UsagePercent, 0.0001)
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry after the single 401")
}

func TestClient_RefreshAccessToken_SingleFlightsConcurrentCallers(t *testing.T) {
	var refreshCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			refreshCalls.Add(1)
			time.Sleep(20 * time.Millisecond)
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "fresh-token", RefreshToken: "refresh-2"})
		}
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("old-token", "refresh-1", 1)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := client.RefreshAccessToken(t.Context())
			require.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent refreshes must coalesce into one network call")
	for _, token := range tokens {
		assert.Equal(t, "fresh-token", token)
	}
}

func TestClient_RefreshAccessToken_ClearsSessionOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("old-token", "refresh-1", 1)

	_, err := client.RefreshAccessToken(t.Context())
	require.Error(t, err)

	var cloudErr *clouderror.CloudError
	require.ErrorAs(t, err, &cloudErr)
	assert.Equal(t, clouderror.AuthFailed, cloudErr.Kind)
	assert.False(t, client.IsAuthenticated(), "session must be cleared on refresh failure")
}

func TestClient_RegisterWorkspace_ConflictFetchesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/cloud/workspaces":
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodGet && r.URL.Path == "/api/cloud/workspaces":
			json.NewEncoder(w).Encode(map[string]any{
				"workspaces": []map[string]any{
					{"workspace_id": "ws-1", "s3_prefix": "u/ws-1"},
					{"workspace_id": "ws-2", "s3_prefix": "u/ws-2"},
				},
			})
		}
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("token", "refresh", 1)

	ws, err := client.RegisterWorkspace(t.Context(), "ws-2", "My Workspace")
	require.NoError(t, err)
	assert.Equal(t, "ws-2", ws.WorkspaceID)
	assert.Equal(t, "u/ws-2", ws.S3Prefix)
}

func TestClient_AcquireLock_ConflictReturnsLockContention(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("token", "refresh", 1)

	err := client.AcquireLock(t.Context(), "entity-1", "ws-1", "device-1")
	require.Error(t, err)

	var cloudErr *clouderror.CloudError
	require.ErrorAs(t, err, &cloudErr)
	assert.Equal(t, clouderror.LockContention, cloudErr.Kind)
}

func TestClient_IssueCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_key_id": "AKIA", "secret_access_key": "secret", "session_token": "tok",
			"expiration": time.Now().Add(time.Hour).Format(time.RFC3339),
			"bucket":     "bucket-1", "region": "us-east-1",
		})
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("token", "refresh", 1)

	creds, err := client.IssueCredentials(t.Context(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.False(t, creds.IsExpired())
}

func TestClient_GetPublicKey_RejectsWrongLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"public_key": "dG9vLXNob3J0"})
	}))
	defer server.Close()

	client := New(server.URL, time.Second, metrics.NewNoOpBusinessMetrics())
	client.SetTokens("token", "refresh", 1)

	_, err := client.GetPublicKey(t.Context(), 1)
	require.Error(t, err)
}

func TestClient_AuthGet_WithoutSessionFailsFast(t *testing.T) {
	client := New("http://unused.invalid", time.Second, metrics.NewNoOpBusinessMetrics())
	_, err := client.GetQuota(t.Context(), "ws-1")
	assert.ErrorIs(t, err, clouderror.ErrAuthRequired)
}
