// Package controlplane implements the authenticated HTTP client for the
// PrivStack control plane (C6): JWT auth with single-flight refresh on 401,
// workspace/device/credential lifecycle, sharing, quota, and batch metadata
// endpoints.
package controlplane

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/allisson/secrets/internal/clouderror"
	cpdomain "github.com/allisson/secrets/internal/controlplane/domain"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	"github.com/allisson/secrets/internal/metrics"
)

// metricsDomain is the business-metrics domain label this package records
// under, matching the sync engine's own "cloud_sync" domain.
const metricsDomain = "cloud_sync"

// authState is the session held by the client, guarded by mu.
type authState struct {
	accessToken  string
	refreshToken string
	userID       int64
}

// Client is the authenticated HTTP client for the control plane. A single
// Client is meant to be shared across goroutines; token refresh is
// single-flighted so concurrent 401s trigger exactly one network refresh.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    metrics.BusinessMetrics

	mu   sync.RWMutex
	auth authState

	refreshGeneration atomic.Uint64
	refreshGroup      singleflight.Group
}

// New creates a Client targeting baseURL with the given request timeout.
// businessMetrics records a "token_refresh" operation around every network
// token refresh (the single-flighted fast path that reuses a concurrently
// refreshed token is not separately recorded).
func New(baseURL string, timeout time.Duration, businessMetrics metrics.BusinessMetrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    businessMetrics,
	}
}

// SetTokens installs a session directly, for restoring a saved login.
func (c *Client) SetTokens(accessToken, refreshToken string, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = authState{accessToken: accessToken, refreshToken: refreshToken, userID: userID}
}

// IsAuthenticated reports whether the client currently holds an access token.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.accessToken != ""
}

// UserID returns the authenticated user's id, or 0 if unauthenticated.
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.userID
}

// Logout clears the held session.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = authState{}
}

func (c *Client) currentToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.auth.accessToken == "" {
		return "", clouderror.ErrAuthRequired
	}
	return c.auth.accessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Authenticate logs in with email and password, installing the returned
// session.
func (c *Client) Authenticate(ctx context.Context, email, password string) (cpdomain.AuthTokens, error) {
	var resp tokenResponse
	if err := c.postJSON(ctx, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp); err != nil {
		return cpdomain.AuthTokens{}, err
	}

	c.SetTokens(resp.AccessToken, resp.RefreshToken, resp.User.ID)
	return cpdomain.AuthTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
	}, nil
}

// RefreshAccessToken refreshes the session's access token. Refreshes are
// single-flighted: concurrent callers observe at most one network call, and
// a caller that arrives after a refresh already bumped the generation past
// what it observed is handed the fresh token without making one itself.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	preGen := c.refreshGeneration.Load()

	result, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		if c.refreshGeneration.Load() > preGen {
			return c.currentToken()
		}
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	start := time.Now()
	token, err := c.doRefreshRequest(ctx)
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation(ctx, metricsDomain, "token_refresh", status)
	c.metrics.RecordDuration(ctx, metricsDomain, "token_refresh", time.Since(start), status)
	return token, err
}

func (c *Client) doRefreshRequest(ctx context.Context) (string, error) {
	c.mu.RLock()
	refreshToken := c.auth.refreshToken
	c.mu.RUnlock()
	if refreshToken == "" {
		return "", clouderror.ErrAuthRequired
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", clouderror.New(clouderror.Http, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.Logout()
		return "", clouderror.New(clouderror.AuthFailed, "token refresh failed: session expired, re-authentication required")
	}

	var decoded tokenResponse
	if err := decodeResponse(resp, &decoded); err != nil {
		return "", clouderror.New(clouderror.AuthFailed, fmt.Sprintf("token refresh failed: %s", err))
	}

	c.mu.Lock()
	c.auth.accessToken = decoded.AccessToken
	c.auth.refreshToken = decoded.RefreshToken
	c.auth.userID = decoded.User.ID
	c.mu.Unlock()
	c.refreshGeneration.Add(1)

	return decoded.AccessToken, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, clouderror.FromJSONError(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, clouderror.New(clouderror.Http, err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// authDo performs an authenticated request, retrying exactly once on a 401
// after a token refresh. Non-401 errors never trigger a refresh.
func (c *Client) authDo(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, err := c.currentToken()
	if err != nil {
		return nil, err
	}

	resp, err := c.sendAuthed(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	newToken, err := c.RefreshAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.sendAuthed(ctx, method, path, body, newToken)
}

func (c *Client) sendAuthed(ctx context.Context, method, path string, body interface{}, token string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clouderror.New(clouderror.Http, err.Error())
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clouderror.New(clouderror.Http, err.Error())
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// authGet/authPost/authDelete decode a successful authenticated response
// into out (nil to discard the body), mapping non-2xx statuses to Api errors.
func (c *Client) authGet(ctx context.Context, path string, out interface{}) error {
	resp, err := c.authDo(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) authPost(ctx context.Context, path string, body interface{}, out interface{}) error {
	resp, err := c.authDo(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) authDelete(ctx context.Context, path string) error {
	resp, err := c.authDo(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return clouderror.New(clouderror.Api, fmt.Sprintf("%s: %s", resp.Status, string(body)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return clouderror.FromJSONError(err)
	}
	return nil
}

// ── Workspaces ──

// RegisterWorkspace registers workspaceID under name. A 409 conflict means
// the workspace already exists; the existing record is fetched and returned
// instead of treating re-registration as an error.
func (c *Client) RegisterWorkspace(ctx context.Context, workspaceID, name string) (cpdomain.Workspace, error) {
	resp, err := c.authDo(ctx, http.MethodPost, "/api/cloud/workspaces", map[string]string{
		"workspace_id": workspaceID, "workspace_name": name,
	})
	if err != nil {
		return cpdomain.Workspace{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, resp.Body)
		existing, err := c.ListWorkspaces(ctx)
		if err != nil {
			return cpdomain.Workspace{}, err
		}
		for _, ws := range existing {
			if ws.WorkspaceID == workspaceID {
				return ws, nil
			}
		}
		return cpdomain.Workspace{}, clouderror.New(clouderror.Api, "workspace conflict but not found in list")
	}

	var ws cpdomain.Workspace
	if err := decodeResponse(resp, &ws); err != nil {
		return cpdomain.Workspace{}, err
	}
	return ws, nil
}

// ListWorkspaces returns every workspace the authenticated user owns.
func (c *Client) ListWorkspaces(ctx context.Context) ([]cpdomain.Workspace, error) {
	var out struct {
		Workspaces []cpdomain.Workspace `json:"workspaces"`
	}
	if err := c.authGet(ctx, "/api/cloud/workspaces", &out); err != nil {
		return nil, err
	}
	return out.Workspaces, nil
}

// DeleteWorkspace removes workspaceID.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return c.authDelete(ctx, "/api/cloud/workspaces/"+workspaceID)
}

// ── STS credentials ──

// IssueCredentials fetches short-lived object-store credentials for
// workspaceID. It satisfies credentials/service.CredentialIssuer.
func (c *Client) IssueCredentials(ctx context.Context, workspaceID string) (credDomain.STSCredentials, error) {
	var creds credDomain.STSCredentials
	if err := c.authPost(ctx, "/api/cloud/credentials", map[string]string{
		"workspace_id": workspaceID,
	}, &creds); err != nil {
		return credDomain.STSCredentials{}, err
	}
	return creds, nil
}

// ── Cursors ──

// AdvanceCursor announces a newly uploaded batch and its cursor position.
func (c *Client) AdvanceCursor(ctx context.Context, req cpdomain.AdvanceCursorRequest) error {
	return c.authPost(ctx, "/api/cloud/cursors/advance", req, nil)
}

// GetPendingChanges lists entities with data newer than deviceID has ingested.
func (c *Client) GetPendingChanges(ctx context.Context, workspaceID, deviceID string) (cpdomain.PendingChanges, error) {
	var out cpdomain.PendingChanges
	path := fmt.Sprintf("/api/cloud/cursors/pending?workspace_id=%s&device_id=%s", workspaceID, deviceID)
	if err := c.authGet(ctx, path, &out); err != nil {
		return cpdomain.PendingChanges{}, err
	}
	return out, nil
}

// GetBatches returns batch metadata for entityID after sinceCursor.
func (c *Client) GetBatches(ctx context.Context, workspaceID, entityID string, sinceCursor int64) ([]cpdomain.BatchMeta, error) {
	var out struct {
		Batches []cpdomain.BatchMeta `json:"batches"`
	}
	path := fmt.Sprintf("/api/cloud/batches/%s?workspace_id=%s&since_cursor=%d", entityID, workspaceID, sinceCursor)
	if err := c.authGet(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Batches, nil
}

// ── Locks ──

// AcquireLock requests an advisory edit lock on entityID for deviceID. A 409
// response surfaces as LockContention.
func (c *Client) AcquireLock(ctx context.Context, entityID, workspaceID, deviceID string) error {
	resp, err := c.authDo(ctx, http.MethodPost, "/api/cloud/locks/acquire", map[string]string{
		"entity_id": entityID, "workspace_id": workspaceID, "device_id": deviceID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, resp.Body)
		return clouderror.New(clouderror.LockContention, fmt.Sprintf("entity %s is locked by another device", entityID))
	}
	return decodeResponse(resp, nil)
}

// ReleaseLock releases a previously acquired lock on entityID.
func (c *Client) ReleaseLock(ctx context.Context, entityID, workspaceID, deviceID string) error {
	return c.authPost(ctx, "/api/cloud/locks/release", map[string]string{
		"entity_id": entityID, "workspace_id": workspaceID, "device_id": deviceID,
	}, nil)
}

// ── Quota & rate limits ──

// GetQuota returns storage usage for workspaceID.
func (c *Client) GetQuota(ctx context.Context, workspaceID string) (cpdomain.QuotaInfo, error) {
	var out cpdomain.QuotaInfo
	if err := c.authGet(ctx, "/api/cloud/quota?workspace_id="+workspaceID, &out); err != nil {
		return cpdomain.QuotaInfo{}, err
	}
	return out, nil
}

// GetRateLimits returns server-recommended flush/poll pacing.
func (c *Client) GetRateLimits(ctx context.Context) (cpdomain.RateLimitConfig, error) {
	var out cpdomain.RateLimitConfig
	if err := c.authGet(ctx, "/api/cloud/rate-limits", &out); err != nil {
		return cpdomain.RateLimitConfig{}, err
	}
	return out, nil
}

// ── Sharing ──

// CreateShare registers share intent for req. The caller is responsible for
// sealing the DEK to the recipient separately.
func (c *Client) CreateShare(ctx context.Context, req cpdomain.CreateShareRequest) (cpdomain.ShareInfo, error) {
	var out cpdomain.ShareInfo
	if err := c.authPost(ctx, "/api/share/create", req, &out); err != nil {
		return cpdomain.ShareInfo{}, err
	}
	return out, nil
}

// AcceptShare accepts a pending share using its invitation token.
func (c *Client) AcceptShare(ctx context.Context, invitationToken string) error {
	return c.authPost(ctx, "/api/share/accept", map[string]string{
		"invitation_token": invitationToken,
	}, nil)
}

// RevokeShare revokes a recipient's access to entityID. The caller is
// responsible for rotating the DEK and re-sealing to remaining recipients.
func (c *Client) RevokeShare(ctx context.Context, entityID, recipientEmail string) error {
	return c.authPost(ctx, "/api/share/revoke", map[string]string{
		"entity_id": entityID, "recipient_email": recipientEmail,
	}, nil)
}

// sealedEnvelopeWire is the base64 wire shape for a sealed DEK envelope.
type sealedEnvelopeWire struct {
	EphemeralPublicKey string `json:"ephemeral_public_key"`
	Nonce              string `json:"nonce"`
	Ciphertext         string `json:"ciphertext"`
}

// GetShareKey retrieves the sealed DEK envelope for the current user on
// entityID, as raw wire fields ready for the envelope manager to decode.
func (c *Client) GetShareKey(ctx context.Context, entityID string) (ephemeralPublicKey, nonce, ciphertext []byte, err error) {
	var out sealedEnvelopeWire
	if err := c.authGet(ctx, "/api/share/keys/"+entityID, &out); err != nil {
		return nil, nil, nil, err
	}

	ephemeralPublicKey, err = base64.StdEncoding.DecodeString(out.EphemeralPublicKey)
	if err != nil {
		return nil, nil, nil, clouderror.New(clouderror.Api, "invalid ephemeral public key encoding: "+err.Error())
	}
	nonce, err = base64.StdEncoding.DecodeString(out.Nonce)
	if err != nil {
		return nil, nil, nil, clouderror.New(clouderror.Api, "invalid nonce encoding: "+err.Error())
	}
	ciphertext, err = base64.StdEncoding.DecodeString(out.Ciphertext)
	if err != nil {
		return nil, nil, nil, clouderror.New(clouderror.Api, "invalid ciphertext encoding: "+err.Error())
	}
	return ephemeralPublicKey, nonce, ciphertext, nil
}

// StoreShareKey stores a sealed DEK envelope for recipientUserID on entityID.
func (c *Client) StoreShareKey(ctx context.Context, entityID string, recipientUserID int64, ephemeralPublicKey, nonce, ciphertext []byte) error {
	return c.authPost(ctx, "/api/share/keys/store", map[string]interface{}{
		"entity_id":         entityID,
		"recipient_user_id": recipientUserID,
		"ephemeral_public_key": base64.StdEncoding.EncodeToString(ephemeralPublicKey),
		"nonce":              base64.StdEncoding.EncodeToString(nonce),
		"ciphertext":         base64.StdEncoding.EncodeToString(ciphertext),
	}, nil)
}

// GetEntityShares lists every share on entityID.
func (c *Client) GetEntityShares(ctx context.Context, entityID string) ([]cpdomain.ShareInfo, error) {
	var out struct {
		Shares []cpdomain.ShareInfo `json:"shares"`
	}
	if err := c.authGet(ctx, "/api/share/entity/"+entityID, &out); err != nil {
		return nil, err
	}
	return out.Shares, nil
}

// GetSharedWithMe lists entities shared with the current user.
func (c *Client) GetSharedWithMe(ctx context.Context) ([]cpdomain.SharedEntity, error) {
	var out struct {
		Shares []cpdomain.SharedEntity `json:"shares"`
	}
	if err := c.authGet(ctx, "/api/share/received", &out); err != nil {
		return nil, err
	}
	return out.Shares, nil
}

// ── Cloud keypair directory ──

// GetPublicKey fetches userID's public key.
func (c *Client) GetPublicKey(ctx context.Context, userID int64) ([32]byte, error) {
	var out struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.authGet(ctx, fmt.Sprintf("/api/cloud/keys/public/%d", userID), &out); err != nil {
		return [32]byte{}, err
	}

	decoded, err := base64.StdEncoding.DecodeString(out.PublicKey)
	if err != nil {
		return [32]byte{}, clouderror.New(clouderror.Api, "invalid public key encoding: "+err.Error())
	}
	if len(decoded) != 32 {
		return [32]byte{}, clouderror.New(clouderror.Api, fmt.Sprintf("invalid public key length: expected 32, got %d", len(decoded)))
	}

	var key [32]byte
	copy(key[:], decoded)
	return key, nil
}

// UploadPublicKey uploads the caller's own public key and its SHA-256
// fingerprint.
func (c *Client) UploadPublicKey(ctx context.Context, key [32]byte) error {
	fingerprint := sha256Hex(key[:])
	return c.authPost(ctx, "/api/cloud/keys/public", map[string]string{
		"public_key":  base64.StdEncoding.EncodeToString(key[:]),
		"fingerprint": fingerprint,
	}, nil)
}

// ── Devices ──

// RegisterDevice registers deviceID under name and platform.
func (c *Client) RegisterDevice(ctx context.Context, name, platform, deviceID string) error {
	return c.authPost(ctx, "/api/cloud/devices/register", map[string]string{
		"device_id": deviceID, "device_name": name, "platform": platform,
	}, nil)
}

// ListDevices lists every device registered to the current user.
func (c *Client) ListDevices(ctx context.Context) ([]cpdomain.DeviceInfo, error) {
	var out struct {
		Devices []cpdomain.DeviceInfo `json:"devices"`
	}
	if err := c.authGet(ctx, "/api/cloud/devices", &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// ── Compaction ──

// NotifySnapshot requests retirement of batches superseded by a snapshot
// uploaded at s3Key for cursor.
func (c *Client) NotifySnapshot(ctx context.Context, entityID, workspaceID, s3Key string, cursor int64) error {
	return c.authPost(ctx, "/api/cloud/compaction/request", map[string]interface{}{
		"entity_id":       entityID,
		"workspace_id":    workspaceID,
		"snapshot_s3_key": s3Key,
		"cursor_position": cursor,
	}, nil)
}

// ── Blobs ──

// RegisterBlob registers uploaded blob metadata for quota accounting.
func (c *Client) RegisterBlob(ctx context.Context, req cpdomain.RegisterBlobRequest) error {
	return c.authPost(ctx, "/api/cloud/blobs/register", req, nil)
}

// GetEntityBlobs lists blob metadata attached to entityID.
func (c *Client) GetEntityBlobs(ctx context.Context, entityID string) ([]cpdomain.BlobMeta, error) {
	var out struct {
		Blobs []cpdomain.BlobMeta `json:"blobs"`
	}
	if err := c.authGet(ctx, "/api/cloud/blobs/"+entityID, &out); err != nil {
		return nil, err
	}
	return out.Blobs, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
