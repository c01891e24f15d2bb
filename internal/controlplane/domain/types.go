// Package domain holds the wire-level shapes exchanged with the PrivStack
// control plane: workspaces, devices, shares, batch/quota metadata, and the
// tolerant JSON decoding their origin server requires.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SharePermission is the access level granted by a share.
type SharePermission string

const (
	PermissionRead  SharePermission = "read"
	PermissionWrite SharePermission = "write"
)

// ShareStatus is the lifecycle state of a share.
type ShareStatus string

const (
	ShareStatusPending  ShareStatus = "pending"
	ShareStatusAccepted ShareStatus = "accepted"
	ShareStatusRevoked  ShareStatus = "revoked"
)

// AuthTokens is the session returned by login and refresh.
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
	Email        string
}

// Workspace is a cloud-registered workspace. The register endpoint returns a
// minimal shape; the list endpoint returns every column. Missing numeric
// fields default to zero rather than failing decode.
type Workspace struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	WorkspaceID        string    `json:"workspace_id"`
	WorkspaceName      string    `json:"workspace_name"`
	S3Prefix           string    `json:"s3_prefix"`
	StorageUsedBytes   uint64    `json:"storage_used_bytes"`
	StorageQuotaBytes  uint64    `json:"storage_quota_bytes"`
	CreatedAt          time.Time `json:"created_at"`
}

// PendingEntity names an entity with data newer than the device has ingested.
// Batches are not included; fetch them per-entity via the batches endpoint.
type PendingEntity struct {
	EntityID      string `json:"entity_id"`
	LatestCursor  int64  `json:"latest_cursor"`
	DeviceCursor  int64  `json:"device_cursor"`
}

// PendingChanges is the response shape of the pending-cursors endpoint.
type PendingChanges struct {
	Pending []PendingEntity `json:"pending"`
}

// BatchMeta describes one uploaded batch object. IsSnapshot arrives from a
// MySQL TINYINT(1) column as a JSON 0/1 as often as a real boolean.
type BatchMeta struct {
	S3Key       string `json:"s3_key"`
	CursorStart int64  `json:"cursor_start"`
	CursorEnd   int64  `json:"cursor_end"`
	SizeBytes   uint64 `json:"size_bytes"`
	EventCount  uint32 `json:"event_count"`
	IsSnapshot  bool   `json:"is_snapshot"`
}

type batchMetaWire struct {
	S3Key       string          `json:"s3_key"`
	CursorStart int64           `json:"cursor_start"`
	CursorEnd   int64           `json:"cursor_end"`
	SizeBytes   uint64          `json:"size_bytes"`
	EventCount  uint32          `json:"event_count"`
	IsSnapshot  json.RawMessage `json:"is_snapshot"`
}

// UnmarshalJSON accepts is_snapshot as a JSON boolean or a 0/1 integer.
func (b *BatchMeta) UnmarshalJSON(data []byte) error {
	var wire batchMetaWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	b.S3Key = wire.S3Key
	b.CursorStart = wire.CursorStart
	b.CursorEnd = wire.CursorEnd
	b.SizeBytes = wire.SizeBytes
	b.EventCount = wire.EventCount

	isSnapshot, err := decodeBoolFromIntOrBool(wire.IsSnapshot)
	if err != nil {
		return fmt.Errorf("batch_meta.is_snapshot: %w", err)
	}
	b.IsSnapshot = isSnapshot
	return nil
}

func decodeBoolFromIntOrBool(raw json.RawMessage) (bool, error) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return asBool, nil
	}

	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt != 0, nil
	}

	return false, fmt.Errorf("expected a boolean or 0/1 integer, got %s", string(raw))
}

// ShareInfo describes a share on an entity the caller owns or was offered.
type ShareInfo struct {
	ShareID        int64           `json:"share_id"`
	EntityID       string          `json:"entity_id"`
	EntityType     string          `json:"entity_type"`
	EntityName     *string         `json:"entity_name"`
	RecipientEmail string          `json:"recipient_email"`
	Permission     SharePermission `json:"permission"`
	Status         ShareStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	AcceptedAt     *time.Time      `json:"accepted_at"`
}

// SharedEntity is an entity shared with the current user.
type SharedEntity struct {
	EntityID     string          `json:"entity_id"`
	EntityType   string          `json:"entity_type"`
	EntityName   *string         `json:"entity_name"`
	OwnerUserID  int64           `json:"owner_user_id"`
	WorkspaceID  string          `json:"workspace_id"`
	Permission   SharePermission `json:"permission"`
}

// QuotaInfo is storage usage for a workspace. UsagePercent arrives from the
// server as a string (e.g. "10.00" via toFixed) as often as a JSON number.
type QuotaInfo struct {
	StorageUsedBytes  uint64
	StorageQuotaBytes uint64
	UsagePercent      float64
}

type quotaInfoWire struct {
	StorageUsedBytes  uint64          `json:"storage_used_bytes"`
	StorageQuotaBytes uint64          `json:"storage_quota_bytes"`
	UsagePercent      json.RawMessage `json:"usage_percent"`
}

// UnmarshalJSON accepts usage_percent as a JSON number or a numeric string.
func (q *QuotaInfo) UnmarshalJSON(data []byte) error {
	var wire quotaInfoWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	q.StorageUsedBytes = wire.StorageUsedBytes
	q.StorageQuotaBytes = wire.StorageQuotaBytes

	percent, err := decodeFloatFromStringOrNumber(wire.UsagePercent)
	if err != nil {
		return fmt.Errorf("quota_info.usage_percent: %w", err)
	}
	q.UsagePercent = percent
	return nil
}

func decodeFloatFromStringOrNumber(raw json.RawMessage) (float64, error) {
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err == nil {
		return asFloat, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		parsed, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	}

	return 0, fmt.Errorf("expected a number or string-encoded number, got %s", string(raw))
}

// RateLimitConfig is server-recommended pacing for adaptive client throttling.
type RateLimitConfig struct {
	WindowSeconds              uint64 `json:"window_seconds"`
	MaxRequestsPerWindow       uint64 `json:"max_requests_per_window"`
	RecommendedPollIntervalSecs uint64 `json:"recommended_poll_interval_secs"`
	FlushBatchSize             uint32 `json:"flush_batch_size"`
	InterEntityDelayMillis     uint64 `json:"inter_entity_delay_ms"`
}

// DefaultRateLimitConfig mirrors the reference client's conservative
// fallback, used before the server has ever been asked.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		WindowSeconds:               60,
		MaxRequestsPerWindow:        600,
		RecommendedPollIntervalSecs: 30,
		FlushBatchSize:              25,
		InterEntityDelayMillis:      120,
	}
}

// BlobMeta is file-attachment metadata registered for quota accounting.
type BlobMeta struct {
	BlobID      string  `json:"blob_id"`
	EntityID    *string `json:"entity_id"`
	S3Key       string  `json:"s3_key"`
	SizeBytes   uint64  `json:"size_bytes"`
	ContentHash *string `json:"content_hash"`
}

// DeviceInfo is a registered device.
type DeviceInfo struct {
	DeviceID   string     `json:"device_id"`
	DeviceName *string    `json:"device_name"`
	Platform   *string    `json:"platform"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// AdvanceCursorRequest announces a newly uploaded batch and its cursor end.
type AdvanceCursorRequest struct {
	WorkspaceID  string `json:"workspace_id"`
	DeviceID     string `json:"device_id"`
	EntityID     string `json:"entity_id"`
	CursorEnd    int64  `json:"cursor_end"`
	BatchKey     string `json:"s3_key"`
	SizeBytes    uint64 `json:"size_bytes"`
	EventCount   uint32 `json:"event_count"`
}

// CreateShareRequest registers share intent; the caller seals the DEK for
// the recipient separately once the recipient's public key is known.
type CreateShareRequest struct {
	EntityID       string          `json:"entity_id"`
	EntityType     string          `json:"entity_type"`
	EntityName     *string         `json:"entity_name"`
	WorkspaceID    string          `json:"workspace_id"`
	RecipientEmail string          `json:"recipient_email"`
	Permission     SharePermission `json:"permission"`
}

// RegisterBlobRequest registers uploaded blob metadata for quota accounting.
type RegisterBlobRequest struct {
	WorkspaceID string  `json:"workspace_id"`
	BlobID      string  `json:"blob_id"`
	EntityID    *string `json:"entity_id"`
	S3Key       string  `json:"s3_key"`
	SizeBytes   uint64  `json:"size_bytes"`
	ContentHash *string `json:"content_hash"`
}
