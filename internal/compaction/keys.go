// Package compaction computes the S3 key layout shared by every component
// that reads or writes object storage, and coordinates snapshot generation
// for entities whose batch history has grown too large (C12).
package compaction

import "fmt"

// BatchThreshold is the number of accumulated batches above which an entity
// needs a snapshot. The comparison is strictly greater-than: an entity with
// exactly BatchThreshold batches does not yet need compaction.
const BatchThreshold = 50

// NeedsCompaction reports whether an entity with batchCount batches should
// have a snapshot generated.
func NeedsCompaction(batchCount int) bool {
	return batchCount > BatchThreshold
}

// SnapshotKey returns the S3 key for a full-state snapshot of entityID at
// cursorPosition.
func SnapshotKey(userID int64, workspaceID, entityID string, cursorPosition int64) string {
	return fmt.Sprintf("%d/%s/entities/%s/snapshot_%d.enc", userID, workspaceID, entityID, cursorPosition)
}

// BatchKey returns the S3 key for an event batch spanning [cursorStart, cursorEnd).
func BatchKey(userID int64, workspaceID, entityID string, cursorStart, cursorEnd int64) string {
	return fmt.Sprintf("%d/%s/entities/%s/batch_%d_%d.enc", userID, workspaceID, entityID, cursorStart, cursorEnd)
}

// BlobKey returns the S3 key for a file attachment.
func BlobKey(userID int64, workspaceID, blobID string) string {
	return fmt.Sprintf("%d/%s/blobs/%s.enc", userID, workspaceID, blobID)
}

// PrivateKeyKey returns the S3 key for the passphrase-encrypted private key.
func PrivateKeyKey(userID int64, workspaceID string) string {
	return fmt.Sprintf("%d/%s/keys/private_key.enc", userID, workspaceID)
}

// RecoveryKeyKey returns the S3 key for the mnemonic-encrypted recovery key.
func RecoveryKeyKey(userID int64, workspaceID string) string {
	return fmt.Sprintf("%d/%s/keys/private_key_recovery.enc", userID, workspaceID)
}
