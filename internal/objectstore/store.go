// Package objectstore implements the object-store transport (C4): upload,
// download, existence checks, and prefix listing against an S3-compatible
// bucket under short-lived STS credentials.
package objectstore

import (
	"context"

	credDomain "github.com/allisson/secrets/internal/credentials/domain"
)

// Store is the object-store transport surface every component above it
// (outbox, blob sync, compaction) uses to talk to the bucket.
type Store interface {
	// Upload writes data under key. Fails fast with CredentialExpired if
	// creds are already expired; never touches the network in that case.
	Upload(ctx context.Context, creds credDomain.STSCredentials, key string, data []byte) error

	// Download reads the object stored at key.
	Download(ctx context.Context, creds credDomain.STSCredentials, key string) ([]byte, error)

	// Exists reports whether an object exists at key. A missing object is
	// reported as (false, nil), never as an error.
	Exists(ctx context.Context, creds credDomain.STSCredentials, key string) (bool, error)

	// ListKeys lists every object key under prefix.
	ListKeys(ctx context.Context, creds credDomain.STSCredentials, prefix string) ([]string, error)
}
