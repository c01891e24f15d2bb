package objectstore

import (
	"context"
	"strings"
	"sync"

	"github.com/allisson/secrets/internal/clouderror"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
)

// FakeStore is an in-memory Store used by unit tests in place of a real
// bucket. It reproduces the credential-expiry fast-fail and not-found
// semantics of S3Store without any network dependency.
type FakeStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{objects: make(map[string][]byte)}
}

func (f *FakeStore) Upload(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
	data []byte,
) error {
	if creds.IsExpired() {
		return clouderror.ErrCredentialExpired
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = stored
	return nil
}

func (f *FakeStore) Download(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
) ([]byte, error) {
	if creds.IsExpired() {
		return nil, clouderror.ErrCredentialExpired
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.objects[key]
	if !ok {
		return nil, clouderror.New(clouderror.S3, "download failed for "+key+": not found")
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (f *FakeStore) Exists(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
) (bool, error) {
	if creds.IsExpired() {
		return false, clouderror.ErrCredentialExpired
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *FakeStore) ListKeys(
	ctx context.Context,
	creds credDomain.STSCredentials,
	prefix string,
) ([]string, error) {
	if creds.IsExpired() {
		return nil, clouderror.ErrCredentialExpired
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
