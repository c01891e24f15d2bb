// Package dek implements the DEK registry (C8): a concurrency-safe in-memory
// map from entity id to data encryption key, with a workspace-default
// fallback slot.
package dek

import (
	"fmt"
	"sync"

	"github.com/allisson/secrets/internal/clouderror"
)

// Registry holds one 256-bit key per entity, plus an optional default key
// used when no per-entity key has been registered.
type Registry struct {
	mu         sync.RWMutex
	keys       map[string][32]byte
	defaultDek *[32]byte
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{keys: make(map[string][32]byte)}
}

// Get returns the DEK for entityID: the per-entity key if present, otherwise
// the default key, otherwise an Envelope error naming the entity.
func (r *Registry) Get(entityID string) ([32]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, ok := r.keys[entityID]; ok {
		return key, nil
	}
	if r.defaultDek != nil {
		return *r.defaultDek, nil
	}

	return [32]byte{}, clouderror.New(
		clouderror.Envelope,
		fmt.Sprintf("no DEK registered for entity %s", entityID),
	)
}

// Set installs the workspace-default DEK, used when an entity has no
// per-entity key registered.
func (r *Registry) Set(key [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultDek = &key
}

// Insert registers key for entityID, overwriting any existing key for that
// entity without creating a duplicate entry.
func (r *Registry) Insert(entityID string, key [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[entityID] = key
}

// Remove deletes entityID's key and reports whether one existed.
func (r *Registry) Remove(entityID string) ([32]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[entityID]
	if ok {
		delete(r.keys, entityID)
	}
	return key, ok
}

// Len returns the number of per-entity keys registered, not counting the
// default slot.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// IsEmpty reports whether no per-entity keys are registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}
