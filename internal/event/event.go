// Package event defines the externally-produced record the cloud-sync core
// replicates. The core serializes, encrypts, uploads, and decrypts events but
// never interprets their payload.
package event

import "encoding/json"

// HybridTimestamp orders events across devices without a shared clock: wall
// time breaks ties across peers, the counter breaks ties within the same
// wall-time tick on one peer.
type HybridTimestamp struct {
	WallTimeMillis int64  `json:"wall_time_millis"`
	Counter        uint32 `json:"counter"`
}

// Event is an opaque, externally-defined record. EntityID groups events for
// batching and DEK selection; PeerID identifies the originating device;
// Dependencies names events this one causally depends on.
type Event struct {
	EntityID        string          `json:"entity_id"`
	PeerID          string          `json:"peer_id"`
	HybridTimestamp HybridTimestamp `json:"hybrid_timestamp"`
	Payload         json.RawMessage `json:"payload"`
	Dependencies    []string        `json:"dependencies,omitempty"`
}
