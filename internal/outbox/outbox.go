// Package outbox implements the sync engine's local event buffer (C9): a
// bounded queue with two flush policies depending on whether other users are
// currently active on the same workspace.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/allisson/secrets/internal/event"
)

// FlushMode selects the outbox's flush cadence and size thresholds.
type FlushMode int

const (
	// Solo is the default mode: no other user is currently active on the
	// workspace, so batching favors fewer, larger uploads.
	Solo FlushMode = iota
	// Collab is entered when another user is known to be active, favoring
	// fast propagation over batch size.
	Collab
)

const (
	// SoloFlushInterval is the maximum time between flushes in Solo mode.
	SoloFlushInterval = 60 * time.Second
	// CollabFlushInterval is the maximum time between flushes in Collab mode.
	CollabFlushInterval = 5 * time.Second
	// SoloSizeThreshold forces a flush once the buffer exceeds this size,
	// regardless of mode.
	SoloSizeThreshold = 50 * 1024
	// CollabSizeThreshold forces a flush in Collab mode once the buffer
	// exceeds this size.
	CollabSizeThreshold = 5 * 1024
	// CollabCooldown is the minimum time Collab mode holds once entered,
	// before a request to return to Solo is honored.
	CollabCooldown = 300 * time.Second

	defaultEventSizeEstimate = 128
)

// Outbox buffers events pending upload. It is owned by a single goroutine
// (the sync engine) and is not safe for concurrent use.
type Outbox struct {
	pendingEvents  []event.Event
	pendingSize    int
	flushMode      FlushMode
	lastFlush      time.Time
	collabCooldown *time.Time
}

// New creates an empty Outbox in Solo mode.
func New() *Outbox {
	return &Outbox{lastFlush: time.Now()}
}

// Push appends evt to the buffer, estimating its contribution to the
// accumulated size from its JSON encoding length, falling back to a fixed
// estimate if marshaling fails.
func (o *Outbox) Push(evt event.Event) {
	size := defaultEventSizeEstimate
	if encoded, err := json.Marshal(evt); err == nil {
		size = len(encoded)
	}
	o.pendingEvents = append(o.pendingEvents, evt)
	o.pendingSize += size
}

// ShouldFlush reports whether the buffer should be drained now. An empty
// buffer never flushes. A buffer exceeding SoloSizeThreshold always flushes,
// in either mode. Otherwise the mode's flush interval, or in Collab mode the
// Collab size threshold, triggers a flush.
func (o *Outbox) ShouldFlush() bool {
	if len(o.pendingEvents) == 0 {
		return false
	}
	if o.pendingSize > SoloSizeThreshold {
		return true
	}

	elapsed := time.Since(o.lastFlush)
	switch o.flushMode {
	case Collab:
		return elapsed >= CollabFlushInterval || o.pendingSize > CollabSizeThreshold
	default:
		return elapsed >= SoloFlushInterval
	}
}

// UpdateFlushMode transitions the outbox's mode based on whether other users
// are currently present. Entering Collab mode is immediate and resets the
// cooldown to 5 minutes from now. Leaving Collab mode (a request for Solo) is
// honored only once the cooldown has strictly elapsed; a fresh Collab signal
// during the cooldown resets it.
func (o *Outbox) UpdateFlushMode(otherUsersPresent bool) {
	now := time.Now()
	if otherUsersPresent {
		o.flushMode = Collab
		cooldown := now.Add(CollabCooldown)
		o.collabCooldown = &cooldown
		return
	}

	if o.collabCooldown == nil || now.After(*o.collabCooldown) {
		o.flushMode = Solo
		o.collabCooldown = nil
	}
}

// TakePending drains the buffer, returning events in insertion order, and
// resets the last-flush instant and accumulated size. Insertion order is
// preserved across repeated push/take cycles.
func (o *Outbox) TakePending() []event.Event {
	drained := o.pendingEvents
	o.pendingEvents = nil
	o.pendingSize = 0
	o.lastFlush = time.Now()
	return drained
}

// Requeue restores previously taken events to the front of the buffer, for
// retrying a flush that failed partway through building its batches.
// Requeued events are ordered ahead of anything pushed afterward, so
// insertion order is preserved across a failed-then-retried flush cycle.
func (o *Outbox) Requeue(events []event.Event) {
	if len(events) == 0 {
		return
	}
	size := 0
	for _, evt := range events {
		if encoded, err := json.Marshal(evt); err == nil {
			size += len(encoded)
		} else {
			size += defaultEventSizeEstimate
		}
	}
	o.pendingEvents = append(events, o.pendingEvents...)
	o.pendingSize += size
}

// PendingCount returns the number of buffered events.
func (o *Outbox) PendingCount() int {
	return len(o.pendingEvents)
}

// BufferSize returns the accumulated estimated size of buffered events.
func (o *Outbox) BufferSize() int {
	return o.pendingSize
}

// IsEmpty reports whether the buffer holds no events.
func (o *Outbox) IsEmpty() bool {
	return len(o.pendingEvents) == 0
}

// Mode returns the outbox's current flush mode.
func (o *Outbox) Mode() FlushMode {
	return o.flushMode
}

// EntityBatch groups consecutive-by-first-appearance events sharing one
// EntityID, each batch encrypted separately under that entity's DEK.
type EntityBatch struct {
	EntityID string
	Events   []event.Event
}

// GroupByEntity splits events into per-entity batches, preserving each
// entity's internal event order and ordering batches by each entity's first
// appearance in events.
func GroupByEntity(events []event.Event) []EntityBatch {
	order := make([]string, 0)
	grouped := make(map[string][]event.Event)

	for _, evt := range events {
		if _, ok := grouped[evt.EntityID]; !ok {
			order = append(order, evt.EntityID)
		}
		grouped[evt.EntityID] = append(grouped[evt.EntityID], evt)
	}

	batches := make([]EntityBatch, 0, len(order))
	for _, entityID := range order {
		batches = append(batches, EntityBatch{EntityID: entityID, Events: grouped[entityID]})
	}
	return batches
}
