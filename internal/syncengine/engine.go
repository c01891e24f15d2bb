// Package syncengine implements the main cloud-sync event loop (C13): it
// owns the outbox, periodically flushes it to object storage, polls the
// control plane for changes from other devices, and keeps STS credentials
// fresh. Follows the same shape as the local sync orchestrator it mirrors:
// one goroutine, one select loop, no locks on engine state.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/allisson/secrets/internal/clouderror"
	"github.com/allisson/secrets/internal/compaction"
	cpdomain "github.com/allisson/secrets/internal/controlplane/domain"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
	cryptoDomain "github.com/allisson/secrets/internal/crypto/domain"
	cryptoService "github.com/allisson/secrets/internal/crypto/service"
	"github.com/allisson/secrets/internal/event"
	"github.com/allisson/secrets/internal/metrics"
	"github.com/allisson/secrets/internal/outbox"
)

const (
	// apiRateLimit caps how often the engine calls the control plane, so a
	// burst of local events or a flood of pending remote changes cannot turn
	// into a request storm against a shared backend.
	apiRateLimit = 5
	apiRateBurst = 10
)

// API is the subset of the control-plane client the engine drives directly.
type API interface {
	AdvanceCursor(ctx context.Context, req cpdomain.AdvanceCursorRequest) error
	GetPendingChanges(ctx context.Context, workspaceID, deviceID string) (cpdomain.PendingChanges, error)
	GetBatches(ctx context.Context, workspaceID, entityID string, sinceCursor int64) ([]cpdomain.BatchMeta, error)
}

// CredentialSource supplies and refreshes the object-store credentials the
// engine uploads and downloads through.
type CredentialSource interface {
	GetCredentials(ctx context.Context) (credDomain.STSCredentials, error)
	HasValidCredentials() bool
	Refresh(ctx context.Context) (credDomain.STSCredentials, error)
}

// Transport moves encrypted batch bytes to and from object storage.
type Transport interface {
	Upload(ctx context.Context, creds credDomain.STSCredentials, key string, data []byte) error
	Download(ctx context.Context, creds credDomain.STSCredentials, key string) ([]byte, error)
}

// DekSource resolves the data encryption key for an entity.
type DekSource interface {
	Get(entityID string) ([32]byte, error)
}

// Engine is the main cloud-sync orchestration loop. Create one with New and
// run it with Run in its own goroutine; interact with it through the Handle
// returned alongside it.
type Engine struct {
	api       API
	transport Transport
	creds     CredentialSource
	deks      DekSource
	aead      cryptoService.AEADManager

	outbox *outbox.Outbox

	commands chan Command
	events   chan event.Event
	applied  chan event.Event

	userID                  int64
	workspaceID             string
	deviceID                string
	pollInterval            time.Duration
	flushTickInterval       time.Duration
	credentialCheckInterval time.Duration

	cursors map[string]int64

	apiLimiter *rate.Limiter

	logger  *slog.Logger
	metrics metrics.BusinessMetrics
}

// Handle lets callers outside the engine's goroutine send it commands and
// receive events applied from other devices.
type Handle struct {
	commands chan<- Command
	applied  <-chan event.Event
	events   chan<- event.Event
}

// Stop asks the engine to flush pending events and exit its loop.
func (h Handle) Stop(ctx context.Context) error {
	return h.send(ctx, StopCommand{})
}

// ForceFlush asks the engine to flush the outbox immediately.
func (h Handle) ForceFlush(ctx context.Context) error {
	return h.send(ctx, ForceFlushCommand{})
}

// ShareEntity notifies the engine that entityID is being shared. The engine
// only acknowledges; the caller drives the actual share workflow through the
// share manager.
func (h Handle) ShareEntity(ctx context.Context, cmd ShareEntityCommand) error {
	return h.send(ctx, cmd)
}

// RecordEvent enqueues a locally produced event for the next outbox flush.
func (h Handle) RecordEvent(ctx context.Context, evt event.Event) error {
	select {
	case h.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Applied returns the channel of events the engine has downloaded and
// decrypted from other devices. The caller must drain it.
func (h Handle) Applied() <-chan event.Event {
	return h.applied
}

func (h Handle) send(ctx context.Context, cmd Command) error {
	select {
	case h.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New creates an Engine and its Handle. The engine does not start running
// until Run is called.
func New(
	api API,
	transport Transport,
	creds CredentialSource,
	deks DekSource,
	aead cryptoService.AEADManager,
	userID int64,
	workspaceID, deviceID string,
	pollInterval, flushTickInterval, credentialCheckInterval time.Duration,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) (Handle, *Engine) {
	commands := make(chan Command, 64)
	events := make(chan event.Event, 256)
	applied := make(chan event.Event, 256)

	engine := &Engine{
		api:                     api,
		transport:               transport,
		creds:                   creds,
		deks:                    deks,
		aead:                    aead,
		outbox:                  outbox.New(),
		commands:                commands,
		events:                  events,
		applied:                 applied,
		userID:                  userID,
		workspaceID:             workspaceID,
		deviceID:                deviceID,
		pollInterval:            pollInterval,
		flushTickInterval:       flushTickInterval,
		credentialCheckInterval: credentialCheckInterval,
		cursors:                 make(map[string]int64),
		apiLimiter:              rate.NewLimiter(apiRateLimit, apiRateBurst),
		logger:                  logger,
		metrics:                 businessMetrics,
	}

	handle := Handle{commands: commands, applied: applied, events: events}
	return handle, engine
}

// Run executes the engine's event loop until ctx is canceled or a Stop
// command is received. Stop flushes any pending events before returning; a
// canceled context or a closed command channel does not.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("cloud sync engine started", "workspace_id", e.workspaceID)

	flushTicker := time.NewTicker(e.flushTickInterval)
	defer flushTicker.Stop()
	pollTicker := time.NewTicker(e.pollInterval)
	defer pollTicker.Stop()
	credTicker := time.NewTicker(e.credentialCheckInterval)
	defer credTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("cloud sync engine stopped", "reason", "context canceled")
			return

		case <-flushTicker.C:
			if e.outbox.ShouldFlush() {
				if err := e.flushOutbox(ctx); err != nil {
					e.logger.Error("outbox flush failed", "error", err)
				}
			}

		case <-pollTicker.C:
			if err := e.pollAndApply(ctx); err != nil {
				e.logger.Warn("poll failed", "error", err)
			}

		case <-credTicker.C:
			if !e.creds.HasValidCredentials() {
				e.logger.Debug("proactively refreshing STS credentials")
				if _, err := e.creds.Refresh(ctx); err != nil {
					e.logger.Warn("credential refresh failed", "error", err)
				}
			}

		case evt := <-e.events:
			e.outbox.Push(evt)

		case cmd, ok := <-e.commands:
			if !ok {
				e.logger.Info("cloud sync engine stopped", "reason", "command channel closed")
				return
			}
			if e.handleCommand(ctx, cmd) {
				return
			}
		}
	}
}

// handleCommand processes one command and reports whether the loop should exit.
func (e *Engine) handleCommand(ctx context.Context, cmd Command) (stop bool) {
	switch c := cmd.(type) {
	case StopCommand:
		e.logger.Info("cloud sync engine stopping")
		if !e.outbox.IsEmpty() {
			if err := e.flushOutbox(ctx); err != nil {
				e.logger.Error("final flush before stop failed", "error", err)
			}
		}
		return true

	case ForceFlushCommand:
		if !e.outbox.IsEmpty() {
			if err := e.flushOutbox(ctx); err != nil {
				e.logger.Error("force flush failed", "error", err)
			}
		}
		return false

	case ShareEntityCommand:
		e.logger.Debug("share entity command received, delegating to share manager",
			"entity_id", c.EntityID, "recipient_email", c.RecipientEmail)
		return false

	default:
		return false
	}
}

// flushOutbox drains the outbox, groups pending events by entity, and
// uploads one encrypted batch per entity under its own DEK. If a batch fails
// partway through, that batch's events and every later entity's
// not-yet-attempted batch are requeued rather than lost, so the next flush
// tick retries them.
func (e *Engine) flushOutbox(ctx context.Context) error {
	start := time.Now()
	pending := e.outbox.TakePending()
	if len(pending) == 0 {
		return nil
	}

	groups := outbox.GroupByEntity(pending)
	for i, batch := range groups {
		if err := e.flushEntityBatch(ctx, batch); err != nil {
			e.requeueUnattempted(groups[i:])
			e.metrics.RecordOperation(ctx, "cloud_sync", "outbox_flush", "error")
			return err
		}
	}

	e.metrics.RecordOperation(ctx, "cloud_sync", "outbox_flush", "success")
	e.metrics.RecordDuration(ctx, "cloud_sync", "outbox_flush", time.Since(start), "success")
	return nil
}

// requeueUnattempted pushes every event from groups back onto the outbox, in
// their original relative order, so a failed flush does not lose them.
func (e *Engine) requeueUnattempted(groups []outbox.EntityBatch) {
	var unprocessed []event.Event
	for _, batch := range groups {
		unprocessed = append(unprocessed, batch.Events...)
	}
	e.outbox.Requeue(unprocessed)
}

func (e *Engine) flushEntityBatch(ctx context.Context, batch outbox.EntityBatch) error {
	dek, err := e.deks.Get(batch.EntityID)
	if err != nil {
		return err
	}

	serialized, err := json.Marshal(batch.Events)
	if err != nil {
		return clouderror.New(clouderror.Serialization, err.Error())
	}

	cipher, err := e.aead.CreateCipher(dek[:], cryptoDomain.ChaCha20)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("batch encryption setup failed: %s", err))
	}
	ciphertext, nonce, err := cipher.Encrypt(serialized, nil)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("batch encryption failed: %s", err))
	}
	encryptedBytes, err := json.Marshal(cryptoDomain.EncryptedData{Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return clouderror.New(clouderror.Serialization, err.Error())
	}

	cursorStart := e.cursors[batch.EntityID]
	cursorEnd := cursorStart + int64(len(batch.Events))
	s3Key := compaction.BatchKey(e.userID, e.workspaceID, batch.EntityID, cursorStart, cursorEnd)

	creds, err := e.creds.GetCredentials(ctx)
	if err != nil {
		return err
	}
	if err := e.transport.Upload(ctx, creds, s3Key, encryptedBytes); err != nil {
		return err
	}

	if err := e.apiLimiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.api.AdvanceCursor(ctx, cpdomain.AdvanceCursorRequest{
		WorkspaceID: e.workspaceID,
		DeviceID:    e.deviceID,
		EntityID:    batch.EntityID,
		CursorEnd:   cursorEnd,
		BatchKey:    s3Key,
		SizeBytes:   uint64(len(encryptedBytes)),
		EventCount:  uint32(len(batch.Events)),
	}); err != nil {
		return err
	}

	e.cursors[batch.EntityID] = cursorEnd
	e.logger.Debug("flushed entity batch", "entity_id", batch.EntityID, "event_count", len(batch.Events), "cursor", cursorEnd)
	return nil
}

// pollAndApply fetches entities with data newer than this device has
// ingested, downloads their new batches, decrypts them, and forwards the
// contained events to the Applied channel.
func (e *Engine) pollAndApply(ctx context.Context) error {
	start := time.Now()
	if err := e.apiLimiter.Wait(ctx); err != nil {
		return err
	}
	pending, err := e.api.GetPendingChanges(ctx, e.workspaceID, e.deviceID)
	if err != nil {
		e.metrics.RecordOperation(ctx, "cloud_sync", "poll_cycle", "error")
		return err
	}

	if len(pending.Pending) == 0 {
		e.metrics.RecordOperation(ctx, "cloud_sync", "poll_cycle", "success")
		e.metrics.RecordDuration(ctx, "cloud_sync", "poll_cycle", time.Since(start), "success")
		return nil
	}

	for _, entity := range pending.Pending {
		if err := e.pollEntity(ctx, entity); err != nil {
			e.logger.Warn("poll failed for entity", "entity_id", entity.EntityID, "error", err)
		}
	}

	e.metrics.RecordOperation(ctx, "cloud_sync", "poll_cycle", "success")
	e.metrics.RecordDuration(ctx, "cloud_sync", "poll_cycle", time.Since(start), "success")
	return nil
}

func (e *Engine) pollEntity(ctx context.Context, entity cpdomain.PendingEntity) error {
	if err := e.apiLimiter.Wait(ctx); err != nil {
		return err
	}
	batches, err := e.api.GetBatches(ctx, e.workspaceID, entity.EntityID, entity.DeviceCursor)
	if err != nil {
		return err
	}

	e.logger.Debug("entity has new batches",
		"entity_id", entity.EntityID, "batch_count", len(batches),
		"device_cursor", entity.DeviceCursor, "latest_cursor", entity.LatestCursor)

	dek, err := e.deks.Get(entity.EntityID)
	if err != nil {
		return err
	}

	for _, batchMeta := range batches {
		if err := e.applyBatch(ctx, batchMeta, dek); err != nil {
			e.logger.Warn("failed to apply batch", "s3_key", batchMeta.S3Key, "error", err)
		}
	}
	return nil
}

func (e *Engine) applyBatch(ctx context.Context, batchMeta cpdomain.BatchMeta, dek [32]byte) error {
	creds, err := e.creds.GetCredentials(ctx)
	if err != nil {
		return err
	}

	data, err := e.transport.Download(ctx, creds, batchMeta.S3Key)
	if err != nil {
		return err
	}

	var encrypted cryptoDomain.EncryptedData
	if err := json.Unmarshal(data, &encrypted); err != nil {
		return clouderror.New(clouderror.Serialization, err.Error())
	}

	cipher, err := e.aead.CreateCipher(dek[:], cryptoDomain.ChaCha20)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("batch decryption setup failed: %s", err))
	}
	plaintext, err := cipher.Decrypt(encrypted.Ciphertext, encrypted.Nonce, nil)
	if err != nil {
		return clouderror.New(clouderror.Envelope, fmt.Sprintf("batch decryption failed: %s", err))
	}

	var events []event.Event
	if err := json.Unmarshal(plaintext, &events); err != nil {
		return clouderror.New(clouderror.Serialization, fmt.Sprintf("failed to deserialize batch %s: %s", batchMeta.S3Key, err))
	}

	for _, evt := range events {
		select {
		case e.applied <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
