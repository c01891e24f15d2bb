// Package app provides the dependency injection container assembling the
// cloud-sync engine's components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/secrets/internal/blob"
	"github.com/allisson/secrets/internal/compaction"
	"github.com/allisson/secrets/internal/config"
	"github.com/allisson/secrets/internal/controlplane"
	credService "github.com/allisson/secrets/internal/credentials/service"
	cryptoService "github.com/allisson/secrets/internal/crypto/service"
	"github.com/allisson/secrets/internal/dek"
	"github.com/allisson/secrets/internal/envelope"
	"github.com/allisson/secrets/internal/metrics"
	"github.com/allisson/secrets/internal/objectstore"
	"github.com/allisson/secrets/internal/share"
	"github.com/allisson/secrets/internal/syncengine"
)

// Container holds every singleton the cloud-sync engine needs and
// per-workspace components are assembled on demand through NewSession.
// Components are created on first access, following the lazy
// initialization pattern.
type Container struct {
	config *config.Config

	logger          *slog.Logger
	loggerInit      sync.Once
	metricsProvider *metrics.Provider
	metricsInit     sync.Once
	metricsInitErr  error
	businessMetrics metrics.BusinessMetrics
	businessInit    sync.Once

	aeadManager  cryptoService.AEADManager
	aeadInit     sync.Once
	kdf          cryptoService.Kdf
	kdfInit      sync.Once
	envelopeSvc  cryptoService.Envelope
	envelopeInit sync.Once
	mnemonic     cryptoService.Mnemonic
	mnemonicInit sync.Once
	recovery     cryptoService.Recovery
	recoveryInit sync.Once

	controlPlane     *controlplane.Client
	controlPlaneInit sync.Once

	objectStore     objectstore.Store
	objectStoreInit sync.Once
}

// NewContainer creates a new dependency injection container with cfg.
func NewContainer(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured structured logger.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// MetricsProvider returns the OpenTelemetry/Prometheus metrics provider.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsInit.Do(func() {
		c.metricsProvider, c.metricsInitErr = metrics.NewProvider("cloud_sync")
	})
	return c.metricsProvider, c.metricsInitErr
}

// BusinessMetrics returns the business-operation metrics recorder used by
// the sync engine (outbox_flush, poll_cycle) and the credential manager
// (credential_refresh).
func (c *Container) BusinessMetrics() metrics.BusinessMetrics {
	c.businessInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.Logger().Warn("metrics disabled: failed to init provider", "error", err)
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		bm, err := metrics.NewBusinessMetrics(provider.MeterProvider(), "cloud_sync")
		if err != nil {
			c.Logger().Warn("metrics disabled: failed to init business metrics", "error", err)
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		c.businessMetrics = bm
	})
	return c.businessMetrics
}

// AEADManager returns the AEAD cipher factory.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// Kdf returns the passphrase key-derivation service.
func (c *Container) Kdf() cryptoService.Kdf {
	c.kdfInit.Do(func() {
		c.kdf = cryptoService.NewKdf()
	})
	return c.kdf
}

// EnvelopeService returns the low-level DEK sealing/opening and
// private-key-at-rest encryption service.
func (c *Container) EnvelopeService() cryptoService.Envelope {
	c.envelopeInit.Do(func() {
		c.envelopeSvc = cryptoService.NewEnvelope(c.AEADManager(), c.Kdf())
	})
	return c.envelopeSvc
}

// Mnemonic returns the BIP-39 recovery phrase service.
func (c *Container) Mnemonic() cryptoService.Mnemonic {
	c.mnemonicInit.Do(func() {
		c.mnemonic = cryptoService.NewMnemonic(c.Kdf())
	})
	return c.mnemonic
}

// Recovery returns the recovery-phrase-based key escrow service.
func (c *Container) Recovery() cryptoService.Recovery {
	c.recoveryInit.Do(func() {
		c.recovery = cryptoService.NewRecovery(c.Mnemonic(), c.AEADManager())
	})
	return c.recovery
}

// ControlPlane returns the authenticated control-plane HTTP client.
func (c *Container) ControlPlane() *controlplane.Client {
	c.controlPlaneInit.Do(func() {
		c.controlPlane = controlplane.New(c.config.APIBaseURL, c.config.HTTPTimeout, c.BusinessMetrics())
	})
	return c.controlPlane
}

// ObjectStore returns the S3-compatible object store transport.
func (c *Container) ObjectStore() objectstore.Store {
	c.objectStoreInit.Do(func() {
		c.objectStore = objectstore.NewS3Store(c.config.S3Bucket, c.config.S3Region)
	})
	return c.objectStore
}

// Session bundles the per-workspace components that depend on a logged-in
// user, device, and workspace: the credential manager, DEK registry,
// envelope and share managers, and the sync engine itself. A Container may
// host several Sessions (e.g. one per workspace) over its lifetime.
type Session struct {
	UserID      int64
	WorkspaceID string
	DeviceID    string

	Credentials *credService.Manager
	Deks        *dek.Registry
	Envelope    *envelope.Manager
	Share       *share.Manager
	Compaction  *compaction.Coordinator
	Blob        *blob.Manager

	Handle syncengine.Handle
	Engine *syncengine.Engine
}

// NewSession assembles every component needed to sync one workspace on one
// device, in the order config → crypto → credentials → object store →
// control-plane client → DEK registry → envelope/share managers → outbox →
// sync engine.
func (c *Container) NewSession(userID int64, workspaceID, deviceID string) *Session {
	controlPlane := c.ControlPlane()
	objectStore := c.ObjectStore()
	logger := c.Logger()

	credentials := credService.New(controlPlane, workspaceID, c.config.CredentialRefreshMargin, c.BusinessMetrics())
	deks := dek.New()
	envelopeMgr := envelope.New(controlPlane, c.EnvelopeService())
	shareMgr := share.New(controlPlane, logger, c.BusinessMetrics())
	compactionCoord := compaction.New(controlPlane, objectStore, credentials, c.AEADManager(), logger, c.BusinessMetrics())
	blobMgr := blob.New(controlPlane, objectStore, credentials, c.AEADManager(), logger, c.BusinessMetrics())

	handle, engine := syncengine.New(
		controlPlane, objectStore, credentials, deks, c.AEADManager(),
		userID, workspaceID, deviceID,
		c.config.PollInterval, c.config.FlushInterval, c.config.CredentialCheckInterval,
		logger, c.BusinessMetrics(),
	)

	return &Session{
		UserID:      userID,
		WorkspaceID: workspaceID,
		DeviceID:    deviceID,
		Credentials: credentials,
		Deks:        deks,
		Envelope:    envelopeMgr,
		Share:       shareMgr,
		Compaction:  compactionCoord,
		Blob:        blobMgr,
		Handle:      handle,
		Engine:      engine,
	}
}

// Run starts the session's sync engine loop, blocking until ctx is
// canceled or the engine receives a Stop command.
func (s *Session) Run(ctx context.Context) {
	s.Engine.Run(ctx)
}

// Shutdown stops the metrics provider, if one was started. Safe to call
// even if metrics were never initialized.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.metricsProvider == nil {
		return nil
	}
	if err := c.metricsProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics provider shutdown: %w", err)
	}
	return nil
}

func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
