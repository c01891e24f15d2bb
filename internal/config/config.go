// Package config provides application configuration management through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	"github.com/allisson/secrets/internal/clouderror"
)

// Config holds all configuration needed to run the cloud-sync engine for one device.
type Config struct {
	// Control-plane HTTP API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// S3-compatible object storage
	S3Bucket           string
	S3Region           string
	S3EndpointOverride string

	// STS credential lifecycle
	CredentialRefreshMargin time.Duration
	CredentialCheckInterval time.Duration

	// Sync engine timing
	PollInterval  time.Duration
	FlushInterval time.Duration

	// Logging
	LogLevel string
}

// ErrMissingAPIBaseURL indicates CLOUD_SYNC_API_BASE_URL was not configured.
var ErrMissingAPIBaseURL = clouderror.New(clouderror.Config, "CLOUD_SYNC_API_BASE_URL is required")

// ErrMissingS3Bucket indicates CLOUD_SYNC_S3_BUCKET was not configured.
var ErrMissingS3Bucket = clouderror.New(clouderror.Config, "CLOUD_SYNC_S3_BUCKET is required")

// Validate checks that every field required for the engine to start is present.
// Missing required config surfaces here, at startup, never at runtime.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	if c.S3Bucket == "" {
		return ErrMissingS3Bucket
	}
	return nil
}

// Load loads configuration from environment variables.
// It first attempts to load a .env file by searching recursively from the current directory
// up to the root directory. If no .env file is found, it continues with existing environment variables.
func Load() *Config {
	loadDotEnv()

	return &Config{
		APIBaseURL:  env.GetString("CLOUD_SYNC_API_BASE_URL", ""),
		HTTPTimeout: env.GetDuration("CLOUD_SYNC_HTTP_TIMEOUT_SECS", 30, time.Second),

		S3Bucket:           env.GetString("CLOUD_SYNC_S3_BUCKET", ""),
		S3Region:           env.GetString("CLOUD_SYNC_S3_REGION", "us-east-1"),
		S3EndpointOverride: env.GetString("CLOUD_SYNC_S3_ENDPOINT_OVERRIDE", ""),

		CredentialRefreshMargin: env.GetDuration("CLOUD_SYNC_CREDENTIAL_REFRESH_MARGIN_SECS", 300, time.Second),
		CredentialCheckInterval: env.GetDuration("CLOUD_SYNC_CREDENTIAL_CHECK_INTERVAL_SECS", 300, time.Second),

		PollInterval:  env.GetDuration("CLOUD_SYNC_POLL_INTERVAL_SECS", 30, time.Second),
		FlushInterval: env.GetDuration("CLOUD_SYNC_FLUSH_INTERVAL_SECS", 5, time.Second),

		LogLevel: env.GetString("CLOUD_SYNC_LOG_LEVEL", "info"),
	}
}

// Test returns configuration suitable for integration tests against a local control
// plane and MinIO instance, mirroring the margins used by the reference implementation's
// own test fixtures.
func Test() *Config {
	return &Config{
		APIBaseURL:              "http://localhost:3002",
		HTTPTimeout:             10 * time.Second,
		S3Bucket:                "privstack-test",
		S3Region:                "us-east-1",
		S3EndpointOverride:      "http://localhost:9000",
		CredentialRefreshMargin: 60 * time.Second,
		CredentialCheckInterval: 300 * time.Second,
		PollInterval:            5 * time.Second,
		FlushInterval:           5 * time.Second,
		LogLevel:                "debug",
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
