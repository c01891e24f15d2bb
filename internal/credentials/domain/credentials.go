// Package domain defines the short-lived object-store credentials issued by
// the control plane and their expiry predicates.
package domain

import (
	"encoding/json"
	"time"
)

// STSCredentials is an immutable set of short-lived object-store credentials.
type STSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ExpiresAt       time.Time
	Bucket          string
	Region          string
	Prefix          string
	EndpointOverride string
}

// IsExpired reports whether the credentials have already expired.
func (c STSCredentials) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// ExpiresWithin reports whether the credentials will expire within d.
func (c STSCredentials) ExpiresWithin(d time.Duration) bool {
	return !time.Now().Add(d).Before(c.ExpiresAt)
}

// stsCredentialsWire mirrors the control-plane JSON shape, accepting both
// "expires_at" and the control plane's actual field name "expiration" as
// aliases for the same timestamp.
type stsCredentialsWire struct {
	AccessKeyID      string     `json:"access_key_id"`
	SecretAccessKey  string     `json:"secret_access_key"`
	SessionToken     string     `json:"session_token"`
	ExpiresAt        *time.Time `json:"expires_at"`
	Expiration       *time.Time `json:"expiration"`
	Bucket           string     `json:"bucket"`
	Region           string     `json:"region"`
	Prefix           string     `json:"prefix,omitempty"`
	EndpointOverride string     `json:"endpoint,omitempty"`
}

// UnmarshalJSON accepts either "expires_at" or "expiration" for the
// expiry timestamp, matching the control plane's actual wire field name.
func (c *STSCredentials) UnmarshalJSON(data []byte) error {
	var wire stsCredentialsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	expiresAt := wire.ExpiresAt
	if expiresAt == nil {
		expiresAt = wire.Expiration
	}
	if expiresAt != nil {
		c.ExpiresAt = *expiresAt
	}

	c.AccessKeyID = wire.AccessKeyID
	c.SecretAccessKey = wire.SecretAccessKey
	c.SessionToken = wire.SessionToken
	c.Bucket = wire.Bucket
	c.Region = wire.Region
	c.Prefix = wire.Prefix
	c.EndpointOverride = wire.EndpointOverride
	return nil
}

// MarshalJSON always emits "expires_at".
func (c STSCredentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(stsCredentialsWire{
		AccessKeyID:      c.AccessKeyID,
		SecretAccessKey:  c.SecretAccessKey,
		SessionToken:     c.SessionToken,
		ExpiresAt:        &c.ExpiresAt,
		Bucket:           c.Bucket,
		Region:           c.Region,
		Prefix:           c.Prefix,
		EndpointOverride: c.EndpointOverride,
	})
}
