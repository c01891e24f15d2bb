package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSTSCredentials_IsExpired(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		creds := STSCredentials{ExpiresAt: time.Now().Add(-time.Minute)}
		assert.True(t, creds.IsExpired())
	})

	t.Run("not expired", func(t *testing.T) {
		creds := STSCredentials{ExpiresAt: time.Now().Add(time.Hour)}
		assert.False(t, creds.IsExpired())
	})
}

func TestSTSCredentials_ExpiresWithin(t *testing.T) {
	creds := STSCredentials{ExpiresAt: time.Now().Add(4 * time.Minute)}

	assert.True(t, creds.ExpiresWithin(5*time.Minute))
	assert.False(t, creds.ExpiresWithin(time.Minute))
}

func TestSTSCredentials_UnmarshalJSON_AcceptsExpirationAlias(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	payload := []byte(`{
		"access_key_id": "AKIA",
		"secret_access_key": "secret",
		"session_token": "token",
		"expiration": "` + expiresAt.Format(time.RFC3339) + `",
		"bucket": "my-bucket",
		"region": "us-east-1"
	}`)

	var creds STSCredentials
	require.NoError(t, json.Unmarshal(payload, &creds))

	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Equal(t, "my-bucket", creds.Bucket)
	assert.True(t, creds.ExpiresAt.Equal(expiresAt))
}

func TestSTSCredentials_UnmarshalJSON_AcceptsExpiresAt(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	payload := []byte(`{
		"access_key_id": "AKIA",
		"secret_access_key": "secret",
		"session_token": "token",
		"expires_at": "` + expiresAt.Format(time.RFC3339) + `",
		"bucket": "my-bucket",
		"region": "us-east-1"
	}`)

	var creds STSCredentials
	require.NoError(t, json.Unmarshal(payload, &creds))
	assert.True(t, creds.ExpiresAt.Equal(expiresAt))
}
