package config

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("RESPONDER_DELAY", "10ms")

	cfg, err := LoadServerConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 2*time.Hour, cfg.TokenExpiration)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Millisecond, cfg.ResponderDelay)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadServerConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadServerConfig(context.Background())
	assert.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CHATBOT_API_URL", "http://api.test/")
	t.Setenv("CHATBOT_READ_TIMEOUT", "oops")
	t.Setenv("CHATBOT_CONNECT_TIMEOUT", "2s")
	t.Setenv("CHATBOT_SESSION_KEY", hex.EncodeToString(make([]byte, 32)))
	t.Setenv("CHATBOT_DEBUG", "true")

	cfg, err := LoadClientConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", cfg.BaseURL)
	assert.Equal(t, 300*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.DeleteTimeout)
	assert.Len(t, cfg.SessionKey, 32)
	assert.True(t, cfg.Debug)

	t.Setenv("CHATBOT_SESSION_KEY", "abc")
	_, err = LoadClientConfig(context.Background())
	assert.Error(t, err)
}

func TestNonPositiveDurationsFallBack(t *testing.T) {
	for _, raw := range []string{"0s", "0", "-5s"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("CHATBOT_SESSION_KEY", "")
			t.Setenv("CHATBOT_READ_TIMEOUT", raw)
			t.Setenv("CHATBOT_REQUEST_TIMEOUT", raw)
			t.Setenv("CHATBOT_SESSION_TTL", raw)

			cfg, err := LoadClientConfig(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 300*time.Second, cfg.ReadTimeout)
			assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
			assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
		})
	}
}
