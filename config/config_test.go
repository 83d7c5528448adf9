package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/api", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:3000/realtime", cfg.RealtimeURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.ExpiryMargin)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.resto.test")
	t.Setenv("EXPIRY_MARGIN", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.resto.test", cfg.APIBaseURL)
	assert.Equal(t, 45*time.Second, cfg.ExpiryMargin)
}
