package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend.local/")
	t.Setenv("COOKIE_HASH_KEY", "")
	t.Setenv("COOKIE_BLOCK_KEY", "")
	t.Setenv("HANDOFF_SECRET", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://backend.local", cfg.BackendURL)
	assert.Equal(t, 300*time.Second, cfg.PollBudget)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, cfg.PollInterval, cfg.CountdownStep)
	assert.Equal(t, "embed", cfg.HandoffMode)
	assert.False(t, cfg.HasCookieKeys())
}

func TestFromEnvRejectsUnknownHandoffMode(t *testing.T) {
	t.Setenv("HANDOFF_MODE", "popup")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvOmiseNeedsKeys(t *testing.T) {
	t.Setenv("STATUS_SOURCE", "omise")
	t.Setenv("OMISE_PUBLIC_KEY", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestCookieKeysFromSecret(t *testing.T) {
	t.Setenv("COOKIE_HASH_KEY", "")
	t.Setenv("COOKIE_BLOCK_KEY", "")
	t.Setenv("HANDOFF_SECRET", "correct horse battery staple")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.True(t, cfg.HasCookieKeys())
	assert.Len(t, cfg.CookieHashKey, 32)
	assert.Len(t, cfg.CookieBlockKey, 32)
	assert.NotEqual(t, cfg.CookieHashKey, cfg.CookieBlockKey)

	h, b, err := DeriveCookieKeys([]byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Equal(t, h, cfg.CookieHashKey)
	assert.Equal(t, b, cfg.CookieBlockKey)
}

func TestJournalKeyLength(t *testing.T) {
	t.Setenv("JOURNAL_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))
	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("JOURNAL_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Len(t, cfg.JournalKey, 32)
}
