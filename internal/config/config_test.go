package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresBackend(t *testing.T) {
	t.Setenv("PROPSHIELD_BACKEND_URL", "")
	t.Setenv("PROPSHIELD_BACKEND_ANON_KEY", "")
	t.Setenv("PROPSHIELD_JWT_SECRET", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "PROPSHIELD_BACKEND_URL")
	assert.Contains(t, err.Error(), "PROPSHIELD_BACKEND_ANON_KEY")
	assert.Contains(t, err.Error(), "PROPSHIELD_JWT_SECRET")
}

func TestLoadSecretsStableAcrossLoads(t *testing.T) {
	t.Setenv("PROPSHIELD_BACKEND_URL", "https://backend.example")
	t.Setenv("PROPSHIELD_BACKEND_ANON_KEY", "anon")
	t.Setenv("PROPSHIELD_JWT_SECRET", "jwt")
	t.Setenv("PROPSHIELD_STATE_SECRET", "")

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Equal(t, first.JWTSecret, second.JWTSecret)
	assert.Equal(t, first.StateSecret, second.StateSecret)
	assert.Len(t, first.StateSecret, 32)
	assert.NotEqual(t, first.JWTSecret, first.StateSecret)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROPSHIELD_BACKEND_URL", "https://backend.example/")
	t.Setenv("PROPSHIELD_BACKEND_ANON_KEY", "anon")
	t.Setenv("PROPSHIELD_API_URL", "")
	t.Setenv("PROPSHIELD_JWT_SECRET", "jwt")
	t.Setenv("PROPSHIELD_STATE_SECRET", "")
	t.Setenv("PROPSHIELD_MAX_FILES", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example", cfg.BackendURL)
	assert.Equal(t, "http://localhost:3000/api", cfg.APIURL)
	assert.Equal(t, "http://localhost:3000/api/auth/callback", cfg.CallbackURL())
	assert.Equal(t, "documents", cfg.DocumentsBucket)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSize)
	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)
	assert.Equal(t, []byte("jwt"), cfg.JWTSecret)
	assert.NotEmpty(t, cfg.StateSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROPSHIELD_BACKEND_URL", "https://backend.example")
	t.Setenv("PROPSHIELD_BACKEND_ANON_KEY", "anon")
	t.Setenv("PROPSHIELD_SIGNED_URL_TTL", "5m")
	t.Setenv("PROPSHIELD_S3_USE_SSL", "true")
	t.Setenv("PROPSHIELD_JWT_SECRET", "s3cret")
	t.Setenv("PROPSHIELD_SESSION_PLATFORM", "headless")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SignedURLTTL)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, "headless", cfg.SessionPlatform)
}
