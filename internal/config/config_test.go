package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"DATABASE_URL", "HTTP_ADDR", "PUBLIC_URL", "SESSION_TTL", "S3_BUCKET", "CORS_ORIGINS", "GOOGLE_CLIENT_ID"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "soulnet.sqlite", cfg.Database.URL)
	assert.False(t, cfg.Database.IsPostgres())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.PublicURL)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.SessionTTL)
	assert.Equal(t, int64(5*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.False(t, cfg.Storage.Enabled())
	assert.False(t, cfg.Google.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://soulnet@db/soulnet")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DURABLE_SESSION_TTL", "72h")
	t.Setenv("PUBLIC_URL", "https://soulnet.example/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.IsPostgres())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 72*time.Hour, cfg.Sessions.DurableTTL)
	assert.Equal(t, "https://soulnet.example", cfg.HTTP.PublicURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_TTL", "forever")

	_, err := Load()
	assert.ErrorContains(t, err, "SESSION_TTL")
}
