package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, int64(5), cfg.MaxUploadMB)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "/uploads", cfg.StoragePublicURL)
	assert.False(t, cfg.CookieSecure)
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	env := "DATABASE_URL=postgres://file\nJWT_SECRET=from-file\nPORT=9000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ACCESS_TOKEN_TTL", "1h")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")

	cfg = &Config{DatabaseURL: "x", JWTSecret: "same", JWTRefreshSecret: "same"}
	assert.Error(t, cfg.Validate())

	cfg.JWTRefreshSecret = "other"
	assert.NoError(t, cfg.Validate())
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSOrigins: " http://a.test, ,http://b.test "}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())
}
