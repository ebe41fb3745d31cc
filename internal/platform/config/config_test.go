package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "0123456789abcdef")

		cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "sqlite3", cfg.Store.Driver)
		assert.Equal(t, "audit.db", cfg.Store.DBPath)
		assert.Equal(t, 15*time.Minute, cfg.Server.TokenTTL)
		assert.False(t, cfg.RetentionEnabled())
		assert.Empty(t, cfg.Server.TrustedProxies)
	})

	t.Run("dotenv file is read", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("AUDIT_JWT_SIGNING_KEY=from-dotenv-file-123\nAUDIT_RETENTION_DAYS=365\n"), 0o600))
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "")
		os.Unsetenv("AUDIT_JWT_SIGNING_KEY")
		t.Setenv("AUDIT_RETENTION_DAYS", "")
		os.Unsetenv("AUDIT_RETENTION_DAYS")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv-file-123", cfg.Server.JWTSigningKey)
		assert.True(t, cfg.RetentionEnabled())
	})

	t.Run("missing signing key", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})

	t.Run("postgres requires a URL", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("AUDIT_STORE_DRIVER", "postgres")
		t.Setenv("AUDIT_DATABASE_URL", "")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})

	t.Run("trusted proxies", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("AUDIT_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.1")
		cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.Server.TrustedProxies)

		t.Setenv("AUDIT_TRUSTED_PROXIES", "lb.internal")
		_, err = Load(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("AUDIT_STORE_DRIVER", "mongodb")
		_, err := Load(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})
}
