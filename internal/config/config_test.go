package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "TOKEN_TTL", "EXCHANGE_CODE_TTL", "API_BASE_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 2*time.Minute, cfg.ExchangeCodeTTL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "http://localhost:8080/api/v1/auth/oauth/google/callback", cfg.RedirectURL("google"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad port", map[string]string{"JWT_SECRET": "0123456789abcdef", "PORT": "70000"}},
		{"unparsable port", map[string]string{"JWT_SECRET": "0123456789abcdef", "PORT": "eighty"}},
		{"half google", map[string]string{"JWT_SECRET": "0123456789abcdef", "GOOGLE_CLIENT_ID": "id"}},
		{"relative frontend", map[string]string{"JWT_SECRET": "0123456789abcdef", "FRONTEND_URL": "/callback"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadClient(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARENA_STORAGE_PATH", filepath.Join(dir, "s.json"))
	t.Setenv("ARENA_SERVER_URL", "https://arena.example/api/v1")
	t.Setenv("ARENA_LOGOUT_TIMEOUT", "")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s.json"), cfg.StoragePath)
	assert.Equal(t, "https://arena.example/api/v1", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.LogoutTimeout)

	t.Setenv("ARENA_SERVER_URL", "not a url")
	_, err = LoadClient()
	assert.Error(t, err)
}

func TestLoadClient_DefaultStoragePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("ARENA_STORAGE_PATH", "")
	t.Setenv("ARENA_REDIS_URL", "")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "session.json", filepath.Base(cfg.StoragePath))
	assert.Equal(t, "arena", filepath.Base(filepath.Dir(cfg.StoragePath)))
}
