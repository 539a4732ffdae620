package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/arena/internal/storage"
)

func backends(t *testing.T) map[string]storage.Storage {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]storage.Storage{
		"memory": storage.NewMemory(),
		"file":   storage.NewFile(filepath.Join(t.TempDir(), "nested", "state.json")),
		"redis":  storage.NewRedis(rdb, "browser-1", time.Hour),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("auth.token")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, s.Set("auth.token", "tok-1"))
			require.NoError(t, s.Set("auth.oauth_pending", "google"))

			v, err := s.Get("auth.token")
			require.NoError(t, err)
			assert.Equal(t, "tok-1", v)

			require.NoError(t, s.Set("auth.token", "tok-2"))
			v, err = s.Get("auth.token")
			require.NoError(t, err)
			assert.Equal(t, "tok-2", v)

			require.NoError(t, s.Delete("auth.token"))
			_, err = s.Get("auth.token")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			v, err = s.Get("auth.oauth_pending")
			require.NoError(t, err)
			assert.Equal(t, "google", v)
		})
	}
}

func TestStorage_DeleteMissingKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Delete("never-set"))
		})
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, storage.NewFile(path).Set("auth.token", "persisted"))

	v, err := storage.NewFile(path).Get("auth.token")
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
}

func TestRedis_NamespacesAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := storage.NewRedis(rdb, "a", 0)
	b := storage.NewRedis(rdb, "b", 0)

	require.NoError(t, a.Set("auth.token", "for-a"))
	_, err := b.Get("auth.token")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
