package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/arena/internal/domain"
)

func newTestTokenStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenStore(client), mr
}

func TestRedisTokenStore_ExchangeCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestTokenStore(t)

	code, err := store.IssueExchangeCode(ctx, domain.AuthProviderGoogle, 42, time.Minute)
	require.NoError(t, err)

	userID, err := store.ConsumeExchangeCode(ctx, domain.AuthProviderGoogle, code)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	_, err = store.ConsumeExchangeCode(ctx, domain.AuthProviderGoogle, code)
	assert.ErrorIs(t, err, domain.ErrCallbackMismatch)
}

func TestRedisTokenStore_ExchangeCodeProviderMismatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestTokenStore(t)

	code, err := store.IssueExchangeCode(ctx, domain.AuthProviderGoogle, 42, time.Minute)
	require.NoError(t, err)

	_, err = store.ConsumeExchangeCode(ctx, domain.AuthProviderGitHub, code)
	assert.ErrorIs(t, err, domain.ErrCallbackMismatch)
}

func TestRedisTokenStore_ExchangeCodeExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestTokenStore(t)

	code, err := store.IssueExchangeCode(ctx, domain.AuthProviderGitHub, 7, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.ConsumeExchangeCode(ctx, domain.AuthProviderGitHub, code)
	assert.ErrorIs(t, err, domain.ErrCallbackMismatch)
}

func TestRedisTokenStore_Revoke(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestTokenStore(t)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Hour)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-2", time.Now().Add(-time.Second)))
	revoked, err = store.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
