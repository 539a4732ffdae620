package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sumire/arena/internal/domain"
)

// RedisTokenStore keeps one-time OAuth exchange codes and revoked token IDs.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "arena:"}
}

// IssueExchangeCode mints a code that resolves to userID for provider once.
func (s *RedisTokenStore) IssueExchangeCode(ctx context.Context, provider domain.AuthProvider, userID int64, ttl time.Duration) (string, error) {
	code := uuid.NewString()
	value := string(provider) + ":" + strconv.FormatInt(userID, 10)
	if err := s.client.Set(ctx, s.prefix+"exchange:"+code, value, ttl).Err(); err != nil {
		return "", fmt.Errorf("store exchange code: %w", err)
	}
	return code, nil
}

// ConsumeExchangeCode resolves and deletes a code. A missing, expired or
// already used code, or one minted for another provider, is a mismatch.
func (s *RedisTokenStore) ConsumeExchangeCode(ctx context.Context, provider domain.AuthProvider, code string) (int64, error) {
	value, err := s.client.GetDel(ctx, s.prefix+"exchange:"+code).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: code not found or already used", domain.ErrCallbackMismatch)
	}
	if err != nil {
		return 0, fmt.Errorf("consume exchange code: %w", err)
	}

	p, id, ok := strings.Cut(value, ":")
	if !ok || p != string(provider) {
		return 0, fmt.Errorf("%w: code issued for another provider", domain.ErrCallbackMismatch)
	}
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed code", domain.ErrCallbackMismatch)
	}
	return userID, nil
}

// Revoke marks a token ID revoked until it would have expired anyway.
func (s *RedisTokenStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+"revoked:"+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token ID has been revoked.
func (s *RedisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+"revoked:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
