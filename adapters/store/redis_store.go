package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
	"github.com/redis/go-redis/v9"
)

// RedisTokenStore is a Redis implementation of the TokenStore interface.
// Invalidations are visible to every instance behind the load balancer.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client) ports.TokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: "gatekeeper:invalidated:",
	}
}

// InvalidateToken marks a token as invalidated in Redis.
func (s *RedisTokenStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis.
func (s *RedisTokenStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}

// RedisNonceStore records consumed nonces in Redis. SETNX makes the
// check-and-insert a single atomic operation across instances.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

func NewRedisNonceStore(client *redis.Client) ports.NonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "gatekeeper:nonce:",
	}
}

// PutIfAbsent stores the nonce with ttl, returning core.ErrDuplicate when
// another request already consumed it.
func (s *RedisNonceStore) PutIfAbsent(ctx context.Context, nonce string, ttl time.Duration) error {
	key := s.prefix + nonce
	set, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}
	if !set {
		return core.ErrDuplicate
	}
	return nil
}
