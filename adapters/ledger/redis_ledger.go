package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dust3/gatekeeper/core"
)

// RedisLedger reads the item-to-owner mapping maintained by the mint
// indexer. The indexer writes one key per item after every confirmed
// transfer.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "gatekeeper:ledger:owner:",
	}
}

func (l *RedisLedger) Owner(ctx context.Context, itemRef string) (string, error) {
	wallet, err := l.client.Get(ctx, l.prefix+itemRef).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("no owner for item %q: %w", itemRef, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve item owner: %w", err)
	}
	return wallet, nil
}
