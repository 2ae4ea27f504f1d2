package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
)

// NonceConfig controls the clock-skew window and nonce retention.
type NonceConfig struct {
	// MaxBehind is how far in the past a request timestamp may lie.
	MaxBehind time.Duration
	// MaxAhead tolerates client clocks running slightly fast.
	MaxAhead time.Duration
	// Retention is how long consumed nonces stay recorded. It must cover
	// at least MaxBehind or a replayed request could outlive the record.
	Retention time.Duration
}

func DefaultNonceConfig() NonceConfig {
	return NonceConfig{
		MaxBehind: 5 * time.Minute,
		MaxAhead:  time.Minute,
		Retention: 10 * time.Minute,
	}
}

// NonceGuard enforces exactly-once acceptance of request nonces within the
// skew window. Duplicate detection is delegated to the store's atomic
// insert-if-absent, so two concurrent requests with the same nonce cannot
// both pass.
type NonceGuard struct {
	store ports.NonceStore
	cfg   NonceConfig
	now   func() time.Time
}

func NewNonceGuard(store ports.NonceStore, cfg NonceConfig) *NonceGuard {
	return &NonceGuard{store: store, cfg: cfg, now: time.Now}
}

// Admit accepts a request nonce at most once. Rejections are
// non-retryable: the client must regenerate the nonce and resubmit.
func (g *NonceGuard) Admit(ctx context.Context, n core.RequestNonce) error {
	if len(n.Nonce) < 8 || len(n.Nonce) > 255 {
		return core.NonceInvalid("nonce must be 8 to 255 characters")
	}
	if n.Timestamp <= 0 {
		return core.NonceInvalid("request timestamp required")
	}

	now := g.now()
	ts := time.UnixMilli(n.Timestamp)
	if now.Sub(ts) > g.cfg.MaxBehind {
		return core.NonceInvalid("request timestamp too old")
	}
	if ts.Sub(now) > g.cfg.MaxAhead {
		return core.NonceInvalid("request timestamp too far in the future")
	}

	switch err := g.store.PutIfAbsent(ctx, n.Nonce, g.cfg.Retention); {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrDuplicate):
		return core.NonceReused()
	default:
		// Fail closed: without the store we cannot rule out a replay.
		return fmt.Errorf("nonce admission: %w", err)
	}
}
