package payout

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// SimulatedExecutor fakes the transaction pipeline for local development.
// It returns a base58 signature shaped like a real one after a fixed
// latency, so deadline handling can be exercised end to end.
type SimulatedExecutor struct {
	latency time.Duration
}

func NewSimulatedExecutor(latency time.Duration) *SimulatedExecutor {
	return &SimulatedExecutor{latency: latency}
}

func (e *SimulatedExecutor) Execute(ctx context.Context, itemRef string, wallet string, amount decimal.Decimal) (string, error) {
	if e.latency > 0 {
		timer := time.NewTimer(e.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	sig := make([]byte, 64)
	if _, err := rand.Read(sig); err != nil {
		return "", fmt.Errorf("failed to generate signature: %w", err)
	}
	return base58.Encode(sig), nil
}
