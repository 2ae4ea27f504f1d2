package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/dust3/gatekeeper/core"
	"github.com/shopspring/decimal"
)

// StaticOracle serves prices from a fixed table. It backs local
// development and acts as the fallback when no market feed is wired.
type StaticOracle struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	fallback decimal.Decimal
}

// NewStaticOracle returns an oracle that answers fallback for unknown items.
// A zero fallback makes unknown items an error instead.
func NewStaticOracle(fallback decimal.Decimal) *StaticOracle {
	return &StaticOracle{
		prices:   make(map[string]decimal.Decimal),
		fallback: fallback,
	}
}

// SetPrice pins the price for a single item.
func (o *StaticOracle) SetPrice(itemRef string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[itemRef] = price
}

func (o *StaticOracle) Price(ctx context.Context, itemRef string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if price, ok := o.prices[itemRef]; ok {
		return price, nil
	}
	if o.fallback.IsPositive() {
		return o.fallback, nil
	}
	return decimal.Zero, fmt.Errorf("no price for item %q: %w", itemRef, core.ErrNotFound)
}
