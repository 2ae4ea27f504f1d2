package treasury

import (
	"context"
	"sync"

	"github.com/dust3/gatekeeper/core"
	"github.com/shopspring/decimal"
)

// StaticTreasury holds a fixed treasury snapshot. It backs local
// development and tests.
type StaticTreasury struct {
	mu    sync.RWMutex
	state core.TreasuryState
}

func NewStaticTreasury(balance, floor decimal.Decimal, enabled bool) *StaticTreasury {
	return &StaticTreasury{
		state: core.TreasuryState{
			Balance:         balance,
			MinBalanceFloor: floor,
			BuybackEnabled:  enabled,
		},
	}
}

func (t *StaticTreasury) State(ctx context.Context) (core.TreasuryState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, nil
}

// SetBalance replaces the snapshot balance.
func (t *StaticTreasury) SetBalance(balance decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Balance = balance
}

// SetEnabled flips the buyback kill switch.
func (t *StaticTreasury) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.BuybackEnabled = enabled
}
