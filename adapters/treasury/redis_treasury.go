package treasury

import (
	"context"
	"fmt"

	"github.com/dust3/gatekeeper/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const stateKey = "gatekeeper:treasury:state"

// RedisTreasury reads the treasury snapshot maintained by the payout
// pipeline. The pipeline writes a hash with balance, floor and enabled
// fields after every confirmed transaction.
type RedisTreasury struct {
	client       *redis.Client
	defaultFloor decimal.Decimal
}

func NewRedisTreasury(client *redis.Client, defaultFloor decimal.Decimal) *RedisTreasury {
	return &RedisTreasury{client: client, defaultFloor: defaultFloor}
}

func (t *RedisTreasury) State(ctx context.Context) (core.TreasuryState, error) {
	fields, err := t.client.HGetAll(ctx, stateKey).Result()
	if err != nil {
		return core.TreasuryState{}, fmt.Errorf("failed to read treasury state: %w", err)
	}
	if len(fields) == 0 {
		return core.TreasuryState{}, fmt.Errorf("treasury state missing: %w", core.ErrNotFound)
	}

	balance, err := decimal.NewFromString(fields["balance"])
	if err != nil {
		return core.TreasuryState{}, fmt.Errorf("malformed treasury balance: %w", err)
	}

	floor := t.defaultFloor
	if raw, ok := fields["min_balance_floor"]; ok {
		floor, err = decimal.NewFromString(raw)
		if err != nil {
			return core.TreasuryState{}, fmt.Errorf("malformed treasury floor: %w", err)
		}
	}

	return core.TreasuryState{
		Balance:         balance,
		MinBalanceFloor: floor,
		BuybackEnabled:  fields["enabled"] == "1" || fields["enabled"] == "true",
	}, nil
}
