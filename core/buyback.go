package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuybackQuote is a priced offer for one item. Quotes handed to clients are
// for display only; settlement always re-prices from the oracle.
type BuybackQuote struct {
	ItemRef        string
	OraclePrice    decimal.Decimal
	SpreadBps      int64
	FeeFlat        decimal.Decimal
	EffectivePrice decimal.Decimal // oracle * (1 - spread) - fee
	QuotedAt       time.Time
	ExpiresAt      time.Time
}

// EffectivePrice applies the spread and flat fee to an oracle price.
func EffectivePrice(oracle decimal.Decimal, spreadBps int64, feeFlat decimal.Decimal) decimal.Decimal {
	spread := decimal.NewFromInt(spreadBps).Div(decimal.NewFromInt(10_000))
	return oracle.Mul(decimal.NewFromInt(1).Sub(spread)).Sub(feeFlat)
}

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSuccess SettlementStatus = "success"
	SettlementFailed  SettlementStatus = "failed"
)

// Settlement records one buyback payout attempt for an item. At most one
// success may ever exist per ItemRef; only success is terminal.
type Settlement struct {
	ID             string
	ItemRef        string
	Wallet         string // Destination wallet for the payout
	PayoutAmount   decimal.Decimal
	IdempotencyKey string
	Status         SettlementStatus
	TxSignature    string // Set by the payout executor on confirmation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TreasuryState is a read-only snapshot of the payout pool. The settlement
// pipeline only consults it for admission; balances are mutated by the
// external payout executor.
type TreasuryState struct {
	Balance         decimal.Decimal
	MinBalanceFloor decimal.Decimal
	BuybackEnabled  bool
}
