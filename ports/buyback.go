package ports

import (
	"context"

	"github.com/dust3/gatekeeper/core"
	"github.com/shopspring/decimal"
)

// PriceOracle provides the current price for an item. Settlement always
// fetches a fresh price; cached values are acceptable for display only.
type PriceOracle interface {
	Price(ctx context.Context, itemRef string) (decimal.Decimal, error)
}

// OwnershipProof answers which wallet owns an item according to the
// external ledger. The answer is trusted as given; settlement only checks
// it against the requesting wallet.
type OwnershipProof interface {
	Owner(ctx context.Context, itemRef string) (wallet string, err error)
}

// TreasuryReader exposes a read-only snapshot of the payout pool.
type TreasuryReader interface {
	State(ctx context.Context) (core.TreasuryState, error)
}

// PayoutExecutor hands a payout to the external transaction pipeline.
// Callers must assume at-least-once semantics and bound the call with a
// context deadline.
type PayoutExecutor interface {
	Execute(ctx context.Context, itemRef string, wallet string, amount decimal.Decimal) (txSignature string, err error)
}
