package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dust3/gatekeeper/adapters/ledger"
	"github.com/dust3/gatekeeper/adapters/store"
	"github.com/dust3/gatekeeper/adapters/treasury"
	"github.com/dust3/gatekeeper/core"
)

// countingOracle returns a fixed price and counts lookups.
type countingOracle struct {
	price decimal.Decimal
	calls atomic.Int64
}

func (o *countingOracle) Price(ctx context.Context, itemRef string) (decimal.Decimal, error) {
	o.calls.Add(1)
	return o.price, nil
}

// funcExecutor delegates payouts to a test function.
type funcExecutor struct {
	fn    func(ctx context.Context) (string, error)
	calls atomic.Int64
}

func (e *funcExecutor) Execute(ctx context.Context, itemRef, wallet string, amount decimal.Decimal) (string, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(ctx)
	}
	return "tx-signature", nil
}

type buybackFixture struct {
	svc         *BuybackService
	oracle      *countingOracle
	ledger      *ledger.StaticLedger
	treasury    *treasury.StaticTreasury
	executor    *funcExecutor
	settlements *store.MemorySettlementStore
	events      *fakePublisher
}

func newBuybackFixture(t *testing.T) *buybackFixture {
	t.Helper()

	f := &buybackFixture{
		oracle:      &countingOracle{price: decimal.NewFromInt(100)},
		ledger:      ledger.NewStaticLedger(),
		treasury:    treasury.NewStaticTreasury(decimal.NewFromInt(10_000), decimal.NewFromInt(100), true),
		executor:    &funcExecutor{},
		settlements: store.NewMemorySettlementStore(),
		events:      &fakePublisher{},
	}
	f.ledger.SetOwner("item-1", "wallet-a")

	cfg := DefaultBuybackConfig() // 2% spread, flat fee of 1
	f.svc = NewBuybackService(
		f.oracle, f.ledger, f.treasury, f.executor, f.settlements, f.events, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func seller() *core.Identity {
	return &core.Identity{ID: "id-1", Wallet: "wallet-a", Active: true}
}

func TestQuoteAppliesSpreadAndFee(t *testing.T) {
	f := newBuybackFixture(t)

	quote, err := f.svc.Quote(context.Background(), "item-1")
	require.NoError(t, err)

	// 100 * (1 - 0.02) - 1 = 97
	assert.True(t, quote.EffectivePrice.Equal(decimal.NewFromInt(97)),
		"got %s", quote.EffectivePrice)
	assert.True(t, quote.OraclePrice.Equal(decimal.NewFromInt(100)))
}

func TestQuoteIsCached(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()

	_, err := f.svc.Quote(ctx, "item-1")
	require.NoError(t, err)
	_, err = f.svc.Quote(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.oracle.calls.Load())

	// Past the TTL the oracle is consulted again.
	now := time.Now()
	f.svc.now = func() time.Time { return now.Add(time.Minute) }
	_, err = f.svc.Quote(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.oracle.calls.Load())
}

func TestSettleSuccess(t *testing.T) {
	f := newBuybackFixture(t)

	result, err := f.svc.Settle(context.Background(), "item-1", seller(), decimal.NewFromInt(96))
	require.NoError(t, err)
	assert.False(t, result.AlreadySettled)
	assert.Equal(t, core.SettlementSuccess, result.Settlement.Status)
	assert.Equal(t, "tx-signature", result.Settlement.TxSignature)
	assert.True(t, result.Settlement.PayoutAmount.Equal(decimal.NewFromInt(97)))

	stored, err := f.settlements.FindByItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, core.SettlementSuccess, stored.Status)
	assert.Equal(t, int64(1), f.events.settlements.Load())
}

func TestSettleRejectsNonOwner(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()
	f.ledger.SetOwner("item-2", "wallet-b")

	intruder := &core.Identity{ID: "id-2", Wallet: "wallet-a", Active: true}
	_, err := f.svc.Settle(ctx, "item-2", intruder, decimal.Zero)
	assert.Equal(t, core.CodeItemNotOwned, core.RejectionCode(err))
	assert.Equal(t, int64(0), f.executor.calls.Load())

	// Nothing was written; the real owner still settles normally.
	_, err = f.settlements.FindByItem(ctx, "item-2")
	assert.ErrorIs(t, err, core.ErrNotFound)

	owner := &core.Identity{ID: "id-3", Wallet: "wallet-b", Active: true}
	result, err := f.svc.Settle(ctx, "item-2", owner, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, core.SettlementSuccess, result.Settlement.Status)
}

func TestSettleUnknownItem(t *testing.T) {
	f := newBuybackFixture(t)

	_, err := f.svc.Settle(context.Background(), "item-unindexed", seller(), decimal.Zero)
	assert.Equal(t, core.CodeItemNotOwned, core.RejectionCode(err))
	assert.Equal(t, int64(0), f.oracle.calls.Load())
}

func TestSettleSlippage(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()

	// The client saw 98 but the fresh price pays only 97.
	_, err := f.svc.Settle(ctx, "item-1", seller(), decimal.NewFromInt(98))
	assert.Equal(t, core.CodeSlippageExceeded, core.RejectionCode(err))
	assert.Equal(t, int64(0), f.executor.calls.Load())

	// Nothing was written; accepting the lower payout works.
	result, err := f.svc.Settle(ctx, "item-1", seller(), decimal.NewFromInt(96))
	require.NoError(t, err)
	assert.Equal(t, core.SettlementSuccess, result.Settlement.Status)
}

func TestSettleTreasuryFloor(t *testing.T) {
	f := newBuybackFixture(t)
	f.treasury.SetBalance(decimal.NewFromInt(150))

	// 150 - 97 = 53 would land below the floor of 100.
	_, err := f.svc.Settle(context.Background(), "item-1", seller(), decimal.Zero)
	assert.Equal(t, core.CodeTreasuryInsufficient, core.RejectionCode(err))
	assert.Equal(t, int64(0), f.executor.calls.Load())
}

func TestSettleDisabled(t *testing.T) {
	f := newBuybackFixture(t)
	f.treasury.SetEnabled(false)

	_, err := f.svc.Settle(context.Background(), "item-1", seller(), decimal.Zero)
	assert.Equal(t, core.CodeBuybackDisabled, core.RejectionCode(err))
	assert.Equal(t, int64(0), f.oracle.calls.Load())
}

func TestSettleIsIdempotentPerItem(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()

	first, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.NoError(t, err)

	second, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, first.Settlement.ID, second.Settlement.ID)
	assert.Equal(t, core.SettlementSuccess, second.Settlement.Status)

	// The payout went out exactly once.
	assert.Equal(t, int64(1), f.executor.calls.Load())
}

func TestSettleConcurrentRequestsPayOnce(t *testing.T) {
	f := newBuybackFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	var settled, duplicate atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Settle(context.Background(), "item-1", seller(), decimal.Zero)
			if assert.NoError(t, err) {
				if result.AlreadySettled {
					duplicate.Add(1)
				} else {
					settled.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), settled.Load())
	assert.Equal(t, int64(workers-1), duplicate.Load())
	assert.Equal(t, int64(1), f.executor.calls.Load())
}

func TestSettleFailureAllowsRetry(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()

	f.executor.fn = func(ctx context.Context) (string, error) {
		return "", errors.New("rpc unavailable")
	}
	_, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.Error(t, err)

	stored, err := f.settlements.FindByItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, core.SettlementFailed, stored.Status)

	// The failed row is reclaimed by the retry.
	f.executor.fn = nil
	result, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, result.AlreadySettled)
	assert.Equal(t, core.SettlementSuccess, result.Settlement.Status)
}

func TestSettleTimeoutLeavesPending(t *testing.T) {
	f := newBuybackFixture(t)
	ctx := context.Background()

	f.executor.fn = func(ctx context.Context) (string, error) {
		return "", context.DeadlineExceeded
	}
	result, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, core.SettlementPending, result.Settlement.Status)

	// The payout may have landed; the item stays blocked until an
	// operator resolves the pending row.
	f.executor.fn = nil
	second, err := f.svc.Settle(ctx, "item-1", seller(), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, core.SettlementPending, second.Settlement.Status)
	assert.Equal(t, int64(1), f.executor.calls.Load())
}

func TestSettleNonPositivePayout(t *testing.T) {
	f := newBuybackFixture(t)
	f.oracle.price = decimal.NewFromInt(1) // 1 * 0.98 - 1 < 0

	_, err := f.svc.Settle(context.Background(), "item-1", seller(), decimal.Zero)
	assert.Equal(t, core.CodeSlippageExceeded, core.RejectionCode(err))
}
