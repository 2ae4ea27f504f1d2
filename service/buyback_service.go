package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
)

// BuybackConfig is the pricing policy applied to every quote.
type BuybackConfig struct {
	// SpreadBps is the discount below oracle price, in basis points.
	SpreadBps int64
	// FeeFlat is subtracted after the spread.
	FeeFlat decimal.Decimal
	// QuoteTTL bounds how long a display quote may be cached.
	QuoteTTL time.Duration
	// PayoutTimeout bounds one payout executor call.
	PayoutTimeout time.Duration
}

func DefaultBuybackConfig() BuybackConfig {
	return BuybackConfig{
		SpreadBps:     200, // 2%
		FeeFlat:       decimal.NewFromInt(1),
		QuoteTTL:      30 * time.Second,
		PayoutTimeout: 30 * time.Second,
	}
}

// SettleResult is the outcome of one settlement request.
type SettleResult struct {
	Settlement *core.Settlement
	// AlreadySettled marks a duplicate request; Settlement then holds the
	// prior record instead of a new one.
	AlreadySettled bool
}

type cachedQuote struct {
	quote   *core.BuybackQuote
	staleAt time.Time
}

// BuybackService prices items and settles payouts. Quotes handed to
// clients may be cached; the settlement path always re-prices from the
// oracle so a stale quote can never be exercised.
type BuybackService struct {
	oracle      ports.PriceOracle
	ledger      ports.OwnershipProof
	treasury    ports.TreasuryReader
	executor    ports.PayoutExecutor
	settlements ports.SettlementStore
	events      ports.EventPublisher
	cfg         BuybackConfig
	log         *slog.Logger

	mu     sync.Mutex
	quotes map[string]cachedQuote
	now    func() time.Time
}

func NewBuybackService(
	oracle ports.PriceOracle,
	ledger ports.OwnershipProof,
	treasury ports.TreasuryReader,
	executor ports.PayoutExecutor,
	settlements ports.SettlementStore,
	events ports.EventPublisher,
	cfg BuybackConfig,
	log *slog.Logger,
) *BuybackService {
	return &BuybackService{
		oracle:      oracle,
		ledger:      ledger,
		treasury:    treasury,
		executor:    executor,
		settlements: settlements,
		events:      events,
		cfg:         cfg,
		log:         log,
		quotes:      make(map[string]cachedQuote),
		now:         time.Now,
	}
}

// Quote prices one item for display. Results are cached for QuoteTTL.
func (s *BuybackService) Quote(ctx context.Context, itemRef string) (*core.BuybackQuote, error) {
	s.mu.Lock()
	if c, ok := s.quotes[itemRef]; ok && s.now().Before(c.staleAt) {
		s.mu.Unlock()
		return c.quote, nil
	}
	s.mu.Unlock()

	quote, err := s.price(ctx, itemRef)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.quotes[itemRef] = cachedQuote{quote: quote, staleAt: quote.ExpiresAt}
	s.mu.Unlock()
	return quote, nil
}

func (s *BuybackService) price(ctx context.Context, itemRef string) (*core.BuybackQuote, error) {
	oraclePrice, err := s.oracle.Price(ctx, itemRef)
	if err != nil {
		return nil, fmt.Errorf("failed to price item %q: %w", itemRef, err)
	}

	now := s.now()
	return &core.BuybackQuote{
		ItemRef:        itemRef,
		OraclePrice:    oraclePrice,
		SpreadBps:      s.cfg.SpreadBps,
		FeeFlat:        s.cfg.FeeFlat,
		EffectivePrice: core.EffectivePrice(oraclePrice, s.cfg.SpreadBps, s.cfg.FeeFlat),
		QuotedAt:       now,
		ExpiresAt:      now.Add(s.cfg.QuoteTTL),
	}, nil
}

// Settle executes a buyback for itemRef owned by identity. The ledger must
// attest that identity's wallet owns the item; anyone else is refused
// before anything is priced or written. minAcceptable is the payout the
// client agreed to; a fresh price below it aborts before anything is
// written.
//
// The settlement row is the idempotency record: at most one non-failed
// settlement exists per item, so concurrent or repeated requests produce
// exactly one payout. A payout that times out stays pending for operator
// reconciliation rather than risking a double send.
func (s *BuybackService) Settle(ctx context.Context, itemRef string, identity *core.Identity, minAcceptable decimal.Decimal) (*SettleResult, error) {
	state, err := s.treasury.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read treasury state: %w", err)
	}
	if !state.BuybackEnabled {
		return nil, core.BuybackDisabled()
	}

	owner, err := s.ledger.Owner(ctx, itemRef)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ItemNotOwned()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve item owner: %w", err)
	}
	if owner != identity.Wallet {
		s.log.Warn("buyback refused, wallet does not own item",
			"item_ref", itemRef, "wallet", identity.Wallet)
		return nil, core.ItemNotOwned()
	}

	quote, err := s.price(ctx, itemRef)
	if err != nil {
		return nil, err
	}
	payout := quote.EffectivePrice

	if !payout.IsPositive() {
		return nil, core.SlippageExceeded("effective price is not positive")
	}
	if payout.LessThan(minAcceptable) {
		return nil, core.SlippageExceeded(fmt.Sprintf(
			"current payout %s is below accepted minimum %s", payout, minAcceptable))
	}
	if state.Balance.Sub(payout).LessThan(state.MinBalanceFloor) {
		return nil, core.TreasuryInsufficient()
	}

	now := s.now()
	settlement := &core.Settlement{
		ID:             uuid.New().String(),
		ItemRef:        itemRef,
		Wallet:         identity.Wallet,
		PayoutAmount:   payout,
		IdempotencyKey: uuid.New().String(),
		Status:         core.SettlementPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	admitted, err := s.settlements.CreatePending(ctx, settlement)
	if errors.Is(err, core.ErrDuplicate) {
		return &SettleResult{Settlement: admitted, AlreadySettled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to admit settlement: %w", err)
	}

	return s.execute(ctx, admitted)
}

func (s *BuybackService) execute(ctx context.Context, settlement *core.Settlement) (*SettleResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.cfg.PayoutTimeout)
	defer cancel()

	txSig, err := s.executor.Execute(execCtx, settlement.ItemRef, settlement.Wallet, settlement.PayoutAmount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The payout may still land on chain. Leave the row pending so
			// the item stays blocked until an operator reconciles it.
			s.log.Error("payout timed out, settlement left pending",
				"settlement_id", settlement.ID, "item_ref", settlement.ItemRef, "error", err)
			return &SettleResult{Settlement: settlement}, nil
		}

		if updErr := s.settlements.UpdateStatus(ctx, settlement.ID, core.SettlementFailed, ""); updErr != nil {
			s.log.Error("failed to mark settlement failed",
				"settlement_id", settlement.ID, "error", updErr)
		}
		settlement.Status = core.SettlementFailed
		s.publish(ctx, settlement)
		return nil, fmt.Errorf("payout execution failed: %w", err)
	}

	if err := s.settlements.UpdateStatus(ctx, settlement.ID, core.SettlementSuccess, txSig); err != nil {
		// The payout went out; surfacing an error here would invite a
		// retry. Report success and let reconciliation fix the row.
		s.log.Error("failed to mark settlement success",
			"settlement_id", settlement.ID, "tx", txSig, "error", err)
	}
	settlement.Status = core.SettlementSuccess
	settlement.TxSignature = txSig
	settlement.UpdatedAt = s.now()

	s.publish(ctx, settlement)
	s.log.Info("buyback settled",
		"settlement_id", settlement.ID,
		"item_ref", settlement.ItemRef,
		"wallet", settlement.Wallet,
		"payout", settlement.PayoutAmount,
		"tx", txSig)
	return &SettleResult{Settlement: settlement}, nil
}

func (s *BuybackService) publish(ctx context.Context, settlement *core.Settlement) {
	if err := s.events.PublishSettlement(ctx, settlement); err != nil {
		s.log.Warn("failed to publish settlement event",
			"settlement_id", settlement.ID, "error", err)
	}
}

// History returns the settlement for an item, if any.
func (s *BuybackService) History(ctx context.Context, itemRef string) (*core.Settlement, error) {
	return s.settlements.FindByItem(ctx, itemRef)
}
