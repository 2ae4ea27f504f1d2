package ports

import (
	"context"
	"time"

	"github.com/dust3/gatekeeper/core"
)

// TokenStore tracks invalidated refresh tokens.
type TokenStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// NonceStore records consumed request nonces for replay rejection.
type NonceStore interface {
	// PutIfAbsent stores the nonce for at least ttl. It returns
	// core.ErrDuplicate when the nonce has been seen before; the check and
	// the insert are a single atomic operation.
	PutIfAbsent(ctx context.Context, nonce string, ttl time.Duration) error
}

// IdentityStore persists wallet identities.
type IdentityStore interface {
	// FindByWallet returns core.ErrNotFound when no identity exists.
	FindByWallet(ctx context.Context, wallet string) (*core.Identity, error)
	// Create returns core.ErrDuplicate when another request won the
	// creation race for the same wallet.
	Create(ctx context.Context, identity *core.Identity) error
}

// SettlementStore persists buyback settlements with one-per-item admission.
type SettlementStore interface {
	// CreatePending atomically inserts s as pending unless a settlement for
	// s.ItemRef already exists. A prior failed settlement is reclaimed: its
	// row flips back to pending with the new amount and the reclaimed record
	// is returned. When a pending or success settlement already exists, the
	// existing record is returned together with core.ErrDuplicate.
	CreatePending(ctx context.Context, s *core.Settlement) (*core.Settlement, error)

	// UpdateStatus transitions a settlement and records the executor's
	// transaction signature, if any.
	UpdateStatus(ctx context.Context, id string, status core.SettlementStatus, txSignature string) error

	// FindByItem returns core.ErrNotFound when the item has no settlement.
	FindByItem(ctx context.Context, itemRef string) (*core.Settlement, error)
}
