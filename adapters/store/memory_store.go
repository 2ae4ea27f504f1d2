package store

import (
	"context"
	"sync"
	"time"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
)

// MemoryTokenStore is an in-memory implementation of the TokenStore
// interface, suitable for single-instance deployments and tests.
type MemoryTokenStore struct {
	invalidated map[string]time.Time
	mu          sync.RWMutex
}

func NewMemoryTokenStore() ports.TokenStore {
	return &MemoryTokenStore{invalidated: make(map[string]time.Time)}
}

// InvalidateToken marks a token as invalidated until its natural expiry.
func (s *MemoryTokenStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated[tokenID] = time.Now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks if a token has been invalidated.
func (s *MemoryTokenStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.invalidated[tokenID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}

// MemoryNonceStore records consumed nonces in memory.
type MemoryNonceStore struct {
	seen map[string]time.Time
	mu   sync.Mutex
	now  func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{seen: make(map[string]time.Time), now: time.Now}
}

// PutIfAbsent records the nonce, returning core.ErrDuplicate when it was
// already consumed and its retention has not elapsed.
func (s *MemoryNonceStore) PutIfAbsent(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.seen[nonce]; ok && now.Before(expiry) {
		return core.ErrDuplicate
	}
	s.seen[nonce] = now.Add(ttl)

	// Opportunistic sweep keeps the map bounded without a background job.
	for n, expiry := range s.seen {
		if now.After(expiry) {
			delete(s.seen, n)
		}
	}
	return nil
}

// MemoryIdentityStore keeps identities keyed by wallet address.
type MemoryIdentityStore struct {
	byWallet map[string]*core.Identity
	mu       sync.RWMutex
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{byWallet: make(map[string]*core.Identity)}
}

func (s *MemoryIdentityStore) FindByWallet(ctx context.Context, wallet string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byWallet[wallet]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

func (s *MemoryIdentityStore) Create(ctx context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byWallet[identity.Wallet]; ok {
		return core.ErrDuplicate
	}
	clone := *identity
	s.byWallet[identity.Wallet] = &clone
	return nil
}

// MemorySettlementStore keeps settlements keyed by item reference with the
// same admission semantics as the Postgres store.
type MemorySettlementStore struct {
	byItem map[string]*core.Settlement
	byID   map[string]*core.Settlement
	mu     sync.Mutex
	now    func() time.Time
}

func NewMemorySettlementStore() *MemorySettlementStore {
	return &MemorySettlementStore{
		byItem: make(map[string]*core.Settlement),
		byID:   make(map[string]*core.Settlement),
		now:    time.Now,
	}
}

// CreatePending inserts the settlement as pending unless one already
// exists for the item. A failed settlement is reclaimed in place; pending
// and success settlements are returned with core.ErrDuplicate. The whole
// check-and-insert runs under one lock.
func (s *MemorySettlementStore) CreatePending(ctx context.Context, settlement *core.Settlement) (*core.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.byItem[settlement.ItemRef]; ok {
		if existing.Status != core.SettlementFailed {
			clone := *existing
			return &clone, core.ErrDuplicate
		}
		existing.Status = core.SettlementPending
		existing.Wallet = settlement.Wallet
		existing.PayoutAmount = settlement.PayoutAmount
		existing.IdempotencyKey = settlement.IdempotencyKey
		existing.TxSignature = ""
		existing.UpdatedAt = now
		clone := *existing
		return &clone, nil
	}

	clone := *settlement
	clone.Status = core.SettlementPending
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.byItem[clone.ItemRef] = &clone
	s.byID[clone.ID] = &clone
	result := clone
	return &result, nil
}

func (s *MemorySettlementStore) UpdateStatus(ctx context.Context, id string, status core.SettlementStatus, txSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settlement, ok := s.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	settlement.Status = status
	settlement.TxSignature = txSignature
	settlement.UpdatedAt = s.now()
	return nil
}

func (s *MemorySettlementStore) FindByItem(ctx context.Context, itemRef string) (*core.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settlement, ok := s.byItem[itemRef]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *settlement
	return &clone, nil
}
