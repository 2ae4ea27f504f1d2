package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dust3/gatekeeper/core"
)

// StaticLedger serves ownership facts from a fixed table. It backs local
// development and tests.
type StaticLedger struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewStaticLedger() *StaticLedger {
	return &StaticLedger{owners: make(map[string]string)}
}

// SetOwner pins the owning wallet for a single item.
func (l *StaticLedger) SetOwner(itemRef, wallet string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[itemRef] = wallet
}

func (l *StaticLedger) Owner(ctx context.Context, itemRef string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if wallet, ok := l.owners[itemRef]; ok {
		return wallet, nil
	}
	return "", fmt.Errorf("no owner for item %q: %w", itemRef, core.ErrNotFound)
}
