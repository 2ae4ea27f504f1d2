package ports

import (
	"context"
	"time"

	"github.com/dust3/gatekeeper/core"
)

// EventPublisher notifies other instances and the audit trail about
// security and settlement events.
type EventPublisher interface {
	PublishSettlement(ctx context.Context, settlement *core.Settlement) error
	PublishLockout(ctx context.Context, key string, until time.Time) error
	PublishReplay(ctx context.Context, nonce string, wallet string, ip string) error
	PublishLogout(ctx context.Context, wallet string, tokenID string) error
}
