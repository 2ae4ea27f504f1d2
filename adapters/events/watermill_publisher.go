package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
	"github.com/google/uuid"
)

const (
	TopicSettlement = "gatekeeper.buyback.settled"
	TopicLockout    = "gatekeeper.account.locked"
	TopicReplay     = "gatekeeper.replay.detected"
	TopicLogout     = "gatekeeper.session.logout"
)

// SettlementEvent is emitted on every settlement status transition.
type SettlementEvent struct {
	SettlementID string `json:"settlement_id"`
	ItemRef      string `json:"item_ref"`
	Wallet       string `json:"wallet"`
	PayoutAmount string `json:"payout_amount"`
	Status       string `json:"status"`
	TxSignature  string `json:"tx_signature,omitempty"`
}

// LockoutEvent is emitted when a key crosses the failure threshold. It
// feeds the audit trail of suspicious wallets and IPs.
type LockoutEvent struct {
	Key         string    `json:"key"`
	LockedUntil time.Time `json:"locked_until"`
}

// ReplayEvent is emitted when a consumed nonce is presented again.
type ReplayEvent struct {
	Nonce  string `json:"nonce"`
	Wallet string `json:"wallet,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// LogoutEvent notifies other instances that a refresh token was revoked.
type LogoutEvent struct {
	Wallet  string `json:"wallet"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic string, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishSettlement publishes a settlement status transition.
func (p *WatermillPublisher) PublishSettlement(ctx context.Context, settlement *core.Settlement) error {
	return p.publish(TopicSettlement, settlement.ID, SettlementEvent{
		SettlementID: settlement.ID,
		ItemRef:      settlement.ItemRef,
		Wallet:       settlement.Wallet,
		PayoutAmount: settlement.PayoutAmount.String(),
		Status:       string(settlement.Status),
		TxSignature:  settlement.TxSignature,
	})
}

// PublishLockout publishes a lockout event.
func (p *WatermillPublisher) PublishLockout(ctx context.Context, key string, until time.Time) error {
	return p.publish(TopicLockout, uuid.New().String(), LockoutEvent{
		Key:         key,
		LockedUntil: until,
	})
}

// PublishReplay publishes a replay-attempt event.
func (p *WatermillPublisher) PublishReplay(ctx context.Context, nonce, wallet, ip string) error {
	return p.publish(TopicReplay, uuid.New().String(), ReplayEvent{
		Nonce:  nonce,
		Wallet: wallet,
		IP:     ip,
	})
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, wallet string, tokenID string) error {
	return p.publish(TopicLogout, tokenID, LogoutEvent{
		Wallet:  wallet,
		TokenID: tokenID,
	})
}
