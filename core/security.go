package core

import "time"

// SignatureChallenge is the per-request proof material for a claimed wallet.
// It is constructed from the request body and never persisted.
type SignatureChallenge struct {
	Message   string // Exact message string presented by the client
	Signature string // Encoded signature (base58 for ed25519 wallets, hex for EVM)
	Wallet    string // Claimed wallet address
}

// ReplayToken is a short-lived capability proving the request originated
// from a recently served client context.
type ReplayToken struct {
	Value     string
	ClientKey string // Wallet address, or IP before authentication
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RequestNonce accompanies each mutating request and is accepted at most
// once within the clock-skew window.
type RequestNonce struct {
	Nonce     string
	Timestamp int64 // Client clock, unix milliseconds
}

// LockoutRecord tracks consecutive authentication failures for one key.
// Wallet addresses and client IPs are tracked as independent keys.
type LockoutRecord struct {
	Key            string
	FailedAttempts int
	LockedUntil    time.Time // Zero when not locked
	LastAttempt    time.Time
}

// RateWindow is a fixed-window request counter for one key.
type RateWindow struct {
	Key     string
	Count   int
	ResetAt time.Time
}
