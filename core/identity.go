package core

import "time"

// Identity is the server-side record for a wallet. It is created lazily on
// the first successful authentication and never mutated afterwards except
// for the activation flag.
type Identity struct {
	ID        string // Opaque internal identifier
	Wallet    string // Public wallet address, unique
	Active    bool   // Deactivated identities are refused at the gate
	CreatedAt time.Time
}

// Session represents an authenticated session backed by a token pair.
type Session struct {
	ID            string    // Unique session identifier
	Wallet        string    // Wallet address of the authenticated identity
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshExpiry time.Time // When the refresh capability expires
	RefreshID     string    // Unique identifier for the refresh token
}
