// Package replay makes state-changing requests non-replayable. It combines
// a short-lived anti-CSRF capability token with a per-request
// nonce+timestamp admission check.
package replay

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dust3/gatekeeper/core"
)

// CSRFConfig controls token lifetime and rotation.
type CSRFConfig struct {
	// TTL is how long an issued token stays valid.
	TTL time.Duration
	// RenewWithin rotates the token proactively once its remaining
	// validity drops below this threshold.
	RenewWithin time.Duration
	// MaxAge is a hard ceiling on total token life; sliding refreshes
	// cannot extend a token past it.
	MaxAge time.Duration
}

func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		TTL:         30 * time.Minute,
		RenewWithin: 5 * time.Minute,
		MaxAge:      2 * time.Hour,
	}
}

type csrfToken struct {
	value     string
	clientKey string
	issuedAt  time.Time
	expiresAt time.Time
}

// CSRFManager issues and validates replay tokens scoped to a client key
// (the wallet address, or the IP before authentication). Scoping per
// client keeps one client's rotation from invalidating another's in-flight
// request.
type CSRFManager struct {
	mu      sync.Mutex
	tokens  map[string]*csrfToken // by value
	current map[string]string     // client key -> current value
	cfg     CSRFConfig
	now     func() time.Time
}

func NewCSRFManager(cfg CSRFConfig) *CSRFManager {
	return &CSRFManager{
		tokens:  make(map[string]*csrfToken),
		current: make(map[string]string),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Issue returns the client's current token, rotating it first when it is
// close to expiry or past the hard age ceiling.
func (m *CSRFManager) Issue(clientKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if value, ok := m.current[clientKey]; ok {
		if t, ok := m.tokens[value]; ok {
			fresh := t.expiresAt.Sub(now) >= m.cfg.RenewWithin
			young := now.Sub(t.issuedAt) < m.cfg.MaxAge
			if fresh && young {
				return t.value, nil
			}
			delete(m.tokens, value)
		}
	}

	value, err := randomToken()
	if err != nil {
		return "", err
	}
	m.tokens[value] = &csrfToken{
		value:     value,
		clientKey: clientKey,
		issuedAt:  now,
		expiresAt: now.Add(m.cfg.TTL),
	}
	m.current[clientKey] = value

	m.sweep(now)
	return value, nil
}

// Admit validates a presented token for clientKey. Failures invalidate the
// client's current token so the follow-up Issue hands out a fresh one; the
// caller gets exactly one transparent retry with it before giving up.
func (m *CSRFManager) Admit(clientKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value == "" {
		return core.CSRFInvalid("csrf token required")
	}

	t, ok := m.tokens[value]
	if !ok {
		m.rotateLocked(clientKey)
		return core.CSRFInvalid("unknown csrf token")
	}

	now := m.now()
	expired := now.After(t.expiresAt) || now.Sub(t.issuedAt) >= m.cfg.MaxAge
	if expired || t.clientKey != clientKey {
		delete(m.tokens, value)
		m.rotateLocked(clientKey)
		return core.CSRFInvalid("invalid or expired csrf token")
	}

	// Sliding refresh, still bounded by MaxAge.
	t.expiresAt = now.Add(m.cfg.TTL)
	return nil
}

// rotateLocked drops the client's current token mapping so the next Issue
// generates a fresh value. Callers must hold m.mu.
func (m *CSRFManager) rotateLocked(clientKey string) {
	if value, ok := m.current[clientKey]; ok {
		delete(m.tokens, value)
		delete(m.current, clientKey)
	}
}

// sweep drops expired tokens. Callers must hold m.mu.
func (m *CSRFManager) sweep(now time.Time) {
	for value, t := range m.tokens {
		if now.After(t.expiresAt) || now.Sub(t.issuedAt) >= m.cfg.MaxAge {
			delete(m.tokens, value)
			if m.current[t.clientKey] == value {
				delete(m.current, t.clientKey)
			}
		}
	}
}

// Token returns a snapshot of the client's current token, or nil. For
// monitoring and admin inspection; admission goes through Admit.
func (m *CSRFManager) Token(clientKey string) *core.ReplayToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.current[clientKey]
	if !ok {
		return nil
	}
	t, ok := m.tokens[value]
	if !ok {
		return nil
	}
	return &core.ReplayToken{
		Value:     t.value,
		ClientKey: t.clientKey,
		IssuedAt:  t.issuedAt,
		ExpiresAt: t.expiresAt,
	}
}

// ActiveTokens returns the number of live tokens, for monitoring.
func (m *CSRFManager) ActiveTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
