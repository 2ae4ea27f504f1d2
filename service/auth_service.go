package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/guard/lockout"
	"github.com/dust3/gatekeeper/guard/ratelimit"
	"github.com/dust3/gatekeeper/guard/replay"
	"github.com/dust3/gatekeeper/ports"
	"github.com/dust3/gatekeeper/sigverify"
)

// GateRequest carries everything the admission pipeline needs about one
// incoming request.
type GateRequest struct {
	Wallet    string
	IP        string
	Message   string
	Signature string
	CSRFToken string
	Nonce     string
	Timestamp int64 // Client clock, unix milliseconds

	// RateLimit is the limit class of the endpoint being hit.
	RateLimit ratelimit.Config

	// RequireSignature gates the replay checks and the wallet signature.
	// Read-only endpoints behind a valid session leave it off.
	RequireSignature bool
}

// AuthGate runs every state-changing request through the admission
// pipeline: rate limit, lockout, replay protection, then wallet signature
// verification. The checks are ordered cheapest first so hostile traffic
// burns as little work as possible.
type AuthGate struct {
	verifier   *sigverify.Verifier
	limiter    *ratelimit.Limiter
	lockouts   *lockout.Guard
	csrf       *replay.CSRFManager
	nonces     *replay.NonceGuard
	identities ports.IdentityStore
	tokens     ports.TokenStore
	tokenizer  ports.Tokenizer
	events     ports.EventPublisher
	admins     *sigverify.AllowList
	log        *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthGate creates the admission pipeline.
func NewAuthGate(
	verifier *sigverify.Verifier,
	limiter *ratelimit.Limiter,
	lockouts *lockout.Guard,
	csrf *replay.CSRFManager,
	nonces *replay.NonceGuard,
	identities ports.IdentityStore,
	tokens ports.TokenStore,
	tokenizer ports.Tokenizer,
	events ports.EventPublisher,
	admins *sigverify.AllowList,
	log *slog.Logger,
) *AuthGate {
	return &AuthGate{
		verifier:   verifier,
		limiter:    limiter,
		lockouts:   lockouts,
		csrf:       csrf,
		nonces:     nonces,
		identities: identities,
		tokens:     tokens,
		tokenizer:  tokenizer,
		events:     events,
		admins:     admins,
		log:        log,
		accessTTL:  5 * time.Minute,
		refreshTTL: 5 * 24 * time.Hour, // 5 days
	}
}

// IssueCSRF returns the current replay token for a client key.
func (s *AuthGate) IssueCSRF(clientKey string) (string, error) {
	return s.csrf.Issue(clientKey)
}

// IsAdmin reports whether wallet is on the operator allow-list.
func (s *AuthGate) IsAdmin(wallet string) bool {
	return s.admins.Contains(wallet)
}

// Admit runs req through the full pipeline and resolves the wallet's
// identity, creating it on first successful authentication. Every refusal
// is a *core.Rejection; anything else is an internal error.
func (s *AuthGate) Admit(ctx context.Context, req GateRequest) (*core.Identity, error) {
	clientKey := req.Wallet
	if clientKey == "" {
		clientKey = req.IP
	}

	if res := s.limiter.Allow(s.rateKey(req), req.RateLimit); !res.Allowed {
		return nil, core.RateLimited(res.RetryAfter)
	}

	if err := s.checkLockout(req); err != nil {
		return nil, err
	}

	if req.RequireSignature {
		if err := s.csrf.Admit(clientKey, req.CSRFToken); err != nil {
			return nil, err
		}
		nonce := core.RequestNonce{Nonce: req.Nonce, Timestamp: req.Timestamp}
		if err := s.nonces.Admit(ctx, nonce); err != nil {
			if errors.Is(err, core.NonceReused()) {
				s.publishReplay(ctx, req)
			}
			return nil, err
		}
		challenge := core.SignatureChallenge{
			Message:   req.Message,
			Signature: req.Signature,
			Wallet:    req.Wallet,
		}
		if !s.verifier.Verify(challenge) {
			s.recordFailure(ctx, req)
			return nil, core.SignatureInvalid()
		}
		s.recordSuccess(req)
	}

	identity, err := s.resolveIdentity(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	if !identity.Active {
		return nil, core.ErrIdentityInactive
	}
	return identity, nil
}

// Connect admits req and opens a session for the wallet, returning the
// access and refresh token pair.
func (s *AuthGate) Connect(ctx context.Context, req GateRequest) (*core.Identity, string, string, error) {
	req.RequireSignature = true

	identity, err := s.Admit(ctx, req)
	if err != nil {
		return nil, "", "", err
	}

	accessToken, refreshToken, err := s.issueTokens(identity.Wallet)
	if err != nil {
		return nil, "", "", err
	}

	s.log.Info("wallet connected", "wallet", identity.Wallet, "identity_id", identity.ID)
	return identity, accessToken, refreshToken, nil
}

// Refresh rotates the refresh token and issues a new token pair.
func (s *AuthGate) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return "", "", core.ErrTokenExpired
	}

	invalidated, err := s.tokens.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return "", "", core.ErrTokenInvalidated
	}

	// Burn the presented token for its remaining lifetime, then rotate.
	remaining := time.Until(session.RefreshExpiry)
	if err := s.tokens.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	return s.issueTokens(session.Wallet)
}

// Logout invalidates a refresh token. Expired tokens are still burned so
// they cannot come back through clock skew.
func (s *AuthGate) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	remaining := time.Until(session.RefreshExpiry)
	if remaining <= 0 {
		remaining = time.Hour
	}

	if err := s.tokens.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if err := s.events.PublishLogout(ctx, session.Wallet, session.RefreshID); err != nil {
		// The token is already burned; losing the notification is acceptable.
		s.log.Warn("failed to publish logout event", "error", err)
	}
	return nil
}

// ValidateAccess parses an access token and returns its session.
func (s *AuthGate) ValidateAccess(accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}
	return session, nil
}

func (s *AuthGate) issueTokens(wallet string) (string, string, error) {
	now := time.Now()
	session := &core.Session{
		ID:            uuid.New().String(),
		Wallet:        wallet,
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshExpiry: now.Add(s.refreshTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// rateKey scopes the volume limit to the wallet when one is claimed,
// falling back to the IP for anonymous traffic.
func (s *AuthGate) rateKey(req GateRequest) string {
	if req.Wallet != "" {
		return "wallet:" + req.Wallet
	}
	return "ip:" + req.IP
}

// lockKeys returns both failure-tracking keys for req. Wallet and IP are
// tracked independently so rotating one does not shed the other's history.
func (s *AuthGate) lockKeys(req GateRequest) []string {
	keys := make([]string, 0, 2)
	if req.Wallet != "" {
		keys = append(keys, "wallet:"+req.Wallet)
	}
	if req.IP != "" {
		keys = append(keys, "ip:"+req.IP)
	}
	return keys
}

func (s *AuthGate) checkLockout(req GateRequest) error {
	for _, key := range s.lockKeys(req) {
		if s.lockouts.IsLocked(key) {
			return core.AccountLocked(s.lockouts.Remaining(key))
		}
	}
	return nil
}

func (s *AuthGate) recordFailure(ctx context.Context, req GateRequest) {
	for _, key := range s.lockKeys(req) {
		if locked := s.lockouts.RecordFailure(key); locked {
			until := time.Now().Add(s.lockouts.Remaining(key))
			s.log.Warn("key locked out after repeated failures", "key", key, "until", until)
			if err := s.events.PublishLockout(ctx, key, until); err != nil {
				s.log.Warn("failed to publish lockout event", "error", err)
			}
		}
	}
}

func (s *AuthGate) recordSuccess(req GateRequest) {
	for _, key := range s.lockKeys(req) {
		s.lockouts.RecordSuccess(key)
	}
}

func (s *AuthGate) publishReplay(ctx context.Context, req GateRequest) {
	if err := s.events.PublishReplay(ctx, req.Nonce, req.Wallet, req.IP); err != nil {
		s.log.Warn("failed to publish replay event", "error", err)
	}
}

// resolveIdentity finds or lazily creates the identity for wallet. A lost
// creation race falls back to the winner's record.
func (s *AuthGate) resolveIdentity(ctx context.Context, wallet string) (*core.Identity, error) {
	identity, err := s.identities.FindByWallet(ctx, wallet)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	identity = &core.Identity{
		ID:        uuid.New().String(),
		Wallet:    wallet,
		Active:    true,
		CreatedAt: time.Now(),
	}
	switch err := s.identities.Create(ctx, identity); {
	case err == nil:
		s.log.Info("identity created", "wallet", wallet, "identity_id", identity.ID)
		return identity, nil
	case errors.Is(err, core.ErrDuplicate):
		return s.identities.FindByWallet(ctx, wallet)
	default:
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
}
