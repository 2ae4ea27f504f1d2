// Package lockout escalates beyond rate limiting: after repeated failed
// authentications for a key, every attempt is blocked for a cooldown
// period. Volume-based limiting bounds traffic; this guard reacts to
// failures specifically and leaves an audit trail of suspicious keys.
package lockout

import (
	"sync"
	"time"

	"github.com/dust3/gatekeeper/core"
)

// Config controls the lockout state machine.
type Config struct {
	// Threshold is the failure count that triggers a lockout.
	Threshold int
	// BaseCooldown is the first lockout duration; repeated lockouts double
	// it up to MaxCooldown.
	BaseCooldown time.Duration
	MaxCooldown  time.Duration
	// AttemptWindow resets the failure count after this much idle time.
	AttemptWindow time.Duration
}

// DefaultConfig mirrors the production settings: five failures lock the
// key for fifteen minutes, doubling per repeat lockout up to a day.
func DefaultConfig() Config {
	return Config{
		Threshold:     5,
		BaseCooldown:  15 * time.Minute,
		MaxCooldown:   24 * time.Hour,
		AttemptWindow: time.Hour,
	}
}

type record struct {
	failures    int
	lockedUntil time.Time
	lastAttempt time.Time
}

// Guard tracks failed authentication attempts per key. Wallet addresses
// and originating IPs are tracked as independent keys by the caller.
type Guard struct {
	mu      sync.Mutex
	records map[string]*record
	cfg     Config
	now     func() time.Time
}

func New(cfg Config) *Guard {
	return &Guard{
		records: make(map[string]*record),
		cfg:     cfg,
		now:     time.Now,
	}
}

// RecordFailure increments the failure count for key and reports whether
// the key is now locked. The increment and the threshold check happen
// under one lock so concurrent failures cannot both slip under it.
func (g *Guard) RecordFailure(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	r, ok := g.records[key]
	if !ok {
		r = &record{}
		g.records[key] = r
	} else if now.Sub(r.lastAttempt) > g.cfg.AttemptWindow {
		r.failures = 0
	}

	r.failures++
	r.lastAttempt = now

	if r.failures >= g.cfg.Threshold {
		r.lockedUntil = now.Add(g.cooldownFor(r.failures))
		return true
	}
	return false
}

// cooldownFor doubles the base cooldown for each repeated lockout, capped.
func (g *Guard) cooldownFor(failures int) time.Duration {
	repeat := (failures-g.cfg.Threshold)/g.cfg.Threshold + 1
	d := g.cfg.BaseCooldown
	for i := 1; i < repeat; i++ {
		d *= 2
		if d >= g.cfg.MaxCooldown {
			return g.cfg.MaxCooldown
		}
	}
	if d > g.cfg.MaxCooldown {
		d = g.cfg.MaxCooldown
	}
	return d
}

// IsLocked reports whether key is currently locked. An elapsed lockout
// clears the failure count.
func (g *Guard) IsLocked(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[key]
	if !ok {
		return false
	}

	now := g.now()
	if !r.lockedUntil.IsZero() && !now.Before(r.lockedUntil) {
		r.failures = 0
		r.lockedUntil = time.Time{}
		return false
	}
	return r.lockedUntil.After(now)
}

// Remaining returns how long key stays locked, or zero.
func (g *Guard) Remaining(key string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[key]
	if !ok || r.lockedUntil.IsZero() {
		return 0
	}
	if remaining := r.lockedUntil.Sub(g.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// RecordSuccess clears the failure state for key.
func (g *Guard) RecordSuccess(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.records[key]; ok {
		r.failures = 0
		r.lockedUntil = time.Time{}
	}
}

// Record returns a snapshot of the lockout state for key, or nil.
func (g *Guard) Record(key string) *core.LockoutRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[key]
	if !ok {
		return nil
	}
	return &core.LockoutRecord{
		Key:            key,
		FailedAttempts: r.failures,
		LockedUntil:    r.lockedUntil,
		LastAttempt:    r.lastAttempt,
	}
}

// Sweep removes records whose lockout elapsed and whose last attempt is
// older than the attempt window. Call it periodically.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var removed int
	for key, r := range g.records {
		lockElapsed := r.lockedUntil.IsZero() || !now.Before(r.lockedUntil)
		if lockElapsed && now.Sub(r.lastAttempt) > g.cfg.AttemptWindow {
			delete(g.records, key)
			removed++
		}
	}
	return removed
}
