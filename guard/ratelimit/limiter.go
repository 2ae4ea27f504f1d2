// Package ratelimit bounds request volume per identity key using fixed
// time windows. Different endpoint classes carry different configurations
// because their abuse cost differs.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dust3/gatekeeper/core"
)

// Config is the per-endpoint-class limit.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Result reports an admission decision with enough information for the
// caller to compute a retry delay.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// sweepEvery is how many Allow calls pass between opportunistic sweeps of
// expired windows.
const sweepEvery = 256

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed windows per key. Memory is bounded: expired windows
// are lazily swept, and when the tracked-key count exceeds the ceiling the
// oldest-inserted entries are dropped. Dropping a live window resets its
// count, which favors availability over perfect fairness when the key
// space explodes (e.g. spoofed IPs).
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	order   []string // insertion order, may contain swept keys
	maxKeys int
	calls   int
	now     func() time.Time
}

// New creates a limiter that tracks at most maxKeys keys.
func New(maxKeys int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// Allow admits or rejects one request for key under cfg. Rejected requests
// are not queued.
func (l *Limiter) Allow(key string, cfg Config) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		if !ok {
			l.order = append(l.order, key)
		}
		l.windows[key] = &window{count: 1, resetAt: now.Add(cfg.Window)}
		l.truncate()
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1}
	}

	if w.count >= cfg.MaxRequests {
		return Result{RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Result{Allowed: true, Remaining: cfg.MaxRequests - w.count}
}

// Reset forgets all state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Window returns a snapshot of the current window for key, or nil when no
// window is tracked. For monitoring and admin inspection.
func (l *Limiter) Window(key string) *core.RateWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return nil
	}
	return &core.RateWindow{Key: key, Count: w.count, ResetAt: w.resetAt}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// truncate drops oldest-inserted keys until the ceiling holds. Callers must
// hold l.mu.
func (l *Limiter) truncate() {
	for len(l.windows) > l.maxKeys && len(l.order) > 0 {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.windows, oldest)
	}
	// Compact the order slice once swept keys dominate it.
	if len(l.order) > 2*len(l.windows) {
		live := l.order[:0]
		for _, key := range l.order {
			if _, ok := l.windows[key]; ok {
				live = append(live, key)
			}
		}
		l.order = live
	}
}
