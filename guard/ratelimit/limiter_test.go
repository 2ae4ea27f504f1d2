package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowExactlyMaxRequests(t *testing.T) {
	l := New(1000)
	cfg := Config{MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		res := l.Allow("k", cfg)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res := l.Allow("k", cfg)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestWindowResets(t *testing.T) {
	l := New(1000)
	now := time.Now()
	l.now = func() time.Time { return now }
	cfg := Config{MaxRequests: 2, Window: time.Minute}

	assert.True(t, l.Allow("k", cfg).Allowed)
	assert.True(t, l.Allow("k", cfg).Allowed)
	assert.False(t, l.Allow("k", cfg).Allowed)

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow("k", cfg).Allowed)
}

func TestWindowSnapshot(t *testing.T) {
	l := New(1000)
	cfg := Config{MaxRequests: 5, Window: time.Minute}

	assert.Nil(t, l.Window("k"))

	l.Allow("k", cfg)
	l.Allow("k", cfg)

	w := l.Window("k")
	assert.Equal(t, "k", w.Key)
	assert.Equal(t, 2, w.Count)
	assert.False(t, w.ResetAt.IsZero())
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1000)
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	assert.True(t, l.Allow("a", cfg).Allowed)
	assert.False(t, l.Allow("a", cfg).Allowed)
	assert.True(t, l.Allow("b", cfg).Allowed)
}

func TestReset(t *testing.T) {
	l := New(1000)
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	assert.True(t, l.Allow("k", cfg).Allowed)
	assert.False(t, l.Allow("k", cfg).Allowed)

	l.Reset("k")
	assert.True(t, l.Allow("k", cfg).Allowed)
}

func TestTruncateBoundsTrackedKeys(t *testing.T) {
	l := New(10)
	cfg := Config{MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("key-%d", i), cfg)
	}
	assert.LessOrEqual(t, l.Len(), 10)

	// The most recent key survived the truncation.
	res := l.Allow("key-99", cfg)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
}

func TestSweepDropsExpiredWindows(t *testing.T) {
	l := New(1000)
	now := time.Now()
	l.now = func() time.Time { return now }
	cfg := Config{MaxRequests: 5, Window: time.Second}

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("key-%d", i), cfg)
	}
	now = now.Add(time.Minute)

	// Sweeps run every 256 calls.
	for i := 0; i < 256; i++ {
		l.Allow("live", cfg)
	}
	assert.Equal(t, 1, l.Len())
}
