package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dust3/gatekeeper/adapters/store"
	"github.com/dust3/gatekeeper/core"
)

func testNonceGuard() (*NonceGuard, *time.Time) {
	g := NewNonceGuard(store.NewMemoryNonceStore(), DefaultNonceConfig())
	now := time.Now()
	g.now = func() time.Time { return now }
	return g, &now
}

func TestNonceAdmitOnce(t *testing.T) {
	g, now := testNonceGuard()
	ctx := context.Background()
	ts := now.UnixMilli()

	require.NoError(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-12345", Timestamp: ts}))

	err := g.Admit(ctx, core.RequestNonce{Nonce: "nonce-12345", Timestamp: ts})
	assert.ErrorIs(t, err, core.NonceReused())

	// A different nonce with the same timestamp is fine.
	assert.NoError(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-67890", Timestamp: ts}))
}

func TestNonceFormat(t *testing.T) {
	g, now := testNonceGuard()
	ctx := context.Background()
	ts := now.UnixMilli()

	tests := []struct {
		name  string
		nonce string
	}{
		{"too short", "short"},
		{"empty", ""},
		{"too long", string(make([]byte, 256))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, g.Admit(ctx, core.RequestNonce{Nonce: tt.nonce, Timestamp: ts}), core.NonceInvalid(""))
		})
	}
}

func TestNonceTimestampSkew(t *testing.T) {
	g, now := testNonceGuard()
	ctx := context.Background()

	t.Run("missing timestamp", func(t *testing.T) {
		assert.ErrorIs(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-12345", Timestamp: 0}), core.NonceInvalid(""))
	})

	t.Run("too old", func(t *testing.T) {
		ts := now.Add(-6 * time.Minute).UnixMilli()
		assert.ErrorIs(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-12345", Timestamp: ts}), core.NonceInvalid(""))
	})

	t.Run("too far ahead", func(t *testing.T) {
		ts := now.Add(2 * time.Minute).UnixMilli()
		assert.ErrorIs(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-12345", Timestamp: ts}), core.NonceInvalid(""))
	})

	t.Run("slightly behind is fine", func(t *testing.T) {
		ts := now.Add(-4 * time.Minute).UnixMilli()
		assert.NoError(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-behind-ok", Timestamp: ts}))
	})

	t.Run("slightly ahead is fine", func(t *testing.T) {
		ts := now.Add(30 * time.Second).UnixMilli()
		assert.NoError(t, g.Admit(ctx, core.RequestNonce{Nonce: "nonce-ahead-ok", Timestamp: ts}))
	})
}

func TestNonceConcurrentAdmission(t *testing.T) {
	g, now := testNonceGuard()
	ts := now.UnixMilli()

	const workers = 16
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- g.Admit(context.Background(), core.RequestNonce{Nonce: "nonce-contended", Timestamp: ts})
		}()
	}

	var admitted, reused int
	for i := 0; i < workers; i++ {
		switch err := <-results; {
		case err == nil:
			admitted++
		default:
			assert.ErrorIs(t, err, core.NonceReused())
			reused++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, workers-1, reused)
}
