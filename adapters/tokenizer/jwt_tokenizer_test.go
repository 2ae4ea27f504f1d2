package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/ports"
)

func newTestTokenizer(t *testing.T) ports.Tokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key)
}

func testSession() *core.Session {
	now := time.Now().Truncate(time.Second)
	return &core.Session{
		ID:            "session-1",
		Wallet:        "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		IssuedAt:      now,
		AccessExpiry:  now.Add(5 * time.Minute),
		RefreshExpiry: now.Add(5 * 24 * time.Hour),
		RefreshID:     "refresh-1",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	session := testSession()

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	parsed, err := tk.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, parsed.ID)
	assert.Equal(t, session.Wallet, parsed.Wallet)
	assert.Equal(t, session.RefreshID, parsed.RefreshID)
	assert.True(t, session.AccessExpiry.Equal(parsed.AccessExpiry))
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	session := testSession()

	token, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	parsed, err := tk.RefreshTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.Wallet, parsed.Wallet)
	assert.Equal(t, session.RefreshID, parsed.RefreshID)
	assert.True(t, session.RefreshExpiry.Equal(parsed.RefreshExpiry))
}

func TestAudiencesDoNotCross(t *testing.T) {
	tk := newTestTokenizer(t)
	session := testSession()

	accessToken, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)
	refreshToken, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	_, err = tk.RefreshTokenToSession(accessToken)
	assert.Error(t, err)
	_, err = tk.AccessTokenToSession(refreshToken)
	assert.Error(t, err)
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	tk := newTestTokenizer(t)
	session := testSession()
	session.AccessExpiry = time.Now().Add(-time.Minute)

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestForeignKeyRejected(t *testing.T) {
	tk := newTestTokenizer(t)
	other := newTestTokenizer(t)

	token, err := other.SessionToAccessToken(testSession())
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	tk := newTestTokenizer(t)
	_, err := tk.AccessTokenToSession("not.a.jwt")
	assert.Error(t, err)
}
