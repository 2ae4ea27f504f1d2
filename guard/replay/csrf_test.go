package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dust3/gatekeeper/core"
)

func testCSRFManager() (*CSRFManager, *time.Time) {
	m := NewCSRFManager(DefaultCSRFConfig())
	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCSRFIssueAndAdmit(t *testing.T) {
	m, _ := testCSRFManager()

	token, err := m.Issue("client-a")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, m.Admit("client-a", token))
	// Tokens are reusable until they expire.
	assert.NoError(t, m.Admit("client-a", token))
}

func TestCSRFIssueIsStableWhileFresh(t *testing.T) {
	m, _ := testCSRFManager()

	first, err := m.Issue("client-a")
	require.NoError(t, err)
	second, err := m.Issue("client-a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCSRFExpiredTokenRotates(t *testing.T) {
	m, now := testCSRFManager()

	token, err := m.Issue("client-a")
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	err = m.Admit("client-a", token)
	assert.ErrorIs(t, err, core.CSRFInvalid(""))

	// The follow-up Issue hands out a fresh working token.
	fresh, err := m.Issue("client-a")
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	assert.NoError(t, m.Admit("client-a", fresh))
}

func TestCSRFSlidingRefreshBoundedByMaxAge(t *testing.T) {
	m, now := testCSRFManager()

	token, err := m.Issue("client-a")
	require.NoError(t, err)

	// Keep using the token; each use slides the expiry.
	for i := 0; i < 3; i++ {
		*now = now.Add(25 * time.Minute)
		require.NoError(t, m.Admit("client-a", token))
	}

	// 75 minutes in; jumping past the 2 hour age ceiling ends the token
	// no matter how recently it was refreshed.
	*now = now.Add(45 * time.Minute)
	assert.ErrorIs(t, m.Admit("client-a", token), core.CSRFInvalid(""))
}

func TestCSRFWrongClientRejected(t *testing.T) {
	m, _ := testCSRFManager()

	token, err := m.Issue("client-a")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Admit("client-b", token), core.CSRFInvalid(""))
}

func TestCSRFMissingAndUnknownTokens(t *testing.T) {
	m, _ := testCSRFManager()

	assert.ErrorIs(t, m.Admit("client-a", ""), core.CSRFInvalid(""))
	assert.ErrorIs(t, m.Admit("client-a", "deadbeef"), core.CSRFInvalid(""))
}

func TestCSRFProactiveRenewal(t *testing.T) {
	m, now := testCSRFManager()

	token, err := m.Issue("client-a")
	require.NoError(t, err)

	// Within the renewal threshold of expiry, Issue rotates.
	*now = now.Add(26 * time.Minute)
	fresh, err := m.Issue("client-a")
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
}

func TestCSRFTokenSnapshot(t *testing.T) {
	m, _ := testCSRFManager()

	assert.Nil(t, m.Token("client-a"))

	value, err := m.Issue("client-a")
	require.NoError(t, err)

	snap := m.Token("client-a")
	require.NotNil(t, snap)
	assert.Equal(t, value, snap.Value)
	assert.Equal(t, "client-a", snap.ClientKey)
	assert.True(t, snap.ExpiresAt.After(snap.IssuedAt))
}

func TestCSRFSweep(t *testing.T) {
	m, now := testCSRFManager()

	_, err := m.Issue("client-a")
	require.NoError(t, err)
	_, err = m.Issue("client-b")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveTokens())

	*now = now.Add(31 * time.Minute)
	_, err = m.Issue("client-c")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ActiveTokens())
}
