package sigverify

import (
	"crypto/subtle"
	"strings"
)

// AllowList is a fixed set of privileged wallet addresses checked without
// early exit, so membership cannot be probed through response timing.
type AllowList struct {
	members []string
}

// NewAllowList builds an allow-list from configured wallet addresses.
// Entries are trimmed; empty entries are dropped.
func NewAllowList(wallets []string) *AllowList {
	members := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if w = strings.TrimSpace(w); w != "" {
			members = append(members, w)
		}
	}
	return &AllowList{members: members}
}

// Contains reports whether wallet is on the list. Every member is compared
// in constant time regardless of where (or whether) a match occurs.
func (a *AllowList) Contains(wallet string) bool {
	found := 0
	for _, m := range a.members {
		found |= constantTimeEqual(m, wallet)
	}
	return found == 1
}

// constantTimeEqual compares two strings without leaking the position of
// the first differing byte. Length still has to match for equality, but all
// bytes of the longer string are touched either way.
func constantTimeEqual(a, b string) int {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	var diff byte
	for i := 0; i < max; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		diff |= ca ^ cb
	}
	return subtle.ConstantTimeByteEq(diff, 0) & subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
}
