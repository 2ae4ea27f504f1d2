// Package sigverify validates that a message was signed by the private key
// behind a claimed wallet address.
//
// Client wallet integrations disagree about the exact bytes they sign: some
// sign the raw message, some prepend a domain-separation prefix, and older
// clients used a different prefix. The verifier tries a short, ordered list
// of canonicalizations and accepts the challenge when any of them verifies.
// Each canonicalization still requires a valid signature over the resulting
// bytes, so the widened surface is no weaker than single-canonicalization
// verification. Keep the list short; every addition widens it a little.
package sigverify

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dust3/gatekeeper/core"
)

const (
	// MessagePrefix is the current domain-separation prefix clients are
	// asked to use when signing.
	MessagePrefix = "dust3.com wants you to sign:\n"

	// legacyMessagePrefix was used by clients before the prefix above.
	legacyMessagePrefix = "Sign this message to authenticate with Dust3:\n"
)

// canonicalize returns every candidate byte sequence the wallet may have
// actually signed for the presented message. A nil entry is skipped.
func canonicalize(message string) [][]byte {
	candidates := [][]byte{
		[]byte(message),
		[]byte(MessagePrefix + message),
		[]byte(legacyMessagePrefix + message),
	}
	// Some clients send the prefixed message but signed only the inner part.
	if stripped, ok := strings.CutPrefix(message, MessagePrefix); ok {
		candidates = append(candidates, []byte(stripped))
	} else if stripped, ok := strings.CutPrefix(message, legacyMessagePrefix); ok {
		candidates = append(candidates, []byte(stripped))
	}
	return candidates
}

// scheme verifies one signature encoding/curve family.
type scheme interface {
	// Match reports whether the wallet address belongs to this scheme.
	Match(wallet string) bool
	// Verify checks the signature over one canonicalized payload.
	Verify(payload []byte, signature string, wallet string) bool
}

// Verifier checks wallet signatures across the supported schemes and
// canonicalizations.
type Verifier struct {
	schemes  []scheme
	delayMin time.Duration
	delayMax time.Duration
	sleep    func(time.Duration)
}

func New() *Verifier {
	return &Verifier{
		schemes:  []scheme{ed25519Scheme{}, eip191Scheme{}},
		delayMin: 10 * time.Millisecond,
		delayMax: 30 * time.Millisecond,
		sleep:    time.Sleep,
	}
}

// Verify reports whether the challenge's signature is a valid signature of
// some canonicalization of its message by the key behind the claimed
// wallet. Which canonicalization matched is deliberately not exposed.
//
// A small random delay is added after every call, pass or fail, so external
// timing cannot distinguish failure modes or observe the retry loop.
func (v *Verifier) Verify(ch core.SignatureChallenge) bool {
	defer v.maskTiming()

	for _, s := range v.schemes {
		if !s.Match(ch.Wallet) {
			continue
		}
		for _, payload := range canonicalize(ch.Message) {
			if payload == nil {
				continue
			}
			if s.Verify(payload, ch.Signature, ch.Wallet) {
				return true
			}
		}
	}
	return false
}

func (v *Verifier) maskTiming() {
	span := v.delayMax - v.delayMin
	v.sleep(v.delayMin + rand.N(span))
}
