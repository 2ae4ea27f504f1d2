package sigverify

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// ed25519Scheme verifies detached ed25519 signatures for base58-encoded
// wallet addresses (Solana-style: the address is the public key).
type ed25519Scheme struct{}

func (ed25519Scheme) Match(wallet string) bool {
	pub, err := base58.Decode(wallet)
	return err == nil && len(pub) == ed25519.PublicKeySize
}

func (ed25519Scheme) Verify(payload []byte, signature string, wallet string) bool {
	pub, err := base58.Decode(wallet)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}
