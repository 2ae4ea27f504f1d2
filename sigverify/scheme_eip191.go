package sigverify

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// eip191Scheme verifies EIP-191 personal_sign signatures for 0x-prefixed
// EVM wallet addresses, recovering the signer and comparing addresses.
type eip191Scheme struct{}

func (eip191Scheme) Match(wallet string) bool {
	return strings.HasPrefix(wallet, "0x") && common.IsHexAddress(wallet)
}

func (eip191Scheme) Verify(payload []byte, signature string, wallet string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	recovery := sig[crypto.RecoveryIDOffset]
	if recovery >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] = recovery - 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(payload), payload)
	digest := crypto.Keccak256([]byte(prefixed))

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(wallet)
}
