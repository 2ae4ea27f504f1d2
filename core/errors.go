package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrIdentityInactive = errors.New("identity is deactivated")
)

// Code identifies a rejection class at the service boundary. Codes are part
// of the API contract; messages are not.
type Code string

const (
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeAccountLocked        Code = "ACCOUNT_LOCKED"
	CodeCSRFInvalid          Code = "CSRF_INVALID"
	CodeNonceInvalid         Code = "NONCE_INVALID"
	CodeNonceReused          Code = "NONCE_REUSED"
	CodeSignatureInvalid     Code = "SIGNATURE_INVALID"
	CodeItemNotOwned         Code = "ITEM_NOT_OWNED"
	CodeSlippageExceeded     Code = "SLIPPAGE_EXCEEDED"
	CodeTreasuryInsufficient Code = "TREASURY_INSUFFICIENT"
	CodeBuybackDisabled      Code = "BUYBACK_DISABLED"
	CodeAlreadySettled       Code = "ALREADY_SETTLED"
)

// Rejection is a guard or settlement refusal carrying a stable code.
// Retryable rejections can succeed if the caller waits RetryAfter (or, for
// CSRF, refetches a token) and resubmits unchanged; everything else requires
// a new request.
type Rejection struct {
	Code       Code
	Message    string
	Retryable  bool
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Is lets errors.Is match two rejections by code.
func (r *Rejection) Is(target error) bool {
	var other *Rejection
	if !errors.As(target, &other) {
		return false
	}
	return r.Code == other.Code
}

func RateLimited(retryAfter time.Duration) *Rejection {
	return &Rejection{
		Code:       CodeRateLimited,
		Message:    "too many requests",
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

func AccountLocked(remaining time.Duration) *Rejection {
	return &Rejection{
		Code:       CodeAccountLocked,
		Message:    "too many failed attempts, try again later",
		Retryable:  true,
		RetryAfter: remaining,
	}
}

func CSRFInvalid(msg string) *Rejection {
	return &Rejection{Code: CodeCSRFInvalid, Message: msg, Retryable: true}
}

func NonceInvalid(msg string) *Rejection {
	return &Rejection{Code: CodeNonceInvalid, Message: msg}
}

func NonceReused() *Rejection {
	return &Rejection{Code: CodeNonceReused, Message: "request nonce has already been used"}
}

func SignatureInvalid() *Rejection {
	return &Rejection{Code: CodeSignatureInvalid, Message: "wallet signature verification failed"}
}

func ItemNotOwned() *Rejection {
	return &Rejection{Code: CodeItemNotOwned, Message: "item is not owned by the requesting wallet"}
}

func SlippageExceeded(msg string) *Rejection {
	return &Rejection{Code: CodeSlippageExceeded, Message: msg}
}

func TreasuryInsufficient() *Rejection {
	return &Rejection{Code: CodeTreasuryInsufficient, Message: "treasury reserve floor reached"}
}

func BuybackDisabled() *Rejection {
	return &Rejection{Code: CodeBuybackDisabled, Message: "buyback is currently disabled"}
}

// RejectionCode extracts the code from err, or "" if err is not a Rejection.
func RejectionCode(err error) Code {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return ""
}
