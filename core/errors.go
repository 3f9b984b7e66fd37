package core

import "errors"

// Validation errors: the client must fix the request.
var (
	ErrInvalidAddress  = errors.New("invalid ethereum address")
	ErrUnsafeReference = errors.New("unsafe external reference")
)

// Auth errors: the client must re-authenticate.
var (
	ErrStaleTimestamp   = errors.New("timestamp outside tolerance window")
	ErrUnknownNonce     = errors.New("unknown or expired nonce")
	ErrWalletMismatch   = errors.New("challenge issued for a different wallet")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceReplayed    = errors.New("nonce already consumed")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidAdminKey  = errors.New("invalid admin key")
)

// Payment errors: the client must pay again.
var (
	ErrSchemeMismatch       = errors.New("payment proof does not match route policy")
	ErrProofNotYetValid     = errors.New("payment proof not yet valid")
	ErrProofExpired         = errors.New("payment proof expired")
	ErrInsufficientAmount   = errors.New("payment amount below required price")
	ErrInvalidAuthorization = errors.New("payment authorization invalid")
	ErrAlreadySettled       = errors.New("payment proof already settled")
)

// Infrastructure errors.
var (
	ErrRateLimited            = errors.New("rate limited")
	ErrNotFound               = errors.New("key not found")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")
	ErrAdminAuthNotConfigured = errors.New("admin key not configured")
)
