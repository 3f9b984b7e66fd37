package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedgate-io/feedgate/core"
)

// errorCode maps gate errors to stable machine-readable codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, core.ErrUnsafeReference):
		return "unsafe_reference"
	case errors.Is(err, core.ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, core.ErrUnknownNonce):
		return "unknown_or_expired_nonce"
	case errors.Is(err, core.ErrWalletMismatch):
		return "wallet_mismatch"
	case errors.Is(err, core.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, core.ErrNonceReplayed):
		return "nonce_replayed"
	case errors.Is(err, core.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, core.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, core.ErrInvalidAdminKey):
		return "invalid_admin_key"
	case errors.Is(err, core.ErrSchemeMismatch):
		return "scheme_mismatch"
	case errors.Is(err, core.ErrProofNotYetValid):
		return "proof_not_yet_valid"
	case errors.Is(err, core.ErrProofExpired):
		return "proof_expired"
	case errors.Is(err, core.ErrInsufficientAmount):
		return "insufficient_amount"
	case errors.Is(err, core.ErrInvalidAuthorization):
		return "invalid_authorization"
	case errors.Is(err, core.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, core.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, core.ErrFacilitatorUnavailable):
		return "facilitator_unavailable"
	case errors.Is(err, core.ErrAdminAuthNotConfigured):
		return "admin_auth_not_configured"
	default:
		return "internal_error"
	}
}

// transient reports whether the error is infrastructure degradation rather
// than a client fault. Auth and payment gates fail closed on these with 503.
func transient(err error) bool {
	return errors.Is(err, core.ErrStoreUnavailable) || errors.Is(err, core.ErrFacilitatorUnavailable)
}

// abortError writes the structured error body and stops the pipeline.
func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": errorCode(err)})
}

// authStatus maps authenticator errors to HTTP statuses.
func authStatus(err error) int {
	switch {
	case transient(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}
