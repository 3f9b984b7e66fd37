package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/metrics"
)

// Auth and payment transport headers.
const (
	headerWalletAddress = "x-wallet-address"
	headerSignature     = "x-signature"
	headerMessage       = "x-message"
	headerTimestamp     = "x-timestamp"
	headerPayment       = "x-payment"
	headerPaymentResp   = "X-Payment-Response"
	headerAdminKey      = "admin-api-key"
)

// countRequests records per-route status counts after the handler chain runs.
func (g *Gateway) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// sizeLimit rejects oversized bodies up front and caps reads for chunked
// requests that carry no Content-Length; those trip the capped reader at
// bind time instead and get the same 413 from bindJSON.
func (g *Gateway) sizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > g.MaxBodyBytes {
			g.bodyTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, g.MaxBodyBytes)
		c.Next()
	}
}

func (g *Gateway) bodyTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("request body exceeds the %d MB limit", g.MaxBodyBytes>>20),
		"code":  "body_too_large",
	})
}

// rateLimit enforces the fixed-window budget per client identity. The
// identity at this pipeline position is the remote IP; authenticated
// identity is not known yet.
func (g *Gateway) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := g.Limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			metrics.GateDecisions.WithLabelValues("rate_limit", "reject").Inc()
			retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortError(c, http.StatusTooManyRequests, core.ErrRateLimited)
			return
		}

		metrics.GateDecisions.WithLabelValues("rate_limit", "allow").Inc()
		c.Next()
	}
}

// walletAuth admits requests carrying either a bearer access token or the
// raw signature headers. Both resolve to the same verified wallet identity.
func (g *Gateway) walletAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			address, err := g.Tokenizer.TokenToIdentity(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				metrics.GateDecisions.WithLabelValues("wallet_auth", errorCode(err)).Inc()
				c.Header("WWW-Authenticate", "Bearer")
				abortError(c, http.StatusUnauthorized, err)
				return
			}
			metrics.GateDecisions.WithLabelValues("wallet_auth", "allow").Inc()
			c.Set(identityKey, address)
			c.Next()
			return
		}

		address := c.GetHeader(headerWalletAddress)
		signature := c.GetHeader(headerSignature)
		encodedMsg := c.GetHeader(headerMessage)
		rawTimestamp := c.GetHeader(headerTimestamp)

		if address == "" || signature == "" || encodedMsg == "" || rawTimestamp == "" {
			c.Header("WWW-Authenticate", "Signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "wallet authentication required",
				"code":  "missing_credentials",
			})
			return
		}

		message, err := base64.StdEncoding.DecodeString(encodedMsg)
		if err != nil {
			abortError(c, http.StatusUnauthorized, core.ErrInvalidSignature)
			return
		}
		unix, err := strconv.ParseInt(rawTimestamp, 10, 64)
		if err != nil {
			abortError(c, http.StatusUnauthorized, core.ErrStaleTimestamp)
			return
		}

		identity, err := g.Auth.Verify(c.Request.Context(), address, signature, string(message), time.Unix(unix, 0))
		if err != nil {
			metrics.GateDecisions.WithLabelValues("wallet_auth", errorCode(err)).Inc()
			abortError(c, authStatus(err), err)
			return
		}

		metrics.GateDecisions.WithLabelValues("wallet_auth", "allow").Inc()
		c.Set(identityKey, identity)
		c.Next()
	}
}

// paymentRequired admits requests carrying a valid payment proof for the
// route's price. Any rejection answers 402 with the exact instructions that
// would satisfy the policy.
func (g *Gateway) paymentRequired(price core.PaymentPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Request.URL.Path

		encoded := c.GetHeader(headerPayment)
		if encoded == "" {
			g.paymentRejected(c, price, resource, "payment required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			g.paymentRejected(c, price, resource, "malformed payment header")
			return
		}
		var payload core.PaymentPayload
		if err := json.Unmarshal(decoded, &payload); err != nil {
			g.paymentRejected(c, price, resource, "malformed payment payload")
			return
		}

		payer, err := g.Payment.Verify(c.Request.Context(), &payload, price, resource)
		if err != nil {
			metrics.GateDecisions.WithLabelValues("payment", errorCode(err)).Inc()
			if transient(err) {
				abortError(c, http.StatusServiceUnavailable, err)
				return
			}
			g.paymentRejected(c, price, resource, errorCode(err))
			return
		}

		settle, err := g.Payment.Settle(c.Request.Context(), &payload, price, resource)
		if err != nil {
			metrics.GateDecisions.WithLabelValues("payment", "settle_failed").Inc()
			if transient(err) {
				abortError(c, http.StatusServiceUnavailable, err)
				return
			}
			g.paymentRejected(c, price, resource, "settlement failed")
			return
		}

		if respBody, err := json.Marshal(settle); err == nil {
			c.Header(headerPaymentResp, base64.StdEncoding.EncodeToString(respBody))
		}

		metrics.GateDecisions.WithLabelValues("payment", "allow").Inc()
		c.Set(identityKey, payer)
		c.Next()
	}
}

// paymentRejected answers 402 with machine-readable payment instructions.
func (g *Gateway) paymentRejected(c *gin.Context, price core.PaymentPolicy, resource, reason string) {
	g.Log.Debug("payment gate rejected request",
		zap.String("resource", resource),
		zap.String("reason", reason))
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"x402Version": core.X402Version,
		"error":       reason,
		"accepts":     []core.PaymentRequirements{price.Requirements(resource)},
	})
}

// adminOnly admits requests carrying the operator shared secret. A missing
// deployment secret is a server-side misconfiguration, not a client fault.
func (g *Gateway) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.Admin.Verify(c.GetHeader(headerAdminKey)); err != nil {
			metrics.GateDecisions.WithLabelValues("admin", errorCode(err)).Inc()
			if err == core.ErrAdminAuthNotConfigured {
				abortError(c, http.StatusInternalServerError, err)
				return
			}
			abortError(c, http.StatusUnauthorized, err)
			return
		}
		metrics.GateDecisions.WithLabelValues("admin", "allow").Inc()
		c.Set(identityKey, "admin")
		c.Next()
	}
}
