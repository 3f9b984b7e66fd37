package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedgate-io/feedgate/core"
)

// NonceRequest asks for a challenge for one wallet.
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// VerifyRequest carries a signed challenge. Timestamp is unix seconds.
type VerifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"`
}

// bindJSON decodes the request body. A body that trips the capped reader
// answers 413 like the up-front length check; anything else malformed is 400.
func (g *Gateway) bindJSON(c *gin.Context, out any) bool {
	err := c.ShouldBindJSON(out)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		g.bodyTooLarge(c)
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "invalid_request"})
	return false
}

// handleNonce issues an authentication challenge.
func (g *Gateway) handleNonce(c *gin.Context) {
	var req NonceRequest
	if !g.bindJSON(c, &req) {
		return
	}

	challenge, err := g.Auth.IssueChallenge(c.Request.Context(), req.Address)
	if err != nil {
		abortError(c, authStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":      challenge.Nonce,
		"message":    challenge.Message,
		"expires_at": challenge.ExpiresAt.Format(time.RFC3339),
	})
}

// handleVerify verifies a signed challenge and issues an access token.
func (g *Gateway) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if !g.bindJSON(c, &req) {
		return
	}

	token, expiresIn, err := g.Auth.Login(c.Request.Context(), req.Address, req.Signature, req.Message, time.Unix(req.Timestamp, 0))
	if err != nil {
		abortError(c, authStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

// handleHealth reports process liveness and store reachability.
func (g *Gateway) handleHealth(c *gin.Context) {
	_, err := g.Store.Get(c.Request.Context(), "healthz:probe")
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateFeedRequest is the shape the gate inspects before handing off; the
// feed schema itself belongs to the persistence collaborator.
type CreateFeedRequest struct {
	Title    string `json:"title" binding:"required"`
	ImageURL string `json:"image_url"`
}

// CreateFeed is the collaborator boundary for feed creation: the gate has
// decided "proceed as identity X" and only URL-shaped fields are still
// validated here.
func (g *Gateway) CreateFeed(c *gin.Context) {
	identity, _ := Identity(c)

	var req CreateFeedRequest
	if !g.bindJSON(c, &req) {
		return
	}

	if req.ImageURL != "" && !g.SafeURL.IsSafeReference(req.ImageURL) {
		abortError(c, http.StatusBadRequest, core.ErrUnsafeReference)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "identity": identity})
}

// CreateEntryRequest is the shape the gate inspects before handing off.
type CreateEntryRequest struct {
	ContentRef  string `json:"content_ref" binding:"required"`
	ExternalURL string `json:"external_url"`
}

// CreateEntry is the collaborator boundary for entry creation.
func (g *Gateway) CreateEntry(c *gin.Context) {
	identity, _ := Identity(c)

	var req CreateEntryRequest
	if !g.bindJSON(c, &req) {
		return
	}

	for _, ref := range []string{req.ContentRef, req.ExternalURL} {
		if ref != "" && !g.SafeURL.IsSafeReference(ref) {
			abortError(c, http.StatusBadRequest, core.ErrUnsafeReference)
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"feed_id":  c.Param("id"),
		"identity": identity,
	})
}

// DownloadEntry is the collaborator boundary for the priced download route;
// the payment gate has already verified and settled.
func (g *Gateway) DownloadEntry(c *gin.Context) {
	identity, _ := Identity(c)
	c.JSON(http.StatusOK, gin.H{
		"entry_id": c.Param("id"),
		"payer":    identity,
	})
}

// AdminStats reports limiter configuration for operators.
func (g *Gateway) AdminStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(startedAt).String(),
	})
}

var startedAt = time.Now()
