package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/adapters/store"
	"github.com/feedgate-io/feedgate/adapters/tokenizer"
	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/ports"
	"github.com/feedgate-io/feedgate/safeurl"
	"github.com/feedgate-io/feedgate/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

// stubFacilitator accepts or rejects every proof.
type stubFacilitator struct {
	valid  bool
	reason string
}

func (f *stubFacilitator) Verify(context.Context, *core.PaymentPayload, core.PaymentRequirements) (*ports.VerifyResult, error) {
	return &ports.VerifyResult{Valid: f.valid, Reason: f.reason}, nil
}

func (f *stubFacilitator) Settle(context.Context, *core.PaymentPayload, core.PaymentRequirements) (*ports.SettleResult, error) {
	return &ports.SettleResult{Success: true, TxHash: "0xabc", Network: "base"}, nil
}

type gatewayOptions struct {
	rateLimitMax int
	maxBodyBytes int64
	adminKey     string
	facilitator  ports.Facilitator
}

func newTestRouter(t *testing.T, opts gatewayOptions) *gin.Engine {
	t.Helper()

	if opts.rateLimitMax == 0 {
		opts.rateLimitMax = 100
	}
	if opts.maxBodyBytes == 0 {
		opts.maxBodyBytes = 50 << 20
	}
	if opts.facilitator == nil {
		opts.facilitator = &stubFacilitator{valid: true}
	}

	memory := store.NewMemoryStore()
	log := zap.NewNop()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(signKey, 15*time.Minute)

	auth := service.NewAuthService(memory, tk, nil, nil, service.AuthConfig{Domain: "feedgate.test"}, log)
	payment := service.NewPaymentService(memory, opts.facilitator, nil, log)
	limiter := service.NewLimiter(memory, 10*time.Second, opts.rateLimitMax, log)

	g := &Gateway{
		Auth:      auth,
		Payment:   payment,
		Limiter:   limiter,
		Admin:     service.NewAdminGuard(opts.adminKey),
		Tokenizer: tk,
		SafeURL: safeurl.NewWithLookup(func(_ context.Context, host string) ([]net.IP, error) {
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		}),
		Store:        memory,
		MaxBodyBytes: opts.maxBodyBytes,
		Log:          log,
	}

	downloadPrice := core.PaymentPolicy{
		Amount:  "1000",
		Asset:   "USDC",
		Network: "base",
		PayTo:   payTo,
	}

	return SetupRouter(g, []Route{
		{Method: http.MethodGet, Path: "/v1/feeds", Policy: core.Public(), Handler: func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"feeds": []string{}})
		}},
		{Method: http.MethodPost, Path: "/v1/feeds", Policy: core.WalletAuth(), Handler: g.CreateFeed},
		{Method: http.MethodPost, Path: "/v1/feeds/:id/entries", Policy: core.WalletAuth(), Handler: g.CreateEntry},
		{Method: http.MethodGet, Path: "/v1/entries/:id/download", Policy: core.PaymentRequired(downloadPrice), Handler: g.DownloadEntry},
		{Method: http.MethodGet, Path: "/v1/admin/stats", Policy: core.AdminOnly(), Handler: g.AdminStats},
	})
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func signChallenge(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func issueChallenge(t *testing.T, router *gin.Engine, address string) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/v1/auth/nonce", gin.H{"address": address}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return decodeBody(t, w)["message"].(string)
}

func TestRouter_PublicRoute(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/feeds", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestRouter_RateLimit(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{rateLimitMax: 2})

	for i := 0; i < 2; i++ {
		w := doJSON(router, http.MethodGet, "/v1/feeds", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := doJSON(router, http.MethodGet, "/v1/feeds", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeBody(t, w)["code"])
}

func TestRouter_RateLimitSkipsHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{rateLimitMax: 1})

	require.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/v1/feeds", nil, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, doJSON(router, http.MethodGet, "/v1/feeds", nil, nil).Code)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/metrics", nil, nil).Code)
}

func TestRouter_SizeLimit(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{maxBodyBytes: 1 << 20})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/nonce", bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "body_too_large", body["code"])
	assert.Contains(t, body["error"], "1 MB limit")
}

func TestRouter_SizeLimitChunked(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{maxBodyBytes: 1 << 20})

	// No Content-Length: the up-front check cannot fire, so the capped
	// reader has to produce the same 413 at bind time.
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/nonce", bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "body_too_large", decodeBody(t, w)["code"])
}

func TestRouter_WalletAuthMissingCredentials(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodPost, "/v1/feeds", gin.H{"title": "t"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Signature", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "missing_credentials", decodeBody(t, w)["code"])
}

func TestRouter_WalletAuthSignedHeaders(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	message := issueChallenge(t, router, address)
	headers := map[string]string{
		"x-wallet-address": address,
		"x-signature":      signChallenge(t, key, message),
		"x-message":        base64.StdEncoding.EncodeToString([]byte(message)),
		"x-timestamp":      strconv.FormatInt(time.Now().Unix(), 10),
	}

	w := doJSON(router, http.MethodPost, "/v1/feeds", gin.H{"title": "my feed"}, headers)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, address, decodeBody(t, w)["identity"])

	// The nonce is consumed: the identical request replays.
	w = doJSON(router, http.MethodPost, "/v1/feeds", gin.H{"title": "my feed"}, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "nonce_replayed", decodeBody(t, w)["code"])
}

func TestRouter_WalletAuthBearerToken(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	message := issueChallenge(t, router, address)
	w := doJSON(router, http.MethodPost, "/v1/auth/verify", gin.H{
		"address":   address,
		"signature": signChallenge(t, key, message),
		"message":   message,
		"timestamp": time.Now().Unix(),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Bearer", body["token_type"])
	token := body["access_token"].(string)
	require.NotEmpty(t, token)

	// The token admits repeated requests without re-signing.
	for i := 0; i < 2; i++ {
		w = doJSON(router, http.MethodPost, "/v1/feeds", gin.H{"title": "t"}, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, address, decodeBody(t, w)["identity"])
	}
}

func TestRouter_WalletAuthBadToken(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodPost, "/v1/feeds", gin.H{"title": "t"}, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "invalid_token", decodeBody(t, w)["code"])
}

func TestRouter_UnsafeImageURL(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	message := issueChallenge(t, router, address)

	w := doJSON(router, http.MethodPost, "/v1/feeds", gin.H{
		"title":     "t",
		"image_url": "http://169.254.169.254/latest/meta-data/",
	}, map[string]string{
		"x-wallet-address": address,
		"x-signature":      signChallenge(t, key, message),
		"x-message":        base64.StdEncoding.EncodeToString([]byte(message)),
		"x-timestamp":      strconv.FormatInt(time.Now().Unix(), 10),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsafe_reference", decodeBody(t, w)["code"])
}

func paymentHeader(t *testing.T, value string) string {
	t.Helper()
	now := time.Now().Unix()
	payload := core.PaymentPayload{
		X402Version: core.X402Version,
		Scheme:      core.SchemeExact,
		Network:     "base",
		Payload: core.ExactPayload{
			Signature: "0xsig",
			Authorization: core.Authorization{
				From:        "0x857b06519E91e3A54538791bDbb0E22373e36b66",
				To:          payTo,
				Value:       value,
				Asset:       "USDC",
				ValidAfter:  strconv.FormatInt(now-60, 10),
				ValidBefore: strconv.FormatInt(now+600, 10),
				Nonce:       "0x" + strconv.FormatInt(time.Now().UnixNano(), 16),
			},
		},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestRouter_PaymentMissing(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/entries/42/download", nil, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(core.X402Version), body["x402Version"])
	accepts := body["accepts"].([]any)
	require.Len(t, accepts, 1)
	instr := accepts[0].(map[string]any)
	assert.Equal(t, "exact", instr["scheme"])
	assert.Equal(t, "base", instr["network"])
	assert.Equal(t, "1000", instr["maxAmountRequired"])
	assert.Equal(t, "USDC", instr["asset"])
	assert.Equal(t, payTo, instr["payTo"])
	assert.Equal(t, "/v1/entries/42/download", instr["resource"])
}

func TestRouter_PaymentMalformedHeader(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/entries/42/download", nil, map[string]string{
		"x-payment": "%%%not-base64%%%",
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRouter_PaymentInsufficientAmount(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/entries/42/download", nil, map[string]string{
		"x-payment": paymentHeader(t, "1"),
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient_amount", decodeBody(t, w)["error"])
}

func TestRouter_PaymentAccepted(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/entries/42/download", nil, map[string]string{
		"x-payment": paymentHeader(t, "1000"),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "42", body["entry_id"])
	assert.Equal(t, "0x857b06519E91e3A54538791bDbb0E22373e36b66", body["payer"])

	encoded := w.Header().Get("X-Payment-Response")
	require.NotEmpty(t, encoded)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var settle ports.SettleResult
	require.NoError(t, json.Unmarshal(decoded, &settle))
	assert.True(t, settle.Success)
	assert.Equal(t, "0xabc", settle.TxHash)
}

func TestRouter_PaymentFacilitatorRejects(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{
		facilitator: &stubFacilitator{valid: false, reason: "bad signature"},
	})

	w := doJSON(router, http.MethodGet, "/v1/entries/42/download", nil, map[string]string{
		"x-payment": paymentHeader(t, "1000"),
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "invalid_authorization", decodeBody(t, w)["error"])
}

func TestRouter_AdminGate(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{adminKey: "s3cret"})

	w := doJSON(router, http.MethodGet, "/v1/admin/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/admin/stats", nil, map[string]string{"admin-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_admin_key", decodeBody(t, w)["code"])

	w = doJSON(router, http.MethodGet, "/v1/admin/stats", nil, map[string]string{"admin-api-key": "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestRouter_AdminNotConfigured(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	w := doJSON(router, http.MethodGet, "/v1/admin/stats", nil, map[string]string{"admin-api-key": "anything"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "admin_auth_not_configured", decodeBody(t, w)["code"])
}

func TestRouter_CORSHeaders(t *testing.T) {
	router := newTestRouter(t, gatewayOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/feeds", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
