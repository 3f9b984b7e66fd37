// Package facilitator talks to the external payment facilitator that performs
// authoritative signature verification and on-chain settlement.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/ports"
)

const defaultTimeout = 30 * time.Second

// maxResponseBytes caps facilitator responses; verdicts are small.
const maxResponseBytes = 1 << 20

// HTTPClient implements the Facilitator port against a JSON HTTP API exposing
// /verify and /settle.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPClient creates a facilitator client for the given base URL.
func NewHTTPClient(baseURL string, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *core.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements core.PaymentRequirements `json:"paymentRequirements"`
}

// Verify asks the facilitator whether the proof's embedded authorization is
// validly signed by the payer and addressed to the payee.
func (c *HTTPClient) Verify(ctx context.Context, payload *core.PaymentPayload, requirements core.PaymentRequirements) (*ports.VerifyResult, error) {
	var result ports.VerifyResult
	if err := c.post(ctx, "/verify", payload, requirements, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Settle asks the facilitator to execute settlement for a verified proof.
func (c *HTTPClient) Settle(ctx context.Context, payload *core.PaymentPayload, requirements core.PaymentRequirements) (*ports.SettleResult, error) {
	var result ports.SettleResult
	if err := c.post(ctx, "/settle", payload, requirements, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload *core.PaymentPayload, requirements core.PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         core.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("marshal facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and transport errors are transient, not proof of an
		// invalid payment.
		c.log.Warn("facilitator unreachable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", core.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", core.ErrFacilitatorUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("facilitator rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d", core.ErrFacilitatorUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrFacilitatorUnavailable, err)
	}

	return nil
}
