package ports

import (
	"context"

	"github.com/feedgate-io/feedgate/core"
)

// VerifyResult is the facilitator's verdict on a payment proof's embedded
// authorization.
type VerifyResult struct {
	Valid  bool   `json:"isValid"`
	Reason string `json:"invalidReason,omitempty"`
	Payer  string `json:"payer,omitempty"`
}

// SettleResult reports the outcome of settling a verified payment.
type SettleResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"transaction,omitempty"`
	Network string `json:"network,omitempty"`
	Reason  string `json:"errorReason,omitempty"`
}

// Facilitator performs authoritative signature and settlement verification
// for payment proofs. On-chain finality is its problem; the gate only
// constructs the request and interprets accept/reject/error.
type Facilitator interface {
	Verify(ctx context.Context, payload *core.PaymentPayload, requirements core.PaymentRequirements) (*VerifyResult, error)
	Settle(ctx context.Context, payload *core.PaymentPayload, requirements core.PaymentRequirements) (*SettleResult, error)
}
