package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/metrics"
	"github.com/feedgate-io/feedgate/ports"
)

const paymentNoncePrefix = "payment:nonce:"

// settlementSlack extends the double-spend key past the proof's own validity
// so a nonce cannot be replayed within its window even with clock drift.
const settlementSlack = time.Hour

// PaymentService validates payment proofs against route price policy.
// Structural, temporal and amount checks are local; authorization is
// delegated to the external facilitator; double-spend prevention uses the
// same single-use consumption pattern as nonce auth, keyed by proof nonce.
type PaymentService struct {
	store       ports.Store
	facilitator ports.Facilitator
	events      ports.EventPublisher
	log         *zap.Logger
}

// NewPaymentService creates a payment gate.
func NewPaymentService(store ports.Store, facilitator ports.Facilitator, events ports.EventPublisher, log *zap.Logger) *PaymentService {
	return &PaymentService{store: store, facilitator: facilitator, events: events, log: log}
}

// Verify runs the full proof pipeline and reserves the proof nonce. On
// success the payer address is returned as the caller's identity. Store and
// facilitator failures fail closed.
func (s *PaymentService) Verify(ctx context.Context, payload *core.PaymentPayload, policy core.PaymentPolicy, resource string) (string, error) {
	auth := &payload.Payload.Authorization

	if err := checkStructure(payload, policy); err != nil {
		return "", err
	}

	if err := checkValidity(auth); err != nil {
		return "", err
	}

	if err := checkAmount(auth.Value, policy.Amount); err != nil {
		return "", err
	}

	// Cheap local payee check before the facilitator round trip.
	if !strings.EqualFold(auth.To, policy.PayTo) {
		return "", core.ErrInvalidAuthorization
	}

	requirements := policy.Requirements(resource)
	verdict, err := s.facilitator.Verify(ctx, payload, requirements)
	if err != nil {
		return "", err
	}
	if !verdict.Valid {
		s.log.Info("facilitator rejected payment proof",
			zap.String("payer", auth.From),
			zap.String("reason", verdict.Reason))
		return "", core.ErrInvalidAuthorization
	}

	// Single-use consumption: the first instance to claim the nonce wins;
	// everyone else sees an already-settled proof.
	reserved, err := s.store.SetNX(ctx, paymentNoncePrefix+strings.ToLower(auth.Nonce),
		strings.ToLower(auth.From), s.nonceTTL(auth))
	if err != nil {
		return "", err
	}
	if !reserved {
		return "", core.ErrAlreadySettled
	}

	return auth.From, nil
}

// Settle executes settlement for a verified proof and publishes the
// settlement record. A settlement refusal releases nothing: the nonce stays
// consumed, matching the facilitator's view of the attempt.
func (s *PaymentService) Settle(ctx context.Context, payload *core.PaymentPayload, policy core.PaymentPolicy, resource string) (*ports.SettleResult, error) {
	auth := &payload.Payload.Authorization

	result, err := s.facilitator.Settle(ctx, payload, policy.Requirements(resource))
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !result.Success {
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
		s.log.Warn("settlement rejected",
			zap.String("payer", auth.From),
			zap.String("reason", result.Reason))
		return result, core.ErrInvalidAuthorization
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()

	if s.events != nil {
		settlement := core.Settlement{
			Payer:   auth.From,
			PayTo:   policy.PayTo,
			Amount:  auth.Value,
			Asset:   policy.Asset,
			Network: policy.Network,
			Nonce:   auth.Nonce,
			TxHash:  result.TxHash,
		}
		if err := s.events.PublishSettlement(ctx, settlement); err != nil {
			s.log.Warn("failed to publish settlement event", zap.Error(err))
		}
	}

	return result, nil
}

func checkStructure(payload *core.PaymentPayload, policy core.PaymentPolicy) error {
	auth := &payload.Payload.Authorization
	switch {
	case payload.X402Version != core.X402Version,
		payload.Scheme != core.SchemeExact,
		payload.Payload.Signature == "",
		auth.From == "", auth.To == "", auth.Value == "", auth.Nonce == "":
		return core.ErrSchemeMismatch
	}
	if payload.Network != policy.Network {
		return core.ErrSchemeMismatch
	}
	if !strings.EqualFold(auth.Asset, policy.Asset) {
		return core.ErrSchemeMismatch
	}
	return nil
}

func checkValidity(auth *core.Authorization) error {
	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return core.ErrSchemeMismatch
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return core.ErrSchemeMismatch
	}

	now := time.Now().Unix()
	if now < validAfter {
		return core.ErrProofNotYetValid
	}
	if now > validBefore {
		return core.ErrProofExpired
	}
	return nil
}

func checkAmount(value, required string) error {
	offered, err := decimal.NewFromString(value)
	if err != nil {
		return core.ErrSchemeMismatch
	}
	price, err := decimal.NewFromString(required)
	if err != nil {
		return core.ErrSchemeMismatch
	}
	if offered.LessThan(price) {
		return core.ErrInsufficientAmount
	}
	return nil
}

func (s *PaymentService) nonceTTL(auth *core.Authorization) time.Duration {
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return settlementSlack
	}
	ttl := time.Until(time.Unix(validBefore, 0)) + settlementSlack
	if ttl < settlementSlack {
		ttl = settlementSlack
	}
	return ttl
}
