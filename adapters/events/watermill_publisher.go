package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/ports"
)

const (
	// SettlementTopic carries settled payments to the record-keeping
	// collaborator.
	SettlementTopic = "feedgate.payment.settled"

	// LoginTopic carries successful wallet verifications.
	LoginTopic = "feedgate.auth.login"
)

// LoginEvent is the payload published on LoginTopic.
type LoginEvent struct {
	Address string `json:"address"`
}

// WatermillPublisher implements the EventPublisher port using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a publisher over the given Watermill backend.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishSettlement publishes a settled payment.
func (p *WatermillPublisher) PublishSettlement(ctx context.Context, settlement core.Settlement) error {
	return p.publish(SettlementTopic, settlement)
}

// PublishLogin publishes a successful wallet verification.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string) error {
	return p.publish(LoginTopic, LoginEvent{Address: address})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}
