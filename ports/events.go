package ports

import (
	"context"

	"github.com/feedgate-io/feedgate/core"
)

// EventPublisher notifies external collaborators about gate outcomes.
// Publishing is best-effort: the store write is the critical part and a
// publish failure never fails the request.
type EventPublisher interface {
	// PublishSettlement announces a settled payment for record keeping.
	PublishSettlement(ctx context.Context, settlement core.Settlement) error

	// PublishLogin announces a successful wallet verification.
	PublishLogin(ctx context.Context, address string) error
}
