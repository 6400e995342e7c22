package events

import (
	"context"

	"github.com/mailvault/mailvault/dto"
	"github.com/mailvault/mailvault/interfaces"
)

// noopPublisher stands in when no broker is configured. Events are dropped.
type noopPublisher struct{}

func NewNoopPublisher() interfaces.EventPublisher {
	return &noopPublisher{}
}

func (n *noopPublisher) PublishMessageArchived(ctx context.Context, event dto.MessageArchived) error {
	return nil
}

func (n *noopPublisher) PublishSyncCompleted(ctx context.Context, event dto.SyncCompleted) error {
	return nil
}

func (n *noopPublisher) Close() error {
	return nil
}
