package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/dto"
)

type EventPublisher interface {
	PublishMessageArchived(ctx context.Context, event dto.MessageArchived) error
	PublishSyncCompleted(ctx context.Context, event dto.SyncCompleted) error
	Close() error
}
