package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	ListEnabled(ctx context.Context) ([]*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	RecordSyncOutcome(ctx context.Context, accountID string, outcome enum.SyncOutcome, errMsg string, committed int64) error
	Delete(ctx context.Context, id string) error
}

// CommitBatch is one atomic unit of sync progress: the messages of a fetch
// batch together with the checkpoint advance that covers them. Either all of
// it is persisted or none of it.
type CommitBatch struct {
	AccountID     string
	FolderName    string
	Messages      []*models.Message
	IdentityEpoch uint32
	// ExpectedHighWaterMark is the cursor value read at the start of the
	// cycle; a mismatch at commit time means another writer advanced it.
	ExpectedHighWaterMark uint32
	NewHighWaterMark      uint32
}

type CheckpointRepository interface {
	// Read returns nil, nil when no checkpoint exists yet.
	Read(ctx context.Context, accountID, folderName string) (*models.MailboxCheckpoint, error)
	// CommitBatch persists the batch and advances the checkpoint in one
	// transaction. Returns errors.ErrStaleCheckpoint when the stored
	// high-water mark no longer matches ExpectedHighWaterMark.
	CommitBatch(ctx context.Context, batch *CommitBatch) error
	// Reset rewrites the checkpoint for a new identity epoch with the
	// high-water mark back at zero.
	Reset(ctx context.Context, accountID, folderName string, newEpoch uint32) error
}

type MessageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Message, error)
	GetByUID(ctx context.Context, accountID, folder string, uid uint32) (*models.Message, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Message, int64, error)
	ListByFolder(ctx context.Context, accountID, folder string, limit, offset int) ([]*models.Message, int64, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type AttachmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error)
	ListByChecksum(ctx context.Context, checksum string) ([]*models.Attachment, error)
}
