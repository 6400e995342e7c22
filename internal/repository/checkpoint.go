package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailvault/mailvault/interfaces"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

type checkpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) interfaces.CheckpointRepository {
	return &checkpointRepository{db: db}
}

// Read retrieves the checkpoint for an account folder, nil when none exists
func (r *checkpointRepository) Read(ctx context.Context, accountID, folderName string) (*models.MailboxCheckpoint, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "checkpointRepository.Read")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folderName)

	var checkpoint models.MailboxCheckpoint
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND folder_name = ?", accountID, folderName).
		First(&checkpoint)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // no checkpoint yet
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to read checkpoint: %w", result.Error)
	}

	return &checkpoint, nil
}

// CommitBatch persists the batch messages and advances the checkpoint in a
// single transaction. The cursor update carries an optimistic predicate on
// the value read at cycle start; losing that race rolls the whole batch back
// with ErrStaleCheckpoint. Message inserts are idempotent on
// (account, folder, uid) so a replay after a crash between commit and
// acknowledgment does not duplicate rows.
func (r *checkpointRepository) CommitBatch(ctx context.Context, batch *interfaces.CommitBatch) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "checkpointRepository.CommitBatch")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, batch.AccountID)
	tracing.TagFolder(span, batch.FolderName)
	span.LogKV("messages", len(batch.Messages), "newHighWaterMark", batch.NewHighWaterMark)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.advanceCursor(tx, batch); err != nil {
			return err
		}

		for _, message := range batch.Messages {
			attachments := message.Attachments
			message.Attachments = nil

			result := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "account_id"},
					{Name: "folder"},
					{Name: "imap_uid"},
				},
				DoNothing: true,
			}).Create(message)
			if result.Error != nil {
				return fmt.Errorf("failed to insert message uid %d: %w", message.ImapUID, result.Error)
			}
			if result.RowsAffected == 0 {
				// already committed by a previous run of this range
				continue
			}

			for i := range attachments {
				attachments[i].MessageID = message.ID
				if err := tx.Create(&attachments[i]).Error; err != nil {
					return fmt.Errorf("failed to insert attachment for message %s: %w", message.ID, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *checkpointRepository) advanceCursor(tx *gorm.DB, batch *interfaces.CommitBatch) error {
	result := tx.Model(&models.MailboxCheckpoint{}).
		Where("account_id = ? AND folder_name = ? AND high_water_mark = ? AND identity_epoch = ?",
			batch.AccountID, batch.FolderName, batch.ExpectedHighWaterMark, batch.IdentityEpoch).
		Updates(map[string]interface{}{
			"high_water_mark": batch.NewHighWaterMark,
			"updated_at":      utils.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// No matching row: either the checkpoint does not exist yet, or someone
	// else moved it since we read it.
	var existing models.MailboxCheckpoint
	lookup := tx.Where("account_id = ? AND folder_name = ?", batch.AccountID, batch.FolderName).
		First(&existing)
	if lookup.Error == nil {
		return er.ErrStaleCheckpoint
	}
	if lookup.Error != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to look up checkpoint: %w", lookup.Error)
	}

	checkpoint := &models.MailboxCheckpoint{
		AccountID:     batch.AccountID,
		FolderName:    batch.FolderName,
		HighWaterMark: batch.NewHighWaterMark,
		IdentityEpoch: batch.IdentityEpoch,
	}
	if err := tx.Create(checkpoint).Error; err != nil {
		// unique index collision means a concurrent writer won the race
		return er.ErrStaleCheckpoint
	}
	return nil
}

// Reset rewrites the checkpoint for a new identity epoch. The high-water
// mark goes back to zero so the next cycle refetches the folder from the
// start.
func (r *checkpointRepository) Reset(ctx context.Context, accountID, folderName string, newEpoch uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "checkpointRepository.Reset")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folderName)
	span.LogKV("newEpoch", newEpoch)

	result := r.db.WithContext(ctx).
		Model(&models.MailboxCheckpoint{}).
		Where("account_id = ? AND folder_name = ?", accountID, folderName).
		Updates(map[string]interface{}{
			"high_water_mark": 0,
			"identity_epoch":  newEpoch,
			"updated_at":      utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to reset checkpoint: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	checkpoint := &models.MailboxCheckpoint{
		AccountID:     accountID,
		FolderName:    folderName,
		HighWaterMark: 0,
		IdentityEpoch: newEpoch,
	}
	if err := r.db.WithContext(ctx).Create(checkpoint).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return nil
}
