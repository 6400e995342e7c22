package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/interfaces"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
)

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) interfaces.AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachment models.Attachment
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&attachment)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, er.ErrNotFound
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get attachment: %w", result.Error)
	}
	return &attachment, nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.ListByMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachments []*models.Attachment
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at asc").
		Find(&attachments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

// ListByChecksum finds every attachment row carrying the same payload,
// useful for cross-message dedup inspection.
func (r *attachmentRepository) ListByChecksum(ctx context.Context, checksum string) ([]*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.ListByChecksum")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachments []*models.Attachment
	err := r.db.WithContext(ctx).
		Where("checksum = ?", checksum).
		Find(&attachments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list attachments by checksum: %w", err)
	}
	return attachments, nil
}
