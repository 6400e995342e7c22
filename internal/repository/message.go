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

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	result := r.db.WithContext(ctx).Preload("Attachments").Where("id = ?", id).First(&message)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, er.ErrNotFound
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get message: %w", result.Error)
	}
	return &message, nil
}

func (r *messageRepository) GetByUID(ctx context.Context, accountID, folder string, uid uint32) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByUID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	var message models.Message
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ? AND imap_uid = ?", accountID, folder, uid).
		First(&message)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, er.ErrNotFound
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get message by uid: %w", result.Error)
	}
	return &message, nil
}

func (r *messageRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Message, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	return r.list(ctx, r.db.WithContext(ctx).Where("account_id = ?", accountID), limit, offset)
}

func (r *messageRepository) ListByFolder(ctx context.Context, accountID, folder string, limit, offset int) ([]*models.Message, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListByFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	return r.list(ctx, r.db.WithContext(ctx).Where("account_id = ? AND folder = ?", accountID, folder), limit, offset)
}

func (r *messageRepository) list(ctx context.Context, query *gorm.DB, limit, offset int) ([]*models.Message, int64, error) {
	var total int64
	if err := query.Model(&models.Message{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var messages []*models.Message
	err := query.
		Order("imap_uid desc").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, total, nil
}

func (r *messageRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("account_id = ?", accountID).
		Count(&total).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return total, nil
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Message{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return er.ErrNotFound
	}
	return nil
}
