package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/utils"
)

// Attachment records the outcome of processing one email attachment. The
// raw payload is never persisted; only the checksum, metadata, and any
// extracted text survive. SkippedReason set implies ExtractedText is nil.
type Attachment struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey"`
	MessageID   string `gorm:"column:message_id;type:varchar(50);index;not null"`
	Filename    string `gorm:"column:filename;type:varchar(500)"`
	ContentType string `gorm:"column:content_type;type:varchar(255)"`
	ContentID   string `gorm:"column:content_id;type:varchar(255)"`
	Size        int64  `gorm:"column:size;not null;default:0"`
	IsInline    bool   `gorm:"column:is_inline;default:false"`

	// Processing outcome
	Checksum      string              `gorm:"column:checksum;type:varchar(64);index"`
	ExtractedText *string             `gorm:"column:extracted_text;type:text"`
	SkippedReason *enum.SkippedReason `gorm:"column:skipped_reason;type:varchar(50)"`
	ProcessedIn   enum.ProcessedIn    `gorm:"column:processed_in;type:varchar(20);not null"`

	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Attachment) TableName() string {
	return "attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("att", 12)
	}
	a.CreatedAt = utils.Now()
	return nil
}
