package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/utils"
)

// Message is an archived email message. Rows are immutable after commit
// except for the soft-delete marker.
type Message struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID string `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_message_account_folder_uid;index;not null"`
	Folder    string `gorm:"column:folder;type:varchar(100);uniqueIndex:idx_message_account_folder_uid;not null"`
	ImapUID   uint32 `gorm:"column:imap_uid;uniqueIndex:idx_message_account_folder_uid;not null"`
	MessageID string `gorm:"column:message_id;type:varchar(255);index"`

	// Core email metadata
	Subject     string         `gorm:"column:subject;type:varchar(1000)"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index"`
	FromName    string         `gorm:"column:from_name;type:varchar(255)"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	// Time information
	SentAt     *time.Time `gorm:"column:sent_at;type:timestamp;index"`
	ReceivedAt *time.Time `gorm:"column:received_at;type:timestamp;index"`

	// Content
	BodyText      string `gorm:"column:body_text;type:text"`
	BodyHTML      string `gorm:"column:body_html;type:text"`
	HasAttachment bool   `gorm:"column:has_attachment;default:false"`

	// Raw data
	RawHeaders JSONMap `gorm:"column:raw_headers;type:jsonb"`

	Attachments []Attachment `gorm:"foreignKey:MessageID;references:ID"`

	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	m.CreatedAt = utils.Now()
	return nil
}
