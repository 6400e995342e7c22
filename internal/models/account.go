package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/utils"
)

// Account is an IMAP account registered for synchronization.
type Account struct {
	ID string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	// IMAP Configuration
	ImapServer   string             `gorm:"column:imap_server;type:varchar(255);not null" json:"imapServer"`
	ImapPort     int                `gorm:"column:imap_port;not null" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255);not null" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(255);not null" json:"-"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(20);not null;default:'tls'" json:"imapSecurity"`
	// Sync Configuration
	Folders pq.StringArray `gorm:"column:folders;type:text[];not null" json:"folders"`
	Enabled bool           `gorm:"column:enabled;not null;default:true" json:"enabled"`
	// Status Information
	LastSyncAt    *time.Time       `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	LastOutcome   enum.SyncOutcome `gorm:"column:last_outcome;type:varchar(20)" json:"lastOutcome"`
	LastError     string           `gorm:"column:last_error;type:text" json:"lastError"`
	MessagesTotal int64            `gorm:"column:messages_total;not null;default:0" json:"messagesTotal"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}
