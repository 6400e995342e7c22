package models

import (
	"time"
)

// MailboxCheckpoint is the durable sync cursor for one (account, folder)
// pair. HighWaterMark is the highest IMAP UID whose message batch has been
// fully committed; IdentityEpoch mirrors the folder's UIDVALIDITY at the
// time the cursor was written. UIDs are only comparable within one epoch.
type MailboxCheckpoint struct {
	ID            string    `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountID     string    `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_checkpoint_account_folder;not null"`
	FolderName    string    `gorm:"column:folder_name;type:varchar(100);uniqueIndex:idx_checkpoint_account_folder;not null"`
	HighWaterMark uint32    `gorm:"column:high_water_mark;not null"`
	IdentityEpoch uint32    `gorm:"column:identity_epoch;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (MailboxCheckpoint) TableName() string {
	return "mailbox_checkpoints"
}
