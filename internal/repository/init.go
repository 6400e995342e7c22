package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/models"
)

type Repositories struct {
	AccountRepository    interfaces.AccountRepository
	CheckpointRepository interfaces.CheckpointRepository
	MessageRepository    interfaces.MessageRepository
	AttachmentRepository interfaces.AttachmentRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:    NewAccountRepository(db),
		CheckpointRepository: NewCheckpointRepository(db),
		MessageRepository:    NewMessageRepository(db),
		AttachmentRepository: NewAttachmentRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Account{},
		&models.MailboxCheckpoint{},
		&models.Message{},
		&models.Attachment{},
	)

	db.Close()

	db, _ = gormDB.DB()
	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
