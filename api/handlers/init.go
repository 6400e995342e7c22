package handlers

import (
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/repository"
)

type APIHandlers struct {
	Accounts    *AccountsHandler
	Messages    *MessagesHandler
	Attachments *AttachmentsHandler
	Sync        *SyncHandler
}

func InitHandlers(r *repository.Repositories, orchestrator interfaces.SyncOrchestrator) *APIHandlers {
	return &APIHandlers{
		Accounts:    NewAccountsHandler(r),
		Messages:    NewMessagesHandler(r),
		Attachments: NewAttachmentsHandler(r),
		Sync:        NewSyncHandler(orchestrator),
	}
}
