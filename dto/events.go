package dto

import "github.com/mailvault/mailvault/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id        string      `json:"id"`
	EntityId  string      `json:"entityId"`
	EventType string      `json:"eventType"`
	Data      interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Timestamp   string `json:"timestamp"`
}

// MessageArchived is emitted after a message batch commit, once per message.
type MessageArchived struct {
	MessageID     string `json:"messageId"`
	AccountID     string `json:"accountId"`
	Folder        string `json:"folder"`
	ImapUID       uint32 `json:"imapUid"`
	HasAttachment bool   `json:"hasAttachment"`
}

// SyncCompleted is emitted at the end of a sync cycle for an account.
type SyncCompleted struct {
	AccountID string           `json:"accountId"`
	Outcome   enum.SyncOutcome `json:"outcome"`
	Fetched   int              `json:"fetched"`
	Committed int              `json:"committed"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
}
