package interfaces

import (
	"context"
	"time"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

// SyncLease is a time-bounded claim on an account's sync slot. The token
// distinguishes the holder so a crashed holder's expired lease can be
// reclaimed without a release.
type SyncLease struct {
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// SyncCoordinator enforces single-flight sync per account. TryAcquire never
// blocks; a held lease yields errors.ErrSyncBusy.
type SyncCoordinator interface {
	TryAcquire(ctx context.Context, accountID string) (*SyncLease, error)
	Release(ctx context.Context, lease *SyncLease) error
}

// FolderIdentity is what an IMAP SELECT reports about a folder.
type FolderIdentity struct {
	Name        string
	UIDValidity uint32
	Messages    uint32
}

// RawMessage is one fetched message body with its UID.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// IMAPSession is an authenticated IMAP connection scoped to one account.
type IMAPSession interface {
	SelectFolder(folderName string) (*FolderIdentity, error)
	// SearchSince returns UIDs strictly greater than lastUID in ascending
	// order, at most max of them.
	SearchSince(lastUID uint32, max int) ([]uint32, error)
	FetchMessages(uids []uint32) ([]*RawMessage, error)
	Logout() error
}

type IMAPDialer interface {
	Dial(ctx context.Context, account *models.Account) (IMAPSession, error)
}

// CycleResult summarizes one sync cycle over all folders of an account.
type CycleResult struct {
	Fetched        int
	Committed      int
	Skipped        int
	Failed         int
	IdentityResets int
}

func (r *CycleResult) Add(other CycleResult) {
	r.Fetched += other.Fetched
	r.Committed += other.Committed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.IdentityResets += other.IdentityResets
}

type SyncEngine interface {
	SyncAccount(ctx context.Context, account *models.Account) (*CycleResult, error)
}

type TriggerOutcome string

const (
	TriggerAccepted TriggerOutcome = "accepted"
	TriggerBusy     TriggerOutcome = "busy"
)

// AccountSyncStatus is the orchestrator's view of one account.
type AccountSyncStatus struct {
	AccountID        string           `json:"accountId"`
	CurrentlyRunning bool             `json:"currentlyRunning"`
	LastSyncAt       *time.Time       `json:"lastSyncAt"`
	LastOutcome      enum.SyncOutcome `json:"lastOutcome"`
	LastError        string           `json:"lastError,omitempty"`
	Counts           CycleResult      `json:"counts"`
}

type SyncOrchestrator interface {
	Start(ctx context.Context) error
	Stop()
	TriggerSync(ctx context.Context, accountID string) (TriggerOutcome, error)
	Status(accountID string) (*AccountSyncStatus, error)
	StatusAll() map[string]AccountSyncStatus
}
