package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailvault/mailvault/interfaces"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/utils"
)

// memoryCoordinator enforces single-flight sync per account within one
// process. Leases expire after the TTL so a goroutine that died without
// releasing does not block the account forever.
type memoryCoordinator struct {
	log logger.Logger
	ttl time.Duration

	mu     sync.Mutex
	leases map[string]*interfaces.SyncLease
}

func NewMemoryCoordinator(ttl time.Duration, log logger.Logger) interfaces.SyncCoordinator {
	return &memoryCoordinator{
		log:    log,
		ttl:    ttl,
		leases: make(map[string]*interfaces.SyncLease),
	}
}

func (c *memoryCoordinator) TryAcquire(ctx context.Context, accountID string) (*interfaces.SyncLease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := utils.Now()
	if existing, ok := c.leases[accountID]; ok {
		if now.Before(existing.ExpiresAt) {
			return nil, er.ErrSyncBusy
		}
		c.log.Warnf("reclaiming expired sync lease for account %s", accountID)
	}

	lease := &interfaces.SyncLease{
		AccountID: accountID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(c.ttl),
	}
	c.leases[accountID] = lease
	return lease, nil
}

func (c *memoryCoordinator) Release(ctx context.Context, lease *interfaces.SyncLease) error {
	if lease == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A mismatched token means the lease expired and was reclaimed by
	// another holder; releasing it now must not evict the new holder.
	if existing, ok := c.leases[lease.AccountID]; ok && existing.Token == lease.Token {
		delete(c.leases, lease.AccountID)
	}
	return nil
}
