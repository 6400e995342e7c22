package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mailvault/mailvault/interfaces"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/utils"
)

const leaseKeyPrefix = "sync:lease:"

// releaseScript deletes the lease key only when it still carries our token,
// so an expired lease reclaimed by another holder survives our release.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// redisCoordinator enforces single-flight sync per account across
// processes. The lease lives in a redis key with a TTL, claimed with SETNX.
type redisCoordinator struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

func NewRedisCoordinator(redisURL string, ttl time.Duration, log logger.Logger) (interfaces.SyncCoordinator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	return &redisCoordinator{
		rdb: redis.NewClient(opts),
		ttl: ttl,
		log: log,
	}, nil
}

func (c *redisCoordinator) TryAcquire(ctx context.Context, accountID string) (*interfaces.SyncLease, error) {
	token := uuid.NewString()
	key := leaseKeyPrefix + accountID

	ok, err := c.rdb.SetNX(ctx, key, token, c.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire sync lease")
	}
	if !ok {
		return nil, er.ErrSyncBusy
	}

	return &interfaces.SyncLease{
		AccountID: accountID,
		Token:     token,
		ExpiresAt: utils.Now().Add(c.ttl),
	}, nil
}

func (c *redisCoordinator) Release(ctx context.Context, lease *interfaces.SyncLease) error {
	if lease == nil {
		return nil
	}

	key := leaseKeyPrefix + lease.AccountID
	if err := releaseScript.Run(ctx, c.rdb, []string{key}, lease.Token).Err(); err != nil && err != redis.Nil {
		c.log.Errorf("failed to release sync lease for account %s: %v", lease.AccountID, err)
		return errors.Wrap(err, "failed to release sync lease")
	}
	return nil
}
