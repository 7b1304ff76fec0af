package sitelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/campreserv/core/pkg/inventory"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix  = "block_site"
	lockTTL        = 30 * time.Second
	lockRetryDelay = 50 * time.Millisecond
	lockRetryCount = 20
)

// ErrSiteLockHeld is returned when a site lock cannot be obtained in time.
var ErrSiteLockHeld = errors.New("site lock held by another worker")

// RedisLocker serializes block creation per tenant/site across processes
// using redis locks.
type RedisLocker struct {
	locker *redislock.Client
}

// NewRedisLocker returns a redis-backed SiteLocker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client)}
}

// LockSites obtains one redis lock per site, in the order given. On any
// failure the locks already obtained are released before returning.
func (locker *RedisLocker) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) (inventory.UnlockFunc, error) {
	options := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryDelay), lockRetryCount),
	}
	held := make([]*redislock.Lock, 0, len(siteIDs))
	releaseHeld := func(ctx context.Context) {
		for index := len(held) - 1; index >= 0; index-- {
			_ = held[index].Release(ctx)
		}
	}
	for _, siteID := range siteIDs {
		key := fmt.Sprintf("%s:%s:%s", lockKeyPrefix, tenantID.String(), siteID.String())
		lock, err := locker.locker.Obtain(ctx, key, lockTTL, options)
		if errors.Is(err, redislock.ErrNotObtained) {
			releaseHeld(ctx)
			return nil, fmt.Errorf("%w: %s", ErrSiteLockHeld, siteID.String())
		}
		if err != nil {
			releaseHeld(ctx)
			return nil, err
		}
		held = append(held, lock)
	}
	return releaseHeld, nil
}
