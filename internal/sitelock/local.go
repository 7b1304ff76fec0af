// Package sitelock provides inventory.SiteLocker implementations: an
// in-process locker for single-node deployments and a redis-backed locker for
// multi-node ones.
package sitelock

import (
	"context"
	"sync"

	"github.com/campreserv/core/pkg/inventory"
)

// LocalLocker serializes block creation per tenant/site with in-process
// mutexes. Only safe when a single process serves the tenant's traffic.
type LocalLocker struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

// NewLocalLocker returns an in-process SiteLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{mutexes: make(map[string]*sync.Mutex)}
}

// LockSites acquires the per-site mutexes in the order given. The manager
// sorts site ids, so overlapping requests acquire in the same order and
// cannot deadlock.
func (locker *LocalLocker) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) (inventory.UnlockFunc, error) {
	held := make([]*sync.Mutex, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		mutex := locker.mutexFor(tenantID.String() + "/" + siteID.String())
		mutex.Lock()
		held = append(held, mutex)
	}
	return func(context.Context) {
		for index := len(held) - 1; index >= 0; index-- {
			held[index].Unlock()
		}
	}, nil
}

func (locker *LocalLocker) mutexFor(key string) *sync.Mutex {
	locker.mu.Lock()
	defer locker.mu.Unlock()
	mutex, exists := locker.mutexes[key]
	if !exists {
		mutex = &sync.Mutex{}
		locker.mutexes[key] = mutex
	}
	return mutex
}
