package service

import (
	"sync"
	"time"

	"github.com/RichardFellows/data-refresh/internal/model"
)

// statusCache holds recent table status snapshots. A status probe runs COUNT
// and MAX queries on both endpoints, so dashboard polling is answered from
// here within the TTL instead of re-querying the databases every few seconds.
type statusCache struct {
	entries map[string]*cachedStatus
	mutex   sync.RWMutex
	ttl     time.Duration
}

type cachedStatus struct {
	status    model.TableStatus
	expiresAt time.Time
}

func newStatusCache(ttl time.Duration) *statusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &statusCache{
		entries: make(map[string]*cachedStatus),
		ttl:     ttl,
	}
}

func (sc *statusCache) get(table string) (model.TableStatus, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	cached, exists := sc.entries[table]
	if !exists || time.Now().After(cached.expiresAt) {
		return model.TableStatus{}, false
	}
	return cached.status, true
}

func (sc *statusCache) set(status model.TableStatus) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.entries[status.Table] = &cachedStatus{
		status:    status,
		expiresAt: time.Now().Add(sc.ttl),
	}
}
