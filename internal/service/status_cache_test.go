package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RichardFellows/data-refresh/internal/model"
)

func TestStatusCacheServesFreshEntries(t *testing.T) {
	cache := newStatusCache(time.Minute)

	cache.set(model.TableStatus{Table: "trades", SourceRows: 100, TargetRows: 98})

	status, ok := cache.get("trades")
	assert.True(t, ok)
	assert.Equal(t, int64(100), status.SourceRows)

	_, ok = cache.get("currencies")
	assert.False(t, ok)
}

func TestStatusCacheExpiresEntries(t *testing.T) {
	cache := newStatusCache(10 * time.Millisecond)

	cache.set(model.TableStatus{Table: "trades"})
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.get("trades")
	assert.False(t, ok)
}

func TestStatusCacheDefaultsTTL(t *testing.T) {
	cache := newStatusCache(0)
	assert.Equal(t, 30*time.Second, cache.ttl)
}

func TestStatusCacheOverwritesByTable(t *testing.T) {
	cache := newStatusCache(time.Minute)

	cache.set(model.TableStatus{Table: "trades", SourceRows: 100})
	cache.set(model.TableStatus{Table: "trades", SourceRows: 150})

	status, ok := cache.get("trades")
	assert.True(t, ok)
	assert.Equal(t, int64(150), status.SourceRows)
}
