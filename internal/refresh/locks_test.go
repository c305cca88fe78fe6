package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireIsExclusivePerKey(t *testing.T) {
	registry := NewLockRegistry()

	release, ok := registry.TryAcquire("table:orders")
	require.True(t, ok)

	_, ok = registry.TryAcquire("table:orders")
	assert.False(t, ok, "held key cannot be acquired again")

	release()
	release2, ok := registry.TryAcquire("table:orders")
	assert.True(t, ok, "released key is available again")
	release2()
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	registry := NewLockRegistry()

	r1, ok1 := registry.TryAcquire("table:orders")
	r2, ok2 := registry.TryAcquire("table:trades")
	assert.True(t, ok1)
	assert.True(t, ok2)
	r1()
	r2()
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	registry := NewLockRegistry()

	release := registry.Acquire("pf:pf_trades")

	acquired := make(chan struct{})
	go func() {
		r := registry.Acquire("pf:pf_trades")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}
