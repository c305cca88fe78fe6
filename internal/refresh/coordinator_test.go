package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

func TestSecondRefreshForSameTableIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	source := &fakeHandler{
		queryRowsFn: func(string, ...interface{}) ([]string, [][]interface{}, error) {
			once.Do(func() { close(started) })
			<-release
			return []string{"order_id"}, nil, nil
		},
	}
	locks := NewLockRegistry()
	dispatcher := NewDispatcher(source, &fakeHandler{}, locks, 0)
	coordinator := NewCoordinator(dispatcher, locks, 4)

	spec := identitySpec()
	spec.SyncMode = model.SyncModeFullReplace

	firstDone := make(chan *model.RefreshResult, 1)
	go func() {
		firstDone <- coordinator.RefreshTable(context.Background(), spec, false)
	}()

	<-started
	second := coordinator.RefreshTable(context.Background(), spec, false)
	assert.Equal(t, model.RunStatusSkipped, second.Status)
	assert.Equal(t, utils.ErrCodeTableBusy, second.ErrorKind)

	close(release)
	first := <-firstDone
	assert.Equal(t, model.RunStatusSuccess, first.Status, "the running refresh is unaffected by the rejected one")
}

func TestFullPassReturnsOneResultPerTable(t *testing.T) {
	target := &fakeHandler{
		maxValueFn: func(table, _ string) (interface{}, error) {
			if table == "broken" {
				return nil, fmt.Errorf("table offline")
			}
			return int64(10), nil
		},
	}
	source := &fakeHandler{
		queryRowsFn: func(string, ...interface{}) ([]string, [][]interface{}, error) {
			return []string{"order_id"}, nil, nil
		},
	}
	locks := NewLockRegistry()
	coordinator := NewCoordinator(NewDispatcher(source, target, locks, 0), locks, 2)

	specs := []model.TableSpec{
		{Name: "orders", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeIncremental,
			IncrementalColumn: "order_id", IncrementalType: model.IncrementalTypeIdentity, BatchSize: 10},
		{Name: "broken", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeIncremental,
			IncrementalColumn: "order_id", IncrementalType: model.IncrementalTypeIdentity, BatchSize: 10},
		{Name: "customers", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeFullReplace, BatchSize: 10},
	}

	results := coordinator.RefreshTables(context.Background(), specs, false)
	require.Len(t, results, 3)

	assert.Equal(t, "orders", results[0].Table)
	assert.Equal(t, "broken", results[1].Table)
	assert.Equal(t, "customers", results[2].Table)

	assert.Equal(t, model.RunStatusSuccess, results[0].Status)
	assert.Equal(t, model.RunStatusFailed, results[1].Status)
	assert.Equal(t, model.RunStatusSuccess, results[2].Status,
		"one failing table never aborts the rest of the pass")
}

func TestRefreshTablesBoundsParallelism(t *testing.T) {
	var current, peak atomic.Int32

	source := &fakeHandler{
		queryRowsFn: func(string, ...interface{}) ([]string, [][]interface{}, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return []string{"order_id"}, nil, nil
		},
	}
	locks := NewLockRegistry()
	coordinator := NewCoordinator(NewDispatcher(source, &fakeHandler{}, locks, 0), locks, 1)

	specs := []model.TableSpec{
		{Name: "t1", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeFullReplace, BatchSize: 10},
		{Name: "t2", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeFullReplace, BatchSize: 10},
		{Name: "t3", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeFullReplace, BatchSize: 10},
	}

	results := coordinator.RefreshTables(context.Background(), specs, false)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, model.RunStatusSuccess, r.Status)
	}
	assert.Equal(t, int32(1), peak.Load(), "worker limit of one serializes the pass")
}

func TestRefreshTablesDryRunSkipsEverything(t *testing.T) {
	locks := NewLockRegistry()
	coordinator := NewCoordinator(NewDispatcher(&fakeHandler{}, &fakeHandler{}, locks, 0), locks, 2)

	specs := []model.TableSpec{
		{Name: "orders", Strategy: model.StrategySimpleCopy, SyncMode: model.SyncModeFullReplace},
		{Name: "trades", Strategy: model.StrategyStagingPartitionSwitch, SyncMode: model.SyncModeIncremental,
			IncrementalColumn: "trade_date", IncrementalType: model.IncrementalTypeDate},
	}

	results := coordinator.RefreshTables(context.Background(), specs, true)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.RunStatusSkipped, r.Status)
		assert.True(t, r.DryRun)
	}
}
