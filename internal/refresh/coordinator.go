package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

// Coordinator runs table refreshes across the configured set with bounded
// parallelism. Distinct tables may refresh concurrently; a second request
// for a table already mid-refresh is rejected immediately rather than
// queued.
type Coordinator struct {
	dispatcher  *Dispatcher
	locks       *LockRegistry
	maxParallel int
}

// NewCoordinator creates a coordinator around a dispatcher. The lock
// registry must be the same one the dispatcher's partition manager uses.
func NewCoordinator(dispatcher *Dispatcher, locks *LockRegistry, maxParallel int) *Coordinator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Coordinator{
		dispatcher:  dispatcher,
		locks:       locks,
		maxParallel: maxParallel,
	}
}

// RefreshTable refreshes a single table under its exclusivity lock. A
// table already being refreshed yields a TableBusy result without
// executing anything.
func (c *Coordinator) RefreshTable(ctx context.Context, spec *model.TableSpec, dryRun bool) *model.RefreshResult {
	release, ok := c.locks.TryAcquire("table:" + spec.Name)
	if !ok {
		logrus.WithField("table", spec.Name).Warn("Refresh rejected, table already busy")
		return busyResult(spec, dryRun)
	}
	defer release()

	return c.dispatcher.Refresh(ctx, spec, dryRun)
}

// RefreshTables runs a full pass over the given specs and returns one
// result per spec in input order. A failure in one table never aborts the
// others.
func (c *Coordinator) RefreshTables(ctx context.Context, specs []model.TableSpec, dryRun bool) []*model.RefreshResult {
	results := make([]*model.RefreshResult, len(specs))
	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup

	for i := range specs {
		wg.Add(1)
		go func(i int, spec *model.TableSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.RefreshTable(ctx, spec, dryRun)
		}(i, &specs[i])
	}

	wg.Wait()
	return results
}

func busyResult(spec *model.TableSpec, dryRun bool) *model.RefreshResult {
	now := time.Now()
	return &model.RefreshResult{
		Table:      spec.Name,
		Strategy:   spec.Strategy,
		SyncMode:   spec.SyncMode,
		Status:     model.RunStatusSkipped,
		ErrorKind:  utils.ErrCodeTableBusy,
		Error:      utils.NewTableBusyError(spec.Name).Error(),
		Message:    "refresh already in progress, request rejected",
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
	}
}
