package repository

import (
	"context"
	"sync"
	"time"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

const defaultMemoryCapacity = 500

// memoryRunRepository keeps recent runs in memory, newest first. It backs
// the history API when no history database is configured, so restarting
// the process loses the run log.
type memoryRunRepository struct {
	mu       sync.RWMutex
	runs     []*model.RefreshRun
	capacity int
}

// NewMemoryRunRepository creates an in-memory RunRepository bounded to
// capacity entries; capacity <= 0 selects the default bound.
func NewMemoryRunRepository(capacity int) RunRepository {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &memoryRunRepository{capacity: capacity}
}

// Record persists one refresh run outcome
func (r *memoryRunRepository) Record(_ context.Context, run *model.RefreshRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = utils.GenerateUUID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	r.runs = append([]*model.RefreshRun{run}, r.runs...)
	if len(r.runs) > r.capacity {
		r.runs = r.runs[:r.capacity]
	}
	return nil
}

// GetByID retrieves a run by its UUID
func (r *memoryRunRepository) GetByID(_ context.Context, id string) (*model.RefreshRun, error) {
	if !utils.IsValidUUID(id) {
		return nil, ErrInvalidUUID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, ErrRunNotFound
}

// GetAll retrieves runs with optional table and status filtering
func (r *memoryRunRepository) GetAll(_ context.Context, table string, status model.RunStatus, limit, offset int) ([]*model.RefreshRun, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*model.RefreshRun
	for _, run := range r.runs {
		if table != "" && run.Table != table {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		filtered = append(filtered, run)
	}

	total := int64(len(filtered))
	if offset >= len(filtered) {
		return nil, total, nil
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered, total, nil
}

// LastForTable retrieves the most recent run for a table
func (r *memoryRunRepository) LastForTable(_ context.Context, table string) (*model.RefreshRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.Table == table {
			return run, nil
		}
	}
	return nil, ErrRunNotFound
}

// CountByStatus returns the count of runs by status
func (r *memoryRunRepository) CountByStatus(_ context.Context) (map[model.RunStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.RunStatus]int64)
	for _, run := range r.runs {
		counts[run.Status]++
	}
	return counts, nil
}
