package repository

import (
	"context"

	"github.com/RichardFellows/data-refresh/internal/model"
)

// RunRepository defines the interface for refresh run history operations
type RunRepository interface {
	// Record persists one refresh run outcome
	Record(ctx context.Context, run *model.RefreshRun) error

	// GetByID retrieves a run by its UUID
	GetByID(ctx context.Context, id string) (*model.RefreshRun, error)

	// GetAll retrieves runs with optional table and status filtering
	GetAll(ctx context.Context, table string, status model.RunStatus, limit, offset int) ([]*model.RefreshRun, int64, error)

	// LastForTable retrieves the most recent run for a table
	LastForTable(ctx context.Context, table string) (*model.RefreshRun, error)

	// CountByStatus returns the count of runs by status
	CountByStatus(ctx context.Context) (map[model.RunStatus]int64, error)
}
