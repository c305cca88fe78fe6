package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new instance of RunRepository backed by the
// history database
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

// Record persists one refresh run outcome
func (r *runRepository) Record(ctx context.Context, run *model.RefreshRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID retrieves a run by its UUID
func (r *runRepository) GetByID(ctx context.Context, id string) (*model.RefreshRun, error) {
	if !utils.IsValidUUID(id) {
		return nil, ErrInvalidUUID
	}

	var run model.RefreshRun
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&run)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, result.Error
	}
	return &run, nil
}

// GetAll retrieves runs with optional table and status filtering
func (r *runRepository) GetAll(ctx context.Context, table string, status model.RunStatus, limit, offset int) ([]*model.RefreshRun, int64, error) {
	var runs []*model.RefreshRun
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RefreshRun{})

	if table != "" {
		query = query.Where("table_name = ?", table)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Limit(limit).Offset(offset).Order("started_at DESC").Find(&runs)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return runs, total, nil
}

// LastForTable retrieves the most recent run for a table
func (r *runRepository) LastForTable(ctx context.Context, table string) (*model.RefreshRun, error) {
	var run model.RefreshRun
	result := r.db.WithContext(ctx).Where("table_name = ?", table).Order("started_at DESC").First(&run)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, result.Error
	}
	return &run, nil
}

// CountByStatus returns the count of runs by status
func (r *runRepository) CountByStatus(ctx context.Context) (map[model.RunStatus]int64, error) {
	var results []struct {
		Status model.RunStatus
		Count  int64
	}

	err := r.db.WithContext(ctx).Model(&model.RefreshRun{}).Select("status, COUNT(*) as count").Group("status").Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.RunStatus]int64)
	for _, result := range results {
		counts[result.Status] = result.Count
	}

	return counts, nil
}
