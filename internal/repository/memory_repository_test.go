package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardFellows/data-refresh/internal/model"
)

func seedRuns(t *testing.T, repo RunRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := model.RunStatusSuccess
		if i%3 == 0 {
			status = model.RunStatusFailed
		}
		run := &model.RefreshRun{
			Table:        fmt.Sprintf("table_%d", i%2),
			Strategy:     string(model.StrategySimpleCopy),
			SyncMode:     string(model.SyncModeFullReplace),
			Status:       status,
			RowsAffected: int64(i),
		}
		require.NoError(t, repo.Record(context.Background(), run))
	}
}

func TestMemoryRepositoryRecordAssignsIDAndBounds(t *testing.T) {
	repo := NewMemoryRunRepository(3)
	seedRuns(t, repo, 5)

	runs, total, err := repo.GetAll(context.Background(), "", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "capacity bounds retained history")
	for _, run := range runs {
		assert.NotEmpty(t, run.ID)
	}
	assert.Equal(t, int64(4), runs[0].RowsAffected, "newest run is first")
}

func TestMemoryRepositoryFilters(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	seedRuns(t, repo, 6)

	byTable, total, err := repo.GetAll(context.Background(), "table_0", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, run := range byTable {
		assert.Equal(t, "table_0", run.Table)
	}

	failed, _, err := repo.GetAll(context.Background(), "", model.RunStatusFailed, 10, 0)
	require.NoError(t, err)
	for _, run := range failed {
		assert.Equal(t, model.RunStatusFailed, run.Status)
	}
}

func TestMemoryRepositoryLastForTable(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	seedRuns(t, repo, 6)

	last, err := repo.LastForTable(context.Background(), "table_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), last.RowsAffected)

	_, err = repo.LastForTable(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryRepositoryGetByID(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	seedRuns(t, repo, 2)

	runs, _, err := repo.GetAll(context.Background(), "", "", 1, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	found, err := repo.GetByID(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, runs[0].RowsAffected, found.RowsAffected)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidUUID)
}

func TestMemoryRepositoryCountByStatus(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	seedRuns(t, repo, 6)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.RunStatusFailed])
	assert.Equal(t, int64(4), counts[model.RunStatusSuccess])
}
