package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardFellows/data-refresh/internal/model"
)

func resultFor(table string, status model.RunStatus, rows int64, seconds float64) *model.RefreshResult {
	finished := time.Now()
	return &model.RefreshResult{
		Table:           table,
		Strategy:        model.StrategySimpleCopy,
		SyncMode:        model.SyncModeIncremental,
		Status:          status,
		RowsAffected:    rows,
		StartedAt:       finished.Add(-time.Duration(seconds * float64(time.Second))),
		FinishedAt:      finished,
		DurationSeconds: seconds,
	}
}

func TestMetricsCollectorAggregatesPerTable(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 100, 2.0))
	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 300, 6.0))
	failed := resultFor("trades", model.RunStatusFailed, 0, 1.0)
	failed.Error = "copy failed"
	mc.RecordRefresh(failed)

	tm, err := mc.TableMetrics("trades")
	require.NoError(t, err)

	assert.Equal(t, int64(3), tm.TotalRuns)
	assert.Equal(t, int64(2), tm.SuccessfulRuns)
	assert.Equal(t, int64(1), tm.FailedRuns)
	assert.Equal(t, int64(400), tm.TotalRows)
	assert.Equal(t, 1.0, tm.MinDurationSec)
	assert.Equal(t, 6.0, tm.MaxDurationSec)
	assert.Equal(t, 3.0, tm.AvgDurationSec)
	assert.Equal(t, "copy failed", tm.LastError)
	assert.Equal(t, model.RunStatusFailed, tm.LastStatus)
}

func TestMetricsCollectorUnknownTable(t *testing.T) {
	mc := NewMetricsCollector()

	_, err := mc.TableMetrics("nothing")
	assert.ErrorIs(t, err, ErrTableMetricsNotFound)
}

func TestMetricsCollectorGlobalCounts(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 100, 1.0))
	mc.RecordRefresh(resultFor("currencies", model.RunStatusSuccess, 50, 0.5))
	mc.RecordRefresh(resultFor("currencies", model.RunStatusSkipped, 0, 0.0))

	global := mc.GlobalMetrics()
	assert.Equal(t, int64(3), global.TotalRuns)
	assert.Equal(t, int64(2), global.SuccessfulRuns)
	assert.Equal(t, int64(1), global.SkippedRuns)
	assert.Equal(t, int64(150), global.TotalRows)
	assert.Equal(t, int64(1), global.RunsByTable["trades"])
	assert.Equal(t, int64(2), global.RunsByTable["currencies"])
	assert.Equal(t, int64(3), global.RunsByStrategy[string(model.StrategySimpleCopy)])
}

func TestMetricsCollectorIgnoresDryRuns(t *testing.T) {
	mc := NewMetricsCollector()

	dry := resultFor("trades", model.RunStatusSkipped, 0, 0.0)
	dry.DryRun = true
	mc.RecordRefresh(dry)
	mc.RecordRefresh(nil)

	assert.Equal(t, int64(0), mc.GlobalMetrics().TotalRuns)
	_, err := mc.TableMetrics("trades")
	assert.ErrorIs(t, err, ErrTableMetricsNotFound)
}

func TestMetricsCollectorSummaryExcludesSkippedFromRate(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 10, 2.0))
	mc.RecordRefresh(resultFor("trades", model.RunStatusFailed, 0, 2.0))
	mc.RecordRefresh(resultFor("trades", model.RunStatusSkipped, 0, 0.0))

	summary := mc.Summary()
	assert.Equal(t, 0.5, summary["success_rate"])
	assert.Equal(t, 2.0, summary["avg_run_seconds"])
	assert.Equal(t, int64(3), summary["total_runs"])
}

func TestMetricsCollectorReturnsCopies(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 10, 1.0))

	tm, err := mc.TableMetrics("trades")
	require.NoError(t, err)
	tm.TotalRuns = 999

	again, err := mc.TableMetrics("trades")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TotalRuns)

	global := mc.GlobalMetrics()
	global.RunsByTable["phantom"] = 5
	assert.NotContains(t, mc.GlobalMetrics().RunsByTable, "phantom")
}

func TestMetricsCollectorResetTable(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRefresh(resultFor("trades", model.RunStatusSuccess, 10, 1.0))

	mc.ResetTable("trades")

	tm, err := mc.TableMetrics("trades")
	require.NoError(t, err)
	assert.Equal(t, "trades", tm.Table)
	assert.Equal(t, int64(0), tm.TotalRuns)
	assert.Equal(t, int64(0), tm.TotalRows)
}
