package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/RichardFellows/data-refresh/internal/model"
)

// MetricsCollector aggregates refresh outcomes in memory for the stats API.
// It is process-local and complements the Prometheus registry, which keeps
// the externally scraped counters.
type MetricsCollector struct {
	tables     map[string]*TableRunMetrics
	tableMutex sync.RWMutex

	global      *GlobalRunMetrics
	globalMutex sync.RWMutex
}

// TableRunMetrics holds aggregated refresh outcomes for one table.
type TableRunMetrics struct {
	Table              string          `json:"table_name"`
	Strategy           string          `json:"strategy"`
	TotalRuns          int64           `json:"total_runs"`
	SuccessfulRuns     int64           `json:"successful_runs"`
	SkippedRuns        int64           `json:"skipped_runs"`
	FailedRuns         int64           `json:"failed_runs"`
	TotalRows          int64           `json:"total_rows"`
	TotalDurationSec   float64         `json:"total_duration_seconds"`
	MinDurationSec     float64         `json:"min_duration_seconds"`
	MaxDurationSec     float64         `json:"max_duration_seconds"`
	AvgDurationSec     float64         `json:"avg_duration_seconds"`
	PartitionsCreated  int64           `json:"partitions_created"`
	PartitionsSwitched int64           `json:"partitions_switched"`
	LastRunAt          time.Time       `json:"last_run_at"`
	LastStatus         model.RunStatus `json:"last_status"`
	LastError          string          `json:"last_error,omitempty"`
	LastErrorAt        time.Time       `json:"last_error_at,omitempty"`
}

// GlobalRunMetrics holds service-wide refresh aggregates.
type GlobalRunMetrics struct {
	TotalRuns        int64            `json:"total_runs"`
	SuccessfulRuns   int64            `json:"successful_runs"`
	SkippedRuns      int64            `json:"skipped_runs"`
	FailedRuns       int64            `json:"failed_runs"`
	TotalRows        int64            `json:"total_rows"`
	TotalDurationSec float64          `json:"total_duration_seconds"`
	RunsByTable      map[string]int64 `json:"runs_by_table"`
	RunsByStrategy   map[string]int64 `json:"runs_by_strategy"`
	StartTime        time.Time        `json:"start_time"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		tables: make(map[string]*TableRunMetrics),
		global: &GlobalRunMetrics{
			RunsByTable:    make(map[string]int64),
			RunsByStrategy: make(map[string]int64),
			StartTime:      time.Now(),
		},
	}
}

// RecordRefresh folds one refresh outcome into the aggregates. Dry runs are
// not recorded; they never touch the databases.
func (mc *MetricsCollector) RecordRefresh(result *model.RefreshResult) {
	if result == nil || result.DryRun {
		return
	}

	mc.tableMutex.Lock()
	tm, exists := mc.tables[result.Table]
	if !exists {
		tm = &TableRunMetrics{
			Table:          result.Table,
			Strategy:       string(result.Strategy),
			MinDurationSec: result.DurationSeconds,
			MaxDurationSec: result.DurationSeconds,
		}
		mc.tables[result.Table] = tm
	}

	tm.TotalRuns++
	tm.TotalRows += result.RowsAffected
	tm.TotalDurationSec += result.DurationSeconds
	tm.PartitionsCreated += int64(len(result.PartitionsCreated))
	tm.PartitionsSwitched += int64(len(result.PartitionsSwitched))
	tm.LastRunAt = result.FinishedAt
	tm.LastStatus = result.Status

	switch result.Status {
	case model.RunStatusSuccess:
		tm.SuccessfulRuns++
	case model.RunStatusSkipped:
		tm.SkippedRuns++
	case model.RunStatusFailed:
		tm.FailedRuns++
		tm.LastError = result.Error
		tm.LastErrorAt = result.FinishedAt
	}

	if result.DurationSeconds < tm.MinDurationSec {
		tm.MinDurationSec = result.DurationSeconds
	}
	if result.DurationSeconds > tm.MaxDurationSec {
		tm.MaxDurationSec = result.DurationSeconds
	}
	tm.AvgDurationSec = tm.TotalDurationSec / float64(tm.TotalRuns)

	mc.tableMutex.Unlock()

	mc.globalMutex.Lock()
	mc.global.TotalRuns++
	mc.global.TotalRows += result.RowsAffected
	mc.global.TotalDurationSec += result.DurationSeconds

	switch result.Status {
	case model.RunStatusSuccess:
		mc.global.SuccessfulRuns++
	case model.RunStatusSkipped:
		mc.global.SkippedRuns++
	case model.RunStatusFailed:
		mc.global.FailedRuns++
	}

	mc.global.RunsByTable[result.Table]++
	mc.global.RunsByStrategy[string(result.Strategy)]++
	mc.globalMutex.Unlock()
}

// TableMetrics returns the aggregates for one table.
func (mc *MetricsCollector) TableMetrics(table string) (*TableRunMetrics, error) {
	mc.tableMutex.RLock()
	defer mc.tableMutex.RUnlock()

	tm, exists := mc.tables[table]
	if !exists {
		return nil, ErrTableMetricsNotFound
	}

	// Return a copy to avoid race conditions
	copied := *tm
	return &copied, nil
}

// AllTableMetrics returns aggregates for every table that has run.
func (mc *MetricsCollector) AllTableMetrics() map[string]*TableRunMetrics {
	mc.tableMutex.RLock()
	defer mc.tableMutex.RUnlock()

	result := make(map[string]*TableRunMetrics, len(mc.tables))
	for table, tm := range mc.tables {
		copied := *tm
		result[table] = &copied
	}
	return result
}

// GlobalMetrics returns service-wide aggregates.
func (mc *MetricsCollector) GlobalMetrics() *GlobalRunMetrics {
	mc.globalMutex.RLock()
	defer mc.globalMutex.RUnlock()

	copied := *mc.global
	copied.RunsByTable = make(map[string]int64, len(mc.global.RunsByTable))
	copied.RunsByStrategy = make(map[string]int64, len(mc.global.RunsByStrategy))
	for k, v := range mc.global.RunsByTable {
		copied.RunsByTable[k] = v
	}
	for k, v := range mc.global.RunsByStrategy {
		copied.RunsByStrategy[k] = v
	}
	return &copied
}

// Summary returns a flat map of headline numbers for the stats endpoint.
func (mc *MetricsCollector) Summary() map[string]interface{} {
	global := mc.GlobalMetrics()
	uptime := time.Since(global.StartTime)

	summary := map[string]interface{}{
		"uptime_seconds":       uptime.Seconds(),
		"total_runs":           global.TotalRuns,
		"successful_runs":      global.SuccessfulRuns,
		"skipped_runs":         global.SkippedRuns,
		"failed_runs":          global.FailedRuns,
		"total_rows_processed": global.TotalRows,
		"success_rate":         0.0,
		"avg_run_seconds":      0.0,
		"active_tables":        len(global.RunsByTable),
		"runs_by_table":        global.RunsByTable,
		"runs_by_strategy":     global.RunsByStrategy,
	}

	executed := global.TotalRuns - global.SkippedRuns
	if executed > 0 {
		summary["success_rate"] = float64(global.SuccessfulRuns) / float64(executed)
		summary["avg_run_seconds"] = global.TotalDurationSec / float64(executed)
	}

	return summary
}

// ResetTable clears the aggregates for one table, keeping its identity.
func (mc *MetricsCollector) ResetTable(table string) {
	mc.tableMutex.Lock()
	defer mc.tableMutex.Unlock()

	if tm, exists := mc.tables[table]; exists {
		*tm = TableRunMetrics{
			Table:    tm.Table,
			Strategy: tm.Strategy,
		}
	}
}

// Errors
var (
	ErrTableMetricsNotFound = fmt.Errorf("table metrics not found")
)
