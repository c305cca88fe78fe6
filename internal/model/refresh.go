package model

import (
	"fmt"
	"time"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusSkipped RunStatus = "skipped"
	RunStatusFailed  RunStatus = "failed"
)

// RefreshStep identifies how far a refresh progressed before finishing or
// failing. Steps are reported in results so a failure can be diagnosed without
// re-running with elevated logging.
type RefreshStep string

const (
	StepResolve          RefreshStep = "resolve"
	StepTruncate         RefreshStep = "truncate"
	StepOverlapDelete    RefreshStep = "overlap_delete"
	StepCopy             RefreshStep = "copy"
	StepCreateStaging    RefreshStep = "create_staging"
	StepLoadStaging      RefreshStep = "load_staging"
	StepApplyIndexes     RefreshStep = "apply_indexes"
	StepEnsurePartitions RefreshStep = "ensure_partitions"
	StepSwitchPartitions RefreshStep = "switch_partitions"
	StepCleanup          RefreshStep = "cleanup"
)

// SyncWindow is the resolved row-selection predicate for one refresh run.
// Computed fresh each run, never persisted.
type SyncWindow struct {
	All           bool     `json:"all"`
	Column        string   `json:"column,omitempty"`
	Operator      string   `json:"operator,omitempty"`
	Threshold     any      `json:"threshold,omitempty"`
	OverlapDelete bool     `json:"overlap_delete,omitempty"`
	Resolved      SyncMode `json:"resolved"`
}

// Describe renders the window for logs and dry-run output.
func (w SyncWindow) Describe() string {
	if w.All {
		return "all source rows"
	}
	return fmt.Sprintf("rows where %s %s %v", w.Column, w.Operator, w.Threshold)
}

// RefreshResult is the outcome record for one table refresh.
type RefreshResult struct {
	Table                string       `json:"table_name"`
	Strategy             StrategyKind `json:"strategy"`
	SyncMode             SyncMode     `json:"sync_mode"`
	Status               RunStatus    `json:"status"`
	RowsAffected         int64        `json:"rows_processed"`
	PartitionsCreated    []int        `json:"partitions_created,omitempty"`
	PartitionsSwitched   []int        `json:"partitions_switched,omitempty"`
	PartitionsUnswitched []int        `json:"partitions_unswitched,omitempty"`
	Step                 RefreshStep  `json:"step,omitempty"`
	ErrorKind            string       `json:"error_kind,omitempty"`
	Error                string       `json:"error,omitempty"`
	Message              string       `json:"message,omitempty"`
	DryRun               bool         `json:"dry_run,omitempty"`
	StartedAt            time.Time    `json:"start_time"`
	FinishedAt           time.Time    `json:"end_time"`
	DurationSeconds      float64      `json:"duration_seconds"`
}

// Finish stamps the end time and duration.
func (r *RefreshResult) Finish() {
	r.FinishedAt = time.Now()
	r.DurationSeconds = r.FinishedAt.Sub(r.StartedAt).Seconds()
}

// TableStatus reports row counts and incremental high-water marks on both
// sides of one configured table. CheckedAt is the probe time, which may
// predate the response when the status was served from cache.
type TableStatus struct {
	Table          string    `json:"table_name"`
	Strategy       string    `json:"strategy"`
	SyncMode       string    `json:"sync_mode"`
	SourceRows     int64     `json:"source_rows"`
	TargetRows     int64     `json:"target_rows"`
	SourceMaxValue string    `json:"source_max_value,omitempty"`
	TargetMaxValue string    `json:"target_max_value,omitempty"`
	RowGap         int64     `json:"row_gap"`
	Error          string    `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}
