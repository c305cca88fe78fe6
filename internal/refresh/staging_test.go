package refresh

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

func stagedSpec() *model.TableSpec {
	return &model.TableSpec{
		Name:              "trades",
		Strategy:          model.StrategyStagingPartitionSwitch,
		SyncMode:          model.SyncModeIncremental,
		IncrementalColumn: "trade_date",
		IncrementalType:   model.IncrementalTypeDate,
		PartitionFunction: "pf_trades",
		PartitionScheme:   "ps_trades",
		BatchSize:         100,
	}
}

// stagingTarget scripts the target-side catalog for staged refreshes:
// index metadata, staged partition dates, boundary state and partition
// number lookups.
type stagingTarget struct {
	*fakeHandler
	indexRows        []map[string]interface{}
	stagedDates      []interface{}
	boundaries       []int
	partitionNumbers map[int]int
}

func newStagingTarget() *stagingTarget {
	s := &stagingTarget{
		fakeHandler: &fakeHandler{},
		indexRows: []map[string]interface{}{
			{
				"index_name": "cix_trades",
				"type_desc":  "CLUSTERED",
				"is_unique":  true,
				"columns":    "trade_date",
			},
			{
				"index_name": "ix_trades_account",
				"type_desc":  "NONCLUSTERED",
				"is_unique":  false,
				"columns":    "account_id, trade_date",
			},
		},
		stagedDates:      []interface{}{int64(20250207), int64(20250208)},
		boundaries:       []int{20250207},
		partitionNumbers: map[int]int{20250207: 2, 20250208: 3},
	}

	s.queryFn = func(query string, _ ...interface{}) ([]map[string]interface{}, error) {
		switch {
		case strings.Contains(query, "sys.indexes"):
			return s.indexRows, nil
		case strings.Contains(query, "SELECT DISTINCT"):
			rows := make([]map[string]interface{}, 0, len(s.stagedDates))
			for _, d := range s.stagedDates {
				rows = append(rows, map[string]interface{}{"partition_date": d})
			}
			return rows, nil
		case strings.Contains(query, "sys.partition_range_values"):
			rows := make([]map[string]interface{}, 0, len(s.boundaries))
			for _, b := range s.boundaries {
				rows = append(rows, map[string]interface{}{"boundary_value": int64(b)})
			}
			return rows, nil
		}
		return nil, nil
	}
	s.scalarFn = func(query string, args ...interface{}) (interface{}, error) {
		switch {
		case strings.Contains(query, "sys.partition_functions"):
			return int64(1), nil
		case strings.Contains(query, "$PARTITION"):
			date, ok := args[0].(int)
			if !ok {
				return nil, fmt.Errorf("unexpected partition argument %v", args[0])
			}
			return int64(s.partitionNumbers[date]), nil
		}
		return nil, nil
	}
	return s
}

func newStagedFixture(target *stagingTarget, sourcePages [][][]interface{}) (*StagingOrchestrator, *pagedSource) {
	source := newPagedSource([]string{"trade_date", "amount"}, sourcePages)
	copier := NewBatchCopier(source, target, 0)
	partitions := NewPartitionManager(target, NewLockRegistry())
	return NewStagingOrchestrator(target, copier, partitions), source
}

func tradeRows(n int) [][]interface{} {
	rows := make([][]interface{}, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, []interface{}{int64(20250207 + i%2), float64(i) * 1.5})
	}
	return rows
}

func lastIndexOf(stmts []string, substr string) int {
	for i := len(stmts) - 1; i >= 0; i-- {
		if strings.Contains(stmts[i], substr) {
			return i
		}
	}
	return -1
}

func TestStagedRefreshSwitchesEveryLoadedPartition(t *testing.T) {
	target := newStagingTarget()
	orchestrator, _ := newStagedFixture(target, [][][]interface{}{tradeRows(4)})

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}
	window := &model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}

	err := orchestrator.Execute(context.Background(), spec, window, result)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.RowsAffected)
	assert.Equal(t, []int{20250208}, result.PartitionsCreated)
	assert.Equal(t, []int{20250207, 20250208}, result.PartitionsSwitched)
	assert.Empty(t, result.PartitionsUnswitched)
	assert.Equal(t, model.StepCleanup, result.Step)

	stmts := target.recorded()

	assert.Contains(t, stmts, "SELECT TOP 0 * INTO [trades_staging] FROM [trades]")
	assert.Contains(t, stmts, "BULK INSERT [trades_staging] (4 rows)")
	assert.Contains(t, stmts,
		"CREATE UNIQUE CLUSTERED INDEX [cix_trades_staging] ON [trades_staging] ([trade_date]) ON [ps_trades]([trade_date])")
	assert.Contains(t, stmts,
		"CREATE INDEX [ix_trades_account_staging] ON [trades_staging] ([account_id], [trade_date])")
	assert.Contains(t, stmts, "ALTER PARTITION FUNCTION [pf_trades]() SPLIT RANGE (20250208)")
	assert.Contains(t, stmts, "ALTER TABLE [trades] SWITCH PARTITION 2 TO [trades_temp_20250207]")
	assert.Contains(t, stmts, "ALTER TABLE [trades_staging] SWITCH PARTITION 2 TO [trades] PARTITION 2")
	assert.Contains(t, stmts, "ALTER TABLE [trades] SWITCH PARTITION 3 TO [trades_temp_20250208]")
	assert.Contains(t, stmts, "ALTER TABLE [trades_staging] SWITCH PARTITION 3 TO [trades] PARTITION 3")

	loadAt := lastIndexOf(stmts, "BULK INSERT [trades_staging]")
	indexAt := lastIndexOf(stmts, "CREATE UNIQUE CLUSTERED INDEX [cix_trades_staging]")
	splitAt := lastIndexOf(stmts, "SPLIT RANGE (20250208)")
	firstSwitch := lastIndexOf(stmts, "SWITCH PARTITION 2 TO [trades] PARTITION 2")
	secondSwitch := lastIndexOf(stmts, "SWITCH PARTITION 3 TO [trades] PARTITION 3")
	cleanupAt := lastIndexOf(stmts, "DROP TABLE IF EXISTS [trades_staging]")

	assert.Less(t, loadAt, indexAt, "staging loads before indexes are built")
	assert.Less(t, indexAt, splitAt, "indexes exist before boundaries are split")
	assert.Less(t, splitAt, firstSwitch, "boundaries exist before switching")
	assert.Less(t, firstSwitch, secondSwitch, "partitions switch in ascending date order")
	assert.Greater(t, cleanupAt, secondSwitch, "staging is dropped after the last switch")
}

func TestStagedRefreshNoRowsSkipsSwitching(t *testing.T) {
	target := newStagingTarget()
	orchestrator, _ := newStagedFixture(target, nil)

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}

	err := orchestrator.Execute(context.Background(), spec,
		&model.SyncWindow{Column: "trade_date", Operator: ">", Threshold: 20250210}, result)
	require.NoError(t, err)

	assert.Zero(t, result.RowsAffected)
	assert.NotEmpty(t, result.Message)
	assert.Empty(t, result.PartitionsSwitched)

	stmts := target.recorded()
	assert.Equal(t, -1, lastIndexOf(stmts, "CREATE"), "no index work without rows")
	assert.Equal(t, -1, lastIndexOf(stmts, "SWITCH"), "no switches without rows")
	assert.NotEqual(t, -1, lastIndexOf(stmts, "DROP TABLE IF EXISTS [trades_staging]"))
}

func TestStagedRefreshPartialSwitchReportsSplit(t *testing.T) {
	target := newStagingTarget()
	target.execTxFn = func(queries []string) error {
		if strings.Contains(queries[0], "trades_temp_20250208") {
			return fmt.Errorf("switch blocked by schema modification lock")
		}
		return nil
	}
	orchestrator, _ := newStagedFixture(target, [][][]interface{}{tradeRows(4)})

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}

	err := orchestrator.Execute(context.Background(), spec,
		&model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}, result)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodePartialSwitchFailure))

	assert.Equal(t, []int{20250207}, result.PartitionsSwitched)
	assert.Equal(t, []int{20250208}, result.PartitionsUnswitched)
	assert.Equal(t, model.StepSwitchPartitions, result.Step)

	stmts := target.recorded()
	switchAt := lastIndexOf(stmts, "SWITCH PARTITION 2 TO [trades] PARTITION 2")
	cleanupAt := lastIndexOf(stmts, "DROP TABLE IF EXISTS [trades_staging]")
	assert.Greater(t, cleanupAt, switchAt, "staging is dropped even after a partial switch")
}

func TestStagedRefreshPrepFailureLeavesTargetUntouched(t *testing.T) {
	target := newStagingTarget()
	target.execFn = func(query string, _ ...interface{}) (int64, error) {
		if strings.Contains(query, "SELECT TOP 0 * INTO [trades_staging]") {
			return 0, fmt.Errorf("insufficient permissions")
		}
		return 0, nil
	}
	orchestrator, _ := newStagedFixture(target, [][][]interface{}{tradeRows(2)})

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}

	err := orchestrator.Execute(context.Background(), spec,
		&model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}, result)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeStagingPrepFailed))
	assert.Equal(t, model.StepCreateStaging, result.Step)

	stmts := target.recorded()
	assert.Equal(t, -1, lastIndexOf(stmts, "SWITCH"), "no switch DDL reached the target")
	assert.Equal(t, -1, lastIndexOf(stmts, "ALTER PARTITION FUNCTION"), "no boundary DDL reached the target")
}

func TestStagedRefreshIndexFailureIsPrepFailure(t *testing.T) {
	target := newStagingTarget()
	target.execFn = func(query string, _ ...interface{}) (int64, error) {
		if strings.Contains(query, "CREATE UNIQUE CLUSTERED INDEX") {
			return 0, fmt.Errorf("duplicate key in unique index")
		}
		return 0, nil
	}
	orchestrator, _ := newStagedFixture(target, [][][]interface{}{tradeRows(2)})

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}

	err := orchestrator.Execute(context.Background(), spec,
		&model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}, result)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeStagingPrepFailed))
	assert.Equal(t, model.StepApplyIndexes, result.Step)
	assert.Equal(t, -1, lastIndexOf(target.recorded(), "SWITCH"))
}

func TestStagedRefreshRejectsUnparsablePartitionDates(t *testing.T) {
	target := newStagingTarget()
	target.stagedDates = []interface{}{int64(20250207), "not a date"}
	orchestrator, _ := newStagedFixture(target, [][][]interface{}{tradeRows(2)})

	spec := stagedSpec()
	result := &model.RefreshResult{Table: spec.Name}

	err := orchestrator.Execute(context.Background(), spec,
		&model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}, result)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidDateFormat))
	assert.Equal(t, model.StepEnsurePartitions, result.Step)
	assert.NotEqual(t, -1, lastIndexOf(target.recorded(), "DROP TABLE IF EXISTS [trades_staging]"))
}
