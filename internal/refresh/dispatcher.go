package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

// Dispatcher runs the per-table refresh state machine: resolve the sync
// window, then execute either the simple copy path or the staged
// partition-switch path. Every invocation produces exactly one
// RefreshResult; failures are encoded in the result, never panicked.
type Dispatcher struct {
	source  database.Handler
	target  database.Handler
	resolve *SyncResolver
	copier  *BatchCopier
	staging *StagingOrchestrator
}

// NewDispatcher wires a dispatcher and its strategy components over the
// source and target handlers.
func NewDispatcher(source, target database.Handler, locks *LockRegistry, maxRetries int) *Dispatcher {
	copier := NewBatchCopier(source, target, maxRetries)
	partitions := NewPartitionManager(target, locks)
	return &Dispatcher{
		source:  source,
		target:  target,
		resolve: NewSyncResolver(target),
		copier:  copier,
		staging: NewStagingOrchestrator(target, copier, partitions),
	}
}

// Refresh runs one table refresh end to end. A dry run reports what would
// happen and finishes as skipped without touching either database.
func (d *Dispatcher) Refresh(ctx context.Context, spec *model.TableSpec, dryRun bool) *model.RefreshResult {
	result := &model.RefreshResult{
		Table:     spec.Name,
		Strategy:  spec.Strategy,
		SyncMode:  spec.SyncMode,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
	defer result.Finish()

	logrus.WithFields(logrus.Fields{
		"table":    spec.Name,
		"strategy": spec.Strategy,
		"mode":     spec.SyncMode,
		"dry_run":  dryRun,
	}).Info("Starting table refresh")

	if dryRun {
		result.Status = model.RunStatusSkipped
		result.Message = fmt.Sprintf("dry run: would refresh %s via %s with sync mode %s",
			spec.Name, spec.Strategy, spec.SyncMode)
		return result
	}

	result.Step = model.StepResolve
	window, err := d.resolve.Resolve(ctx, spec)
	if err != nil {
		return d.fail(result, err)
	}
	result.SyncMode = model.SyncMode(ModeLabel(spec.SyncMode, window))

	logrus.WithFields(logrus.Fields{
		"table":  spec.Name,
		"window": window.Describe(),
	}).Info("Resolved sync window")

	switch spec.Strategy {
	case model.StrategySimpleCopy:
		err = d.executeSimple(ctx, spec, window, result)
	case model.StrategyStagingPartitionSwitch:
		err = d.staging.Execute(ctx, spec, window, result)
	default:
		err = utils.NewConfigurationError(fmt.Sprintf("unknown strategy %q for table %s", spec.Strategy, spec.Name))
	}
	if err != nil {
		return d.fail(result, err)
	}

	result.Status = model.RunStatusSuccess
	if result.Message == "" {
		result.Message = fmt.Sprintf("refreshed %d rows", result.RowsAffected)
	}
	logrus.WithFields(logrus.Fields{
		"table": spec.Name,
		"rows":  result.RowsAffected,
	}).Info("Table refresh completed")
	return result
}

// executeSimple copies the window's rows straight into the live target.
// A configured truncate runs first for full replaces; buffered windows
// first delete the target's overlap range so the re-copy cannot duplicate
// rows.
func (d *Dispatcher) executeSimple(ctx context.Context, spec *model.TableSpec, window *model.SyncWindow, result *model.RefreshResult) error {
	if window.Resolved == model.SyncModeFullReplace && spec.TruncateTarget {
		result.Step = model.StepTruncate
		if err := d.target.Truncate(ctx, spec.Name); err != nil {
			return utils.NewQueryError(err, fmt.Sprintf("failed to truncate %s", spec.Name))
		}
		logrus.WithField("table", spec.Name).Info("Truncated target table")
	}

	if window.OverlapDelete {
		result.Step = model.StepOverlapDelete
		deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s %s @p1",
			database.QuoteIdent(spec.Name), database.QuoteIdent(window.Column), window.Operator)
		deleted, err := d.target.Exec(ctx, deleteSQL, window.Threshold)
		if err != nil {
			return utils.NewQueryError(err,
				fmt.Sprintf("failed to clear overlap window on %s", spec.Name))
		}
		logrus.WithFields(logrus.Fields{
			"table":   spec.Name,
			"deleted": deleted,
		}).Info("Cleared buffered overlap range before re-copy")
	}

	result.Step = model.StepCopy
	report, err := d.copier.Copy(ctx, spec, window, spec.Name)
	if err != nil {
		return err
	}
	result.RowsAffected = report.RowsCopied
	result.Message = fmt.Sprintf("copied %d rows in %d chunks over %s",
		report.RowsCopied, report.Chunks, report.Elapsed.Round(time.Millisecond))
	return nil
}

func (d *Dispatcher) fail(result *model.RefreshResult, err error) *model.RefreshResult {
	result.Status = model.RunStatusFailed
	result.Error = err.Error()
	result.ErrorKind = errorKind(err)

	logrus.WithFields(logrus.Fields{
		"table": result.Table,
		"step":  result.Step,
		"kind":  result.ErrorKind,
		"error": result.Error,
	}).Error("Table refresh failed")
	return result
}

func errorKind(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return utils.AsAppError(err).Code
}
