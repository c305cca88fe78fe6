package refresh

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/database/metadata"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

const stagingIndexSuffix = "_staging"

// StagingOrchestrator performs the staged bulk replacement for partitioned
// tables: load a staging table off to the side, replicate the target's
// index layout, make sure every loaded partition boundary exists, then
// move the data into place partition by partition with atomic switches.
// The staging table never outlives the invocation that created it.
type StagingOrchestrator struct {
	target     database.Handler
	copier     *BatchCopier
	partitions *PartitionManager
	extractor  *metadata.Extractor
}

// NewStagingOrchestrator wires an orchestrator over the target handler
func NewStagingOrchestrator(target database.Handler, copier *BatchCopier, partitions *PartitionManager) *StagingOrchestrator {
	return &StagingOrchestrator{
		target:     target,
		copier:     copier,
		partitions: partitions,
		extractor:  metadata.NewExtractor(target),
	}
}

// Execute runs the staged refresh for one table, recording progress into
// result as it goes. Step values in the result always name the last step
// entered, so a returned error can be attributed precisely.
func (o *StagingOrchestrator) Execute(ctx context.Context, spec *model.TableSpec, window *model.SyncWindow, result *model.RefreshResult) error {
	staging := spec.StagingTableName()
	if err := database.ValidateIdentifier(staging); err != nil {
		return err
	}

	var scratches []string
	defer func() {
		o.cleanup(ctx, staging, scratches)
	}()

	result.Step = model.StepCreateStaging
	if err := o.createStaging(ctx, spec, staging); err != nil {
		return utils.NewStagingPrepError(err, fmt.Sprintf("failed to create staging table %s", staging))
	}

	result.Step = model.StepLoadStaging
	report, err := o.copier.Copy(ctx, spec, window, staging)
	if err != nil {
		return utils.NewStagingPrepError(err, fmt.Sprintf("failed to load staging table %s", staging))
	}
	result.RowsAffected = report.RowsCopied

	if report.RowsCopied == 0 {
		result.Message = "no rows in sync window, staging discarded"
		logrus.WithField("table", spec.Name).Info("Staged refresh found no rows to load")
		return nil
	}

	result.Step = model.StepApplyIndexes
	defs, err := o.applyIndexes(ctx, spec, staging)
	if err != nil {
		return utils.NewStagingPrepError(err, fmt.Sprintf("failed to replicate indexes onto %s", staging))
	}

	result.Step = model.StepEnsurePartitions
	dates, err := o.stagedPartitionDates(ctx, spec, staging)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return utils.NewStagingPrepError(nil,
			fmt.Sprintf("staging table %s holds no non-null %s values to partition by", staging, spec.IncrementalColumn))
	}

	boundaryReport, err := o.partitions.EnsureBoundaries(ctx, spec.PartitionFunction, dates)
	if err != nil {
		return err
	}
	result.PartitionsCreated = boundaryReport.Created

	result.Step = model.StepSwitchPartitions
	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			result.PartitionsSwitched = dates[:i]
			result.PartitionsUnswitched = dates[i:]
			return err
		}
		if err := o.switchDate(ctx, spec, staging, date, defs, &scratches); err != nil {
			result.PartitionsSwitched = dates[:i]
			result.PartitionsUnswitched = dates[i:]
			return utils.NewPartialSwitchError(fmt.Sprintf(
				"switch of partition date %d failed for %s after %d of %d partitions: %v",
				date, spec.Name, i, len(dates), err))
		}
		logrus.WithFields(logrus.Fields{
			"table": spec.Name,
			"date":  date,
		}).Info("Switched partition into target")
	}
	result.PartitionsSwitched = dates

	result.Step = model.StepCleanup
	return nil
}

// createStaging builds an empty structural copy of the target table. Any
// leftover staging table from a crashed run is dropped first.
func (o *StagingOrchestrator) createStaging(ctx context.Context, spec *model.TableSpec, staging string) error {
	if _, err := o.target.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(staging))); err != nil {
		return err
	}
	ddl := fmt.Sprintf("SELECT TOP 0 * INTO %s FROM %s",
		database.QuoteIdent(staging), database.QuoteIdent(spec.Name))
	_, err := o.target.Exec(ctx, ddl)
	return err
}

// applyIndexes replicates the target's index layout onto staging. The
// clustered index is created on the table's partition scheme, which also
// aligns the staging table for switching; if the target has no clustered
// index, a minimal one on the partition column is created instead.
func (o *StagingOrchestrator) applyIndexes(ctx context.Context, spec *model.TableSpec, staging string) ([]metadata.IndexDefinition, error) {
	defs, err := o.extractor.TableIndexes(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	onScheme := fmt.Sprintf(" ON %s(%s)",
		database.QuoteIdent(spec.PartitionScheme), database.QuoteIdent(spec.IncrementalColumn))

	clustered := false
	for _, def := range defs {
		ddl, err := def.CreateDDL(staging, stagingIndexSuffix)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(def.TypeDesc, "CLUSTERED") {
			ddl += onScheme
			clustered = true
		}
		if _, err := o.target.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create index %s%s: %w", def.Name, stagingIndexSuffix, err)
		}
	}

	if !clustered {
		ddl := fmt.Sprintf("CREATE CLUSTERED INDEX %s ON %s (%s)%s",
			database.QuoteIdent(fmt.Sprintf("cix_%s", staging)),
			database.QuoteIdent(staging),
			database.QuoteIdent(spec.IncrementalColumn),
			onScheme)
		if _, err := o.target.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create aligning clustered index on %s: %w", staging, err)
		}
	}

	return defs, nil
}

// stagedPartitionDates reads the distinct partition dates actually loaded
// into staging, in canonical ascending order.
func (o *StagingOrchestrator) stagedPartitionDates(ctx context.Context, spec *model.TableSpec, staging string) ([]int, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s AS partition_date FROM %s WHERE %s IS NOT NULL",
		database.QuoteIdent(spec.IncrementalColumn),
		database.QuoteIdent(staging),
		database.QuoteIdent(spec.IncrementalColumn))

	rows, err := o.target.Query(ctx, query)
	if err != nil {
		return nil, utils.NewQueryError(err, fmt.Sprintf("failed to read partition dates from %s", staging))
	}

	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row["partition_date"])
	}
	return NormalizePartitionDates(values)
}

// switchDate moves one partition's rows from staging into the target. Old
// target rows for the partition are switched out to a scratch table in the
// same transaction that switches the new rows in, so readers see either
// the old partition or the new one, never an empty or mixed state.
func (o *StagingOrchestrator) switchDate(ctx context.Context, spec *model.TableSpec, staging string, date int, defs []metadata.IndexDefinition, scratches *[]string) error {
	number, err := o.partitionNumber(ctx, spec.PartitionFunction, date)
	if err != nil {
		return err
	}

	scratch := fmt.Sprintf("%s_temp_%d", spec.Name, date)
	if err := database.ValidateIdentifier(scratch); err != nil {
		return err
	}
	*scratches = append(*scratches, scratch)

	if _, err := o.target.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(scratch))); err != nil {
		return err
	}
	if _, err := o.target.Exec(ctx, fmt.Sprintf("SELECT TOP 0 * INTO %s FROM %s",
		database.QuoteIdent(scratch), database.QuoteIdent(spec.Name))); err != nil {
		return err
	}
	for _, def := range defs {
		ddl, err := def.CreateDDL(scratch, "_temp")
		if err != nil {
			return err
		}
		if _, err := o.target.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create scratch index for partition %d: %w", number, err)
		}
	}

	switchOut := fmt.Sprintf("ALTER TABLE %s SWITCH PARTITION %d TO %s",
		database.QuoteIdent(spec.Name), number, database.QuoteIdent(scratch))
	switchIn := fmt.Sprintf("ALTER TABLE %s SWITCH PARTITION %d TO %s PARTITION %d",
		database.QuoteIdent(staging), number, database.QuoteIdent(spec.Name), number)
	if err := o.target.ExecTx(ctx, []string{switchOut, switchIn}); err != nil {
		return err
	}

	if _, err := o.target.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(scratch))); err != nil {
		logrus.WithFields(logrus.Fields{
			"table":   spec.Name,
			"scratch": scratch,
			"error":   err.Error(),
		}).Warn("Failed to drop scratch table after switch")
	}
	return nil
}

// partitionNumber resolves the target partition number for a canonical
// date via the partition function. Numbers shift when boundaries split, so
// this is always read after EnsureBoundaries has run.
func (o *StagingOrchestrator) partitionNumber(ctx context.Context, partitionFunction string, date int) (int, error) {
	if err := database.ValidateIdentifier(partitionFunction); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT $PARTITION.%s(@p1) AS partition_number", database.QuoteIdent(partitionFunction))
	value, err := o.target.Scalar(ctx, query, date)
	if err != nil {
		return 0, utils.NewQueryError(err,
			fmt.Sprintf("failed to resolve partition number for %d on %s", date, partitionFunction))
	}
	number := int(toInt64(value))
	if number <= 0 {
		return 0, utils.NewQueryError(nil,
			fmt.Sprintf("partition function %s returned no partition for %d", partitionFunction, date))
	}
	return number, nil
}

// cleanup drops the staging table and any scratch tables left behind. It
// runs on every exit path and survives a cancelled refresh context.
func (o *StagingOrchestrator) cleanup(ctx context.Context, staging string, scratches []string) {
	cctx := context.WithoutCancel(ctx)

	drop := func(table string) {
		if _, err := o.target.Exec(cctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdent(table))); err != nil {
			logrus.WithFields(logrus.Fields{
				"table": table,
				"error": err.Error(),
			}).Warn("Staging cleanup failed to drop table")
		}
	}

	drop(staging)
	for _, scratch := range scratches {
		drop(scratch)
	}
}
