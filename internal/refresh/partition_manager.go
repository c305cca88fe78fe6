package refresh

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

const boundaryQuery = `
SELECT CAST(prv.value AS INT) AS boundary_value
FROM sys.partition_range_values prv
INNER JOIN sys.partition_functions pf ON prv.function_id = pf.function_id
WHERE pf.name = @p1
AND pf.type = 'R'
ORDER BY CAST(prv.value AS INT)`

const functionExistsQuery = `
SELECT COUNT(*) AS function_count
FROM sys.partition_functions
WHERE name = @p1`

// BoundaryReport describes the outcome of an EnsureBoundaries call.
type BoundaryReport struct {
	Existing            []int `json:"existing"`
	Created             []int `json:"created"`
	Conflicts           []int `json:"conflicts"`
	MetadataUnavailable bool  `json:"metadataUnavailable"`
}

// PartitionManager reads partition boundary catalogs and issues boundary
// split and merge DDL against target partition functions. DDL against one
// partition function is serialized through the shared lock registry.
type PartitionManager struct {
	target database.Handler
	locks  *LockRegistry
}

// NewPartitionManager creates a partition manager over the target handler
func NewPartitionManager(target database.Handler, locks *LockRegistry) *PartitionManager {
	return &PartitionManager{target: target, locks: locks}
}

// Boundaries returns the ascending boundary values of a partition function.
// A missing function or an unreadable catalog yields a
// PartitionMetadataUnavailable error.
func (m *PartitionManager) Boundaries(ctx context.Context, partitionFunction string) ([]int, error) {
	if err := database.ValidateIdentifier(partitionFunction); err != nil {
		return nil, err
	}

	count, err := m.target.Scalar(ctx, functionExistsQuery, partitionFunction)
	if err != nil {
		return nil, utils.NewPartitionMetadataError(err,
			fmt.Sprintf("failed to probe partition function %s", partitionFunction))
	}
	if toInt64(count) == 0 {
		return nil, utils.NewPartitionMetadataError(nil,
			fmt.Sprintf("partition function %s does not exist", partitionFunction))
	}

	rows, err := m.target.Query(ctx, boundaryQuery, partitionFunction)
	if err != nil {
		return nil, utils.NewPartitionMetadataError(err,
			fmt.Sprintf("failed to read boundaries of partition function %s", partitionFunction))
	}

	boundaries := make([]int, 0, len(rows))
	for _, row := range rows {
		boundaries = append(boundaries, int(toInt64(row["boundary_value"])))
	}
	sort.Ints(boundaries)
	return boundaries, nil
}

// EnsureBoundaries creates every boundary present in dates but absent from
// the partition function, one split per value in ascending order. Splits
// rejected by the engine are recorded as conflicts and the remaining
// boundaries are still attempted. Re-running with fully covered dates is
// a no-op.
func (m *PartitionManager) EnsureBoundaries(ctx context.Context, partitionFunction string, dates []int) (*BoundaryReport, error) {
	if err := database.ValidateIdentifier(partitionFunction); err != nil {
		return nil, err
	}

	release := m.locks.Acquire("pf:" + partitionFunction)
	defer release()

	report := &BoundaryReport{}

	existing, err := m.Boundaries(ctx, partitionFunction)
	if err != nil {
		// Best effort: treat the boundary set as unknown and let the
		// engine reject any split that already exists.
		logrus.WithFields(logrus.Fields{
			"partition_function": partitionFunction,
			"error":              err.Error(),
		}).Warn("Partition boundary catalog unavailable, attempting splits blind")
		report.MetadataUnavailable = true
		existing = nil
	}
	report.Existing = existing

	known := make(map[int]struct{}, len(existing))
	for _, b := range existing {
		known[b] = struct{}{}
	}

	missing := make([]int, 0, len(dates))
	for _, d := range dates {
		if _, ok := known[d]; !ok {
			missing = append(missing, d)
		}
	}
	sort.Ints(missing)

	for _, boundary := range missing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := m.splitBoundary(ctx, partitionFunction, boundary); err != nil {
			conflict := utils.NewPartitionConflictError(err,
				fmt.Sprintf("split of boundary %d on %s rejected", boundary, partitionFunction))
			logrus.WithFields(logrus.Fields{
				"partition_function": partitionFunction,
				"boundary":           boundary,
				"error":              conflict.Error(),
			}).Warn("Partition boundary split rejected, continuing with remaining boundaries")
			report.Conflicts = append(report.Conflicts, boundary)
			continue
		}
		report.Created = append(report.Created, boundary)
		logrus.WithFields(logrus.Fields{
			"partition_function": partitionFunction,
			"boundary":           boundary,
		}).Info("Created partition boundary")
	}

	return report, nil
}

// MergeBoundary removes one boundary value from a partition function. The
// refresh flow never merges; this supports operator-driven maintenance.
func (m *PartitionManager) MergeBoundary(ctx context.Context, partitionFunction string, boundary int) error {
	if err := database.ValidateIdentifier(partitionFunction); err != nil {
		return err
	}
	if _, err := validateCanonical(int64(boundary)); err != nil {
		return err
	}

	release := m.locks.Acquire("pf:" + partitionFunction)
	defer release()

	ddl := fmt.Sprintf("ALTER PARTITION FUNCTION %s() MERGE RANGE (%d)",
		database.QuoteIdent(partitionFunction), boundary)
	if _, err := m.target.Exec(ctx, ddl); err != nil {
		return utils.NewQueryError(err,
			fmt.Sprintf("failed to merge boundary %d on %s", boundary, partitionFunction))
	}
	return nil
}

func (m *PartitionManager) splitBoundary(ctx context.Context, partitionFunction string, boundary int) error {
	ddl := fmt.Sprintf("ALTER PARTITION FUNCTION %s() SPLIT RANGE (%d)",
		database.QuoteIdent(partitionFunction), boundary)
	_, err := m.target.Exec(ctx, ddl)
	return err
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
