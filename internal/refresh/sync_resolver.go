package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

// SyncResolver decides, per table, which source rows a refresh should
// transfer by probing the current state of the target table.
type SyncResolver struct {
	target database.Handler
}

// NewSyncResolver creates a resolver over the target handler
func NewSyncResolver(target database.Handler) *SyncResolver {
	return &SyncResolver{target: target}
}

// Resolve computes the sync window for a table according to its
// configured sync mode.
func (r *SyncResolver) Resolve(ctx context.Context, spec *model.TableSpec) (*model.SyncWindow, error) {
	switch spec.SyncMode {
	case model.SyncModeFullReplace:
		return &model.SyncWindow{All: true, Resolved: model.SyncModeFullReplace}, nil
	case model.SyncModeIncremental:
		return r.resolveIncremental(ctx, spec)
	case model.SyncModeSmartSync:
		return r.resolveSmart(ctx, spec)
	default:
		return nil, utils.NewConfigurationError(fmt.Sprintf("unknown sync mode %q for table %s", spec.SyncMode, spec.Name))
	}
}

// resolveIncremental reads the target's maximum incremental value. An
// empty target resolves to a full copy. Date and datetime columns are
// backed off by the configured buffer to re-capture late arrivals, which
// widens the window to an inclusive overlap.
func (r *SyncResolver) resolveIncremental(ctx context.Context, spec *model.TableSpec) (*model.SyncWindow, error) {
	maxValue, err := r.target.MaxValue(ctx, spec.Name, spec.IncrementalColumn)
	if err != nil {
		return nil, utils.NewQueryError(err,
			fmt.Sprintf("failed to read max %s from %s", spec.IncrementalColumn, spec.Name))
	}

	if maxValue == nil {
		logrus.WithField("table", spec.Name).Info("Target has no incremental watermark, copying all rows")
		return &model.SyncWindow{All: true, Resolved: model.SyncModeIncremental}, nil
	}

	window := &model.SyncWindow{
		Column:    spec.IncrementalColumn,
		Operator:  ">",
		Threshold: maxValue,
		Resolved:  model.SyncModeIncremental,
	}

	if spec.IncrementalType.UsesDateSemantics() && spec.DateBufferDays > 0 {
		buffered, err := backOffThreshold(maxValue, spec.DateBufferDays)
		if err != nil {
			return nil, err
		}
		window.Operator = ">="
		window.Threshold = buffered
		window.OverlapDelete = true
	}

	return window, nil
}

// resolveSmart probes target row count: an empty target gets a full
// replace, a populated one gets incremental. Probe failures degrade to a
// full replace when the table opts into fallback_to_full.
func (r *SyncResolver) resolveSmart(ctx context.Context, spec *model.TableSpec) (*model.SyncWindow, error) {
	count, err := r.target.Count(ctx, spec.Name)
	if err != nil {
		return r.smartFallback(spec, err)
	}

	if count == 0 {
		return &model.SyncWindow{All: true, Resolved: model.SyncModeFullReplace}, nil
	}

	window, err := r.resolveIncremental(ctx, spec)
	if err != nil {
		return r.smartFallback(spec, err)
	}
	return window, nil
}

func (r *SyncResolver) smartFallback(spec *model.TableSpec, cause error) (*model.SyncWindow, error) {
	if !spec.FallbackToFull {
		return nil, cause
	}
	logrus.WithFields(logrus.Fields{
		"table": spec.Name,
		"error": cause.Error(),
	}).Warn("Smart sync probe failed, falling back to full replace")
	return &model.SyncWindow{All: true, Resolved: model.SyncModeFullReplace}, nil
}

// backOffThreshold subtracts days from a date or datetime watermark,
// preserving the watermark's shape.
func backOffThreshold(value interface{}, days int) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v.AddDate(0, 0, -days), nil
	default:
		date, err := NormalizePartitionDate(value)
		if err != nil {
			return nil, err
		}
		t, parseErr := time.Parse(partitionDateLayout, fmt.Sprintf("%08d", date))
		if parseErr != nil {
			return nil, utils.NewInvalidDateError(fmt.Sprintf("cannot buffer watermark %v", value))
		}
		return dateToInt(t.AddDate(0, 0, -days)), nil
	}
}

// ModeLabel names the effective sync mode for result reporting, keeping
// the smart_sync decision visible.
func ModeLabel(configured model.SyncMode, window *model.SyncWindow) string {
	if configured != model.SyncModeSmartSync {
		return string(configured)
	}
	if window.Resolved == model.SyncModeFullReplace {
		return "smart_sync_full"
	}
	return "smart_sync_incremental"
}
