package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RichardFellows/data-refresh/internal/config"
	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type StatusService interface {
	TableStatuses(ctx context.Context) ([]model.TableStatus, error)
	TableStatus(ctx context.Context, table string) (*model.TableStatus, error)
	Connections(ctx context.Context) *ConnectionCheckResponse
}

// statusCacheTTL bounds how stale a served status snapshot can be. Thirty
// seconds keeps dashboard polling cheap without hiding a finished refresh
// for long.
const statusCacheTTL = 30 * time.Second

type statusService struct {
	cfg   *config.Config
	pool  *database.ConnectionPool
	cache *statusCache
}

type ConnectionCheckResponse struct {
	Connections map[string]bool                     `json:"connections"`
	Stats       map[string]database.ConnectionStats `json:"stats"`
	CheckedAt   time.Time                           `json:"checked_at"`
}

// NewStatusService creates a new instance of StatusService
func NewStatusService(cfg *config.Config, pool *database.ConnectionPool) StatusService {
	return &statusService{
		cfg:   cfg,
		pool:  pool,
		cache: newStatusCache(statusCacheTTL),
	}
}

// TableStatuses compares every configured table across source and target.
// A table whose probes fail is reported with its error rather than aborting
// the whole sweep.
func (s *statusService) TableStatuses(ctx context.Context) ([]model.TableStatus, error) {
	source, target, err := s.handlers(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]model.TableStatus, 0, len(s.cfg.Tables))
	for i := range s.cfg.Tables {
		statuses = append(statuses, s.snapshot(ctx, source, target, &s.cfg.Tables[i]))
	}
	return statuses, nil
}

// TableStatus compares one configured table across source and target.
func (s *statusService) TableStatus(ctx context.Context, table string) (*model.TableStatus, error) {
	spec, err := s.cfg.TableSpec(table)
	if err != nil {
		return nil, err
	}

	source, target, err := s.handlers(ctx)
	if err != nil {
		return nil, err
	}

	status := s.snapshot(ctx, source, target, spec)
	return &status, nil
}

// Connections tests both endpoints and reports pool statistics.
func (s *statusService) Connections(ctx context.Context) *ConnectionCheckResponse {
	return &ConnectionCheckResponse{
		Connections: s.pool.TestConnections(ctx),
		Stats:       s.pool.GetStats(),
		CheckedAt:   time.Now(),
	}
}

func (s *statusService) handlers(ctx context.Context) (database.Handler, database.Handler, error) {
	sourceDB, err := s.pool.Source(ctx)
	if err != nil {
		return nil, nil, utils.NewConnectionError(err, "source database unavailable")
	}
	targetDB, err := s.pool.Target(ctx)
	if err != nil {
		return nil, nil, utils.NewConnectionError(err, "target database unavailable")
	}

	timeout := s.cfg.Settings.CommandTimeout
	return database.NewHandler(sourceDB, timeout), database.NewHandler(targetDB, timeout), nil
}

// snapshot serves a table's status from cache when fresh. Failed probes are
// never cached so a recovering endpoint is retried on the next request.
func (s *statusService) snapshot(ctx context.Context, source, target database.Handler, spec *model.TableSpec) model.TableStatus {
	if status, ok := s.cache.get(spec.Name); ok {
		return status
	}

	status := s.tableStatus(ctx, source, target, spec)
	if status.Error == "" {
		s.cache.set(status)
	}
	return status
}

func (s *statusService) tableStatus(ctx context.Context, source, target database.Handler, spec *model.TableSpec) model.TableStatus {
	status := model.TableStatus{
		Table:     spec.Name,
		Strategy:  string(spec.Strategy),
		SyncMode:  string(spec.SyncMode),
		CheckedAt: time.Now(),
	}

	sourceRows, err := source.Count(ctx, spec.Name)
	if err != nil {
		status.Error = fmt.Sprintf("failed to count source rows: %v", err)
		return status
	}
	status.SourceRows = sourceRows

	targetRows, err := target.Count(ctx, spec.Name)
	if err != nil {
		status.Error = fmt.Sprintf("failed to count target rows: %v", err)
		return status
	}
	status.TargetRows = targetRows
	status.RowGap = sourceRows - targetRows

	if spec.IncrementalColumn != "" {
		sourceMax, err := source.MaxValue(ctx, spec.Name, spec.IncrementalColumn)
		if err != nil {
			status.Error = fmt.Sprintf("failed to read source high-water mark: %v", err)
			return status
		}
		status.SourceMaxValue = formatMarkValue(sourceMax)

		targetMax, err := target.MaxValue(ctx, spec.Name, spec.IncrementalColumn)
		if err != nil {
			status.Error = fmt.Sprintf("failed to read target high-water mark: %v", err)
			return status
		}
		status.TargetMaxValue = formatMarkValue(targetMax)
	}

	return status
}

// formatMarkValue renders a high-water mark for display. Time values use a
// stable layout so status output is comparable across calls.
func formatMarkValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case time.Time:
		return value.Format("2006-01-02 15:04:05")
	case []byte:
		return string(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
