package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/config"
	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/middleware"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/refresh"
	"github.com/RichardFellows/data-refresh/internal/repository"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type RefreshService interface {
	Trigger(ctx context.Context, req *TriggerRequest, trigger model.RunTrigger) (*TriggerResponse, error)
	ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error)
	GetRun(ctx context.Context, id string) (*model.RefreshRun, error)
	RunStats(ctx context.Context) (*RunStatsResponse, error)
}

type refreshService struct {
	cfg     *config.Config
	pool    *database.ConnectionPool
	locks   *refresh.LockRegistry
	runs    repository.RunRepository
	metrics *MetricsCollector
}

type TriggerRequest struct {
	Table  string `json:"table,omitempty" validate:"omitempty,min=1,max=255"`
	DryRun bool   `json:"dry_run,omitempty"`
}

type TriggerResponse struct {
	Results []*model.RefreshResult `json:"results"`
	Summary RunSummary             `json:"summary"`
}

type RunSummary struct {
	Tables          int     `json:"tables"`
	Succeeded       int     `json:"succeeded"`
	Skipped         int     `json:"skipped"`
	Failed          int     `json:"failed"`
	RowsProcessed   int64   `json:"rows_processed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type ListRunsRequest struct {
	Table  string          `json:"table,omitempty"`
	Status model.RunStatus `json:"status,omitempty" validate:"omitempty,oneof=success skipped failed"`
	Limit  int             `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset int             `json:"offset,omitempty" validate:"omitempty,min=0"`
}

type ListRunsResponse struct {
	Runs   []*model.RefreshRun `json:"runs"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type RunStatsResponse struct {
	Total    int64                     `json:"total"`
	ByStatus map[model.RunStatus]int64 `json:"byStatus"`
}

// NewRefreshService creates a new instance of RefreshService. The lock
// registry must be process-wide so concurrent triggers contend on the
// same per-table locks.
func NewRefreshService(cfg *config.Config, pool *database.ConnectionPool, locks *refresh.LockRegistry, runs repository.RunRepository, metrics *MetricsCollector) RefreshService {
	return &refreshService{
		cfg:     cfg,
		pool:    pool,
		locks:   locks,
		runs:    runs,
		metrics: metrics,
	}
}

// Trigger refreshes one named table or, with an empty table name, the
// whole configured set. The response carries one result per table.
func (s *refreshService) Trigger(ctx context.Context, req *TriggerRequest, trigger model.RunTrigger) (*TriggerResponse, error) {
	specs := s.cfg.Tables
	if req.Table != "" {
		spec, err := s.cfg.TableSpec(req.Table)
		if err != nil {
			return nil, err
		}
		specs = []model.TableSpec{*spec}
	}
	if len(specs) == 0 {
		return nil, utils.NewConfigurationError("no tables configured")
	}

	dryRun := req.DryRun || s.cfg.Settings.DryRun

	// A dry run must work with both endpoints unreachable, so its engine is
	// assembled without live handlers; the dispatcher finishes before it
	// would use them.
	var coordinator *refresh.Coordinator
	if dryRun {
		coordinator = s.offlineCoordinator()
	} else {
		var err error
		coordinator, err = s.buildCoordinator(ctx)
		if err != nil {
			return nil, err
		}
	}

	started := time.Now()
	results := coordinator.RefreshTables(ctx, specs, dryRun)

	response := &TriggerResponse{Results: results}
	response.Summary.Tables = len(results)
	response.Summary.DurationSeconds = time.Since(started).Seconds()

	for _, result := range results {
		switch result.Status {
		case model.RunStatusSuccess:
			response.Summary.Succeeded++
		case model.RunStatusSkipped:
			response.Summary.Skipped++
		case model.RunStatusFailed:
			response.Summary.Failed++
		}
		response.Summary.RowsProcessed += result.RowsAffected

		s.metrics.RecordRefresh(result)
		middleware.RecordRefreshMetrics(result)
		s.recordRun(ctx, result, trigger)
	}

	logrus.WithFields(logrus.Fields{
		"correlation_id": middleware.FromContext(ctx),
		"trigger":        trigger,
		"tables":         response.Summary.Tables,
		"succeeded":      response.Summary.Succeeded,
		"skipped":        response.Summary.Skipped,
		"failed":         response.Summary.Failed,
		"rows":           response.Summary.RowsProcessed,
		"dry_run":        dryRun,
	}).Info("Refresh pass finished")

	return response, nil
}

// buildCoordinator assembles a refresh engine over live pooled
// connections. The engine structs are cheap; the shared state that
// matters, the lock registry, lives on the service.
func (s *refreshService) buildCoordinator(ctx context.Context) (*refresh.Coordinator, error) {
	sourceDB, err := s.pool.Source(ctx)
	if err != nil {
		return nil, utils.NewConnectionError(err, "source database unavailable")
	}
	targetDB, err := s.pool.Target(ctx)
	if err != nil {
		return nil, utils.NewConnectionError(err, "target database unavailable")
	}

	timeout := s.cfg.Settings.CommandTimeout
	source := database.NewHandler(sourceDB, timeout)
	target := database.NewHandler(targetDB, timeout)

	dispatcher := refresh.NewDispatcher(source, target, s.locks, s.cfg.Settings.MaxRetries)
	return refresh.NewCoordinator(dispatcher, s.locks, s.cfg.Settings.MaxParallelTables), nil
}

func (s *refreshService) offlineCoordinator() *refresh.Coordinator {
	dispatcher := refresh.NewDispatcher(nil, nil, s.locks, s.cfg.Settings.MaxRetries)
	return refresh.NewCoordinator(dispatcher, s.locks, s.cfg.Settings.MaxParallelTables)
}

func (s *refreshService) recordRun(ctx context.Context, result *model.RefreshResult, trigger model.RunTrigger) {
	if s.runs == nil {
		return
	}
	run := model.NewRunFromResult(*result, trigger)
	if err := s.runs.Record(ctx, &run); err != nil {
		logrus.WithFields(logrus.Fields{
			"table": result.Table,
			"error": err.Error(),
		}).Warn("Failed to record refresh run history")
	}
}

// ListRuns pages through recorded refresh runs, newest first.
func (s *refreshService) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	if s.runs == nil {
		return nil, repository.ErrHistoryDisabled
	}

	if req.Limit == 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	runs, total, err := s.runs.GetAll(ctx, req.Table, req.Status, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh runs: %w", err)
	}

	return &ListRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	}, nil
}

// GetRun retrieves one recorded run by its UUID.
func (s *refreshService) GetRun(ctx context.Context, id string) (*model.RefreshRun, error) {
	if s.runs == nil {
		return nil, repository.ErrHistoryDisabled
	}

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunStats aggregates recorded runs by status.
func (s *refreshService) RunStats(ctx context.Context) (*RunStatsResponse, error) {
	if s.runs == nil {
		return nil, repository.ErrHistoryDisabled
	}

	counts, err := s.runs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}

	total := int64(0)
	for _, count := range counts {
		total += count
	}

	return &RunStatsResponse{
		Total:    total,
		ByStatus: counts,
	}, nil
}
