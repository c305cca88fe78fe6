package database

import (
	"context"
	"fmt"
	"time"
)

// HealthChecker performs health checks on the source and target connections
type HealthChecker struct {
	connPool *ConnectionPool
}

// NewHealthChecker creates a new HealthChecker instance
func NewHealthChecker(connPool *ConnectionPool) *HealthChecker {
	return &HealthChecker{connPool: connPool}
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Role      string        `json:"role"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthSummary represents the health of both refresh endpoints
type HealthSummary struct {
	Healthy   bool                `json:"healthy"`
	Results   []HealthCheckResult `json:"results"`
	CheckedAt time.Time           `json:"checkedAt"`
}

// CheckRole tests one endpoint end to end, establishing the connection if
// needed.
func (hc *HealthChecker) CheckRole(ctx context.Context, role string) HealthCheckResult {
	startTime := time.Now()

	result := HealthCheckResult{
		Role:      role,
		CheckedAt: startTime,
	}

	db, err := hc.connPool.connection(ctx, role)
	if err != nil {
		result.Status = "unhealthy"
		result.Message = fmt.Sprintf("Failed to get connection: %v", err)
		result.Latency = time.Since(startTime)
		return result
	}

	err = TestConnection(ctx, db)
	result.Latency = time.Since(startTime)

	if err != nil {
		result.Status = "unhealthy"
		result.Message = fmt.Sprintf("Connection test failed: %v", err)
	} else {
		result.Status = "healthy"
		result.Message = "Connection successful"
	}

	return result
}

// CheckAll checks both endpoints and summarizes
func (hc *HealthChecker) CheckAll(ctx context.Context) *HealthSummary {
	summary := &HealthSummary{
		Healthy:   true,
		Results:   make([]HealthCheckResult, 0, 2),
		CheckedAt: time.Now(),
	}

	for _, role := range []string{RoleSource, RoleTarget} {
		result := hc.CheckRole(ctx, role)
		if result.Status != "healthy" {
			summary.Healthy = false
		}
		summary.Results = append(summary.Results, result)
	}

	return summary
}

// PeriodicHealthCheck performs periodic health checks until the context ends
func (hc *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) <-chan *HealthSummary {
	results := make(chan *HealthSummary)

	go func() {
		defer close(results)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary := hc.CheckAll(ctx)
				select {
				case results <- summary:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return results
}
