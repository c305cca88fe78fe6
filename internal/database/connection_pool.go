package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/RichardFellows/data-refresh/internal/config"
)

// Connection roles. The source pool is read-only by convention; the target
// pool carries writes and partition DDL.
const (
	RoleSource = "source"
	RoleTarget = "target"
)

// ConnectionPool manages the source and target SQL Server connection pools.
type ConnectionPool struct {
	configs     map[string]*config.DatabaseConfig
	connTimeout time.Duration

	pools    map[string]*sql.DB
	mutex    sync.RWMutex
	health   map[string]bool
	healthMu sync.RWMutex
}

// NewConnectionPool creates a ConnectionPool for the configured endpoints.
// Connections are established lazily on first use.
func NewConnectionPool(source, target *config.DatabaseConfig, connTimeout time.Duration) *ConnectionPool {
	return &ConnectionPool{
		configs: map[string]*config.DatabaseConfig{
			RoleSource: source,
			RoleTarget: target,
		},
		connTimeout: connTimeout,
		pools:       make(map[string]*sql.DB),
		health:      make(map[string]bool),
	}
}

// Source returns the read-only source connection pool.
func (cp *ConnectionPool) Source(ctx context.Context) (*sql.DB, error) {
	return cp.connection(ctx, RoleSource)
}

// Target returns the writable target connection pool.
func (cp *ConnectionPool) Target(ctx context.Context) (*sql.DB, error) {
	return cp.connection(ctx, RoleTarget)
}

// connection gets or creates the pool for a role, recreating dead connections
func (cp *ConnectionPool) connection(ctx context.Context, role string) (*sql.DB, error) {
	cp.mutex.RLock()
	db, exists := cp.pools[role]
	cp.mutex.RUnlock()

	if exists {
		// Check if connection is still alive
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
		cp.removeConnection(role)
	}

	return cp.createConnection(ctx, role)
}

// createConnection creates a new connection pool for a role
func (cp *ConnectionPool) createConnection(ctx context.Context, role string) (*sql.DB, error) {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	// Double-check after acquiring write lock
	if db, exists := cp.pools[role]; exists {
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
	}

	cfg, ok := cp.configs[role]
	if !ok || cfg == nil {
		return nil, fmt.Errorf("no database configured for role %s", role)
	}

	dsn := BuildDSN(cfg, cp.connTimeout)
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", role, err)
	}

	configureConnectionPool(db)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		cp.setHealth(role, false)
		return nil, fmt.Errorf("failed to ping %s database: %w", role, err)
	}

	cp.pools[role] = db
	cp.setHealth(role, true)

	return db, nil
}

// configureConnectionPool configures the connection pool settings
func configureConnectionPool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)
}

// removeConnection removes a dead connection from the pool
func (cp *ConnectionPool) removeConnection(role string) {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	if db, exists := cp.pools[role]; exists {
		db.Close()
		delete(cp.pools, role)
		cp.setHealth(role, false)
	}
}

// CloseAll closes all connections in the pool
func (cp *ConnectionPool) CloseAll() error {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()

	var lastErr error
	for role, db := range cp.pools {
		if err := db.Close(); err != nil {
			lastErr = err
		}
		delete(cp.pools, role)
		cp.setHealth(role, false)
	}

	return lastErr
}

// TestConnections establishes and pings both endpoints, reporting per-role
// success. Used by the connection check surfaces.
func (cp *ConnectionPool) TestConnections(ctx context.Context) map[string]bool {
	results := make(map[string]bool, 2)
	for _, role := range []string{RoleSource, RoleTarget} {
		db, err := cp.connection(ctx, role)
		if err != nil {
			results[role] = false
			continue
		}
		results[role] = TestConnection(ctx, db) == nil
		cp.setHealth(role, results[role])
	}
	return results
}

// HealthCheck pings all established connections
func (cp *ConnectionPool) HealthCheck(ctx context.Context) map[string]bool {
	cp.mutex.RLock()
	defer cp.mutex.RUnlock()

	results := make(map[string]bool)
	for role, db := range cp.pools {
		if err := db.PingContext(ctx); err != nil {
			cp.setHealth(role, false)
			results[role] = false
		} else {
			cp.setHealth(role, true)
			results[role] = true
		}
	}

	return results
}

// IsHealthy reports the last known health of a role's connection
func (cp *ConnectionPool) IsHealthy(role string) bool {
	cp.healthMu.RLock()
	defer cp.healthMu.RUnlock()
	return cp.health[role]
}

func (cp *ConnectionPool) setHealth(role string, healthy bool) {
	cp.healthMu.Lock()
	defer cp.healthMu.Unlock()
	cp.health[role] = healthy
}

// GetStats returns statistics for all established pools
func (cp *ConnectionPool) GetStats() map[string]ConnectionStats {
	cp.mutex.RLock()
	defer cp.mutex.RUnlock()

	stats := make(map[string]ConnectionStats)
	for role, db := range cp.pools {
		dbStats := db.Stats()
		stats[role] = ConnectionStats{
			OpenConnections:   dbStats.OpenConnections,
			InUse:             dbStats.InUse,
			Idle:              dbStats.Idle,
			WaitCount:         dbStats.WaitCount,
			WaitDuration:      dbStats.WaitDuration,
			MaxIdleClosed:     dbStats.MaxIdleClosed,
			MaxLifetimeClosed: dbStats.MaxLifetimeClosed,
			Healthy:           cp.IsHealthy(role),
		}
	}

	return stats
}

// ConnectionStats contains connection pool statistics
type ConnectionStats struct {
	OpenConnections   int           `json:"openConnections"`
	InUse             int           `json:"inUse"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"waitCount"`
	WaitDuration      time.Duration `json:"waitDuration"`
	MaxIdleClosed     int64         `json:"maxIdleClosed"`
	MaxLifetimeClosed int64         `json:"maxLifetimeClosed"`
	Healthy           bool          `json:"healthy"`
}
