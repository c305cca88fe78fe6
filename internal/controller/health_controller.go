package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/middleware"
)

type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Service   string                    `json:"service"`
	Version   string                    `json:"version"`
	Databases map[string]DatabaseStatus `json:"databases"`
	History   *DatabaseStatus           `json:"history,omitempty"`
}

type DatabaseStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthController struct {
	pool    *database.ConnectionPool
	history *gorm.DB
	version string
}

// NewHealthController creates a health controller. The history database is
// optional and passed as nil when run history is disabled.
func NewHealthController(pool *database.ConnectionPool, history *gorm.DB, version string) *HealthController {
	return &HealthController{
		pool:    pool,
		history: history,
		version: version,
	}
}

// HealthCheck reports service health. Only established connections are
// pinged; endpoints not yet dialed are reported as such without failing the
// check, so the probe stays cheap and does not hold connections open on an
// idle service.
func (hc *HealthController) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "data-refresh",
		Version:   hc.version,
		Databases: make(map[string]DatabaseStatus),
	}

	pings := hc.pool.HealthCheck(c.Request.Context())
	stats := hc.pool.GetStats()

	for _, role := range []string{database.RoleSource, database.RoleTarget} {
		healthy, established := pings[role]
		switch {
		case !established:
			response.Databases[role] = DatabaseStatus{
				Status:  "not_connected",
				Message: "No connection established yet",
			}
		case healthy:
			response.Databases[role] = DatabaseStatus{Status: "connected"}
		default:
			response.Status = "unhealthy"
			response.Databases[role] = DatabaseStatus{
				Status:  "disconnected",
				Message: "Database ping failed",
			}
		}

		middleware.UpdateDatabaseHealth(role, established && healthy)
		if st, ok := stats[role]; ok {
			middleware.UpdateConnectionPoolMetrics(role, st.InUse, st.Idle)
		}
	}

	if hc.history != nil {
		response.History = hc.historyStatus()
		if response.History.Status == "disconnected" {
			// Run history is best effort; a broken history database does
			// not make the refresh service unhealthy.
			response.History.Message += " (history recording degraded)"
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func (hc *HealthController) historyStatus() *DatabaseStatus {
	sqlDB, err := hc.history.DB()
	if err != nil {
		return &DatabaseStatus{Status: "disconnected", Message: err.Error()}
	}
	if err := sqlDB.Ping(); err != nil {
		return &DatabaseStatus{Status: "disconnected", Message: err.Error()}
	}
	return &DatabaseStatus{Status: "connected"}
}
