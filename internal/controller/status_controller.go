package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RichardFellows/data-refresh/internal/service"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type StatusController struct {
	status  service.StatusService
	metrics *service.MetricsCollector
}

func NewStatusController(status service.StatusService, metrics *service.MetricsCollector) *StatusController {
	return &StatusController{
		status:  status,
		metrics: metrics,
	}
}

// GetTableStatuses godoc
// @Summary Get status of all configured tables
// @Description Compares row counts and high-water marks between source and target for every configured table
// @Tags status
// @Produce json
// @Success 200 {object} Response{data=[]model.TableStatus}
// @Failure 503 {object} Response
// @Router /api/v1/status [get]
func (sc *StatusController) GetTableStatuses(c *gin.Context) {
	statuses, err := sc.status.TableStatuses(c.Request.Context())
	if err != nil {
		appErr := utils.AsAppError(err)
		sc.sendError(c, utils.GetErrorStatus(appErr), appErr.Code, appErr.Message)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          statuses,
		CorrelationID: sc.getCorrelationID(c),
	})
}

// GetTableStatus godoc
// @Summary Get status of one table
// @Description Compares row counts and high-water marks between source and target for one configured table
// @Tags status
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} Response{data=model.TableStatus}
// @Failure 404 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/status/{table} [get]
func (sc *StatusController) GetTableStatus(c *gin.Context) {
	table := c.Param("table")
	if table == "" {
		sc.sendError(c, http.StatusBadRequest, utils.ErrCodeInvalidRequest, "Table name is required")
		return
	}

	status, err := sc.status.TableStatus(c.Request.Context(), table)
	if err != nil {
		appErr := utils.AsAppError(err)
		sc.sendError(c, utils.GetErrorStatus(appErr), appErr.Code, appErr.Message)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          status,
		CorrelationID: sc.getCorrelationID(c),
	})
}

// TestConnections godoc
// @Summary Test database connections
// @Description Establishes and pings the source and target endpoints, reporting per-role success and pool statistics
// @Tags status
// @Produce json
// @Success 200 {object} Response{data=service.ConnectionCheckResponse}
// @Router /api/v1/connections [get]
func (sc *StatusController) TestConnections(c *gin.Context) {
	result := sc.status.Connections(c.Request.Context())

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          result,
		CorrelationID: sc.getCorrelationID(c),
	})
}

// GetServiceStats godoc
// @Summary Get service statistics
// @Description Retrieves in-memory refresh aggregates since the service started
// @Tags status
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/stats [get]
func (sc *StatusController) GetServiceStats(c *gin.Context) {
	stats := map[string]interface{}{
		"summary": sc.metrics.Summary(),
		"tables":  sc.metrics.AllTableMetrics(),
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          stats,
		CorrelationID: sc.getCorrelationID(c),
	})
}

// Helper methods

func (sc *StatusController) sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		CorrelationID: sc.getCorrelationID(c),
	})
}

func (sc *StatusController) getCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get("correlation_id"); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}
