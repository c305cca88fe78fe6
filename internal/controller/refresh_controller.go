package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/repository"
	"github.com/RichardFellows/data-refresh/internal/service"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type RefreshController struct {
	service   service.RefreshService
	validator *validator.Validate
}

type Response struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewRefreshController(service service.RefreshService) *RefreshController {
	return &RefreshController{
		service:   service,
		validator: validator.New(),
	}
}

// TriggerRefresh godoc
// @Summary Trigger a refresh pass
// @Description Refreshes one named table, or every configured table when no table is given
// @Tags refresh
// @Accept json
// @Produce json
// @Param request body service.TriggerRequest false "Trigger request"
// @Success 200 {object} Response{data=service.TriggerResponse}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 503 {object} Response
// @Router /api/v1/refresh [post]
func (rc *RefreshController) TriggerRefresh(c *gin.Context) {
	var req service.TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			rc.sendError(c, http.StatusBadRequest, utils.ErrCodeInvalidRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	if err := rc.validator.Struct(&req); err != nil {
		rc.sendError(c, http.StatusBadRequest, utils.ErrCodeValidationFailed, err.Error())
		return
	}

	resp, err := rc.service.Trigger(c.Request.Context(), &req, model.RunTriggerAPI)
	if err != nil {
		appErr := utils.AsAppError(err)
		rc.sendError(c, utils.GetErrorStatus(appErr), appErr.Code, appErr.Message)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          resp,
		CorrelationID: rc.getCorrelationID(c),
	})
}

// ListRuns godoc
// @Summary List refresh runs
// @Description Retrieves a paginated list of recorded refresh runs, newest first
// @Tags runs
// @Produce json
// @Param table query string false "Filter by table name"
// @Param status query string false "Filter by status (success, skipped, failed)"
// @Param limit query int false "Maximum number of items to return (default: 20, max: 100)"
// @Param offset query int false "Number of items to skip (default: 0)"
// @Success 200 {object} Response{data=service.ListRunsResponse}
// @Router /api/v1/runs [get]
func (rc *RefreshController) ListRuns(c *gin.Context) {
	req := &service.ListRunsRequest{
		Table: c.Query("table"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		req.Status = model.RunStatus(statusStr)
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = limit
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			req.Offset = offset
		}
	}

	if err := rc.validator.Struct(req); err != nil {
		rc.sendError(c, http.StatusBadRequest, utils.ErrCodeValidationFailed, err.Error())
		return
	}

	resp, err := rc.service.ListRuns(c.Request.Context(), req)
	if err != nil {
		rc.sendError(c, http.StatusInternalServerError, utils.ErrCodeInternalError, "Failed to list refresh runs")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          resp,
		CorrelationID: rc.getCorrelationID(c),
	})
}

// GetRun godoc
// @Summary Get a refresh run by ID
// @Description Retrieves one recorded refresh run by its UUID
// @Tags runs
// @Produce json
// @Param id path string true "Run UUID"
// @Success 200 {object} Response{data=model.RefreshRun}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/runs/{id} [get]
func (rc *RefreshController) GetRun(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		rc.sendError(c, http.StatusBadRequest, utils.ErrCodeInvalidRequest, "Run ID is required")
		return
	}

	run, err := rc.service.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			rc.sendError(c, http.StatusNotFound, utils.ErrCodeNotFound, "Refresh run not found")
			return
		}
		if errors.Is(err, repository.ErrInvalidUUID) {
			rc.sendError(c, http.StatusBadRequest, utils.ErrCodeInvalidRequest, "Invalid run ID format")
			return
		}
		rc.sendError(c, http.StatusInternalServerError, utils.ErrCodeInternalError, "Failed to get refresh run")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          run,
		CorrelationID: rc.getCorrelationID(c),
	})
}

// GetRunStats godoc
// @Summary Get refresh run statistics
// @Description Retrieves counts of recorded runs grouped by status
// @Tags runs
// @Produce json
// @Success 200 {object} Response{data=service.RunStatsResponse}
// @Router /api/v1/runs/stats [get]
func (rc *RefreshController) GetRunStats(c *gin.Context) {
	stats, err := rc.service.RunStats(c.Request.Context())
	if err != nil {
		rc.sendError(c, http.StatusInternalServerError, utils.ErrCodeInternalError, "Failed to get run statistics")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success:       true,
		Data:          stats,
		CorrelationID: rc.getCorrelationID(c),
	})
}

// Helper methods

func (rc *RefreshController) sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		CorrelationID: rc.getCorrelationID(c),
	})
}

func (rc *RefreshController) getCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get("correlation_id"); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}
