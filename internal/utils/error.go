package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"

	// Refresh errors
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeConnection           = "CONNECTION_ERROR"
	ErrCodeInvalidDateFormat    = "INVALID_DATE_FORMAT"
	ErrCodePartitionMetadata    = "PARTITION_METADATA_UNAVAILABLE"
	ErrCodePartitionConflict    = "PARTITION_CREATE_CONFLICT"
	ErrCodeStagingPrepFailed    = "STAGING_PREP_FAILED"
	ErrCodePartialSwitchFailure = "PARTIAL_SWITCH_FAILURE"
	ErrCodeTableBusy            = "TABLE_BUSY"

	// Database errors
	ErrCodeQueryFailed  = "QUERY_FAILED"
	ErrCodeQueryTimeout = "QUERY_TIMEOUT"

	// Authentication errors
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeInvalidToken = "INVALID_TOKEN"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,

	ErrCodeConfiguration:        http.StatusInternalServerError,
	ErrCodeConnection:           http.StatusServiceUnavailable,
	ErrCodeInvalidDateFormat:    http.StatusUnprocessableEntity,
	ErrCodePartitionMetadata:    http.StatusServiceUnavailable,
	ErrCodePartitionConflict:    http.StatusConflict,
	ErrCodeStagingPrepFailed:    http.StatusInternalServerError,
	ErrCodePartialSwitchFailure: http.StatusInternalServerError,
	ErrCodeTableBusy:            http.StatusConflict,

	ErrCodeQueryFailed:  http.StatusInternalServerError,
	ErrCodeQueryTimeout: http.StatusRequestTimeout,

	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeInvalidToken: http.StatusUnauthorized,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

// WithDetails sets the error details
func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}

	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

// getDefaultMessage returns a default message for error codes
func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeForbidden:          "Insufficient permissions",
		ErrCodeNotFound:           "Resource not found",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",

		ErrCodeConfiguration:        "Invalid refresh configuration",
		ErrCodeConnection:           "Database connection failed",
		ErrCodeInvalidDateFormat:    "Value is not a valid partition date",
		ErrCodePartitionMetadata:    "Partition metadata could not be read",
		ErrCodePartitionConflict:    "Partition boundary already exists",
		ErrCodeStagingPrepFailed:    "Staging preparation failed",
		ErrCodePartialSwitchFailure: "Partition switch partially completed",
		ErrCodeTableBusy:            "A refresh is already running for this table",

		ErrCodeQueryFailed:  "Query execution failed",
		ErrCodeQueryTimeout: "Query timeout",

		ErrCodeTokenExpired: "Token expired",
		ErrCodeInvalidToken: "Invalid token",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

// Convenience functions for common error types
func NewConfigurationError(details string) *AppError {
	return NewErrorBuilder(ErrCodeConfiguration).
		WithDetails(details).
		Build()
}

func NewConnectionError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodeConnection).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewInvalidDateError(details string) *AppError {
	return NewErrorBuilder(ErrCodeInvalidDateFormat).
		WithDetails(details).
		Build()
}

func NewPartitionMetadataError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodePartitionMetadata).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewPartitionConflictError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodePartitionConflict).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewStagingPrepError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodeStagingPrepFailed).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewPartialSwitchError(details string) *AppError {
	return NewErrorBuilder(ErrCodePartialSwitchFailure).
		WithDetails(details).
		Build()
}

func NewTableBusyError(table string) *AppError {
	return NewErrorBuilder(ErrCodeTableBusy).
		WithDetails(fmt.Sprintf("table %s", table)).
		Build()
}

func NewQueryError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodeQueryFailed).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewNotFoundError(resource string) *AppError {
	return NewErrorBuilder(ErrCodeNotFound).
		WithMessage(fmt.Sprintf("%s not found", resource)).
		Build()
}

func NewValidationError(message string, details string) *AppError {
	return NewErrorBuilder(ErrCodeValidationFailed).
		WithMessage(message).
		WithDetails(details).
		Build()
}

func NewAuthenticationError(message string) *AppError {
	return NewErrorBuilder(ErrCodeUnauthorized).
		WithMessage(message).
		Build()
}

// IsErrorType checks if an error matches a specific error code, unwrapping as needed
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError extracts the AppError from an error chain, or wraps err as an internal error
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewErrorBuilder(ErrCodeInternalError).
		WithCause(err).
		WithDetails(err.Error()).
		Build()
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}
