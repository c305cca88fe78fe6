package repository

import "errors"

// Common repository errors
var (
	ErrRunNotFound     = errors.New("refresh run not found")
	ErrInvalidUUID     = errors.New("invalid UUID format")
	ErrHistoryDisabled = errors.New("run history persistence is disabled")
)
