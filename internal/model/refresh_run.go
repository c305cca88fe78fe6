package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunTrigger string

const (
	RunTriggerAPI RunTrigger = "api"
	RunTriggerCLI RunTrigger = "cli"
)

// RefreshRun is the persisted history record of one table refresh.
type RefreshRun struct {
	ID                   string    `gorm:"type:char(36);primaryKey" json:"id"`
	Table                string    `gorm:"column:table_name;size:255;not null;index" json:"table_name"`
	Strategy             string    `gorm:"size:64;not null" json:"strategy"`
	SyncMode             string    `gorm:"size:64;not null" json:"sync_mode"`
	Status               RunStatus `gorm:"type:enum('success','skipped','failed');not null;index" json:"status"`
	TriggeredBy          string    `gorm:"size:16" json:"triggered_by"`
	DryRun               bool      `json:"dry_run"`
	RowsAffected         int64     `json:"rows_processed"`
	PartitionsCreated    IntList   `gorm:"type:json" json:"partitions_created,omitempty"`
	PartitionsSwitched   IntList   `gorm:"type:json" json:"partitions_switched,omitempty"`
	PartitionsUnswitched IntList   `gorm:"type:json" json:"partitions_unswitched,omitempty"`
	Step                 string    `gorm:"size:32" json:"step,omitempty"`
	ErrorKind            string    `gorm:"size:64" json:"error_kind,omitempty"`
	ErrorMessage         string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt            time.Time `json:"start_time"`
	FinishedAt           time.Time `json:"end_time"`
	DurationSeconds      float64   `json:"duration_seconds"`
	CreatedAt            time.Time `json:"created_at"`
}

// IntList stores an int slice as a JSON column.
type IntList []int

// Value implements driver.Valuer interface for GORM
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM
func (l *IntList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// TableName returns the table name for the RefreshRun model
func (RefreshRun) TableName() string {
	return "refresh_runs"
}

// BeforeCreate generates a new UUID if ID is empty
func (r *RefreshRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// NewRunFromResult builds a history record from a refresh outcome.
func NewRunFromResult(res RefreshResult, trigger RunTrigger) RefreshRun {
	return RefreshRun{
		Table:                res.Table,
		Strategy:             string(res.Strategy),
		SyncMode:             string(res.SyncMode),
		Status:               res.Status,
		TriggeredBy:          string(trigger),
		DryRun:               res.DryRun,
		RowsAffected:         res.RowsAffected,
		PartitionsCreated:    IntList(res.PartitionsCreated),
		PartitionsSwitched:   IntList(res.PartitionsSwitched),
		PartitionsUnswitched: IntList(res.PartitionsUnswitched),
		Step:                 string(res.Step),
		ErrorKind:            res.ErrorKind,
		ErrorMessage:         res.Error,
		StartedAt:            res.StartedAt,
		FinishedAt:           res.FinishedAt,
		DurationSeconds:      res.DurationSeconds,
	}
}
