package model

import "fmt"

type StrategyKind string

const (
	StrategySimpleCopy             StrategyKind = "simple_copy"
	StrategyStagingPartitionSwitch StrategyKind = "staging_partition_switch"
)

type SyncMode string

const (
	SyncModeFullReplace SyncMode = "full_replace"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeSmartSync   SyncMode = "smart_sync"
)

type IncrementalType string

const (
	IncrementalTypeIdentity IncrementalType = "identity"
	IncrementalTypeDate     IncrementalType = "date"
	IncrementalTypeDateTime IncrementalType = "datetime"
)

// TableSpec is the immutable per-table refresh configuration. It is validated
// once at load time and never mutated by the engine.
type TableSpec struct {
	Name              string          `mapstructure:"name" json:"name" validate:"required,sqlident"`
	Strategy          StrategyKind    `mapstructure:"strategy" json:"strategy" validate:"required,oneof=simple_copy staging_partition_switch"`
	SyncMode          SyncMode        `mapstructure:"sync_mode" json:"sync_mode" validate:"required,oneof=full_replace incremental smart_sync"`
	IncrementalColumn string          `mapstructure:"incremental_column" json:"incremental_column,omitempty" validate:"required_unless=SyncMode full_replace,required_if=Strategy staging_partition_switch,omitempty,sqlident"`
	IncrementalType   IncrementalType `mapstructure:"incremental_type" json:"incremental_type,omitempty" validate:"omitempty,oneof=identity date datetime"`
	TruncateTarget    bool            `mapstructure:"truncate_target" json:"truncate_target"`
	DateBufferDays    int             `mapstructure:"date_buffer_days" json:"date_buffer_days" validate:"min=0"`
	BatchSize         int             `mapstructure:"batch_size" json:"batch_size" validate:"min=0"`
	PartitionFunction string          `mapstructure:"partition_function" json:"partition_function,omitempty" validate:"omitempty,sqlident"`
	PartitionScheme   string          `mapstructure:"partition_scheme" json:"partition_scheme,omitempty" validate:"omitempty,sqlident"`
	FallbackToFull    bool            `mapstructure:"fallback_to_full" json:"fallback_to_full"`
	RowLimit          int             `mapstructure:"row_limit" json:"row_limit,omitempty" validate:"min=0"`
}

// Engine-level batch size fallbacks when neither the table nor the global
// settings provide one.
const (
	DefaultSimpleCopyBatchSize = 5000
	DefaultStagingBatchSize    = 10000
)

// ApplyDefaults fills derived defaults: partition object names for staged
// tables and the batch size.
func (ts *TableSpec) ApplyDefaults(defaultBatchSize int) {
	if ts.Strategy == StrategyStagingPartitionSwitch {
		if ts.PartitionFunction == "" {
			ts.PartitionFunction = fmt.Sprintf("pf_%s", ts.Name)
		}
		if ts.PartitionScheme == "" {
			ts.PartitionScheme = fmt.Sprintf("ps_%s", ts.Name)
		}
	}
	if ts.BatchSize <= 0 {
		ts.BatchSize = defaultBatchSize
	}
	if ts.BatchSize <= 0 {
		if ts.Strategy == StrategyStagingPartitionSwitch {
			ts.BatchSize = DefaultStagingBatchSize
		} else {
			ts.BatchSize = DefaultSimpleCopyBatchSize
		}
	}
}

// StagingTableName returns the transient staging table name for this table.
func (ts *TableSpec) StagingTableName() string {
	return fmt.Sprintf("%s_staging", ts.Name)
}

// UsesDateSemantics reports whether the incremental column carries date
// semantics, which is what makes buffer backoff applicable.
func (it IncrementalType) UsesDateSemantics() bool {
	return it == IncrementalTypeDate || it == IncrementalTypeDateTime
}
