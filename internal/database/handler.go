package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
)

// Handler is the narrow database surface the refresh engine runs on. The
// production implementation wraps a pooled *sql.DB; tests substitute fakes.
type Handler interface {
	// Query runs a SELECT and returns rows as column-name maps.
	Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
	// QueryRows runs a SELECT and returns ordered columns and raw row values,
	// suitable for feeding straight into BulkCopy.
	QueryRows(ctx context.Context, query string, args ...interface{}) ([]string, [][]interface{}, error)
	// Exec runs a statement and returns the affected row count where the
	// driver reports one.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
	// ExecTx runs statements inside one transaction, committing only if
	// every statement succeeds.
	ExecTx(ctx context.Context, queries []string) error
	// Scalar returns the first column of the first row, nil for NULL.
	Scalar(ctx context.Context, query string, args ...interface{}) (interface{}, error)
	// MaxValue returns MAX(column) from a table, nil when the table is empty.
	MaxValue(ctx context.Context, table, column string) (interface{}, error)
	// Count returns the row count of a table.
	Count(ctx context.Context, table string) (int64, error)
	// Truncate empties a table.
	Truncate(ctx context.Context, table string) error
	// BulkCopy writes rows into a table with one bulk operation inside a
	// single transaction. The write commits fully or not at all.
	BulkCopy(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error)
}

type sqlHandler struct {
	db             *sql.DB
	commandTimeout time.Duration
}

// NewHandler wraps a SQL Server connection pool as a Handler. All operations
// run under the configured command timeout.
func NewHandler(db *sql.DB, commandTimeout time.Duration) Handler {
	return &sqlHandler{db: db, commandTimeout: commandTimeout}
}

func (h *sqlHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.commandTimeout > 0 {
		return context.WithTimeout(ctx, h.commandTimeout)
	}
	return context.WithCancel(ctx)
}

func (h *sqlHandler) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

func (h *sqlHandler) QueryRows(ctx context.Context, query string, args ...interface{}) ([]string, [][]interface{}, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}
		results = append(results, values)
	}

	return columns, results, rows.Err()
}

func (h *sqlHandler) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (h *sqlHandler) ExecTx(ctx context.Context, queries []string) error {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (h *sqlHandler) Scalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	var value interface{}
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if b, ok := value.([]byte); ok {
		return string(b), nil
	}
	return value, nil
}

func (h *sqlHandler) MaxValue(ctx context.Context, table, column string) (interface{}, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", QuoteIdent(column), QuoteIdent(table))
	return h.Scalar(ctx, query)
}

func (h *sqlHandler) Count(ctx context.Context, table string) (int64, error) {
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", QuoteIdent(table))

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := h.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (h *sqlHandler) Truncate(ctx context.Context, table string) error {
	if err := ValidateIdentifier(table); err != nil {
		return err
	}
	_, err := h.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", QuoteIdent(table)))
	return err
}

func (h *sqlHandler) BulkCopy(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	options := mssql.BulkOptions{KeepNulls: true}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, options, columns...))
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, err
		}
	}

	// Final Exec with no arguments flushes the bulk batch.
	result, err := stmt.ExecContext(ctx)
	if err != nil {
		stmt.Close()
		tx.Rollback()
		return 0, err
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return affected, nil
}
