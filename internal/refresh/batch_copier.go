package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

var chunkRetryBackoff = time.Second

// CopyReport summarizes one completed copy.
type CopyReport struct {
	RowsCopied int64         `json:"rowsCopied"`
	Chunks     int           `json:"chunks"`
	Elapsed    time.Duration `json:"elapsed"`
}

// BatchCopier moves the rows selected by a sync window from the source
// table to a destination table in bounded chunks. Each chunk is read with
// keyset-stable pagination and written as one bulk insert; a failed chunk
// is retried with identical boundaries before the copy as a whole fails.
type BatchCopier struct {
	source     database.Handler
	dest       database.Handler
	maxRetries int
}

// NewBatchCopier creates a copier between two handlers
func NewBatchCopier(source, dest database.Handler, maxRetries int) *BatchCopier {
	return &BatchCopier{source: source, dest: dest, maxRetries: maxRetries}
}

// Copy transfers the window's rows from the table named in spec to
// destTable. Chunks follow the incremental column's ascending order when
// the window has one. Cancellation is honored between chunks only.
func (c *BatchCopier) Copy(ctx context.Context, spec *model.TableSpec, window *model.SyncWindow, destTable string) (*CopyReport, error) {
	if err := database.ValidateIdentifier(spec.Name); err != nil {
		return nil, err
	}
	if err := database.ValidateIdentifier(destTable); err != nil {
		return nil, err
	}

	selectSQL := fmt.Sprintf("SELECT * FROM %s", database.QuoteIdent(spec.Name))
	var args []interface{}
	if !window.All {
		if err := database.ValidateIdentifier(window.Column); err != nil {
			return nil, err
		}
		if window.Operator != ">" && window.Operator != ">=" {
			return nil, utils.NewValidationError("unsupported window operator", window.Operator)
		}
		selectSQL += fmt.Sprintf(" WHERE %s %s @p1", database.QuoteIdent(window.Column), window.Operator)
		args = append(args, window.Threshold)
	}

	orderBy := ""
	if window.Column != "" {
		orderBy = window.Column
	}

	batchSize := int64(spec.BatchSize)
	if batchSize <= 0 {
		batchSize = model.DefaultSimpleCopyBatchSize
	}

	report := &CopyReport{}
	started := time.Now()
	offset := int64(0)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fetch := batchSize
		if spec.RowLimit > 0 {
			remaining := int64(spec.RowLimit) - report.RowsCopied
			if remaining <= 0 {
				break
			}
			if remaining < fetch {
				fetch = remaining
			}
		}

		paged := database.ApplyBatchPagination(selectSQL, orderBy, offset, fetch)

		var columns []string
		var rows [][]interface{}
		err := c.withRetry(ctx, spec.Name, "read", func() error {
			var readErr error
			columns, rows, readErr = c.source.QueryRows(ctx, paged, args...)
			return readErr
		})
		if err != nil {
			return report, utils.NewQueryError(err,
				fmt.Sprintf("chunk read at offset %d failed for %s", offset, spec.Name))
		}

		if len(rows) == 0 {
			break
		}

		var inserted int64
		err = c.withRetry(ctx, spec.Name, "write", func() error {
			var writeErr error
			inserted, writeErr = c.dest.BulkCopy(ctx, destTable, columns, rows)
			return writeErr
		})
		if err != nil {
			return report, utils.NewQueryError(err,
				fmt.Sprintf("chunk write at offset %d failed for %s", offset, destTable))
		}

		report.RowsCopied += inserted
		report.Chunks++
		offset += int64(len(rows))

		logrus.WithFields(logrus.Fields{
			"table":  spec.Name,
			"dest":   destTable,
			"chunk":  report.Chunks,
			"rows":   inserted,
			"offset": offset,
		}).Debug("Copied chunk")

		if int64(len(rows)) < fetch {
			break
		}
	}

	report.Elapsed = time.Since(started)
	return report, nil
}

// withRetry runs fn up to maxRetries+1 times with linear backoff, keeping
// the chunk boundaries unchanged between attempts.
func (c *BatchCopier) withRetry(ctx context.Context, table, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * chunkRetryBackoff):
			}
			logrus.WithFields(logrus.Fields{
				"table":   table,
				"op":      op,
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Retrying chunk operation")
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
