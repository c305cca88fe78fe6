package refresh

import (
	"context"
	"fmt"
	"sync"
)

// fakeHandler is a scriptable database.Handler. Tests assign behavior per
// operation; unassigned operations succeed with empty results. Every
// statement-shaped call is recorded in order.
type fakeHandler struct {
	mu         sync.Mutex
	statements []string

	queryFn     func(query string, args ...interface{}) ([]map[string]interface{}, error)
	queryRowsFn func(query string, args ...interface{}) ([]string, [][]interface{}, error)
	execFn      func(query string, args ...interface{}) (int64, error)
	execTxFn    func(queries []string) error
	scalarFn    func(query string, args ...interface{}) (interface{}, error)
	maxValueFn  func(table, column string) (interface{}, error)
	countFn     func(table string) (int64, error)
	truncateFn  func(table string) error
	bulkFn      func(table string, columns []string, rows [][]interface{}) (int64, error)
}

func (f *fakeHandler) record(stmt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, stmt)
}

func (f *fakeHandler) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.statements))
	copy(out, f.statements)
	return out
}

func (f *fakeHandler) Query(_ context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if f.queryFn != nil {
		return f.queryFn(query, args...)
	}
	return nil, nil
}

func (f *fakeHandler) QueryRows(_ context.Context, query string, args ...interface{}) ([]string, [][]interface{}, error) {
	if f.queryRowsFn != nil {
		return f.queryRowsFn(query, args...)
	}
	return nil, nil, nil
}

func (f *fakeHandler) Exec(_ context.Context, query string, args ...interface{}) (int64, error) {
	f.record(query)
	if f.execFn != nil {
		return f.execFn(query, args...)
	}
	return 0, nil
}

func (f *fakeHandler) ExecTx(_ context.Context, queries []string) error {
	for _, q := range queries {
		f.record(q)
	}
	if f.execTxFn != nil {
		return f.execTxFn(queries)
	}
	return nil
}

func (f *fakeHandler) Scalar(_ context.Context, query string, args ...interface{}) (interface{}, error) {
	if f.scalarFn != nil {
		return f.scalarFn(query, args...)
	}
	return nil, nil
}

func (f *fakeHandler) MaxValue(_ context.Context, table, column string) (interface{}, error) {
	if f.maxValueFn != nil {
		return f.maxValueFn(table, column)
	}
	return nil, nil
}

func (f *fakeHandler) Count(_ context.Context, table string) (int64, error) {
	if f.countFn != nil {
		return f.countFn(table)
	}
	return 0, nil
}

func (f *fakeHandler) Truncate(_ context.Context, table string) error {
	f.record(fmt.Sprintf("TRUNCATE TABLE [%s]", table))
	if f.truncateFn != nil {
		return f.truncateFn(table)
	}
	return nil
}

func (f *fakeHandler) BulkCopy(_ context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	f.record(fmt.Sprintf("BULK INSERT [%s] (%d rows)", table, len(rows)))
	if f.bulkFn != nil {
		return f.bulkFn(table, columns, rows)
	}
	return int64(len(rows)), nil
}
