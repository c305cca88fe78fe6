package refresh

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardFellows/data-refresh/internal/utils"
)

var splitPattern = regexp.MustCompile(`SPLIT RANGE \((\d+)\)`)

// catalogFake simulates the partition boundary catalog: boundary reads
// reflect prior splits, and a split of an existing boundary is rejected
// the way the engine rejects duplicates.
type catalogFake struct {
	*fakeHandler
	mu         sync.Mutex
	boundaries map[int]bool
}

func newCatalogFake(existing ...int) *catalogFake {
	c := &catalogFake{
		fakeHandler: &fakeHandler{},
		boundaries:  make(map[int]bool),
	}
	for _, b := range existing {
		c.boundaries[b] = true
	}

	c.scalarFn = func(query string, _ ...interface{}) (interface{}, error) {
		if strings.Contains(query, "sys.partition_functions") {
			return int64(1), nil
		}
		return nil, nil
	}
	c.queryFn = func(query string, _ ...interface{}) ([]map[string]interface{}, error) {
		if !strings.Contains(query, "sys.partition_range_values") {
			return nil, nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		values := make([]int, 0, len(c.boundaries))
		for b := range c.boundaries {
			values = append(values, b)
		}
		sort.Ints(values)
		rows := make([]map[string]interface{}, 0, len(values))
		for _, v := range values {
			rows = append(rows, map[string]interface{}{"boundary_value": int64(v)})
		}
		return rows, nil
	}
	c.execFn = func(query string, _ ...interface{}) (int64, error) {
		m := splitPattern.FindStringSubmatch(query)
		if m == nil {
			return 0, nil
		}
		boundary, _ := strconv.Atoi(m[1])
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.boundaries[boundary] {
			return 0, fmt.Errorf("boundary value %d already exists in partition function", boundary)
		}
		c.boundaries[boundary] = true
		return 0, nil
	}
	return c
}

func TestEnsureBoundariesCreatesExactlyMissingSet(t *testing.T) {
	catalog := newCatalogFake(20250205, 20250206)
	manager := NewPartitionManager(catalog, NewLockRegistry())

	report, err := manager.EnsureBoundaries(context.Background(), "pf_orders",
		[]int{20250206, 20250207, 20250208})
	require.NoError(t, err)

	assert.Equal(t, []int{20250205, 20250206}, report.Existing)
	assert.Equal(t, []int{20250207, 20250208}, report.Created)
	assert.Empty(t, report.Conflicts)
	assert.False(t, report.MetadataUnavailable)

	var splits []string
	for _, stmt := range catalog.recorded() {
		if strings.Contains(stmt, "SPLIT RANGE") {
			splits = append(splits, stmt)
		}
	}
	require.Len(t, splits, 2)
	assert.Equal(t, "ALTER PARTITION FUNCTION [pf_orders]() SPLIT RANGE (20250207)", splits[0])
	assert.Equal(t, "ALTER PARTITION FUNCTION [pf_orders]() SPLIT RANGE (20250208)", splits[1])
}

func TestEnsureBoundariesIsIdempotent(t *testing.T) {
	catalog := newCatalogFake(20250205, 20250206)
	manager := NewPartitionManager(catalog, NewLockRegistry())

	dates := []int{20250206, 20250207, 20250208}
	first, err := manager.EnsureBoundaries(context.Background(), "pf_orders", dates)
	require.NoError(t, err)
	require.Equal(t, []int{20250207, 20250208}, first.Created)

	second, err := manager.EnsureBoundaries(context.Background(), "pf_orders", dates)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Conflicts)
	assert.Equal(t, []int{20250205, 20250206, 20250207, 20250208}, second.Existing)
}

func TestEnsureBoundariesContinuesPastConflicts(t *testing.T) {
	catalog := newCatalogFake(20250205)
	inner := catalog.execFn
	catalog.execFn = func(query string, args ...interface{}) (int64, error) {
		if strings.Contains(query, "(20250207)") {
			return 0, fmt.Errorf("lock timeout on partition function")
		}
		return inner(query, args...)
	}
	manager := NewPartitionManager(catalog, NewLockRegistry())

	report, err := manager.EnsureBoundaries(context.Background(), "pf_orders",
		[]int{20250206, 20250207, 20250208})
	require.NoError(t, err)

	assert.Equal(t, []int{20250206, 20250208}, report.Created)
	assert.Equal(t, []int{20250207}, report.Conflicts)
}

func TestEnsureBoundariesSurvivesUnreadableCatalog(t *testing.T) {
	catalog := newCatalogFake(20250207)
	catalog.queryFn = func(string, ...interface{}) ([]map[string]interface{}, error) {
		return nil, fmt.Errorf("catalog view unavailable")
	}
	manager := NewPartitionManager(catalog, NewLockRegistry())

	report, err := manager.EnsureBoundaries(context.Background(), "pf_orders",
		[]int{20250207, 20250208})
	require.NoError(t, err)

	assert.True(t, report.MetadataUnavailable)
	assert.Equal(t, []int{20250208}, report.Created)
	assert.Equal(t, []int{20250207}, report.Conflicts, "existing boundary split is rejected by the engine")
}

func TestBoundariesFailsWhenFunctionMissing(t *testing.T) {
	catalog := newCatalogFake()
	catalog.scalarFn = func(string, ...interface{}) (interface{}, error) {
		return int64(0), nil
	}
	manager := NewPartitionManager(catalog, NewLockRegistry())

	_, err := manager.Boundaries(context.Background(), "pf_missing")
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodePartitionMetadata))
}

func TestEnsureBoundariesRejectsBadIdentifier(t *testing.T) {
	manager := NewPartitionManager(newCatalogFake(), NewLockRegistry())

	_, err := manager.EnsureBoundaries(context.Background(), "pf_orders; DROP TABLE x", []int{20250207})
	require.Error(t, err)
}

func TestMergeBoundaryIssuesMergeDDL(t *testing.T) {
	catalog := newCatalogFake(20250207)
	manager := NewPartitionManager(catalog, NewLockRegistry())

	require.NoError(t, manager.MergeBoundary(context.Background(), "pf_orders", 20250207))
	assert.Contains(t, catalog.recorded(), "ALTER PARTITION FUNCTION [pf_orders]() MERGE RANGE (20250207)")

	err := manager.MergeBoundary(context.Background(), "pf_orders", 123)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidDateFormat))
}
