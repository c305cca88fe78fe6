// Package refresh implements the per-table refresh strategy engine:
// sync window resolution, chunked bulk copying, partition boundary
// management and staged partition switching.
package refresh

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RichardFellows/data-refresh/internal/utils"
)

const partitionDateLayout = "20060102"

// NormalizePartitionDate converts a raw partition-date value into the
// canonical YYYYMMDD integer form used by partition functions. Accepted
// shapes are calendar values, integers already in canonical form, and
// 8-digit strings. Anything else fails with an InvalidDateFormat error.
func NormalizePartitionDate(value interface{}) (int, error) {
	switch v := value.(type) {
	case time.Time:
		return dateToInt(v), nil
	case *time.Time:
		if v == nil {
			return 0, utils.NewInvalidDateError("partition date is nil")
		}
		return dateToInt(*v), nil
	case int:
		return validateCanonical(int64(v))
	case int32:
		return validateCanonical(int64(v))
	case int64:
		return validateCanonical(v)
	case float64:
		if v != float64(int64(v)) {
			return 0, utils.NewInvalidDateError(fmt.Sprintf("partition date %v is not a whole number", v))
		}
		return validateCanonical(int64(v))
	case string:
		return parseDigitString(v)
	case []byte:
		return parseDigitString(string(v))
	case nil:
		return 0, utils.NewInvalidDateError("partition date is nil")
	default:
		return 0, utils.NewInvalidDateError(fmt.Sprintf("unsupported partition date type %T", value))
	}
}

// NormalizePartitionDates normalizes a batch of raw values into a sorted,
// de-duplicated ascending slice of canonical integers.
func NormalizePartitionDates(values []interface{}) ([]int, error) {
	seen := make(map[int]struct{}, len(values))
	dates := make([]int, 0, len(values))
	for _, value := range values {
		date, err := NormalizePartitionDate(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[date]; ok {
			continue
		}
		seen[date] = struct{}{}
		dates = append(dates, date)
	}
	sort.Ints(dates)
	return dates, nil
}

func dateToInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func validateCanonical(n int64) (int, error) {
	if n < 10000101 || n > 99991231 {
		return 0, utils.NewInvalidDateError(fmt.Sprintf("partition date %d is not in YYYYMMDD form", n))
	}
	if _, err := time.Parse(partitionDateLayout, fmt.Sprintf("%08d", n)); err != nil {
		return 0, utils.NewInvalidDateError(fmt.Sprintf("partition date %d is not a valid calendar date", n))
	}
	return int(n), nil
}

func parseDigitString(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return 0, utils.NewInvalidDateError(fmt.Sprintf("partition date %q must be 8 digits", s))
	}
	t, err := time.Parse(partitionDateLayout, s)
	if err != nil {
		return 0, utils.NewInvalidDateError(fmt.Sprintf("partition date %q is not a valid calendar date", s))
	}
	return dateToInt(t), nil
}
