package exec

import (
	"strconv"
	"time"

	"github.com/orbitquery/queryengine/internal/registry"
)

// Coerce normalizes a single remapped value to the shape callers can rely
// on, per the column's declared type: decimal columns may arrive as
// numeric or string; timestamp columns as ISO string, epoch number, or
// native time.Time. Coerce leaves the value as-is when it already matches
// the expected Go shape or doesn't match any known arrival form.
func Coerce(t registry.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t.ElementType() {
	case registry.TypeDecimal:
		return coerceDecimal(v)
	case registry.TypeTimestamp, registry.TypeDate:
		return coerceTimestamp(v)
	default:
		return v
	}
}

func coerceDecimal(v any) any {
	switch n := v.(type) {
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
		return n
	default:
		return v
	}
}

// coerceTimestamp accepts a native time.Time, an epoch number (seconds or
// milliseconds, distinguished by magnitude), or an RFC3339 string with or
// without fractional seconds, and returns a time.Time in every case it
// recognizes.
func coerceTimestamp(v any) any {
	switch n := v.(type) {
	case time.Time:
		return n
	case int64:
		return epochToTime(n)
	case int:
		return epochToTime(int64(n))
	case float64:
		return epochToTime(int64(n))
	case string:
		if t, err := time.Parse(time.RFC3339Nano, n); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, n); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", n); err == nil {
			return t
		}
		return n
	default:
		return v
	}
}

// epochToTime distinguishes second-epoch from millisecond-epoch by
// magnitude: a value past year ~5138 in seconds (1e11) is assumed to
// already be in milliseconds.
func epochToTime(n int64) time.Time {
	const secondsMagnitudeCutoff = 1e11
	if n > secondsMagnitudeCutoff {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
