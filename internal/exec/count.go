package exec

import (
	"fmt"
	"strconv"

	"github.com/orbitquery/queryengine/internal/sources"
)

// ExtractCount reads the first numeric value of the first row, handling
// integer, big-integer (as string), or plain string forms that different
// drivers report COUNT(*) as.
func ExtractCount(rows []sources.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		switch n := v.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("exec: count value %q is not an integer: %w", n, err)
			}
			return parsed, nil
		case []byte:
			parsed, err := strconv.ParseInt(string(n), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("exec: count value %q is not an integer: %w", n, err)
			}
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("exec: no numeric value found in count row")
}
