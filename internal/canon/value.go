// Package canon normalizes driver-level values into canonical Go
// representations so that row snapshots serialize deterministically and
// structural comparison does not depend on the driver's wire types.
package canon

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Value converts a driver.Value into its canonical representation.
// []byte becomes string (lib/pq returns text, json and uuid columns as
// bytes), time.Time is rendered in RFC 3339 with nanoseconds, and nil
// stays nil.
func Value(v driver.Value) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case string, bool, int64, float64:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// String renders a canonical value as a plain string, used to extract
// row identifiers from snapshots.
func String(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
