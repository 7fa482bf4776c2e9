package postgres

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InterpolateSQL replaces PostgreSQL dollar placeholders with literal
// values. Placeholders inside single-quoted string literals are left
// untouched so a literal like 'costs $2' survives intact. The result is
// only re-parsed to derive the old-image SELECT; it is never executed as
// the business statement itself.
func InterpolateSQL(query string, args []driver.NamedValue) string {
	if len(args) == 0 || !strings.ContainsRune(query, '$') {
		return query
	}

	byOrdinal := make(map[int]driver.NamedValue, len(args))
	for _, arg := range args {
		byOrdinal[arg.Ordinal] = arg
	}

	var builder strings.Builder
	builder.Grow(len(query))

	inQuote := false
	for i := 0; i < len(query); {
		ch := query[i]
		switch {
		case ch == '\'':
			// A doubled quote inside a literal toggles twice, which nets
			// out to staying inside the literal.
			inQuote = !inQuote
			builder.WriteByte(ch)
			i++
		case !inQuote && ch == '$' && i+1 < len(query) && isDigit(query[i+1]):
			j := i + 1
			for j < len(query) && isDigit(query[j]) {
				j++
			}
			ordinal, _ := strconv.Atoi(query[i+1 : j])
			if arg, ok := byOrdinal[ordinal]; ok {
				builder.WriteString(sqlValue(arg))
			} else if ordinal >= 1 && ordinal <= len(args) {
				builder.WriteString(sqlValue(args[ordinal-1]))
			} else {
				builder.WriteString("NULL")
			}
			i = j
		default:
			builder.WriteByte(ch)
			i++
		}
	}

	return builder.String()
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// sqlValue formats a driver.NamedValue as a SQL literal.
func sqlValue(arg driver.NamedValue) string {
	switch v := arg.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("'%s'", escapeString(v))
	case []byte:
		return fmt.Sprintf("'%s'", escapeString(string(v)))
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%v", v)
	case time.Time:
		return fmt.Sprintf("'%s'", v.Format("2006-01-02 15:04:05.999999-07:00"))
	case fmt.Stringer:
		return fmt.Sprintf("'%s'", escapeString(v.String()))
	default:
		return fmt.Sprintf("'%v'", v)
	}
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
