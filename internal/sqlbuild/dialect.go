package sqlbuild

import "fmt"

// Dialect supplies the one dialect-specific fragment the builder needs:
// a time-granularity truncation expression, wrapping the dimension
// expression in the dialect's own date-bucketing functions. Everything
// else the builder emits is plain ANSI-ish SQL common to the
// MySQL-compatible backends this module wires (go-sql-driver/mysql,
// dolthub/driver, which speaks the MySQL wire protocol).
type Dialect interface {
	// Truncate wraps expr so it evaluates to the start of the bucket
	// named by granularity (day, week, month, quarter, year, hour,
	// minute, second).
	Truncate(granularity, expr string) string
}

// MySQLDialect targets MySQL-family backends (MySQL itself and Dolt,
// which speaks the MySQL wire protocol) — the two concrete drivers this
// module wires (internal/driver/mysqldriver, internal/driver/doltdriver).
type MySQLDialect struct{}

func (MySQLDialect) Truncate(granularity, expr string) string {
	switch granularity {
	case "second":
		return expr
	case "minute":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:00')", expr)
	case "hour":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", expr)
	case "day":
		return fmt.Sprintf("DATE(%s)", expr)
	case "week":
		return fmt.Sprintf("DATE_SUB(DATE(%s), INTERVAL WEEKDAY(%s) DAY)", expr, expr)
	case "month":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-01')", expr)
	case "quarter":
		return fmt.Sprintf("MAKEDATE(YEAR(%s), 1) + INTERVAL (QUARTER(%s) - 1) QUARTER", expr, expr)
	case "year":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-01-01')", expr)
	default:
		return expr
	}
}
