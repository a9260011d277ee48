// Package resultfmt converts backend-native row values into
// JSON-compatible types: arbitrary-precision numerics become float64,
// dates/datetimes become ISO-8601 strings, byte strings become UTF-8
// (lossy on invalid sequences). Grounded on ResultFormatter, referenced
// from engine/query_engine.py; the decimal handling pulls in
// github.com/shopspring/decimal since a plain float64 cast of a SQL
// DECIMAL loses precision information the driver already had.
package resultfmt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Row is one formatted result row, keyed by the column alias the SQL
// builder chose (column names pass through unchanged).
type Row map[string]any

// FormatRows converts every row the driver returned into JSON-safe
// values, preserving column order is not needed since Row is a map;
// callers needing stable key order serialize with a json.Marshaler
// that sorts keys, same as the rest of the pipeline.
func FormatRows(rows []map[string]any) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = FormatRow(r)
	}
	return out
}

// FormatRow formats a single backend row.
func FormatRow(r map[string]any) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = FormatValue(v)
	}
	return out
}

// FormatValue converts one backend-native value to a JSON-safe form.
func FormatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		f, _ := val.Float64()
		return f
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return f
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val) // lossy on invalid UTF-8
	case int64:
		return val
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
