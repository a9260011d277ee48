package driver

import (
	"context"
	"database/sql"
)

// SQLConn adapts a database/sql.DB to the Conn contract. Both the
// mysqldriver and doltdriver backends are thin wrappers around this,
// since go-sql-driver/mysql and dolthub/driver both speak
// database/sql.
type SQLConn struct {
	db *sql.DB
}

// NewSQLConn wraps an already-opened *sql.DB.
func NewSQLConn(db *sql.DB) *SQLConn { return &SQLConn{db: db} }

func (c *SQLConn) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *SQLConn) Exec(ctx context.Context, query string) error {
	_, err := c.db.ExecContext(ctx, query)
	return err
}

func (c *SQLConn) Close() error { return c.db.Close() }

var _ Conn = (*SQLConn)(nil)
