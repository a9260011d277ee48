// Package mysqldriver registers the "mysql" driver.Conn backend,
// wrapping database/sql with the go-sql-driver/mysql connector (a
// teacher direct dependency).
package mysqldriver

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cubedlayer/cubed/internal/driver"
)

func init() {
	driver.Register("mysql", Open)
}

// Open opens a connection pool against a MySQL-compatible DSN.
func Open(ctx context.Context, dsn string) (driver.Conn, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return driver.NewSQLConn(db), nil
}
