// Package doltdriver registers the "dolt" driver.Conn backend against
// the embedded, CGO-only dolthub/driver engine, following the retry
// shape of internal/storage/dolt/store_embedded.go's newEmbeddedMode —
// an exponential backoff around the initial open, since the embedded
// engine can transiently fail to acquire its own lock file right after
// a prior process exits.
package doltdriver

import (
	"context"
	"database/sql"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver" // registers the "dolt" database/sql driver name

	"github.com/cubedlayer/cubed/internal/driver"
)

func init() {
	driver.Register("dolt", Open)
}

// Open opens an embedded Dolt database at dsn (a directory path,
// dolthub/driver-DSN-encoded), retrying the initial open with
// exponential backoff.
func Open(ctx context.Context, dsn string) (driver.Conn, error) {
	var db *sql.DB
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		var openErr error
		db, openErr = sql.Open("dolt", dsn)
		if openErr != nil {
			return openErr
		}
		return db.PingContext(ctx)
	}, bo)
	if err != nil {
		return nil, err
	}
	return driver.NewSQLConn(db), nil
}
