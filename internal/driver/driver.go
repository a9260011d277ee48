// Package driver defines the pluggable backend connector contract — a
// connector returning rows of typed key/value maps — and a
// named-backend registry, modeled closely on
// internal/storage/factory.go's BackendFactory/RegisterBackend pattern,
// swapped from opening an issue store to opening a SQL connection pool.
package driver

import (
	"context"
	"fmt"
)

// Conn executes compiled SQL against a relational backend and returns
// rows of typed key/value maps — column name to already-backend-typed
// value, left for internal/resultfmt to normalize.
type Conn interface {
	// Query runs sql and returns every row. Honors ctx cancellation if
	// the underlying driver supports it.
	Query(ctx context.Context, sql string) ([]map[string]any, error)
	// Exec runs a statement with no result rows — used by the
	// pre-aggregation manager's truncate-then-repopulate cycle.
	Exec(ctx context.Context, sql string) error
	Close() error
}

// Factory opens a Conn against dsn.
type Factory func(ctx context.Context, dsn string) (Conn, error)

var registry = make(map[string]Factory)

// Register adds a named backend constructor. Called from each driver
// package's init (mysqldriver, doltdriver).
func Register(name string, f Factory) {
	registry[name] = f
}

// Open constructs the named backend's Conn.
func Open(ctx context.Context, name, dsn string) (Conn, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("driver: unknown backend %q", name)
	}
	return f(ctx, dsn)
}
