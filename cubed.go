// Package cubed is the minimal public API for embedding the semantic
// analytics core in a Go program: Open loads a compiled schema plus a
// backend connection and cache, and the returned Service executes
// requests against them. It mirrors the teacher's beads.go — a thin
// facade of type aliases and constructor functions over the internal
// packages that do the real work; most callers never need to import
// those directly. Transport (HTTP/GraphQL routing, auth token
// decoding) is deliberately not here — see cmd/cubed for one example
// binding.
package cubed

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/cubedlayer/cubed/internal/cache"
	"github.com/cubedlayer/cubed/internal/cubedconfig"
	"github.com/cubedlayer/cubed/internal/driver"
	"github.com/cubedlayer/cubed/internal/lifecycle"
	"github.com/cubedlayer/cubed/internal/orchestrator"
	"github.com/cubedlayer/cubed/internal/preagg"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/schemaloader"
)

// Core types re-exported for convenience, the way beads.go aliases
// types.Issue/types.Status rather than making callers import
// internal/types directly.
type (
	Request         = query.Request
	Filter          = query.Filter
	LeafFilter      = query.LeafFilter
	LogicalFilter   = query.LogicalFilter
	TimeDimension   = query.TimeDimension
	SecurityContext = query.SecurityContext
	Result          = orchestrator.Result
	BlendingResult  = orchestrator.BlendingResult
	Schema          = schema.Schema
	Config          = cubedconfig.Config
)

// DecodeRequest and DecodeSecurityContext expose the wire-format
// decoders spec §6 defines, for callers that receive raw JSON bodies
// from whatever transport they bring.
var (
	DecodeRequest         = query.DecodeRequest
	DecodeSecurityContext = query.DecodeSecurityContext
)

// LoadConfig reads a cubed.yaml (or CUBED_* env vars) into a Config.
func LoadConfig(path string) (*Config, error) {
	return cubedconfig.Load(path)
}

// LoadSchema compiles every cube definition under dir into a Schema,
// without opening any backend connection.
func LoadSchema(dir, version string) (*Schema, error) {
	return schemaloader.Load(dir, version)
}

// Service is one running instance of the core: a schema generation, a
// backend connection, a cache, the pre-aggregation registry and
// scheduler, and the lifecycle manager. Safe for concurrent use —
// Execute builds a fresh orchestrator.Orchestrator per call against
// whichever schema generation is current, so a Reload in flight never
// races a request already in progress (spec §3 "Lifecycles", §9's
// pointer-swap guidance).
type Service struct {
	cfg       *Config
	conn      driver.Conn
	store     cache.Store
	manager   *lifecycle.Manager
	metrics   *lifecycle.MetricsObserver
	scheduler *preagg.Scheduler

	mu      sync.RWMutex
	current *Schema
	preaggs *preagg.Registry
}

// Open loads cfg.SchemaDir, opens the configured backend and cache,
// registers the built-in log and metrics observers, and starts the
// pre-aggregation refresh scheduler. The caller owns the returned
// Service and must Close it.
func Open(ctx context.Context, cfg *Config) (*Service, error) {
	s, err := schemaloader.Load(cfg.SchemaDir, schemaVersion())
	if err != nil {
		return nil, err
	}
	conn, err := driver.Open(ctx, cfg.Backend, cfg.DSN)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(ctx, cfg.CacheBackend, cfg.CacheAddress)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		conn.Close()
		return nil, err
	}
	manager := lifecycle.NewManager()
	manager.Register(lifecycle.NewLogObserver(logger))
	metrics := lifecycle.NewMetricsObserver()
	manager.Register(metrics)
	manager.Register(lifecycle.NewTracingObserver(otel.Tracer("cubed")))

	reg := preagg.NewRegistry(s)
	scheduler := preagg.NewScheduler(s, conn, manager)
	scheduler.Start(ctx, reg)

	return &Service{
		cfg:       cfg,
		conn:      conn,
		store:     store,
		manager:   manager,
		metrics:   metrics,
		scheduler: scheduler,
		current:   s,
		preaggs:   reg,
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	// an unrecognized level string leaves the default (info) level.
	_ = cfg.Level.UnmarshalText([]byte(level))
	return cfg.Build()
}

// schemaVersion stamps each compiled Schema with the time it was
// built, used by the cache-key generator to partition entries across
// reloads (spec §4.8).
func schemaVersion() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CurrentSchema returns the schema generation presently live.
func (s *Service) CurrentSchema() *Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload recompiles every cube definition under dir and, on success,
// atomically swaps it in as the current generation; a compile error
// leaves the previous generation current (spec §4.1). In-flight
// requests keep running against whatever generation they already
// captured.
func (s *Service) Reload(dir string) error {
	next, err := schemaloader.Load(dir, schemaVersion())
	if err != nil {
		return err
	}
	reg := preagg.NewRegistry(next)
	s.mu.Lock()
	s.current = next
	s.preaggs = reg
	s.mu.Unlock()
	return nil
}

// WatchSchema watches dir for cube definition changes and calls Reload
// on every write, create, remove, or rename event, logging but not
// returning a Reload failure — a broken edit mid-save should not bring
// down the watch loop. The caller stops watching by canceling ctx; the
// watcher is closed before WatchSchema returns.
func (s *Service) WatchSchema(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting schema watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %q: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(dir); err != nil {
					s.dispatchWatchError(err)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (s *Service) dispatchWatchError(err error) {
	_ = s.manager.Dispatch(lifecycle.Event{
		Category: lifecycle.CustomEvent,
		Name:     "schema_reload_failed",
		Err:      err,
		Status:   "error",
	})
}

func (s *Service) orchestrator() *orchestrator.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orchestrator.New(s.current, s.conn, s.store, s.preaggs, s.manager, s.cfg.CacheTTL)
}

// Execute runs one request end to end (spec §4.10).
func (s *Service) Execute(ctx context.Context, req *Request, sec *SecurityContext) (*Result, error) {
	return s.orchestrator().Execute(ctx, req, sec)
}

// ExecuteBlending runs an array of requests independently, returning a
// blending result (spec §4.10.5).
func (s *Service) ExecuteBlending(ctx context.Context, reqs []*Request, sec *SecurityContext) (*BlendingResult, error) {
	return s.orchestrator().ExecuteBlending(ctx, reqs, sec)
}

// MetricsSnapshot reads the built-in metrics observer's current
// counters and duration percentiles (spec §4.11).
func (s *Service) MetricsSnapshot() lifecycle.Snapshot {
	return s.metrics.Snapshot()
}

// Manager returns the lifecycle manager so a caller can register
// additional observers before the first Execute call.
func (s *Service) Manager() *lifecycle.Manager {
	return s.manager
}

// Close stops the pre-aggregation scheduler and releases the backend
// connection and cache.
func (s *Service) Close() error {
	s.scheduler.Stop()
	if closer, ok := s.store.(io.Closer); ok {
		closer.Close()
	}
	return s.conn.Close()
}
