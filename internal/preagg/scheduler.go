package preagg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/driver"
	"github.com/cubedlayer/cubed/internal/lifecycle"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/sqlbuild"
)

// ParseInterval parses a "every N (seconds|minutes|hours|days)" refresh
// key into a time.Duration. An empty string means no scheduled refresh.
func ParseInterval(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, nil
	}
	fields := strings.Fields(spec)
	if len(fields) != 3 || fields[0] != "every" {
		return 0, cubederr.Configuration("refresh interval %q is not of the form \"every N unit\"", spec)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		return 0, cubederr.Configuration("refresh interval %q has a non-positive count", spec)
	}
	unit := strings.TrimSuffix(fields[2], "s")
	var perUnit time.Duration
	switch unit {
	case "second":
		perUnit = time.Second
	case "minute":
		perUnit = time.Minute
	case "hour":
		perUnit = time.Hour
	case "day":
		perUnit = 24 * time.Hour
	default:
		return 0, cubederr.Configuration("refresh interval %q has an unrecognized unit", spec)
	}
	return time.Duration(n) * perUnit, nil
}

// Scheduler runs one long-lived refresh loop per registered definition
// that declares a RefreshInterval, rebuilding each rollup table on its
// own ticker. Modeled on DoltStore's watchdogLoop: a context-cancellable
// ticker loop per job. A rebuild failure is retried with backoff inside
// one tick and, if it still fails, logged and left for the next tick —
// never escalated to the caller.
type Scheduler struct {
	schema  *schema.Schema
	conn    driver.Conn
	manager *lifecycle.Manager

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewScheduler returns a Scheduler ready to Start jobs against conn.
func NewScheduler(s *schema.Schema, conn driver.Conn, manager *lifecycle.Manager) *Scheduler {
	return &Scheduler{schema: s, conn: conn, manager: manager, running: make(map[string]context.CancelFunc)}
}

// Start launches a background refresh loop for every definition in reg
// that has a parseable, non-zero RefreshInterval. It returns immediately;
// loops run until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context, reg *Registry) {
	for _, k := range sortedKeys(reg.defs) {
		d := reg.defs[k]
		interval, err := ParseInterval(d.RefreshInterval)
		if err != nil || interval == 0 {
			continue
		}
		s.startJob(ctx, d, interval)
	}
}

func (s *Scheduler) startJob(ctx context.Context, d *schema.PreAggregation, interval time.Duration) {
	jobCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[key(d.Cube, d.Name)] = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				s.refresh(jobCtx, d)
			}
		}
	}()
}

// Stop cancels every running refresh loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.running {
		cancel()
	}
	s.running = make(map[string]context.CancelFunc)
}

// RefreshNow triggers an off-cycle rebuild of the named definition,
// the same truncate-then-repopulate path the ticker uses.
func (s *Scheduler) RefreshNow(ctx context.Context, reg *Registry, cube, name string) error {
	d, ok := reg.defs[key(cube, name)]
	if !ok {
		return cubederr.Query("no pre-aggregation named %q on cube %q", name, cube)
	}
	return s.rebuild(ctx, d)
}

// refresh runs one rebuild cycle and logs, but never returns, a failure —
// the scheduler retries at the next tick rather than aborting the loop.
func (s *Scheduler) refresh(ctx context.Context, d *schema.PreAggregation) {
	jobID := uuid.NewString()
	if err := s.rebuild(ctx, d); err != nil && s.manager != nil {
		_ = s.manager.Dispatch(lifecycle.Event{
			Category:  lifecycle.PreAggSkipped,
			Reason:    fmt.Sprintf("refresh of %s/%s failed: %v", d.Cube, d.Name, err),
			Err:       err,
			RequestID: jobID,
		})
	}
}

// rebuild truncates the rollup table and repopulates it from the
// pre-aggregation's own dimension/measure selection compiled against
// the live tables. The truncate-then-insert pair retries with
// exponential backoff, the same shape doltdriver.Open uses around its
// initial connect, since a table lock briefly held by a concurrent
// reader is the expected transient failure here, not a reason to skip
// the whole refresh cycle.
func (s *Scheduler) rebuild(ctx context.Context, d *schema.PreAggregation) error {
	sql, err := buildRollupSQL(s.schema, d)
	if err != nil {
		return err
	}
	table := RollupTable(d)
	insert := "INSERT INTO " + table + " " + sql

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		if err := s.conn.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return cubederr.Execution(err, "truncating rollup table %q", table)
		}
		if err := s.conn.Exec(ctx, insert); err != nil {
			return cubederr.Execution(err, "repopulating rollup table %q", table)
		}
		return nil
	}, bo)
}

// buildRollupSQL compiles the plain aggregation query a pre-aggregation
// definition describes: its own dimensions and measures, bucketed by
// its own time dimension and granularity if set, against the cube's
// live table (no table override — this SQL populates the rollup, it
// doesn't read from it).
func buildRollupSQL(s *schema.Schema, d *schema.PreAggregation) (string, error) {
	req := rollupRequest(d)
	result, err := sqlbuild.Build(s, req, sqlbuild.Options{})
	if err != nil {
		return "", err
	}
	return result.SQL, nil
}
