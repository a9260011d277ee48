// Package orchestrator drives one request end to end: optimize,
// pre-aggregation matching, cache lookup, SQL compilation and
// execution, result shaping, and lifecycle callbacks. It mirrors
// engine/query_engine.py's QueryEngine.execute pipeline stage order;
// the compareDateRange fan-out and blending-array execution both use
// golang.org/x/sync/errgroup the way the teacher fans out independent
// I/O-bound work elsewhere in the codebase.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cubedlayer/cubed/internal/cache"
	"github.com/cubedlayer/cubed/internal/cachekey"
	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/driver"
	"github.com/cubedlayer/cubed/internal/lifecycle"
	"github.com/cubedlayer/cubed/internal/optimize"
	"github.com/cubedlayer/cubed/internal/preagg"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/resultfmt"
	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/sqlbuild"
)

// DefaultCacheTTL is the TTL new cache entries get when the caller
// configures none, matching the original's cache_ttl=3600 default.
const DefaultCacheTTL = 3600 * time.Second

// Meta mirrors the response envelope's "meta" object.
type Meta struct {
	ExecutionTimeMS    int64  `json:"execution_time_ms"`
	RowCount           int    `json:"row_count"`
	CacheHit           bool   `json:"cache_hit"`
	PreAggregationUsed bool   `json:"pre_aggregation_used"`
	QueryCost          int    `json:"query_cost"`
	SQL                string `json:"sql"`
	CompareDateRange   bool   `json:"compare_date_range,omitempty"`
}

// Result is one executed query's data and metadata.
type Result struct {
	Data []resultfmt.Row `json:"data"`
	Meta Meta            `json:"meta"`
}

// BlendingResult wraps the independent results of a blending-array
// request — an array of requests delivered in place of one.
type BlendingResult struct {
	Data          []*Result `json:"data"`
	BlendingQuery bool      `json:"blending_query"`
}

// Orchestrator holds everything one Execute call needs: the current
// schema generation, the backend connection, the cache, the
// pre-aggregation registry, and the lifecycle manager. Safe for
// concurrent use — all per-request state lives in Execute's locals.
type Orchestrator struct {
	schema  *schema.Schema
	conn    driver.Conn
	store   cache.Store
	preaggs *preagg.Registry
	manager *lifecycle.Manager
	ttl     time.Duration
}

// New returns an Orchestrator. store, preaggs, and manager may all be
// nil — a nil store disables caching, a nil preaggs registry disables
// rollup matching, a nil manager makes every dispatch a no-op.
func New(s *schema.Schema, conn driver.Conn, store cache.Store, preaggs *preagg.Registry, manager *lifecycle.Manager, ttl time.Duration) *Orchestrator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Orchestrator{schema: s, conn: conn, store: store, preaggs: preaggs, manager: manager, ttl: ttl}
}

// Execute runs one request to completion: the compareDateRange
// fan-out if the request asks for one, otherwise the single-query
// path, bracketed by query_start/query_end/query_error callbacks.
func (o *Orchestrator) Execute(ctx context.Context, req *query.Request, sec *query.SecurityContext) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	o.dispatch(lifecycle.Event{Category: lifecycle.QueryStart, Query: req, UserID: userID(sec), RequestID: requestID})

	td, multi, err := req.SingleCompareDateRange()
	if err != nil {
		o.dispatchError(req, sec, err, start, requestID)
		return nil, err
	}

	var result *Result
	if multi {
		result, err = o.executeCompareDateRange(ctx, req, td, sec, requestID)
	} else {
		result, err = o.executeSingle(ctx, req, sec, requestID)
	}
	if err != nil {
		o.dispatchError(req, sec, err, start, requestID)
		return nil, err
	}

	o.dispatch(lifecycle.Event{
		Category:  lifecycle.QueryEnd,
		Query:     req,
		UserID:    userID(sec),
		ElapsedMS: time.Since(start).Milliseconds(),
		RowCount:  result.Meta.RowCount,
		Status:    "ok",
		RequestID: requestID,
	})
	return result, nil
}

// ExecuteBlending runs every request in reqs independently and
// concurrently, preserving the caller's order in the response; no
// cross-query correlation is attempted, matching a blending-array
// request's semantics.
func (o *Orchestrator) ExecuteBlending(ctx context.Context, reqs []*query.Request, sec *query.SecurityContext) (*BlendingResult, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			res, err := o.Execute(gctx, r, sec)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &BlendingResult{Data: results, BlendingQuery: true}, nil
}

// executeCompareDateRange clones req once per range in td's
// CompareDateRange, runs each clone through the single-query path
// concurrently, and concatenates the rows, tagging each with
// _compareDateRange.
func (o *Orchestrator) executeCompareDateRange(ctx context.Context, req *query.Request, td *query.TimeDimension, sec *query.SecurityContext, requestID string) (*Result, error) {
	ranges := td.CompareDateRange
	partials := make([]*Result, len(ranges))
	tags := make([]string, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			clone := cloneForRange(req, td.Dimension, r)
			res, err := o.executeSingle(gctx, clone, sec, requestID)
			if err != nil {
				return err
			}
			partials[i] = res
			tags[i] = fmt.Sprintf("%s to %s", r.Start, r.End)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &Result{Meta: Meta{CompareDateRange: true}}
	for i, res := range partials {
		for _, row := range res.Data {
			row["_compareDateRange"] = tags[i]
			merged.Data = append(merged.Data, row)
		}
		merged.Meta.RowCount += res.Meta.RowCount
		merged.Meta.QueryCost += res.Meta.QueryCost
		merged.Meta.ExecutionTimeMS += res.Meta.ExecutionTimeMS
		merged.Meta.PreAggregationUsed = merged.Meta.PreAggregationUsed || res.Meta.PreAggregationUsed
	}
	return merged, nil
}

// cloneForRange copies req and points the named time dimension at one
// concrete date range, clearing compare_date_range on the clone —
// the per-range request the fan-out actually executes.
func cloneForRange(req *query.Request, dimension string, r query.DateRange) *query.Request {
	out := *req
	out.TimeDimensions = append([]query.TimeDimension{}, req.TimeDimensions...)
	for i := range out.TimeDimensions {
		if out.TimeDimensions[i].Dimension == dimension {
			rangeCopy := r
			out.TimeDimensions[i].DateRange = &rangeCopy
			out.TimeDimensions[i].CompareDateRange = nil
		}
	}
	return &out
}

// executeSingle runs the optimizer, pre-aggregation matcher, cache
// lookup, and (on a miss) compile/execute/format/store steps for one
// request with no compareDateRange fan-out.
func (o *Orchestrator) executeSingle(ctx context.Context, req *query.Request, sec *query.SecurityContext, requestID string) (*Result, error) {
	start := time.Now()
	optimized := optimize.Optimize(req)
	if optimized.IsEmpty() {
		return nil, cubederr.Query("request selects no dimensions, measures, or time granularity")
	}
	cubes := optimized.ReferencedCubes()
	if len(cubes) == 0 {
		return nil, cubederr.Query("request references no cube")
	}
	primary := cubes[0]

	var overrides map[string]string
	preAggUsed := false
	if o.preaggs != nil {
		if d, ok := o.preaggs.Match(primary, optimized); ok {
			if o.rollupReady(ctx, d) {
				overrides = preagg.TableOverride(d)
				preAggUsed = true
				o.dispatch(lifecycle.Event{Category: lifecycle.PreAggUsed, Query: optimized, UserID: userID(sec)})
			} else {
				o.dispatch(lifecycle.Event{
					Category: lifecycle.PreAggSkipped,
					Reason:   fmt.Sprintf("rollup table for %s/%s is not yet populated", d.Cube, d.Name),
					Query:    optimized,
					UserID:   userID(sec),
				})
			}
		}
	}

	key := cachekey.Generate(optimized, sec, o.schema.Version)

	if o.store != nil {
		if cached, ok, err := o.store.Get(ctx, key); err == nil && ok {
			var result Result
			if err := json.Unmarshal(cached, &result); err == nil {
				result.Meta.CacheHit = true
				result.Meta.ExecutionTimeMS = time.Since(start).Milliseconds()
				o.dispatch(lifecycle.Event{Category: lifecycle.CacheHit, Query: optimized, UserID: userID(sec)})
				return &result, nil
			}
		}
		o.dispatch(lifecycle.Event{Category: lifecycle.CacheMiss, Query: optimized, UserID: userID(sec)})
	}

	var dropped []string
	built, err := sqlbuild.Build(o.schema, optimized, sqlbuild.Options{
		TableOverrides: overrides,
		OnDroppedOrderBy: func(field string) {
			dropped = append(dropped, field)
		},
	})
	if err != nil {
		return nil, err
	}

	rows, err := o.conn.Query(ctx, built.SQL)
	if err != nil {
		return nil, cubederr.Execution(err, "executing compiled query")
	}
	data := resultfmt.FormatRows(rows)
	elapsed := time.Since(start).Milliseconds()

	for _, field := range dropped {
		o.dispatch(lifecycle.Event{
			Category: lifecycle.CustomEvent,
			Name:     "order_by_dropped",
			Data:     map[string]any{"field": field},
			Query:    optimized,
			UserID:   userID(sec),
		})
	}

	result := &Result{
		Data: data,
		Meta: Meta{
			ExecutionTimeMS:    elapsed,
			RowCount:           len(data),
			CacheHit:           false,
			PreAggregationUsed: preAggUsed,
			QueryCost:          optimize.Cost(optimized, len(cubes)),
			SQL:                built.SQL,
		},
	}

	if o.store != nil {
		if payload, err := json.Marshal(result); err == nil {
			_ = o.store.Set(ctx, key, payload, o.ttl)
		}
	}

	o.dispatch(lifecycle.Event{Category: lifecycle.SQLGenerated, SQL: built.SQL, ElapsedMS: elapsed, Query: optimized, UserID: userID(sec), RequestID: requestID})
	return result, nil
}

// rollupReady probes a matched pre-aggregation's rollup table with a
// cheap existence query — a definition can be registered in the
// schema before its scheduler has ever populated the table.
func (o *Orchestrator) rollupReady(ctx context.Context, d *schema.PreAggregation) bool {
	if o.conn == nil {
		return false
	}
	_, err := o.conn.Query(ctx, "SELECT 1 FROM "+preagg.RollupTable(d)+" LIMIT 1")
	return err == nil
}

func (o *Orchestrator) dispatch(e lifecycle.Event) {
	if o.manager == nil {
		return
	}
	_ = o.manager.Dispatch(e)
}

func (o *Orchestrator) dispatchError(req *query.Request, sec *query.SecurityContext, err error, start time.Time, requestID string) {
	o.dispatch(lifecycle.Event{
		Category:  lifecycle.QueryError,
		Query:     req,
		UserID:    userID(sec),
		ElapsedMS: time.Since(start).Milliseconds(),
		Status:    "error",
		Err:       err,
		RequestID: requestID,
	})
}

func userID(sec *query.SecurityContext) string {
	if sec == nil {
		return ""
	}
	return sec.UserID
}
