package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// allCategories is every event category a built-in observer typically
// subscribes to; both built-ins below want the whole vocabulary.
var allCategories = []Category{
	QueryStart, QueryEnd, QueryError, CacheHit, CacheMiss,
	PreAggUsed, PreAggSkipped, SQLGenerated, CustomEvent,
}

// LogObserver writes one structured log record per lifecycle event —
// request, timing, user id, SQL, and status — using go.uber.org/zap.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver wraps an existing zap.Logger.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) ID() string             { return "builtin.log" }
func (l *LogObserver) Categories() []Category { return allCategories }
func (l *LogObserver) Reraise() bool          { return false }

func (l *LogObserver) Handle(e Event) error {
	fields := []zap.Field{
		zap.String("category", string(e.Category)),
		zap.String("user_id", e.UserID),
		zap.Int64("elapsed_ms", e.ElapsedMS),
		zap.Int("row_count", e.RowCount),
		zap.String("status", e.Status),
	}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	if e.SQL != "" {
		fields = append(fields, zap.String("sql", e.SQL))
	}
	if e.Name != "" {
		fields = append(fields, zap.String("name", e.Name))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
		l.logger.Warn("query event", fields...)
		return nil
	}
	l.logger.Info("query event", fields...)
	return nil
}

// statusKey is the attribute key the queries-by-status counter is
// partitioned by.
const statusKey = attribute.Key("status")

// MetricsObserver records query counts, cache hits/misses, pre-
// aggregation uses, and a query-duration histogram through
// go.opentelemetry.io/otel/metric instruments — the same
// Int64Counter/Float64Histogram instrumentation the teacher's dolt
// storage backend uses for retry counts and lock-wait times
// (internal/storage/dolt/store.go's doltMetrics, access_lock.go's
// lockWaitMs). NewMetricsObserver builds its own SDK MeterProvider
// backed by a manual reader, so Snapshot can report current values
// without standing up a push exporter (none is wired here, see
// DESIGN.md); an embedder that wants these instruments to also reach a
// real collector can ignore Snapshot and point its own MeterProvider
// at the same meter name instead.
type MetricsObserver struct {
	reader *sdkmetric.ManualReader

	queries     metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	preAggUses  metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetricsObserver returns a MetricsObserver with fresh instruments.
func NewMetricsObserver() *MetricsObserver {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/cubedlayer/cubed")

	m := &MetricsObserver{reader: reader}
	m.queries, _ = meter.Int64Counter("cubed.queries",
		metric.WithDescription("queries completed, partitioned by status"),
		metric.WithUnit("{query}"))
	m.cacheHits, _ = meter.Int64Counter("cubed.cache.hits",
		metric.WithDescription("cache lookups that hit"),
		metric.WithUnit("{hit}"))
	m.cacheMisses, _ = meter.Int64Counter("cubed.cache.misses",
		metric.WithDescription("cache lookups that missed"),
		metric.WithUnit("{miss}"))
	m.preAggUses, _ = meter.Int64Counter("cubed.preagg.uses",
		metric.WithDescription("requests rewritten against a pre-aggregation"),
		metric.WithUnit("{use}"))
	m.duration, _ = meter.Float64Histogram("cubed.query.duration_ms",
		metric.WithDescription("query execution time"),
		metric.WithUnit("ms"))
	return m
}

func (m *MetricsObserver) ID() string             { return "builtin.metrics" }
func (m *MetricsObserver) Categories() []Category { return allCategories }
func (m *MetricsObserver) Reraise() bool          { return false }

func (m *MetricsObserver) Handle(e Event) error {
	ctx := context.Background()
	switch e.Category {
	case QueryEnd:
		status := e.Status
		if status == "" {
			status = "ok"
		}
		m.queries.Add(ctx, 1, metric.WithAttributes(statusKey.String(status)))
		m.duration.Record(ctx, float64(e.ElapsedMS))
	case QueryError:
		m.queries.Add(ctx, 1, metric.WithAttributes(statusKey.String("error")))
	case CacheHit:
		m.cacheHits.Add(ctx, 1)
	case CacheMiss:
		m.cacheMisses.Add(ctx, 1)
	case PreAggUsed:
		m.preAggUses.Add(ctx, 1)
	}
	return nil
}

// Snapshot is a point-in-time copy of the counters, safe to read
// without further synchronization.
type Snapshot struct {
	QueriesByStatus map[string]int64
	CacheHits       int64
	CacheMisses     int64
	PreAggUses      int64
	DurationP50MS   int64
	DurationP99MS   int64
}

// Snapshot collects the current instrument values from the observer's
// manual reader.
func (m *MetricsObserver) Snapshot() Snapshot {
	ctx := context.Background()
	snap := Snapshot{QueriesByStatus: make(map[string]int64)}

	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return snap
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "cubed.queries":
				if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
					for _, dp := range sum.DataPoints {
						status := "ok"
						if v, ok := dp.Attributes.Value(statusKey); ok {
							status = v.AsString()
						}
						snap.QueriesByStatus[status] += dp.Value
					}
				}
			case "cubed.cache.hits":
				snap.CacheHits += sumInt64(met.Data)
			case "cubed.cache.misses":
				snap.CacheMisses += sumInt64(met.Data)
			case "cubed.preagg.uses":
				snap.PreAggUses += sumInt64(met.Data)
			case "cubed.query.duration_ms":
				if hist, ok := met.Data.(metricdata.Histogram[float64]); ok {
					snap.DurationP50MS, snap.DurationP99MS = histogramPercentiles(hist)
				}
			}
		}
	}
	return snap
}

func sumInt64(data metricdata.Aggregation) int64 {
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// histogramPercentiles approximates p50/p99 from the histogram's
// cumulative bucket counts (nearest-rank against the bucket's upper
// bound), since the SDK aggregates into fixed buckets rather than
// retaining individual samples.
func histogramPercentiles(h metricdata.Histogram[float64]) (p50, p99 int64) {
	for _, dp := range h.DataPoints {
		p50 = int64(bucketPercentile(dp, 0.50))
		p99 = int64(bucketPercentile(dp, 0.99))
	}
	return p50, p99
}

func bucketPercentile(dp metricdata.HistogramDataPoint[float64], p float64) float64 {
	if dp.Count == 0 {
		return 0
	}
	target := uint64(p * float64(dp.Count))
	var cumulative uint64
	for i, count := range dp.BucketCounts {
		cumulative += count
		if cumulative > target {
			if i < len(dp.Bounds) {
				return dp.Bounds[i]
			}
			break
		}
	}
	if len(dp.Bounds) > 0 {
		return dp.Bounds[len(dp.Bounds)-1]
	}
	return 0
}
