package lifecycle

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingObserver opens one OTel span per query_start and ends it on
// the matching query_end or query_error, keyed by Event.RequestID. It
// is additive, not a replacement for the callback manager: register it
// alongside LogObserver/MetricsObserver and every event still reaches
// them too. With no tracer provider configured, tracer.Start returns a
// no-op span and this observer costs a map lookup per event.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingObserver wraps tracer, typically obtained from
// otel.Tracer("cubed") against whatever global TracerProvider the
// embedder configured (or the default no-op one).
func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{tracer: tracer, spans: make(map[string]trace.Span)}
}

func (t *TracingObserver) ID() string { return "builtin.tracing" }

func (t *TracingObserver) Categories() []Category {
	return []Category{QueryStart, QueryEnd, QueryError, SQLGenerated}
}

func (t *TracingObserver) Reraise() bool { return false }

func (t *TracingObserver) Handle(e Event) error {
	switch e.Category {
	case QueryStart:
		if e.RequestID == "" {
			return nil
		}
		_, span := t.tracer.Start(context.Background(), "cubed.query")
		span.SetAttributes(attribute.String("cubed.user_id", e.UserID))
		t.mu.Lock()
		t.spans[e.RequestID] = span
		t.mu.Unlock()
	case SQLGenerated:
		if span, ok := t.span(e.RequestID); ok {
			span.SetAttributes(attribute.String("cubed.sql", e.SQL))
		}
	case QueryEnd:
		if span, ok := t.takeSpan(e.RequestID); ok {
			span.SetAttributes(
				attribute.Int64("cubed.elapsed_ms", e.ElapsedMS),
				attribute.Int("cubed.row_count", e.RowCount),
			)
			span.SetStatus(codes.Ok, "")
			span.End()
		}
	case QueryError:
		if span, ok := t.takeSpan(e.RequestID); ok {
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}
	}
	return nil
}

func (t *TracingObserver) span(requestID string) (trace.Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := t.spans[requestID]
	return span, ok
}

func (t *TracingObserver) takeSpan(requestID string) (trace.Span, bool) {
	if requestID == "" {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := t.spans[requestID]
	if ok {
		delete(t.spans, requestID)
	}
	return span, ok
}
