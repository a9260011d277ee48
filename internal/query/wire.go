// Wire decoding for the JSON request format spec §6 defines. Transport
// itself is an external collaborator, but the shape of a query or a
// cube-file filter is core: this is the one place a "cube.field" leaf
// or an {or:[...]}/{and:[...]} node turns into the Filter sum type, and
// a dateRange string ("last 7 days") turns into an absolute range via
// internal/dateparse. A caller that already has its own JSON decoding
// (a test harness, a future transport) can call DecodeRequest directly
// instead of wiring encoding/json itself.
package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/dateparse"
)

type wireFilter struct {
	Member    string          `json:"member"`
	Dimension string          `json:"dimension"`
	Operator  string          `json:"operator"`
	Values    []string        `json:"values"`
	Or        json.RawMessage `json:"or"`
	And       json.RawMessage `json:"and"`
}

// decodeFilter turns one raw JSON filter object into a Filter node. A
// node with both "or" and "and" set, or neither a field/member nor a
// logical key, is a QueryError — this is AST-level malformation, not a
// transport concern.
func decodeFilter(raw json.RawMessage) (Filter, error) {
	var w wireFilter
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decoding filter: %w", err)
	}
	if len(w.Or) > 0 && len(w.And) > 0 {
		return nil, cubederr.Query("filter has both %q and %q keys", "or", "and")
	}
	if len(w.Or) > 0 {
		children, err := decodeFilterList(w.Or)
		if err != nil {
			return nil, err
		}
		return &LogicalFilter{Kind: LogicalOr, Children: children}, nil
	}
	if len(w.And) > 0 {
		children, err := decodeFilterList(w.And)
		if err != nil {
			return nil, err
		}
		return &LogicalFilter{Kind: LogicalAnd, Children: children}, nil
	}
	field := w.Member
	if field == "" {
		field = w.Dimension
	}
	if field == "" {
		return nil, cubederr.Query("filter has neither a field reference nor a logical key")
	}
	return &LeafFilter{Field: field, Operator: Operator(w.Operator), Values: w.Values}, nil
}

func decodeFilterList(raw json.RawMessage) ([]Filter, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding filter list: %w", err)
	}
	out := make([]Filter, 0, len(items))
	for _, item := range items {
		f, err := decodeFilter(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// encodeFilter is the inverse of decodeFilter, used by Request's
// EchoJSON (the orchestrator round-trips a Result, not a Request,
// through the cache, but tests and a future transport want a faithful
// echo of "meta.query").
func encodeFilter(f Filter) (any, error) {
	switch n := f.(type) {
	case *LeafFilter:
		return map[string]any{
			"member":   n.Field,
			"operator": string(n.Operator),
			"values":   n.Values,
		}, nil
	case *LogicalFilter:
		children := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			enc, err := encodeFilter(c)
			if err != nil {
				return nil, err
			}
			children = append(children, enc)
		}
		key := "and"
		if n.Kind == LogicalOr {
			key = "or"
		}
		return map[string]any{key: children}, nil
	default:
		return nil, fmt.Errorf("unrecognized filter node %T", f)
	}
}

type wireDateRange struct {
	raw json.RawMessage
}

func (w *wireDateRange) UnmarshalJSON(data []byte) error {
	w.raw = append(json.RawMessage{}, data...)
	return nil
}

// resolve normalizes a dateRange value — an ISO-date pair, a single ISO
// date (both endpoints equal), or a relative phrase like "last 7 days"
// — into an absolute DateRange, per spec §4.2's "any value already an
// ISO date or a [start,end] pair is returned unchanged".
func (w *wireDateRange) resolve(now time.Time) (*DateRange, error) {
	if w == nil || len(w.raw) == 0 || string(w.raw) == "null" {
		return nil, nil
	}
	var pair [2]string
	if err := json.Unmarshal(w.raw, &pair); err == nil {
		if err := dateparse.Validate(pair[0], pair[1]); err != nil {
			return nil, err
		}
		return &DateRange{Start: pair[0], End: pair[1]}, nil
	}
	var phrase string
	if err := json.Unmarshal(w.raw, &phrase); err != nil {
		return nil, fmt.Errorf("dateRange must be a string or a [start,end] pair: %w", err)
	}
	r, err := dateparse.Parse(phrase, now)
	if err != nil {
		return nil, err
	}
	return &DateRange{Start: r.Start, End: r.End}, nil
}

type wireTimeDimension struct {
	Dimension        string          `json:"dimension"`
	Granularity      string          `json:"granularity"`
	DateRange        *wireDateRange  `json:"dateRange"`
	CompareDateRange []wireDateRange `json:"compareDateRange"`
}

type wireOrderBy struct {
	Dimension string `json:"dimension"`
	Direction string `json:"direction"`
}

type wireCTE struct {
	Alias string `json:"alias"`
	Query string `json:"query"`
}

type wireRequest struct {
	Dimensions     []string            `json:"dimensions"`
	Measures       []string            `json:"measures"`
	Filters        []json.RawMessage   `json:"filters"`
	MeasureFilters []json.RawMessage   `json:"measureFilters"`
	TimeDimensions []wireTimeDimension `json:"timeDimensions"`
	OrderBy        []wireOrderBy       `json:"order_by"`
	Limit          int                 `json:"limit"`
	Offset         int                 `json:"offset"`
	CTEs           []wireCTE           `json:"ctes"`
}

// DecodeRequest parses one request body per spec §6's wire format,
// resolving every dateRange/compareDateRange entry against now. now is
// a parameter (not time.Now()) so decoding stays deterministic in
// tests and across the compareDateRange fan-out.
func DecodeRequest(data []byte, now time.Time) (*Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return w.toRequest(now)
}

func (w *wireRequest) toRequest(now time.Time) (*Request, error) {
	req := &Request{
		Dimensions: w.Dimensions,
		Measures:   w.Measures,
		Limit:      w.Limit,
		Offset:     w.Offset,
	}
	for _, raw := range w.Filters {
		f, err := decodeFilter(raw)
		if err != nil {
			return nil, err
		}
		req.Filters = append(req.Filters, f)
	}
	for _, raw := range w.MeasureFilters {
		f, err := decodeFilter(raw)
		if err != nil {
			return nil, err
		}
		req.MeasureFilters = append(req.MeasureFilters, f)
	}
	for _, td := range w.TimeDimensions {
		out := TimeDimension{Dimension: td.Dimension, Granularity: Granularity(td.Granularity)}
		dr, err := td.DateRange.resolve(now)
		if err != nil {
			return nil, err
		}
		out.DateRange = dr
		for _, cdr := range td.CompareDateRange {
			cdr := cdr
			r, err := cdr.resolve(now)
			if err != nil {
				return nil, err
			}
			if r != nil {
				out.CompareDateRange = append(out.CompareDateRange, *r)
			}
		}
		req.TimeDimensions = append(req.TimeDimensions, out)
	}
	for _, ob := range w.OrderBy {
		req.OrderBy = append(req.OrderBy, OrderBy{Field: ob.Dimension, Direction: OrderDirection(ob.Direction)})
	}
	for _, c := range w.CTEs {
		req.CTEs = append(req.CTEs, CTE{Alias: c.Alias, Body: c.Query})
	}
	return req, nil
}

// wireSecurityContext mirrors original_source's SecurityContext field
// names (user_id, tenant_id) for wire compatibility with the
// out-of-scope transport layer, per SPEC_FULL §12.
type wireSecurityContext struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// DecodeSecurityContext parses the authenticated-caller object a
// transport layer would have already validated and attached to the
// request (token decoding itself is out of scope per spec §1).
func DecodeSecurityContext(data []byte) (*SecurityContext, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var w wireSecurityContext
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding security context: %w", err)
	}
	return &SecurityContext{
		UserID:      w.UserID,
		TenantID:    w.TenantID,
		Roles:       w.Roles,
		Permissions: w.Permissions,
	}, nil
}

// EchoJSON renders r the way meta.query echoes the original request
// back to the caller (spec §6's response shape).
func (r *Request) EchoJSON() (json.RawMessage, error) {
	out := map[string]any{
		"dimensions": orEmpty(r.Dimensions),
		"measures":   orEmpty(r.Measures),
		"limit":      r.Limit,
		"offset":     r.Offset,
	}
	filters, err := encodeFilterList(r.Filters)
	if err != nil {
		return nil, err
	}
	out["filters"] = filters
	measureFilters, err := encodeFilterList(r.MeasureFilters)
	if err != nil {
		return nil, err
	}
	out["measureFilters"] = measureFilters

	tds := make([]map[string]any, 0, len(r.TimeDimensions))
	for _, td := range r.TimeDimensions {
		entry := map[string]any{"dimension": td.Dimension}
		if td.Granularity != "" {
			entry["granularity"] = string(td.Granularity)
		}
		if td.DateRange != nil {
			entry["dateRange"] = []string{td.DateRange.Start, td.DateRange.End}
		}
		if len(td.CompareDateRange) > 0 {
			ranges := make([][]string, 0, len(td.CompareDateRange))
			for _, cdr := range td.CompareDateRange {
				ranges = append(ranges, []string{cdr.Start, cdr.End})
			}
			entry["compareDateRange"] = ranges
		}
		tds = append(tds, entry)
	}
	out["timeDimensions"] = tds

	obs := make([]map[string]any, 0, len(r.OrderBy))
	for _, ob := range r.OrderBy {
		obs = append(obs, map[string]any{"dimension": ob.Field, "direction": string(ob.Direction)})
	}
	out["order_by"] = obs

	ctes := make([]map[string]any, 0, len(r.CTEs))
	for _, c := range r.CTEs {
		ctes = append(ctes, map[string]any{"alias": c.Alias, "query": c.Body})
	}
	out["ctes"] = ctes

	return json.Marshal(out)
}

func encodeFilterList(filters []Filter) ([]any, error) {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		enc, err := encodeFilter(f)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
