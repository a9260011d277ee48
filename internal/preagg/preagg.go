// Package preagg matches incoming requests against registered
// pre-aggregation definitions and rewrites a compile to target the
// persisted rollup table instead of the live tables. Matching and
// rewrite are grounded on PreAggregationManager.find_matching_pre_aggregation
// and SQLBuilder.build's table-substitution trick; the refresh scheduler
// below is grounded on internal/storage/dolt/watchdog.go's
// ticker-plus-backoff long-lived loop shape.
package preagg

import (
	"strings"

	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
)

// Registry holds every pre-aggregation definition the schema declares,
// keyed by (cube, name) so two cubes may reuse the same definition name.
type Registry struct {
	defs map[string]*schema.PreAggregation
}

// NewRegistry builds a Registry from every PreAggregation every cube in
// s declares.
func NewRegistry(s *schema.Schema) *Registry {
	r := &Registry{defs: make(map[string]*schema.PreAggregation)}
	for _, cubeName := range s.CubeNames() {
		c, _ := s.Cube(cubeName)
		for _, d := range c.PreAggregations {
			r.defs[key(d.Cube, d.Name)] = d
		}
	}
	return r
}

func key(cube, name string) string { return cube + "/" + name }

// Match returns the first registered definition whose cube matches the
// request's primary cube and whose dimension set, measure set, and (if
// the request carries a time granularity) time dimension and
// granularity are all supersets of what the request asks for. The
// iteration order is lexical on the "cube/name" registry key, so a
// schema that registers two candidate definitions always picks the
// same one.
func (r *Registry) Match(primaryCube string, req *query.Request) (*schema.PreAggregation, bool) {
	reqDims := fieldNames(req.Dimensions, primaryCube)
	reqMeasures := fieldNames(req.Measures, primaryCube)

	var reqTimeDim, reqGranularity string
	for _, td := range req.TimeDimensions {
		if td.Granularity == "" {
			continue
		}
		cube, name := query.SplitField(td.Dimension)
		if cube != primaryCube {
			continue
		}
		reqTimeDim = name
		reqGranularity = string(td.Granularity)
		break
	}

	for _, k := range sortedKeys(r.defs) {
		d := r.defs[k]
		if d.Cube != primaryCube {
			continue
		}
		if !supersetOf(d.Dimensions, reqDims) || !supersetOf(d.Measures, reqMeasures) {
			continue
		}
		if reqGranularity != "" {
			if d.TimeDimension != reqTimeDim || !ExpandsGranularities(d.Granularity, reqGranularity) {
				continue
			}
		}
		return d, true
	}
	return nil, false
}

func fieldNames(fields []string, cube string) []string {
	var out []string
	for _, f := range fields {
		c, name := query.SplitField(f)
		if c == cube {
			out = append(out, name)
		}
	}
	return out
}

func supersetOf(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]*schema.PreAggregation) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// cube names and definition names are both ASCII identifiers from
	// YAML keys; a plain byte sort is a stable, deterministic order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// RollupTable returns the physical table name a matched definition's
// persisted rollup lives under, in the pre_aggregations schema.
func RollupTable(d *schema.PreAggregation) string {
	return "pre_aggregations." + d.Cube + "_" + d.Name
}

// TableOverride returns the single-entry override map sqlbuild.Options
// needs to redirect the builder's FROM/JOIN target at d's rollup table
// for exactly one compile, leaving the schema's own Cube.Table field
// untouched.
func TableOverride(d *schema.PreAggregation) map[string]string {
	return map[string]string{d.Cube: RollupTable(d)}
}

// rollupRequest builds the plain aggregation request a pre-aggregation
// definition's own dimension/measure selection describes, qualified
// against its owning cube, for compiling the SQL that populates its
// rollup table.
func rollupRequest(d *schema.PreAggregation) *query.Request {
	req := &query.Request{
		Dimensions: qualify(d.Cube, d.Dimensions),
		Measures:   qualify(d.Cube, d.Measures),
	}
	if d.TimeDimension != "" {
		req.TimeDimensions = []query.TimeDimension{{
			Dimension:   d.Cube + "." + d.TimeDimension,
			Granularity: query.Granularity(d.Granularity),
		}}
	}
	return req
}

func qualify(cube string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = cube + "." + n
	}
	return out
}

// ExpandsGranularities reports whether candidate granularity g can serve
// a request asking for requested, for the coarser-serves-finer direction
// day/week/month/quarter/year only ever goes one way: a daily rollup
// cannot serve a monthly request and a monthly rollup cannot serve a
// daily one, so matching requires an exact granularity match — kept as
// a named predicate since the orchestrator log around a miss should
// name this rule explicitly rather than inline string equality.
func ExpandsGranularities(candidate, requested string) bool {
	return strings.EqualFold(candidate, requested)
}
