// Package optimize applies pre-compile request normalization:
// dimension/measure/order-by dedup and a coarse cost estimate carried
// as response metadata. It ports optimizer.py's dedup and cost formula
// verbatim in semantics; there is no constant folding or filter
// rewriting yet — currently only a pass-through collation.
package optimize

import "github.com/cubedlayer/cubed/internal/query"

// Optimize returns a normalized copy of r: duplicate dimensions and
// measures removed (first occurrence wins), order_by deduplicated by
// (field, direction). The input is never mutated; Optimize is
// idempotent: optimize(optimize(Q)) == optimize(Q).
func Optimize(r *query.Request) *query.Request {
	out := *r
	out.Dimensions = dedupStrings(r.Dimensions)
	out.Measures = dedupStrings(r.Measures)
	out.OrderBy = dedupOrderBy(r.OrderBy)
	return &out
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupOrderBy(in []query.OrderBy) []query.OrderBy {
	if len(in) == 0 {
		return in
	}
	type key struct {
		field string
		dir   query.OrderDirection
	}
	seen := make(map[key]bool, len(in))
	out := make([]query.OrderBy, 0, len(in))
	for _, ob := range in {
		k := key{ob.Field, ob.Direction}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ob)
	}
	return out
}

// countFilters counts every leaf in a filter tree, recursively through
// logical nodes, so a deeply nested filter still contributes its real
// weight to the cost estimate.
func countFilters(filters []query.Filter) int {
	n := 0
	var walk func(f query.Filter)
	walk = func(f query.Filter) {
		switch v := f.(type) {
		case *query.LeafFilter:
			n++
		case *query.LogicalFilter:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	for _, f := range filters {
		walk(f)
	}
	return n
}

// Cost estimates a coarse integer cost for response metadata only:
// base 10 + 2*|dims| + 5*|measures| + 3*|filters| + 20*max(0,
// |cubes|-1).
func Cost(r *query.Request, cubeCount int) int {
	filterCount := countFilters(r.Filters) + countFilters(r.MeasureFilters)
	joinPenalty := 0
	if cubeCount > 1 {
		joinPenalty = 20 * (cubeCount - 1)
	}
	return 10 + 2*len(r.Dimensions) + 5*len(r.Measures) + 3*filterCount + joinPenalty
}
