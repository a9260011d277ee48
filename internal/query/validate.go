package query

import (
	"strings"

	"github.com/cubedlayer/cubed/internal/cubederr"
)

// Validate checks AST-level invariants that don't require a schema:
// non-empty request, well-formed "cube.field" references, and
// structurally valid logical filters.
func (r *Request) Validate() error {
	if r.IsEmpty() {
		return cubederr.Query("request has no dimensions, measures, or time-granularity")
	}
	for _, d := range r.Dimensions {
		if !isQualified(d) {
			return cubederr.Query("dimension %q is not a cube-qualified field", d)
		}
	}
	for _, m := range r.Measures {
		if !isQualified(m) {
			return cubederr.Query("measure %q is not a cube-qualified field", m)
		}
	}
	for _, f := range r.Filters {
		if err := validateFilter(f); err != nil {
			return err
		}
	}
	for _, f := range r.MeasureFilters {
		if err := validateFilter(f); err != nil {
			return err
		}
	}
	if _, _, err := r.SingleCompareDateRange(); err != nil {
		return err
	}
	return nil
}

func validateFilter(f Filter) error {
	switch n := f.(type) {
	case *LeafFilter:
		if !isQualified(n.Field) {
			return cubederr.Query("filter field %q is not a cube-qualified field", n.Field)
		}
		if len(n.Values) == 0 && n.Operator != OpSet && n.Operator != OpNotSet {
			return cubederr.Query("filter on %q requires at least one value", n.Field)
		}
		if n.Operator == OpInDateRange && len(n.Values) != 2 {
			return cubederr.Query("in_date_range on %q requires exactly two values", n.Field)
		}
		return nil
	case *LogicalFilter:
		if n.Kind != LogicalAnd && n.Kind != LogicalOr {
			return cubederr.Query("logical filter has unknown kind %q", n.Kind)
		}
		if len(n.Children) == 0 {
			return cubederr.Query("logical filter has no children")
		}
		for _, c := range n.Children {
			if err := validateFilter(c); err != nil {
				return err
			}
		}
		return nil
	default:
		return cubederr.Query("unrecognized filter node %T", f)
	}
}

func isQualified(field string) bool {
	idx := strings.IndexByte(field, '.')
	return idx > 0 && idx < len(field)-1
}

// SplitField splits a "cube.field" reference. Caller must have already
// validated the field is qualified.
func SplitField(field string) (cube, name string) {
	idx := strings.IndexByte(field, '.')
	return field[:idx], field[idx+1:]
}
