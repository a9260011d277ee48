package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/joinplan"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/rls"
	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/sqlfilter"
)

// buildSelect returns the SELECT list — dimensions, then granular time
// dimensions, then measures — and the subset of those expressions that
// belong in GROUP BY (every non-aggregated one).
func (b *builder) buildSelect(r *query.Request) ([]string, []string, error) {
	var items []string
	var groupBy []string

	for _, field := range r.Dimensions {
		expr, _, err := b.resolveDimension(field)
		if err != nil {
			return nil, nil, err
		}
		alias := strings.Replace(field, ".", "_", 1)
		items = append(items, fmt.Sprintf("%s AS %s", expr, alias))
		groupBy = append(groupBy, expr)
	}

	for _, td := range r.TimeDimensions {
		if td.Granularity == "" {
			continue
		}
		expr, _, err := b.resolveDimension(td.Dimension)
		if err != nil {
			return nil, nil, err
		}
		truncated := b.dialect.Truncate(string(td.Granularity), expr)
		alias := strings.Replace(td.Dimension, ".", "_", 1) + "_" + string(td.Granularity)
		items = append(items, fmt.Sprintf("%s AS %s", truncated, alias))
		groupBy = append(groupBy, truncated)
	}

	for _, field := range r.Measures {
		expr, _, err := b.resolveMeasure(field)
		if err != nil {
			return nil, nil, err
		}
		alias := strings.Replace(field, ".", "_", 1)
		items = append(items, fmt.Sprintf("%s AS %s", expr, alias))
	}

	if len(items) == 0 {
		return nil, nil, cubederr.Query("request selects no dimensions, time dimensions, or measures")
	}
	return items, groupBy, nil
}

// writeJoins appends one LEFT JOIN clause per hop in the plan, in
// path-length order, inverting the ON condition for reverse-traversed
// edges.
func (b *builder) writeJoins(sb *strings.Builder) {
	for _, hop := range b.plan.Hops {
		leftAlias := b.plan.Alias(hop.FromCube)
		rightAlias := b.plan.Alias(hop.ToCube)
		table := b.tableFor(hop.ToCube)

		var on string
		switch {
		case hop.Direction == joinplan.Forward && hop.Rel.Kind == schema.BelongsTo:
			on = fmt.Sprintf("%s.%s = %s.%s", leftAlias, hop.Rel.ForeignKey, rightAlias, hop.Rel.PrimaryKey)
		case hop.Direction == joinplan.Forward:
			on = fmt.Sprintf("%s.%s = %s.%s", leftAlias, hop.Rel.PrimaryKey, rightAlias, hop.Rel.ForeignKey)
		case hop.Direction == joinplan.Reverse && hop.Rel.Kind == schema.BelongsTo:
			on = fmt.Sprintf("%s.%s = %s.%s", leftAlias, hop.Rel.PrimaryKey, rightAlias, hop.Rel.ForeignKey)
		default: // reverse of has_one/has_many
			on = fmt.Sprintf("%s.%s = %s.%s", leftAlias, hop.Rel.ForeignKey, rightAlias, hop.Rel.PrimaryKey)
		}

		sb.WriteString(fmt.Sprintf("\nLEFT JOIN %s AS %s ON %s", table, rightAlias, on))
	}
}

// buildWhere conjoins top-level request filters, per-time-dimension
// date-range predicates, and row-level-security predicates.
func (b *builder) buildWhere(r *query.Request, cubes []string) ([]string, error) {
	var clauses []string

	for _, f := range r.Filters {
		rendered, err := sqlfilter.Render(f, b.resolveDimension)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, rendered)
	}

	for _, td := range r.TimeDimensions {
		if td.DateRange == nil {
			continue
		}
		expr, _, err := b.resolveDimension(td.Dimension)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s >= '%s' AND %s <= '%s'", expr, td.DateRange.Start, expr, td.DateRange.End))
	}

	for _, pred := range rls.Predicates(b.schema, cubes, b.plan.Alias, r.Security) {
		clauses = append(clauses, pred.SQL)
	}

	return clauses, nil
}

// buildHaving renders measure_filters against the HAVING-side resolver.
func (b *builder) buildHaving(r *query.Request) ([]string, error) {
	var clauses []string
	for _, f := range r.MeasureFilters {
		rendered, err := sqlfilter.Render(f, b.resolveMeasure)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, rendered)
	}
	return clauses, nil
}

// buildOrderBy resolves each order_by entry first as a dimension, then
// as a measure; an entry resolving to neither is silently dropped, with
// onDropped (if set) notified so the caller can still surface a
// lifecycle warning.
func (b *builder) buildOrderBy(r *query.Request, onDropped func(string)) ([]string, error) {
	var out []string
	for _, ob := range r.OrderBy {
		expr, _, err := b.resolveDimension(ob.Field)
		if err != nil {
			expr, _, err = b.resolveMeasure(ob.Field)
		}
		if err != nil {
			if onDropped != nil {
				onDropped(ob.Field)
			}
			continue
		}
		dir := "ASC"
		if ob.Direction == query.OrderDesc {
			dir = "DESC"
		}
		out = append(out, fmt.Sprintf("%s %s", expr, dir))
	}
	return out, nil
}

// writeCTEs prepends a WITH clause for every request-supplied CTE,
// verbatim — their text is user-provided SQL, not re-parsed or
// validated by the compiler.
func (b *builder) writeCTEs(sb *strings.Builder, ctes []query.CTE) {
	if len(ctes) == 0 {
		return
	}
	parts := make([]string, len(ctes))
	for i, c := range ctes {
		parts[i] = fmt.Sprintf("%s AS (%s)", c.Alias, c.Body)
	}
	sb.WriteString("WITH ")
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString("\n")
}
