// Package sqlbuild assembles one SQL statement from a normalized
// request against a compiled schema: CTEs, SELECT, FROM, JOIN, WHERE,
// GROUP BY, HAVING, ORDER BY, LIMIT/OFFSET, in that fixed order, with
// GROUP BY elision when a primary key disambiguates rows. Grounded end
// to end on sql_builder.py's clause assembly order and
// `<cube>_<field>` alias naming; text assembly itself follows a plain
// strings.Builder style — no SQL AST library is pulled in, since
// generating text from an already-typed AST is template work, and
// user-supplied CTE bodies are never parsed, only concatenated.
package sqlbuild

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/joinplan"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
)

// fieldTokenPattern matches a "cube.field" reference inside a calculated
// measure's formula text.
var fieldTokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*`)

// Options configures one Build call. TableOverrides is the scoped,
// per-compile substitution the pre-aggregation rewrite uses instead of
// mutating a cube's Table field in place; it must be nil or freshly
// constructed per call — Build never retains it. OnDroppedOrderBy, if
// set, is invoked for every order_by entry that resolves to neither a
// dimension nor a measure, so the caller can still emit the lifecycle
// warning the orchestrator is responsible for.
type Options struct {
	TableOverrides   map[string]string
	Dialect          Dialect
	OnDroppedOrderBy func(field string)
}

// Result is one compiled statement plus the alias plan the caller (the
// pre-aggregation matcher, tests) may want to inspect.
type Result struct {
	SQL     string
	Aliases map[string]string
}

// Build compiles r against s into one SQL statement. The per-request
// CTE list and every other piece of state lives entirely in this
// call's locals — Build holds no fields of its own, so concurrent
// calls never share mutable state.
func Build(s *schema.Schema, r *query.Request, opts Options) (*Result, error) {
	dialect := opts.Dialect
	if dialect == nil {
		dialect = MySQLDialect{}
	}

	cubes := r.ReferencedCubes()
	if len(cubes) == 0 {
		return nil, cubederr.Query("request references no cube")
	}
	primary := cubes[0]
	if _, ok := s.Cube(primary); !ok {
		return nil, cubederr.Query("unknown cube %q", primary)
	}

	plan, err := joinplan.Build(s.Graph(), primary, cubes[1:])
	if err != nil {
		return nil, err
	}

	b := &builder{schema: s, plan: plan, overrides: opts.TableOverrides, dialect: dialect}

	selectItems, groupByExprs, err := b.buildSelect(r)
	if err != nil {
		return nil, err
	}

	elideGroupBy := len(r.Measures) == 0 && len(plan.Hops) == 0 && b.primaryKeySelected(r)

	where, err := b.buildWhere(r, cubes)
	if err != nil {
		return nil, err
	}
	having, err := b.buildHaving(r)
	if err != nil {
		return nil, err
	}
	orderBy, err := b.buildOrderBy(r, opts.OnDroppedOrderBy)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	b.writeCTEs(&sb, r.CTEs)
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectItems, ", "))
	sb.WriteString("\nFROM ")
	sb.WriteString(fmt.Sprintf("%s AS %s", b.tableFor(primary), plan.Alias(primary)))
	b.writeJoins(&sb)

	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if !elideGroupBy && len(groupByExprs) > 0 {
		sb.WriteString("\nGROUP BY ")
		sb.WriteString(strings.Join(groupByExprs, ", "))
	}
	if len(having) > 0 {
		sb.WriteString("\nHAVING ")
		sb.WriteString(strings.Join(having, " AND "))
	}
	if len(orderBy) > 0 {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(strings.Join(orderBy, ", "))
	}
	if r.Limit > 0 {
		sb.WriteString(fmt.Sprintf("\nLIMIT %d", r.Limit))
	}
	if r.Offset > 0 {
		sb.WriteString(fmt.Sprintf("\nOFFSET %d", r.Offset))
	}

	return &Result{SQL: sb.String(), Aliases: plan.Aliases}, nil
}

type builder struct {
	schema    *schema.Schema
	plan      *joinplan.Plan
	overrides map[string]string
	dialect   Dialect
}

func (b *builder) tableFor(cube string) string {
	c, _ := b.schema.Cube(cube)
	return c.TableName(b.overrides)
}

func (b *builder) primaryKeySelected(r *query.Request) bool {
	c, ok := b.schema.Cube(b.plan.Primary)
	if !ok {
		return false
	}
	pk, ok := c.PrimaryKeyDimension()
	if !ok {
		return false
	}
	want := b.plan.Primary + "." + pk.Name
	for _, d := range r.Dimensions {
		if d == want {
			return true
		}
	}
	return false
}

// resolveDimension returns the aliased SQL expression for a "cube.field"
// dimension reference, and whether that dimension is numerically typed.
func (b *builder) resolveDimension(field string) (string, bool, error) {
	cube, name := query.SplitField(field)
	c, ok := b.schema.Cube(cube)
	if !ok {
		return "", false, cubederr.Query("unknown cube %q", cube)
	}
	d, ok := c.GetDimension(name)
	if !ok {
		return "", false, cubederr.Query("unknown dimension %q on cube %q", name, cube)
	}
	alias := b.plan.Alias(cube)
	if alias == "" {
		return "", false, cubederr.Query("cube %q is not on the join plan", cube)
	}
	return qualify(alias, d.SQL), d.Type == schema.DimNumber, nil
}

// resolveMeasure returns the fully aggregated SQL expression for a
// "cube.field" measure reference (HAVING-side resolution).
func (b *builder) resolveMeasure(field string) (string, bool, error) {
	return b.resolveMeasureDepth(field, map[string]bool{})
}

func (b *builder) resolveMeasureDepth(field string, seen map[string]bool) (string, bool, error) {
	if seen[field] {
		return "", false, cubederr.Query("measure %q is part of a calculation cycle", field)
	}
	seen[field] = true

	cube, name := query.SplitField(field)
	c, ok := b.schema.Cube(cube)
	if !ok {
		return "", false, cubederr.Query("unknown cube %q", cube)
	}
	m, ok := c.GetMeasure(name)
	if !ok {
		return "", false, cubederr.Query("unknown measure %q on cube %q", name, cube)
	}
	alias := b.plan.Alias(cube)
	if alias == "" {
		return "", false, cubederr.Query("cube %q is not on the join plan", cube)
	}

	expr, err := b.aggregateExpr(alias, m, seen)
	return expr, true, err
}

func (b *builder) aggregateExpr(alias string, m *schema.Measure, seen map[string]bool) (string, error) {
	switch m.Kind {
	case schema.MeasureCount:
		return fmt.Sprintf("COUNT(%s)", qualify(alias, orDefault(m.SQL, "*"))), nil
	case schema.MeasureCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", qualify(alias, m.SQL)), nil
	case schema.MeasureSum:
		return fmt.Sprintf("SUM(%s)", qualify(alias, m.SQL)), nil
	case schema.MeasureAvg:
		return fmt.Sprintf("AVG(%s)", qualify(alias, m.SQL)), nil
	case schema.MeasureMin:
		return fmt.Sprintf("MIN(%s)", qualify(alias, m.SQL)), nil
	case schema.MeasureMax:
		return fmt.Sprintf("MAX(%s)", qualify(alias, m.SQL)), nil
	case schema.MeasureNumber:
		return qualify(alias, m.SQL), nil
	case schema.MeasureCalculated:
		return b.expandFormula(m.Expression, seen)
	default:
		return "", cubederr.Query("measure %q has unknown kind %q", m.Name, m.Kind)
	}
}

// expandFormula substitutes every "cube.name" measure reference inside
// a calculated measure's formula with that measure's own rendered
// aggregate expression — formulas may reference other measures by
// cube.name.
func (b *builder) expandFormula(formula string, seen map[string]bool) (string, error) {
	tokens := fieldTokenPattern.FindAllString(formula, -1)
	out := formula
	for _, tok := range tokens {
		expr, _, err := b.resolveMeasureDepth(tok, seen)
		if err != nil {
			return "", err
		}
		out = strings.ReplaceAll(out, tok, "("+expr+")")
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// qualify prefixes a dimension/measure SQL fragment with its cube's
// alias, honoring an explicit {CUBE} placeholder when the fragment is a
// full computed expression.
func qualify(alias, sql string) string {
	if strings.Contains(sql, "{CUBE}") {
		return strings.ReplaceAll(sql, "{CUBE}", alias)
	}
	if sql == "*" {
		return "*"
	}
	return alias + "." + sql
}
