// Package sqlfilter renders the query package's recursive Filter AST
// into SQL text fragments, one operator at a time. It mirrors
// internal/query/evaluator.go's dispatch-by-node-type shape and
// QueryFilter.to_sql_condition's operator table.
package sqlfilter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/query"
)

// Resolver looks up the already-qualified SQL expression for a
// "cube.field" reference — dimensions on the WHERE side, aggregated
// measure expressions on the HAVING side.
type Resolver func(field string) (expr string, isNumeric bool, err error)

// Render turns a Filter tree into one SQL boolean expression.
func Render(f query.Filter, resolve Resolver) (string, error) {
	switch n := f.(type) {
	case *query.LeafFilter:
		return renderLeaf(n, resolve)
	case *query.LogicalFilter:
		return renderLogical(n, resolve)
	default:
		return "", cubederr.Query("unrecognized filter node %T", f)
	}
}

func renderLogical(n *query.LogicalFilter, resolve Resolver) (string, error) {
	keyword := " AND "
	if n.Kind == query.LogicalOr {
		keyword = " OR "
	}
	parts := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		rendered, err := Render(c, resolve)
		if err != nil {
			return "", err
		}
		if _, ok := c.(*query.LogicalFilter); ok {
			rendered = "(" + rendered + ")"
		}
		parts = append(parts, rendered)
	}
	return strings.Join(parts, keyword), nil
}

func renderLeaf(n *query.LeafFilter, resolve Resolver) (string, error) {
	expr, isNumeric, err := resolve(n.Field)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case query.OpSet:
		return fmt.Sprintf("%s IS NOT NULL", expr), nil
	case query.OpNotSet:
		return fmt.Sprintf("%s IS NULL", expr), nil
	case query.OpEquals, query.OpNotEquals:
		return renderEquality(n, expr, isNumeric), nil
	case query.OpIn, query.OpNotIn:
		return renderInSet(n, expr, isNumeric), nil
	case query.OpContains:
		return fmt.Sprintf("%s LIKE '%%%s%%'", expr, escapeLike(firstValue(n))), nil
	case query.OpNotContains:
		return fmt.Sprintf("%s NOT LIKE '%%%s%%'", expr, escapeLike(firstValue(n))), nil
	case query.OpStartsWith:
		return fmt.Sprintf("%s LIKE '%s%%'", expr, escapeLike(firstValue(n))), nil
	case query.OpEndsWith:
		return fmt.Sprintf("%s LIKE '%%%s'", expr, escapeLike(firstValue(n))), nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		return renderComparison(n, expr, isNumeric), nil
	case query.OpBeforeDate:
		return fmt.Sprintf("%s < %s", expr, quote(firstValue(n))), nil
	case query.OpAfterDate:
		return fmt.Sprintf("%s > %s", expr, quote(firstValue(n))), nil
	case query.OpInDateRange:
		if len(n.Values) != 2 {
			return "", cubederr.Query("in_date_range on %q requires exactly two values", n.Field)
		}
		return fmt.Sprintf("%s >= %s AND %s <= %s", expr, quote(n.Values[0]), expr, quote(n.Values[1])), nil
	default:
		return "", cubederr.Query("unsupported filter operator %q", n.Operator)
	}
}

func renderEquality(n *query.LeafFilter, expr string, isNumeric bool) string {
	if len(n.Values) > 1 {
		return renderInSet(n, expr, isNumeric)
	}
	casted := castIfNeeded(expr, firstValue(n), isNumeric)
	v := literal(firstValue(n), isNumeric || casted != expr)
	op := "="
	if n.Operator == query.OpNotEquals {
		op = "!="
	}
	return fmt.Sprintf("%s %s %s", casted, op, v)
}

func renderInSet(n *query.LeafFilter, expr string, isNumeric bool) string {
	literals := make([]string, len(n.Values))
	for i, v := range n.Values {
		literals[i] = literal(v, isNumeric)
	}
	keyword := "IN"
	if n.Operator == query.OpNotIn || n.Operator == query.OpNotEquals {
		keyword = "NOT IN"
	}
	casted := expr
	if len(n.Values) > 0 {
		casted = castIfNeeded(expr, n.Values[0], isNumeric)
	}
	return fmt.Sprintf("%s %s (%s)", casted, keyword, strings.Join(literals, ", "))
}

func renderComparison(n *query.LeafFilter, expr string, isNumeric bool) string {
	op := map[query.Operator]string{
		query.OpGt:  ">",
		query.OpGte: ">=",
		query.OpLt:  "<",
		query.OpLte: "<=",
	}[n.Operator]
	return fmt.Sprintf("%s %s %s", castIfNeeded(expr, firstValue(n), isNumeric), op, literal(firstValue(n), true))
}

// castIfNeeded wraps expr in a numeric cast when the dimension is
// string-typed but the literal is numeric; the converse (number-typed
// dimension, non-numeric literal) is handled by literal() falling back
// to a quoted string comparison.
func castIfNeeded(expr, value string, isNumeric bool) string {
	if isNumeric {
		return expr
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return fmt.Sprintf("CAST(%s AS DECIMAL)", expr)
	}
	return expr
}

// literal renders one value as a SQL literal: numeric dimensions prefer
// an unquoted numeric literal if the value parses as one, otherwise
// fall back to a quoted string comparison.
func literal(value string, isNumeric bool) string {
	if isNumeric {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return value
		}
	}
	return quote(value)
}

// quote single-quote-escapes a string literal by doubling embedded
// apostrophes, the standard SQL escape.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// firstValue returns a leaf's first value, or "" if none — used by the
// single-value operators (set/not_set never reach here).
func firstValue(n *query.LeafFilter) string {
	if len(n.Values) == 0 {
		return ""
	}
	return n.Values[0]
}
