// Package rls expands per-cube row-level-security templates into WHERE
// predicates for every cube a request touches. It mirrors
// security/rls.py's RLSFilter.apply_rls_filter token-substitution
// approach, and escapes every substituted value with its own quote
// helper (the same apostrophe-doubling rule internal/sqlfilter uses)
// so RLS predicates stay injection-safe even
// though they are delivered as literals rather than bound parameters —
// the builder has no prepared-statement layer to bind them through.
package rls

import (
	"sort"
	"strings"

	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
)

// Predicate is one cube's expanded row-filter, already qualified by its
// alias and ready to conjoin into WHERE.
type Predicate struct {
	Cube string
	SQL  string
}

// Predicates returns the RLS predicate for every cube in cubes that has
// a security context to apply it against. Absence of a context (sec ==
// nil or entirely zero-valued) disables RLS for every cube.
func Predicates(s *schema.Schema, cubes []string, aliasOf func(cube string) string, sec *query.SecurityContext) []Predicate {
	if !sec.HasValue() {
		return nil
	}

	var out []Predicate
	for _, cubeName := range cubes {
		cube, ok := s.Cube(cubeName)
		if !ok {
			continue
		}
		alias := aliasOf(cubeName)
		if alias == "" {
			continue
		}

		if cube.Security != nil && cube.Security.RowFilter != "" {
			out = append(out, Predicate{Cube: cubeName, SQL: expand(cube.Security.RowFilter, alias, sec)})
			continue
		}
		if d, ok := cube.GetDimension("user_id"); ok && sec.UserID != "" {
			out = append(out, Predicate{Cube: cubeName, SQL: alias + "." + columnOf(d) + " = " + quote(sec.UserID)})
		}
	}
	return out
}

// expand substitutes {CUBE}, {USER_CONTEXT.user_id}, {USER_CONTEXT.tenant_id},
// and {USER_CONTEXT.roles} tokens in a row_filter template.
func expand(template, alias string, sec *query.SecurityContext) string {
	replacer := strings.NewReplacer(
		"{CUBE}", alias,
		"{USER_CONTEXT.user_id}", quote(sec.UserID),
		"{USER_CONTEXT.tenant_id}", quote(sec.TenantID),
		"{USER_CONTEXT.roles}", quotedList(sec.Roles),
	)
	return replacer.Replace(template)
}

// quote single-quote-escapes a literal the same way internal/sqlfilter
// does, so every substitution reaching WHERE is injection-safe.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quotedList renders a parenthesized, comma-separated list of quoted
// literals, for {USER_CONTEXT.roles}.
func quotedList(values []string) string {
	sorted := append([]string{}, values...)
	sort.Strings(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = quote(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// columnOf returns the dimension's own SQL fragment with any {CUBE}
// placeholder stripped, since the default user_id predicate qualifies
// the column with the caller-supplied alias directly rather than
// re-expanding the dimension's own template.
func columnOf(d *schema.Dimension) string {
	if d.SQL == "" {
		return d.Name
	}
	return strings.TrimPrefix(d.SQL, "{CUBE}.")
}
