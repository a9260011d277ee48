// Package cachekey produces a deterministic, namespaced cache key from a
// normalized request, the security context, and the current schema
// generation. Canonicalization follows key_generator.py's canonical-JSON
// approach directly; hashing follows internal/idgen/hash.go's
// hash-then-encode idiom, though here the alphabet is plain hex since
// the key is never displayed as a short human ID.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/cubedlayer/cubed/internal/query"
)

// canonicalFilter is the JSON-stable form of a Filter: a leaf carries
// its sorted values; a logical node sorts its rendered children when
// the kind makes child order semantically irrelevant (AND/OR are both
// commutative, so both sort).
type canonicalFilter struct {
	Leaf     *canonicalLeaf    `json:"leaf,omitempty"`
	Logical  *canonicalLogical `json:"logical,omitempty"`
}

type canonicalLeaf struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

type canonicalLogical struct {
	Kind     string            `json:"kind"`
	Children []canonicalFilter `json:"children"`
}

func canonicalize(f query.Filter) canonicalFilter {
	switch n := f.(type) {
	case *query.LeafFilter:
		return canonicalFilter{Leaf: &canonicalLeaf{Field: n.Field, Operator: string(n.Operator), Values: n.SortedValues()}}
	case *query.LogicalFilter:
		children := make([]canonicalFilter, len(n.Children))
		for i, c := range n.Children {
			children[i] = canonicalize(c)
		}
		sort.Slice(children, func(i, j int) bool {
			ai, _ := json.Marshal(children[i])
			aj, _ := json.Marshal(children[j])
			return string(ai) < string(aj)
		})
		return canonicalFilter{Logical: &canonicalLogical{Kind: string(n.Kind), Children: children}}
	default:
		return canonicalFilter{}
	}
}

type canonicalOrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type canonicalTimeDimension struct {
	Dimension        string              `json:"dimension"`
	Granularity      string              `json:"granularity"`
	DateRange        *query.DateRange    `json:"date_range,omitempty"`
	CompareDateRange []query.DateRange   `json:"compare_date_range,omitempty"`
}

type canonicalSecurity struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// canonicalRequest is the full JSON-stable shape that gets hashed.
// OrderBy is NOT sorted — order-by position is semantically significant
// for the result set, so two requests differing only in order_by
// ordering must produce different cache keys.
type canonicalRequest struct {
	Dimensions     []string                 `json:"dimensions"`
	Measures       []string                 `json:"measures"`
	Filters        []canonicalFilter        `json:"filters"`
	MeasureFilters []canonicalFilter        `json:"measure_filters"`
	TimeDimensions []canonicalTimeDimension `json:"time_dimensions"`
	OrderBy        []canonicalOrderBy       `json:"order_by"`
	Limit          int                      `json:"limit"`
	Offset         int                      `json:"offset"`
	Security       canonicalSecurity        `json:"security"`
	SchemaVersion  string                   `json:"schema_version"`
}

// Generate produces a deterministic `query:<hex>` key from r, sec, and
// schemaVersion. Dimensions and measures are sorted
// (ordering is irrelevant to the result set); filters canonicalize
// recursively; order_by keeps the caller's order.
func Generate(r *query.Request, sec *query.SecurityContext, schemaVersion string) string {
	cr := canonicalRequest{
		Dimensions:    sortedCopy(r.Dimensions),
		Measures:      sortedCopy(r.Measures),
		Limit:         r.Limit,
		Offset:        r.Offset,
		SchemaVersion: schemaVersion,
	}
	for _, f := range r.Filters {
		cr.Filters = append(cr.Filters, canonicalize(f))
	}
	for _, f := range r.MeasureFilters {
		cr.MeasureFilters = append(cr.MeasureFilters, canonicalize(f))
	}
	for _, td := range r.TimeDimensions {
		cr.TimeDimensions = append(cr.TimeDimensions, canonicalTimeDimension{
			Dimension:        td.Dimension,
			Granularity:      string(td.Granularity),
			DateRange:        td.DateRange,
			CompareDateRange: td.CompareDateRange,
		})
	}
	for _, ob := range r.OrderBy {
		cr.OrderBy = append(cr.OrderBy, canonicalOrderBy{Field: ob.Field, Direction: string(ob.Direction)})
	}
	if sec != nil {
		cr.Security = canonicalSecurity{
			UserID:      sec.UserID,
			TenantID:    sec.TenantID,
			Roles:       sortedCopy(sec.Roles),
			Permissions: sortedCopy(sec.Permissions),
		}
	}

	// json.Marshal sorts map keys but these are all structs/slices; the
	// struct field order above is the canonical serialization order.
	data, err := json.Marshal(cr)
	if err != nil {
		// cr is built entirely from primitive/struct fields; Marshal
		// cannot fail on it.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return "query:" + hex.EncodeToString(sum[:])[:16]
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
