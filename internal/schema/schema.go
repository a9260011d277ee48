// Package schema holds the parsed, validated in-memory representation
// of cubes, their dimensions, measures, relationships, security rules,
// and pre-aggregation hints, plus the directed relationship graph used
// for multi-hop join resolution.
package schema

import (
	"fmt"
	"sort"
)

// DimensionType is the logical type of a dimension's values.
type DimensionType string

const (
	DimString  DimensionType = "string"
	DimNumber  DimensionType = "number"
	DimTime    DimensionType = "time"
	DimBoolean DimensionType = "boolean"
)

// MeasureKind is the aggregation a measure applies.
type MeasureKind string

const (
	MeasureCount         MeasureKind = "count"
	MeasureCountDistinct MeasureKind = "countDistinct"
	MeasureSum           MeasureKind = "sum"
	MeasureAvg           MeasureKind = "avg"
	MeasureMin           MeasureKind = "min"
	MeasureMax           MeasureKind = "max"
	MeasureNumber        MeasureKind = "number"
	MeasureCalculated    MeasureKind = "calculated"
)

// RelationshipKind describes the direction a relationship's foreign
// key points.
type RelationshipKind string

const (
	// BelongsTo means this cube holds the FK pointing at the target's PK.
	BelongsTo RelationshipKind = "belongs_to"
	// HasOne means the target holds the FK pointing at this cube's PK,
	// and the relationship is scalar from this cube's perspective.
	HasOne RelationshipKind = "has_one"
	// HasMany means the target holds the FK pointing at this cube's PK.
	HasMany RelationshipKind = "has_many"
)

// Dimension is a grouping field on a cube.
type Dimension struct {
	Name          string
	Type          DimensionType
	SQL           string   // expression fragment; may contain {CUBE}
	PrimaryKey    bool
	Granularities []string // permitted granularities for time dimensions; empty means unrestricted
}

// Measure is an aggregated field on a cube.
type Measure struct {
	Name       string
	Kind       MeasureKind
	SQL        string // expression fragment the aggregation wraps
	Expression string // for calculated measures: a formula referencing cube.name
}

// Relationship is a directed link between two cubes defining how they
// are joined.
type Relationship struct {
	Name        string
	Kind        RelationshipKind
	TargetCube  string
	ForeignKey  string
	PrimaryKey  string // defaults to "id"
}

// Security holds row-level-security configuration for a cube.
type Security struct {
	RowFilter string // template with {CUBE}, {USER_CONTEXT.*} tokens
}

// PreAggregation is a persisted-rollup definition owned by a cube.
type PreAggregation struct {
	Name            string
	Cube            string
	Dimensions      []string
	Measures        []string
	TimeDimension   string // dimension name, empty if none
	Granularity     string
	RefreshInterval string // e.g. "every 1 hour"; empty means no scheduled refresh
}

// Cube is a logical, query-addressable entity backed by one physical
// table (or one user-supplied SQL expression).
type Cube struct {
	Name       string
	Table      string // physical table name
	SQL        string // raw SQL substitute for Table
	Dimensions map[string]*Dimension
	Measures   map[string]*Measure
	Relationships map[string]*Relationship
	Security   *Security
	PreAggregations []*PreAggregation
}

func (c *Cube) GetDimension(name string) (*Dimension, bool) {
	d, ok := c.Dimensions[name]
	return d, ok
}

func (c *Cube) GetMeasure(name string) (*Measure, bool) {
	m, ok := c.Measures[name]
	return m, ok
}

func (c *Cube) GetRelationship(name string) (*Relationship, bool) {
	r, ok := c.Relationships[name]
	return r, ok
}

// PrimaryKeyDimension returns the dimension marked primary_key, if any.
func (c *Cube) PrimaryKeyDimension() (*Dimension, bool) {
	for _, d := range c.Dimensions {
		if d.PrimaryKey {
			return d, true
		}
	}
	return nil, false
}

// TableName returns the physical table the builder should FROM/JOIN
// against, honoring an override map keyed by cube name — the
// pre-aggregation rewrite hook; never mutate Cube.Table in place so
// concurrent compiles never race.
func (c *Cube) TableName(overrides map[string]string) string {
	if overrides != nil {
		if t, ok := overrides[c.Name]; ok {
			return t
		}
	}
	if c.Table != "" {
		return c.Table
	}
	return fmt.Sprintf("(%s)", c.SQL)
}

// Edge is one directed relationship edge in the graph: the relationship
// and the cube that declared it. It carries no traversal direction; the
// join planner records that on its own Hop type.
type Edge struct {
	From *Relationship
	// OwnerCube is the cube that declared the relationship (the
	// "source" of the directed edge regardless of traversal direction).
	OwnerCube string
}

// Graph is the directed multigraph whose nodes are cube names and
// whose edges are relationships, plus the reverse index that lets the
// join planner traverse edges backward.
type Graph struct {
	// forward[cube] lists relationships that cube declares.
	forward map[string][]*Relationship
	// reverse[target] lists (owner, relationship) pairs where some
	// other cube declared a relationship pointing at target.
	reverse map[string][]reverseEdge
}

type reverseEdge struct {
	owner string
	rel   *Relationship
}

func newGraph() *Graph {
	return &Graph{
		forward: make(map[string][]*Relationship),
		reverse: make(map[string][]reverseEdge),
	}
}

// Forward returns the relationships cube declares, in stable
// (insertion) order.
func (g *Graph) Forward(cube string) []*Relationship {
	return g.forward[cube]
}

// ReverseOwners returns the (ownerCube, relationship) pairs of every
// relationship elsewhere in the schema that targets cube.
func (g *Graph) ReverseOwners(cube string) []struct {
	Owner string
	Rel   *Relationship
} {
	edges := g.reverse[cube]
	out := make([]struct {
		Owner string
		Rel   *Relationship
	}, len(edges))
	for i, e := range edges {
		out[i] = struct {
			Owner string
			Rel   *Relationship
		}{Owner: e.owner, Rel: e.rel}
	}
	return out
}

// Schema is a mapping from cube name to Cube, plus the compiled
// relationship graph. A Schema is immutable once returned from the
// loader/compiler: reload builds a new Schema and the holder of the
// current pointer swaps it atomically, so in-flight requests keep
// their own generation.
type Schema struct {
	Version string // schema generation identifier, used by the cache-key generator
	cubes   map[string]*Cube
	graph   *Graph
}

func (s *Schema) Cube(name string) (*Cube, bool) {
	c, ok := s.cubes[name]
	return c, ok
}

func (s *Schema) Graph() *Graph { return s.graph }

// CubeNames returns every cube name, sorted, for deterministic
// iteration (tie-breaks in the join planner rely on this).
func (s *Schema) CubeNames() []string {
	names := make([]string, 0, len(s.cubes))
	for n := range s.cubes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
