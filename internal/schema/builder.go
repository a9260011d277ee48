package schema

import "sort"

// Builder accumulates cubes and, once every cube is present, compiles
// the relationship graph. Used exclusively by internal/schemaloader,
// which batches validation errors before ever calling Build.
type Builder struct {
	cubes map[string]*Cube
	order []string
}

func NewBuilder() *Builder {
	return &Builder{cubes: make(map[string]*Cube)}
}

// AddCube registers a cube under the builder. Caller has already
// validated the cube's own invariants; cross-cube relationship
// resolution happens in Build.
func (b *Builder) AddCube(c *Cube) {
	if _, exists := b.cubes[c.Name]; !exists {
		b.order = append(b.order, c.Name)
	}
	b.cubes[c.Name] = c
}

// Build resolves every relationship's target cube and constructs the
// forward/reverse relationship graph. Returns the names of any
// relationships whose target cube does not exist, for the caller to
// fold into the batched ModelErrors.
func (b *Builder) Build(version string) (*Schema, []MissingTarget) {
	g := newGraph()
	var missing []MissingTarget

	for _, name := range b.order {
		cube := b.cubes[name]
		for _, rel := range orderedRelationships(cube) {
			if _, ok := b.cubes[rel.TargetCube]; !ok {
				missing = append(missing, MissingTarget{Cube: name, Relationship: rel.Name, Target: rel.TargetCube})
				continue
			}
			g.forward[name] = append(g.forward[name], rel)
			g.reverse[rel.TargetCube] = append(g.reverse[rel.TargetCube], reverseEdge{owner: name, rel: rel})
		}
	}

	return &Schema{Version: version, cubes: b.cubes, graph: g}, missing
}

// MissingTarget records a relationship whose target cube was never
// defined.
type MissingTarget struct {
	Cube         string
	Relationship string
	Target       string
}

// orderedRelationships returns a cube's relationships in a stable
// order (sorted by name) so graph construction, and therefore join
// planning, is deterministic across process restarts even though the
// underlying map has no iteration order guarantee.
func orderedRelationships(c *Cube) []*Relationship {
	names := make([]string, 0, len(c.Relationships))
	for n := range c.Relationships {
		names = append(names, n)
	}
	sort.Strings(names)
	rels := make([]*Relationship, len(names))
	for i, n := range names {
		rels[i] = c.Relationships[n]
	}
	return rels
}
