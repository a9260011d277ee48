// Package joinplan discovers the shortest join path from a request's
// primary cube to every other cube it references, over the bidirectional
// projection of the schema's relationship graph, and assigns table
// aliases. The algorithm is a plain BFS: queue entries carry the
// accumulated path, the visited set is a plain map, and ties are broken
// lexicographically on intermediate cube names — this scales comfortably
// to schemas with a few dozen cubes without any specialized graph
// structure.
package joinplan

import (
	"sort"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/schema"
)

// Direction records which way a hop actually traversed its relationship,
// which flips the join condition the SQL builder emits.
type Direction string

const (
	Forward Direction = "forward"
	Reverse Direction = "reverse"
)

// Hop is one edge of a resolved join path.
type Hop struct {
	FromCube  string
	ToCube    string
	Rel       *schema.Relationship
	Direction Direction
}

// Plan is the resolved set of joins for one request: alias assignment
// plus the ordered hop list the SQL builder walks to emit LEFT JOINs,
// shortest path first, guaranteeing the source side of every hop is
// already in scope by the time its clause is appended.
type Plan struct {
	Primary string
	Aliases map[string]string // cube name -> alias (t0, t1, ...)
	Hops    []Hop
}

// Alias returns the alias assigned to cube, or "" if it was never
// reached (should not happen for any cube the plan was built to cover).
func (p *Plan) Alias(cube string) string { return p.Aliases[cube] }

type queueItem struct {
	cube string
	path []Hop
}

// Build finds the shortest path from primary to every cube in required
// (deduplicated, primary excluded) and assigns deterministic aliases.
// required's order does not affect the result; alias numbering after t0
// walks the required cubes sorted by path length, then by name, and
// gives each cube along each path the next alias the first time it is
// seen, so intermediate cubes are numbered as their paths are walked.
func Build(g *schema.Graph, primary string, required []string) (*Plan, error) {
	need := make(map[string]bool, len(required))
	for _, c := range required {
		if c != "" && c != primary {
			need[c] = true
		}
	}

	plan := &Plan{
		Primary: primary,
		Aliases: map[string]string{primary: "t0"},
	}
	if len(need) == 0 {
		return plan, nil
	}

	// bestPath[cube] is the shortest known path to cube from primary.
	bestPath := make(map[string][]Hop)
	visited := map[string]bool{primary: true}
	queue := []queueItem{{cube: primary, path: nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range neighbors(g, cur.cube) {
			if visited[next.ToCube] {
				continue
			}
			visited[next.ToCube] = true
			path := append(append([]Hop{}, cur.path...), next)
			bestPath[next.ToCube] = path
			queue = append(queue, queueItem{cube: next.ToCube, path: path})
		}
	}

	missing := []string{}
	for cube := range need {
		if _, ok := bestPath[cube]; !ok {
			missing = append(missing, cube)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, cubederr.Query("no join path to cube %q", missing[0])
	}

	assignAliases(plan, need, bestPath)
	return plan, nil
}

// neighbors returns the cubes directly reachable from cube, in a
// deterministic order: sorted by target cube name, and among hops to
// the same cube, forward relationships (by name) before reverse owners
// (by owner name), so equal-length paths discovered in different
// orders still tie-break the same way.
func neighbors(g *schema.Graph, cube string) []Hop {
	var out []Hop

	forward := append([]*schema.Relationship{}, g.Forward(cube)...)
	sort.Slice(forward, func(i, j int) bool { return forward[i].Name < forward[j].Name })
	for _, rel := range forward {
		out = append(out, Hop{FromCube: cube, ToCube: rel.TargetCube, Rel: rel, Direction: Forward})
	}

	reverse := g.ReverseOwners(cube)
	sort.Slice(reverse, func(i, j int) bool { return reverse[i].Owner < reverse[j].Owner })
	for _, r := range reverse {
		out = append(out, Hop{FromCube: cube, ToCube: r.Owner, Rel: r.Rel, Direction: Reverse})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ToCube < out[j].ToCube })
	return out
}

// assignAliases walks every required cube's path in shortest-first,
// lexicographic-tie-break order, assigning aliases to any intermediate
// cube not yet seen and recording every hop exactly once, in
// path-length emission order.
func assignAliases(plan *Plan, need map[string]bool, bestPath map[string][]Hop) {
	targets := make([]string, 0, len(need))
	for c := range need {
		targets = append(targets, c)
	}
	sort.Slice(targets, func(i, j int) bool {
		li, lj := len(bestPath[targets[i]]), len(bestPath[targets[j]])
		if li != lj {
			return li < lj
		}
		return targets[i] < targets[j]
	})

	nextAlias := 1
	emitted := map[string]bool{}
	for _, target := range targets {
		for _, hop := range bestPath[target] {
			if _, ok := plan.Aliases[hop.ToCube]; !ok {
				plan.Aliases[hop.ToCube] = aliasFor(nextAlias)
				nextAlias++
			}
			key := hop.FromCube + ">" + hop.ToCube + ">" + hop.Rel.Name
			if emitted[key] {
				continue
			}
			emitted[key] = true
			plan.Hops = append(plan.Hops, hop)
		}
	}
}

func aliasFor(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "t" + string(digits[n])
	}
	// unlikely at "tens of cubes" scale, but stay correct beyond 9.
	buf := []byte{}
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "t" + string(buf)
}
