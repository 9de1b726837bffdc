// Package graph is the in-memory traversal engine over a store snapshot.
//
// A Graph is built per operation from the nodes and edges read in one
// store transaction and is never mutated afterwards. Every traversal is
// iterative with explicit visited sets, and every result is ordered
// deterministically with node id as the final tie-break.
package graph

import (
	"slices"
	"sort"
	"strings"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Thresholds are the tunable cutoffs used by the analytical queries.
type Thresholds struct {
	// Readiness is the overall mastery at which a concept counts as learned.
	Readiness float64 `yaml:"readiness" validate:"gte=0,lte=1"`

	// A concept is struggling when difficulty > StrugglingDifficulty and
	// overall mastery < StrugglingMastery.
	StrugglingDifficulty float64 `yaml:"struggling_difficulty" validate:"gte=0,lte=1"`
	StrugglingMastery    float64 `yaml:"struggling_mastery" validate:"gte=0,lte=1"`

	// A concept is stalled after StalledMinReps recorded reviews when the last
	// StalledWindow mastery snapshots improved by no more than StalledEpsilon.
	StalledMinReps int     `yaml:"stalled_min_reps" validate:"gte=1"`
	StalledWindow  int     `yaml:"stalled_window" validate:"gte=2"`
	StalledEpsilon float64 `yaml:"stalled_epsilon" validate:"gte=0"`

	// GapMastery is the overall mastery below which a prerequisite is a gap.
	GapMastery float64 `yaml:"gap_mastery" validate:"gte=0,lte=1"`

	// PathMastered is the overall mastery at which a learning path step no
	// longer needs study.
	PathMastered float64 `yaml:"path_mastered" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Readiness:            0.7,
		StrugglingDifficulty: 0.5,
		StrugglingMastery:    0.4,
		StalledMinReps:       3,
		StalledWindow:        3,
		StalledEpsilon:       0.01,
		GapMastery:           0.6,
		PathMastered:         0.8,
	}
}

// Graph is an immutable adjacency view over one snapshot.
type Graph struct {
	th    Thresholds
	nodes map[string]*core.Node
	ids   []string // sorted
	edges []*core.Edge
	out   map[string][]*core.Edge
	in    map[string][]*core.Edge
}

// New indexes nodes and edges. Edges whose endpoints are not among nodes
// are ignored.
func New(nodes []*core.Node, edges []*core.Edge, th Thresholds) *Graph {
	g := &Graph{
		th:    th,
		nodes: make(map[string]*core.Node, len(nodes)),
		out:   make(map[string][]*core.Edge),
		in:    make(map[string][]*core.Edge),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = n
		g.ids = append(g.ids, n.ID)
	}
	sort.Strings(g.ids)

	for _, e := range edges {
		if g.nodes[e.Source] == nil || g.nodes[e.Target] == nil {
			continue
		}
		g.edges = append(g.edges, e)
	}
	sortEdges(g.edges)
	for _, e := range g.edges {
		g.out[e.Source] = append(g.out[e.Source], e)
		g.in[e.Target] = append(g.in[e.Target], e)
	}
	return g
}

// Thresholds returns the cutoffs the graph was built with.
func (g *Graph) Thresholds() Thresholds { return g.th }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// Node returns the node with id.
func (g *Graph) Node(id string) (*core.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*core.Node {
	out := make([]*core.Node, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges ordered by (source, target, relation).
func (g *Graph) Edges() []*core.Edge {
	return slices.Clone(g.edges)
}

// Resolve finds a node by exact id, then by concept name (case-insensitive,
// smallest id wins), then by the slug of ref.
func (g *Graph) Resolve(ref string) (*core.Node, error) {
	if n, ok := g.nodes[ref]; ok {
		return n, nil
	}
	for _, id := range g.ids {
		if strings.EqualFold(g.nodes[id].Concept, ref) {
			return g.nodes[id], nil
		}
	}
	if n, ok := g.nodes[core.Slug(ref)]; ok {
		return n, nil
	}
	return nil, &core.NotFoundError{Kind: "node", ID: ref}
}

// prerequisitesOf returns the ids of the direct prerequisites of id, sorted.
func (g *Graph) prerequisitesOf(id string) []string {
	var out []string
	for _, e := range g.in[id] {
		if e.RelationType == core.Prerequisite {
			out = append(out, e.Source)
		}
	}
	return dedupeSorted(out)
}

// dependentsOf returns the ids of the concepts id is a direct prerequisite of.
func (g *Graph) dependentsOf(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		if e.RelationType == core.Prerequisite {
			out = append(out, e.Target)
		}
	}
	return dedupeSorted(out)
}

// ancestors walks incoming prerequisite edges breadth-first from id and
// returns each reachable prerequisite with its hop distance. id itself is
// excluded.
func (g *Graph) ancestors(id string) map[string]int {
	dist := map[string]int{id: 0}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.prerequisitesOf(cur) {
			if _, seen := dist[p]; seen {
				continue
			}
			dist[p] = dist[cur] + 1
			queue = append(queue, p)
		}
	}
	delete(dist, id)
	return dist
}

// topoOrder orders set by the prerequisite edges among its members using
// Kahn's algorithm. The ready set is drained smallest id first. When the
// members contain a cycle it returns a CycleError naming one.
func (g *Graph) topoOrder(set map[string]bool) ([]string, error) {
	indegree := make(map[string]int, len(set))
	for id := range set {
		indegree[id] = 0
	}
	for id := range set {
		for _, p := range g.prerequisitesOf(id) {
			if set[p] {
				indegree[id]++
			}
		}
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(set))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, dep := range g.dependentsOf(cur) {
			if !set[dep] {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				i, _ := slices.BinarySearch(ready, dep)
				ready = slices.Insert(ready, i, dep)
			}
		}
	}

	if len(order) < len(set) {
		left := make(map[string]bool)
		for id, d := range indegree {
			if d > 0 {
				left[id] = true
			}
		}
		return nil, &core.CycleError{Cycle: g.findCycle(left)}
	}
	return order, nil
}

// findCycle extracts one concrete cycle from the nodes Kahn's algorithm
// could not drain. Each of them has a prerequisite that is also left, so
// walking prerequisites must revisit a node. The cycle is reported in edge
// direction, rotated to start at its smallest id, first id repeated last.
func (g *Graph) findCycle(left map[string]bool) []string {
	ids := make([]string, 0, len(left))
	for id := range left {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	walk := []string{ids[0]}
	pos := map[string]int{ids[0]: 0}
	cur := ids[0]
	for {
		var next string
		for _, p := range g.prerequisitesOf(cur) {
			if left[p] {
				next = p
				break
			}
		}
		if next == "" {
			return append(walk, walk[0])
		}
		if i, seen := pos[next]; seen {
			cycle := slices.Clone(walk[i:])
			slices.Reverse(cycle)
			start := 0
			for j, id := range cycle {
				if id < cycle[start] {
					start = j
				}
			}
			cycle = append(cycle[start:], cycle[:start]...)
			return append(cycle, cycle[0])
		}
		pos[next] = len(walk)
		walk = append(walk, next)
		cur = next
	}
}

func sortEdges(edges []*core.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.RelationType < b.RelationType
	})
}

func dedupeSorted(ids []string) []string {
	sort.Strings(ids)
	return slices.Compact(ids)
}
