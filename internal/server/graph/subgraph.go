package graph

import (
	"fmt"
	"sort"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Direction selects which edges a subgraph expansion follows.
type Direction string

const (
	Upstream   Direction = "upstream"   // incoming edges
	Downstream Direction = "downstream" // outgoing edges
	Both       Direction = "both"
)

// Directions lists every direction.
var Directions = []Direction{Upstream, Downstream, Both}

// ParseDirection validates s against the known directions.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Upstream, Downstream, Both:
		return d, nil
	}
	return "", &core.ValidationError{Field: "direction", Value: s, Reason: fmt.Sprintf("must be one of %v", Directions)}
}

// Subgraph is a bounded neighbourhood around a center node.
type Subgraph struct {
	Center    string       `json:"center"`
	Depth     int          `json:"depth"`
	Direction Direction    `json:"direction"`
	Nodes     []*core.Node `json:"nodes"`
	Edges     []*core.Edge `json:"edges"`
	// Hops maps each node id to its distance from the center.
	Hops map[string]int `json:"hops"`
}

// Subgraph expands breadth-first from center for up to depth hops. Nodes
// come out in (hop, id) order and edges are every edge between visited
// nodes, ordered by (source, target, relation).
func (g *Graph) Subgraph(center string, depth int, dir Direction) (*Subgraph, error) {
	if depth < 0 {
		return nil, &core.ValidationError{Field: "depth", Value: depth, Reason: "must be >= 0"}
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	if _, ok := g.nodes[center]; !ok {
		return nil, &core.NotFoundError{Kind: "node", ID: center}
	}

	hops := map[string]int{center: 0}
	order := []string{center}
	frontier := []string{center}
	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range g.neighbours(id, dir) {
				if _, seen := hops[nb]; seen {
					continue
				}
				hops[nb] = hop
				next = append(next, nb)
			}
		}
		sort.Strings(next)
		order = append(order, next...)
		frontier = next
	}

	sg := &Subgraph{
		Center:    center,
		Depth:     depth,
		Direction: dir,
		Nodes:     make([]*core.Node, 0, len(order)),
		Edges:     []*core.Edge{},
		Hops:      hops,
	}
	for _, id := range order {
		sg.Nodes = append(sg.Nodes, g.nodes[id])
	}
	if depth > 0 {
		for _, e := range g.edges {
			_, src := hops[e.Source]
			_, dst := hops[e.Target]
			if src && dst {
				sg.Edges = append(sg.Edges, e)
			}
		}
	}
	return sg, nil
}

func (g *Graph) neighbours(id string, dir Direction) []string {
	var out []string
	if dir == Upstream || dir == Both {
		for _, e := range g.in[id] {
			out = append(out, e.Source)
		}
	}
	if dir == Downstream || dir == Both {
		for _, e := range g.out[id] {
			out = append(out, e.Target)
		}
	}
	return out
}
