package graph

import (
	"fmt"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Path is a prerequisites-first study order ending at a target concept.
type Path struct {
	Target *core.Node   `json:"target"`
	Steps  []*core.Node `json:"path"`
	// Gaps are the steps below the mastered threshold, in path order.
	Gaps []*core.Node `json:"gaps"`
	// Edges are the prerequisite edges among the steps.
	Edges []*core.Edge `json:"edges"`
	// Ready is true when nothing but the target itself still needs study.
	Ready              bool `json:"ready"`
	TotalPrerequisites int  `json:"total_prerequisites"`
}

// LearningPath orders the transitive prerequisites of target topologically,
// smallest id first among concepts that are ready at the same time, with
// target last.
func (g *Graph) LearningPath(target string) (*Path, error) {
	t, ok := g.nodes[target]
	if !ok {
		return nil, &core.NotFoundError{Kind: "node", ID: target}
	}

	set := map[string]bool{target: true}
	for id := range g.ancestors(target) {
		set[id] = true
	}
	order, err := g.topoOrder(set)
	if err != nil {
		return nil, err
	}
	// The target has every other member upstream of it, so Kahn's
	// algorithm can only release it last.
	if order[len(order)-1] != target {
		return nil, fmt.Errorf("learning path for %s: target not last in %v", target, order)
	}

	p := &Path{
		Target:             t,
		Steps:              make([]*core.Node, 0, len(order)),
		Gaps:               []*core.Node{},
		Edges:              []*core.Edge{},
		TotalPrerequisites: len(order) - 1,
	}
	for _, id := range order {
		n := g.nodes[id]
		p.Steps = append(p.Steps, n)
		if n.MasteryOverall < g.th.PathMastered {
			p.Gaps = append(p.Gaps, n)
		}
	}
	for _, e := range g.edges {
		if e.RelationType == core.Prerequisite && set[e.Source] && set[e.Target] {
			p.Edges = append(p.Edges, e)
		}
	}
	p.Ready = len(p.Gaps) == 0 || (len(p.Gaps) == 1 && p.Gaps[0].ID == target)
	return p, nil
}

// StepIDs returns the ids along the path.
func (p *Path) StepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, n := range p.Steps {
		ids = append(ids, n.ID)
	}
	return ids
}
