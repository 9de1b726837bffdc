package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mastery"
)

// QueryType names one of the analytical queries.
type QueryType string

const (
	Prerequisites   QueryType = "prerequisites"
	ReadyToLearn    QueryType = "ready_to_learn"
	DueForReview    QueryType = "due_for_review"
	Struggling      QueryType = "struggling"
	Stalled         QueryType = "stalled"
	Misconceptions  QueryType = "misconceptions"
	KnowledgeGaps   QueryType = "knowledge_gaps"
	NextRecommended QueryType = "next_recommended"
	AllNodes        QueryType = "all_nodes"
)

// QueryTypes lists every query type.
var QueryTypes = []QueryType{
	Prerequisites, ReadyToLearn, DueForReview, Struggling, Stalled,
	Misconceptions, KnowledgeGaps, NextRecommended, AllNodes,
}

// ParseQueryType validates s against the known query types.
func ParseQueryType(s string) (QueryType, error) {
	q := QueryType(s)
	if !slices.Contains(QueryTypes, q) {
		return "", &core.ValidationError{Field: "query_type", Value: s, Reason: fmt.Sprintf("must be one of %v", QueryTypes)}
	}
	return q, nil
}

// Query selects and filters a query run.
type Query struct {
	Type   QueryType
	Node   string // required for Prerequisites; a resolved node id
	Domain string
	Tag    string
	Limit  int // 0 means no limit
	Now    time.Time
}

// Match is one result row.
type Match struct {
	Node           *core.Node `json:"node"`
	Reason         string     `json:"reason"`
	Distance       int        `json:"distance,omitempty"`
	Blocks         []string   `json:"blocks,omitempty"`
	Misconceptions []string   `json:"misconceptions,omitempty"`
}

// Result is the ordered output of a query. Total counts matches before the
// limit was applied.
type Result struct {
	Type    QueryType    `json:"query_type"`
	Matches []Match      `json:"matches"`
	Total   int          `json:"total"`
	Edges   []*core.Edge `json:"edges,omitempty"`
}

// Query runs q against the graph.
func (g *Graph) Query(q Query) (*Result, error) {
	var (
		matches []Match
		edges   []*core.Edge
		err     error
	)
	switch q.Type {
	case Prerequisites:
		matches, edges, err = g.prerequisites(q)
	case ReadyToLearn:
		matches, err = g.readyToLearn(q)
	case DueForReview:
		matches = g.dueForReview(q)
	case Struggling:
		matches = g.struggling(q)
	case Stalled:
		matches = g.stalled(q)
	case Misconceptions:
		matches = g.misconceptions(q)
	case KnowledgeGaps:
		matches = g.knowledgeGaps(q)
	case NextRecommended:
		matches, err = g.nextRecommended(q)
	case AllNodes:
		matches = g.allNodes(q)
	default:
		_, err = ParseQueryType(string(q.Type))
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Type: q.Type, Matches: matches, Total: len(matches), Edges: edges}
	if q.Limit > 0 && len(res.Matches) > q.Limit {
		res.Matches = res.Matches[:q.Limit]
	}
	if res.Matches == nil {
		res.Matches = []Match{}
	}
	return res, nil
}

// candidates returns the nodes passing the query's domain and tag filters,
// ordered by id.
func (g *Graph) candidates(q Query) []*core.Node {
	var out []*core.Node
	for _, id := range g.ids {
		if n := g.nodes[id]; passes(n, q) {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) prerequisites(q Query) ([]Match, []*core.Edge, error) {
	if q.Node == "" {
		return nil, nil, &core.ValidationError{Field: "node", Reason: "required for the prerequisites query"}
	}
	if _, ok := g.nodes[q.Node]; !ok {
		return nil, nil, &core.NotFoundError{Kind: "node", ID: q.Node}
	}

	dist := g.ancestors(q.Node)
	set := map[string]bool{q.Node: true}
	for id := range dist {
		set[id] = true
	}
	if _, err := g.topoOrder(set); err != nil {
		return nil, nil, err
	}

	var matches []Match
	for id, d := range dist {
		n := g.nodes[id]
		if !passes(n, q) {
			continue
		}
		matches = append(matches, Match{
			Node:     n,
			Reason:   fmt.Sprintf("prerequisite at distance %d", d),
			Distance: d,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Node.ID < matches[j].Node.ID
	})

	var edges []*core.Edge
	for _, e := range g.edges {
		if e.RelationType == core.Prerequisite && set[e.Source] && set[e.Target] {
			edges = append(edges, e)
		}
	}
	return matches, edges, nil
}

// readyToLearn fails only on a prerequisite cycle that reaches a candidate.
// Cycles elsewhere in the graph, such as in another domain, are ignored.
func (g *Graph) readyToLearn(q Query) ([]Match, error) {
	closure := make(map[string]bool)
	for _, n := range g.candidates(q) {
		if closure[n.ID] {
			continue
		}
		closure[n.ID] = true
		for id := range g.ancestors(n.ID) {
			closure[id] = true
		}
	}
	if _, err := g.topoOrder(closure); err != nil {
		return nil, err
	}
	return g.ready(q), nil
}

// ready lists unlearned candidates whose direct prerequisites are all
// learned, easiest first. The caller has ruled out prerequisite cycles.
func (g *Graph) ready(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		if n.MasteryOverall >= g.th.Readiness {
			continue
		}
		prereqs := g.prerequisitesOf(n.ID)
		blocked := false
		for _, p := range prereqs {
			if g.nodes[p].MasteryOverall < g.th.Readiness {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		reason := "no prerequisites"
		if len(prereqs) > 0 {
			reason = fmt.Sprintf("all %d prerequisites mastered", len(prereqs))
		}
		matches = append(matches, Match{Node: n, Reason: reason})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Node, matches[j].Node
		if a.Difficulty != b.Difficulty {
			return a.Difficulty < b.Difficulty
		}
		return a.ID < b.ID
	})
	return matches
}

func (g *Graph) dueForReview(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		if n.NextReviewDue == nil || n.NextReviewDue.After(q.Now) {
			continue
		}
		matches = append(matches, Match{
			Node:   n,
			Reason: "due since " + n.NextReviewDue.Format(time.DateOnly),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Node, matches[j].Node
		if !a.NextReviewDue.Equal(*b.NextReviewDue) {
			return a.NextReviewDue.Before(*b.NextReviewDue)
		}
		return a.ID < b.ID
	})
	return matches
}

func (g *Graph) isStruggling(n *core.Node) bool {
	return n.Difficulty > g.th.StrugglingDifficulty && n.MasteryOverall < g.th.StrugglingMastery
}

func (g *Graph) struggling(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		if !g.isStruggling(n) {
			continue
		}
		matches = append(matches, Match{
			Node:   n,
			Reason: fmt.Sprintf("difficulty %.2f with mastery %.2f", n.Difficulty, n.MasteryOverall),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Node, matches[j].Node
		ga, gb := a.Difficulty-a.MasteryOverall, b.Difficulty-b.MasteryOverall
		if ga != gb {
			return ga > gb
		}
		return a.ID < b.ID
	})
	return matches
}

// isStalled reports whether n has been reviewed often enough without its
// mastery snapshots improving across the trailing window. Every recorded
// review counts, failed ones included, since a lapse resets RepetitionCount.
func (g *Graph) isStalled(n *core.Node) bool {
	if len(n.ReviewHistory) < g.th.StalledMinReps {
		return false
	}
	h := n.ReviewHistory
	if len(h) > g.th.StalledWindow {
		h = h[len(h)-g.th.StalledWindow:]
	}
	if len(h) < 2 {
		return false
	}
	return h[len(h)-1].Mastery <= h[0].Mastery+g.th.StalledEpsilon
}

func (g *Graph) stalled(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		if !g.isStalled(n) {
			continue
		}
		matches = append(matches, Match{
			Node:   n,
			Reason: fmt.Sprintf("%d reviews without mastery gain", len(n.ReviewHistory)),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Node, matches[j].Node
		if len(a.ReviewHistory) != len(b.ReviewHistory) {
			return len(a.ReviewHistory) > len(b.ReviewHistory)
		}
		return a.ID < b.ID
	})
	return matches
}

func (g *Graph) misconceptions(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		if len(n.Misconceptions) == 0 {
			continue
		}
		matches = append(matches, Match{
			Node:           n,
			Reason:         fmt.Sprintf("%d misconceptions recorded", len(n.Misconceptions)),
			Misconceptions: slices.Clone(n.Misconceptions),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.Misconceptions) != len(b.Misconceptions) {
			return len(a.Misconceptions) > len(b.Misconceptions)
		}
		return a.Node.ID < b.Node.ID
	})
	return matches
}

// gapBlocks returns the dependents n blocks when n is a knowledge gap.
func (g *Graph) gapBlocks(n *core.Node) []string {
	if n.MasteryOverall >= g.th.GapMastery {
		return nil
	}
	return g.dependentsOf(n.ID)
}

func (g *Graph) knowledgeGaps(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		blocks := g.gapBlocks(n)
		if len(blocks) == 0 {
			continue
		}
		matches = append(matches, Match{
			Node:   n,
			Reason: fmt.Sprintf("mastery %.2f blocks %d concepts", n.MasteryOverall, len(blocks)),
			Blocks: blocks,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.Blocks) != len(b.Blocks) {
			return len(a.Blocks) > len(b.Blocks)
		}
		return a.Node.ID < b.Node.ID
	})
	return matches
}

// nextRecommended lists due reviews, most overdue first, followed by
// ready concepts that are not already due, easiest first.
func (g *Graph) nextRecommended(q Query) ([]Match, error) {
	due := g.dueForReview(q)
	ready, err := g.readyToLearn(q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(due))
	matches := make([]Match, 0, len(due)+len(ready))
	for _, m := range due {
		seen[m.Node.ID] = true
		m.Reason = "review: " + m.Reason
		matches = append(matches, m)
	}
	for _, m := range ready {
		if seen[m.Node.ID] {
			continue
		}
		m.Reason = "learn: " + m.Reason
		matches = append(matches, m)
	}
	return matches, nil
}

func (g *Graph) allNodes(q Query) []Match {
	var matches []Match
	for _, n := range g.candidates(q) {
		matches = append(matches, Match{Node: n, Reason: string(mastery.BandOf(n.MasteryOverall))})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := strings.ToLower(matches[i].Node.Concept), strings.ToLower(matches[j].Node.Concept)
		if a != b {
			return a < b
		}
		return matches[i].Node.ID < matches[j].Node.ID
	})
	return matches
}

func passes(n *core.Node, q Query) bool {
	if q.Domain != "" && n.Domain != q.Domain {
		return false
	}
	return q.Tag == "" || n.HasTag(q.Tag)
}
