package graph

import (
	"sort"
	"time"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mastery"
)

// topStrugglingLimit caps Statistics.TopStruggling.
const topStrugglingLimit = 5

// Statistics aggregates progress over the nodes of one domain, or all of
// them when Domain is empty.
type Statistics struct {
	Domain             string                    `json:"domain,omitempty"`
	TotalNodes         int                       `json:"total_concepts"`
	TotalEdges         int                       `json:"total_edges"`
	AverageMastery     float64                   `json:"average_mastery"`
	EdgesByRelation    map[core.RelationType]int `json:"edges_by_relation"`
	DueForReview       int                       `json:"due_for_review"`
	Struggling         int                       `json:"struggling"`
	Stalled            int                       `json:"stalled"`
	WithMisconceptions int                       `json:"with_misconceptions"`
	KnowledgeGaps      int                       `json:"knowledge_gaps"`
	Distribution       map[string]int            `json:"mastery_distribution"`
	AverageByDomain    map[string]float64        `json:"average_mastery_by_domain"`
	TopStruggling      []StrugglingSummary       `json:"top_struggling"`
	GeneratedAt        time.Time                 `json:"generated_at"`
}

// StrugglingSummary is a compact struggling-node row.
type StrugglingSummary struct {
	ID         string  `json:"id"`
	Concept    string  `json:"concept"`
	Mastery    float64 `json:"mastery"`
	Difficulty float64 `json:"difficulty"`
}

// Statistics folds the query predicates over the nodes in domain. Edges
// count when both endpoints are in the domain.
func (g *Graph) Statistics(domain string, now time.Time) *Statistics {
	q := Query{Domain: domain, Now: now}
	nodes := g.candidates(q)

	st := &Statistics{
		Domain:          domain,
		TotalNodes:      len(nodes),
		EdgesByRelation: make(map[core.RelationType]int, len(core.RelationTypes)),
		Distribution:    make(map[string]int, len(mastery.Buckets)),
		AverageByDomain: make(map[string]float64),
		TopStruggling:   []StrugglingSummary{},
		GeneratedAt:     now,
	}
	for _, r := range core.RelationTypes {
		st.EdgesByRelation[r] = 0
	}
	for _, b := range mastery.Buckets {
		st.Distribution[b] = 0
	}

	in := make(map[string]bool, len(nodes))
	var total float64
	domainSum := make(map[string]float64)
	domainCount := make(map[string]int)
	for _, n := range nodes {
		in[n.ID] = true
		total += n.MasteryOverall
		st.Distribution[mastery.BucketOf(n.MasteryOverall)]++
		if n.Domain != "" {
			domainSum[n.Domain] += n.MasteryOverall
			domainCount[n.Domain]++
		}
		if len(n.Misconceptions) > 0 {
			st.WithMisconceptions++
		}
		if g.isStalled(n) {
			st.Stalled++
		}
		if len(g.gapBlocks(n)) > 0 {
			st.KnowledgeGaps++
		}
	}
	if len(nodes) > 0 {
		st.AverageMastery = total / float64(len(nodes))
	}
	for d, sum := range domainSum {
		st.AverageByDomain[d] = sum / float64(domainCount[d])
	}

	for _, e := range g.edges {
		if in[e.Source] && in[e.Target] {
			st.TotalEdges++
			st.EdgesByRelation[e.RelationType]++
		}
	}

	st.DueForReview = len(g.dueForReview(q))

	struggling := g.struggling(q)
	st.Struggling = len(struggling)
	for i, m := range struggling {
		if i == topStrugglingLimit {
			break
		}
		st.TopStruggling = append(st.TopStruggling, StrugglingSummary{
			ID:         m.Node.ID,
			Concept:    m.Node.Concept,
			Mastery:    m.Node.MasteryOverall,
			Difficulty: m.Node.Difficulty,
		})
	}
	return st
}

// Domains returns the distinct non-empty domains in the graph, sorted.
func (g *Graph) Domains() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.nodes {
		if n.Domain != "" && !seen[n.Domain] {
			seen[n.Domain] = true
			out = append(out, n.Domain)
		}
	}
	sort.Strings(out)
	return out
}
