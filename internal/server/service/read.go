package service

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mermaid"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/metrics"
)

// QueryRequest selects one of the graph queries.
type QueryRequest struct {
	QueryType string `json:"query_type" validate:"required"`
	// Node is required by the prerequisites query.
	Node   string `json:"node,omitempty"`
	Domain string `json:"domain,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Limit  int    `json:"limit,omitempty" validate:"gte=0"`
}

// QueryGraph runs a query against a snapshot of the graph.
func (s *Service) QueryGraph(ctx context.Context, req QueryRequest) (res *graph.Result, err error) {
	ctx, end := s.begin(ctx, "query_graph",
		attribute.String("kg.query_type", req.QueryType),
		attribute.String("kg.domain", req.Domain),
	)
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	qt, err := graph.ParseQueryType(req.QueryType)
	if err != nil {
		return nil, err
	}
	g, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	q := graph.Query{Type: qt, Domain: req.Domain, Tag: req.Tag, Limit: req.Limit, Now: s.now()}
	if req.Node != "" {
		n, err := g.Resolve(req.Node)
		if err != nil {
			return nil, err
		}
		q.Node = n.ID
	}
	return g.Query(q)
}

// Format selects the representation of a subgraph.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMermaid Format = "mermaid"
	FormatBoth    Format = "both"
)

// ParseFormat validates an output format. The empty string means both.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatBoth, nil
	case FormatJSON, FormatMermaid, FormatBoth:
		return f, nil
	}
	return "", &core.ValidationError{Field: "output_format", Value: s, Reason: "must be one of json, mermaid, both"}
}

// SubgraphRequest describes a neighbourhood extraction.
type SubgraphRequest struct {
	CenterNode   string `json:"center_node" validate:"required"`
	Depth        int    `json:"depth" validate:"gte=0"`
	Direction    string `json:"direction,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

// SubgraphResult carries the structured subgraph, its diagram, or both.
type SubgraphResult struct {
	Center    string          `json:"center"`
	Depth     int             `json:"depth"`
	Direction graph.Direction `json:"direction"`
	NodeCount int             `json:"node_count"`
	EdgeCount int             `json:"edge_count"`
	Nodes     []*core.Node    `json:"nodes,omitempty"`
	Edges     []*core.Edge    `json:"edges,omitempty"`
	Hops      map[string]int  `json:"hops,omitempty"`
	Mermaid   string          `json:"mermaid,omitempty"`
}

// ReadSubgraph extracts the neighbourhood of a concept. An empty direction
// means both.
func (s *Service) ReadSubgraph(ctx context.Context, req SubgraphRequest) (res *SubgraphResult, err error) {
	ctx, end := s.begin(ctx, "read_subgraph",
		attribute.String("kg.node", req.CenterNode),
		attribute.Int("kg.depth", req.Depth),
	)
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	dir := graph.Both
	if req.Direction != "" {
		if dir, err = graph.ParseDirection(req.Direction); err != nil {
			return nil, err
		}
	}
	format, err := ParseFormat(req.OutputFormat)
	if err != nil {
		return nil, err
	}

	g, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	center, err := g.Resolve(req.CenterNode)
	if err != nil {
		return nil, err
	}
	sg, err := g.Subgraph(center.ID, req.Depth, dir)
	if err != nil {
		return nil, err
	}

	res = &SubgraphResult{
		Center:    sg.Center,
		Depth:     sg.Depth,
		Direction: sg.Direction,
		NodeCount: len(sg.Nodes),
		EdgeCount: len(sg.Edges),
	}
	if format != FormatMermaid {
		res.Nodes, res.Edges, res.Hops = sg.Nodes, sg.Edges, sg.Hops
	}
	if format != FormatJSON {
		res.Mermaid = mermaid.Subgraph(sg, s.now())
	}
	return res, nil
}

// PathRequest asks for the study order leading to a concept.
type PathRequest struct {
	TargetConcept  string `json:"target_concept" validate:"required"`
	IncludeMermaid bool   `json:"include_mermaid,omitempty"`
	// HideMastered drops already mastered prerequisites from the steps.
	// Gaps, edges and readiness still describe the full path.
	HideMastered bool `json:"hide_mastered,omitempty"`
}

// PathResult is a learning path with an optional diagram.
type PathResult struct {
	*graph.Path
	Mermaid string `json:"mermaid,omitempty"`
}

// GetLearningPath orders the prerequisites of a concept for study.
func (s *Service) GetLearningPath(ctx context.Context, req PathRequest) (res *PathResult, err error) {
	ctx, end := s.begin(ctx, "get_learning_path", attribute.String("kg.node", req.TargetConcept))
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	g, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	target, err := g.Resolve(req.TargetConcept)
	if err != nil {
		return nil, err
	}
	p, err := g.LearningPath(target.ID)
	if err != nil {
		return nil, err
	}

	res = &PathResult{Path: p}
	if req.IncludeMermaid {
		res.Mermaid = mermaid.Path(p)
	}
	if req.HideMastered {
		mastered := g.Thresholds().PathMastered
		p.Steps = slices.DeleteFunc(slices.Clone(p.Steps), func(n *core.Node) bool {
			return n.ID != target.ID && n.MasteryOverall >= mastered
		})
	}
	return res, nil
}

// GetStatistics summarizes the graph, optionally restricted to a domain.
func (s *Service) GetStatistics(ctx context.Context, domain string) (st *graph.Statistics, err error) {
	ctx, end := s.begin(ctx, "get_statistics", attribute.String("kg.domain", domain))
	defer end(&err)

	g, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if domain == "" {
		metrics.GraphNodes.Set(float64(g.Len()))
		metrics.GraphEdges.Set(float64(len(g.Edges())))
	}
	return g.Statistics(domain, s.now()), nil
}

// Domains lists the distinct non-empty domains in the graph.
func (s *Service) Domains(ctx context.Context) (domains []string, err error) {
	ctx, end := s.begin(ctx, "domains")
	defer end(&err)

	g, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.Domains(), nil
}
