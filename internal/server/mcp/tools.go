package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcp "github.com/metoro-io/mcp-golang"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
)

// AddNodeArgs are the add_node tool arguments.
type AddNodeArgs struct {
	Concept     string   `json:"concept" jsonschema:"required,description=Concept name; its slug becomes the node id"`
	Description string   `json:"description,omitempty" jsonschema:"description=What the concept means"`
	Domain      string   `json:"domain,omitempty" jsonschema:"description=Subject area such as calculus"`
	Difficulty  *float64 `json:"difficulty,omitempty" jsonschema:"description=Intrinsic difficulty from 0 to 1 (default 0.5)"`
	Tags        []string `json:"tags,omitempty" jsonschema:"description=Free-form labels"`
}

// AddEdgeArgs are the add_edge tool arguments.
type AddEdgeArgs struct {
	SourceConcept string   `json:"source_concept" jsonschema:"required,description=Source concept id or name"`
	TargetConcept string   `json:"target_concept" jsonschema:"required,description=Target concept id or name"`
	RelationType  string   `json:"relation_type" jsonschema:"required,enum=prerequisite,enum=builds_on,enum=related_to,enum=contradicts,enum=applies_to,enum=parent_of,description=Relationship from source to target"`
	Strength      *float64 `json:"strength,omitempty" jsonschema:"description=Relationship strength from 0 to 1 (default 1)"`
	Reasoning     string   `json:"reasoning,omitempty" jsonschema:"description=Why the relationship holds"`
}

// UpdateNodeArgs are the update_node tool arguments.
type UpdateNodeArgs struct {
	NodeID                string   `json:"node_id" jsonschema:"required,description=Concept id or name"`
	Quality               *int     `json:"quality,omitempty" jsonschema:"description=Review quality from 0 (blackout) to 5 (perfect); schedules the next review"`
	MasteryRecall         *float64 `json:"mastery_recall,omitempty" jsonschema:"description=Recall mastery from 0 to 1"`
	MasteryApplication    *float64 `json:"mastery_application,omitempty" jsonschema:"description=Application mastery from 0 to 1"`
	MasteryExplanation    *float64 `json:"mastery_explanation,omitempty" jsonschema:"description=Explanation mastery from 0 to 1"`
	Difficulty            *float64 `json:"difficulty,omitempty" jsonschema:"description=Updated difficulty from 0 to 1"`
	MisconceptionDetected string   `json:"misconception_detected,omitempty" jsonschema:"description=Misconception observed during the session"`
	Notes                 string   `json:"notes,omitempty" jsonschema:"description=Notes stored with the review"`
}

// QueryGraphArgs are the query_graph tool arguments.
type QueryGraphArgs struct {
	QueryType string `json:"query_type" jsonschema:"required,enum=prerequisites,enum=ready_to_learn,enum=due_for_review,enum=struggling,enum=stalled,enum=misconceptions,enum=knowledge_gaps,enum=next_recommended,enum=all_nodes,description=Query to run"`
	Node      string `json:"node,omitempty" jsonschema:"description=Concept id or name; required for prerequisites"`
	Domain    string `json:"domain,omitempty" jsonschema:"description=Restrict results to a domain"`
	Tag       string `json:"tag,omitempty" jsonschema:"description=Restrict results to a tag"`
	Limit     *int   `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 10, 0 for all)"`
}

// ReadSubgraphArgs are the read_subgraph tool arguments.
type ReadSubgraphArgs struct {
	CenterNode   string `json:"center_node" jsonschema:"required,description=Concept id or name at the center"`
	Depth        *int   `json:"depth,omitempty" jsonschema:"description=Hops to expand (default 2)"`
	Direction    string `json:"direction,omitempty" jsonschema:"enum=upstream,enum=downstream,enum=both,description=Edges to follow (default both)"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"enum=json,enum=mermaid,enum=both,description=Result representation (default both)"`
}

// LearningPathArgs are the get_learning_path tool arguments.
type LearningPathArgs struct {
	TargetConcept  string `json:"target_concept" jsonschema:"required,description=Concept id or name to reach"`
	IncludeMermaid *bool  `json:"include_mermaid,omitempty" jsonschema:"description=Attach a Mermaid diagram (default true)"`
	HideMastered   bool   `json:"hide_mastered,omitempty" jsonschema:"description=Leave already mastered prerequisites out of the steps"`
}

// StatisticsArgs are the get_statistics tool arguments.
type StatisticsArgs struct {
	Domain string `json:"domain,omitempty" jsonschema:"description=Restrict statistics to a domain"`
}

const (
	defaultQueryLimit = 10
	defaultDepth      = 2
)

// tools adapts service operations to tool handlers.
type tools struct {
	ctx context.Context
	svc *service.Service
}

// register adds every tool to server
func (t *tools) register(server *mcp.Server) error {
	registrations := []struct {
		name, description string
		handler           any
	}{
		{"add_node", "Add a concept to the knowledge graph, or update the concept with the same name", t.addNode},
		{"add_edge", "Connect two concepts with a typed relationship", t.addEdge},
		{"update_node", "Record mastery, a review rating or a misconception for a concept", t.updateNode},
		{"query_graph", "Run an analytical query such as ready_to_learn or due_for_review", t.queryGraph},
		{"read_subgraph", "Read the neighbourhood of a concept as JSON and/or a Mermaid diagram", t.readSubgraph},
		{"get_learning_path", "Order the prerequisites of a concept for study", t.learningPath},
		{"get_statistics", "Summarize learning progress", t.statistics},
	}
	for _, r := range registrations {
		if err := server.RegisterTool(r.name, r.description, r.handler); err != nil {
			return fmt.Errorf("register %s: %w", r.name, err)
		}
	}
	return nil
}

func (t *tools) addNode(args AddNodeArgs) (*mcp.ToolResponse, error) {
	res, err := t.svc.AddNode(t.ctx, service.AddNodeRequest{
		Concept:     args.Concept,
		Description: args.Description,
		Domain:      args.Domain,
		Difficulty:  args.Difficulty,
		Tags:        args.Tags,
	})
	return respond(res, err)
}

func (t *tools) addEdge(args AddEdgeArgs) (*mcp.ToolResponse, error) {
	res, err := t.svc.AddEdge(t.ctx, service.AddEdgeRequest(args))
	return respond(res, err)
}

func (t *tools) updateNode(args UpdateNodeArgs) (*mcp.ToolResponse, error) {
	res, err := t.svc.UpdateNode(t.ctx, service.UpdateNodeRequest(args))
	return respond(res, err)
}

func (t *tools) queryGraph(args QueryGraphArgs) (*mcp.ToolResponse, error) {
	limit := defaultQueryLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	res, err := t.svc.QueryGraph(t.ctx, service.QueryRequest{
		QueryType: args.QueryType,
		Node:      args.Node,
		Domain:    args.Domain,
		Tag:       args.Tag,
		Limit:     limit,
	})
	return respond(res, err)
}

func (t *tools) readSubgraph(args ReadSubgraphArgs) (*mcp.ToolResponse, error) {
	depth := defaultDepth
	if args.Depth != nil {
		depth = *args.Depth
	}
	res, err := t.svc.ReadSubgraph(t.ctx, service.SubgraphRequest{
		CenterNode:   args.CenterNode,
		Depth:        depth,
		Direction:    args.Direction,
		OutputFormat: args.OutputFormat,
	})
	return respond(res, err)
}

func (t *tools) learningPath(args LearningPathArgs) (*mcp.ToolResponse, error) {
	includeMermaid := true
	if args.IncludeMermaid != nil {
		includeMermaid = *args.IncludeMermaid
	}
	res, err := t.svc.GetLearningPath(t.ctx, service.PathRequest{
		TargetConcept:  args.TargetConcept,
		IncludeMermaid: includeMermaid,
		HideMastered:   args.HideMastered,
	})
	return respond(res, err)
}

func (t *tools) statistics(args StatisticsArgs) (*mcp.ToolResponse, error) {
	res, err := t.svc.GetStatistics(t.ctx, args.Domain)
	return respond(res, err)
}

// respond renders a result as indented JSON text.
func respond(v any, err error) (*mcp.ToolResponse, error) {
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return mcp.NewToolResponse(mcp.NewTextContent(string(data))), nil
}
