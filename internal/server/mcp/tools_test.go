package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

func newTools(t *testing.T) *tools {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close(context.Background()) })
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	svc := service.New(st, graph.DefaultThresholds(), service.WithClock(func() time.Time { return now }))
	return &tools{ctx: context.Background(), svc: svc}
}

func text(t *testing.T, resp *mcp.ToolResponse) map[string]any {
	t.Helper()
	require.NotNil(t, resp)
	require.Len(t, resp.Content, 1)
	require.NotNil(t, resp.Content[0].TextContent)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Content[0].TextContent.Text), &out))
	return out
}

func seed(t *testing.T, tl *tools) {
	t.Helper()
	for _, c := range []string{"Functions", "Limits", "Derivatives", "Chain Rule", "Integrals"} {
		_, err := tl.addNode(AddNodeArgs{Concept: c, Domain: "calculus"})
		require.NoError(t, err)
	}
	for _, e := range [][2]string{{"functions", "limits"}, {"limits", "derivatives"}, {"derivatives", "chain_rule"}, {"limits", "integrals"}} {
		_, err := tl.addEdge(AddEdgeArgs{SourceConcept: e[0], TargetConcept: e[1], RelationType: "prerequisite"})
		require.NoError(t, err)
	}
}

func TestRegister(t *testing.T) {
	server := mcp.NewServer(stdio.NewStdioServerTransport())
	require.NoError(t, newTools(t).register(server))
}

func TestAddNodeTool(t *testing.T) {
	tl := newTools(t)

	out := text(t, mustRespond(tl.addNode(AddNodeArgs{Concept: "Chain Rule", Tags: []string{"rules"}})))
	assert.Equal(t, "chain_rule", out["id"])
	assert.Equal(t, true, out["created"])

	_, err := tl.addNode(AddNodeArgs{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestQueryGraphDefaultLimit(t *testing.T) {
	tl := newTools(t)
	for i := 0; i < 12; i++ {
		_, err := tl.addNode(AddNodeArgs{Concept: string(rune('a' + i))})
		require.NoError(t, err)
	}

	out := text(t, mustRespond(tl.queryGraph(QueryGraphArgs{QueryType: "all_nodes"})))
	assert.Len(t, out["matches"], 10)
	assert.EqualValues(t, 12, out["total"])

	all := 0
	out = text(t, mustRespond(tl.queryGraph(QueryGraphArgs{QueryType: "all_nodes", Limit: &all})))
	assert.Len(t, out["matches"], 12)
}

func TestReadSubgraphDefaults(t *testing.T) {
	tl := newTools(t)
	seed(t, tl)

	out := text(t, mustRespond(tl.readSubgraph(ReadSubgraphArgs{CenterNode: "Limits"})))
	assert.EqualValues(t, 2, out["depth"])
	assert.Equal(t, "both", out["direction"])
	assert.EqualValues(t, 5, out["node_count"])
	assert.Contains(t, out["mermaid"], "graph TD")

	zero := 0
	out = text(t, mustRespond(tl.readSubgraph(ReadSubgraphArgs{CenterNode: "limits", Depth: &zero, OutputFormat: "json"})))
	assert.EqualValues(t, 1, out["node_count"])
	assert.NotContains(t, out, "mermaid")
}

func TestUpdateAndPathTools(t *testing.T) {
	tl := newTools(t)
	seed(t, tl)

	q := 4
	out := text(t, mustRespond(tl.updateNode(UpdateNodeArgs{NodeID: "Functions", Quality: &q, MasteryRecall: ptr(0.9)})))
	assert.Equal(t, true, out["review_recorded"])

	out = text(t, mustRespond(tl.learningPath(LearningPathArgs{TargetConcept: "Chain Rule"})))
	steps, ok := out["path"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 4)
	assert.Contains(t, out["mermaid"], "graph TB")

	no := false
	out = text(t, mustRespond(tl.learningPath(LearningPathArgs{TargetConcept: "chain_rule", IncludeMermaid: &no})))
	assert.NotContains(t, out, "mermaid")

	_, err := tl.learningPath(LearningPathArgs{TargetConcept: "topology"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStatisticsTool(t *testing.T) {
	tl := newTools(t)
	seed(t, tl)

	out := text(t, mustRespond(tl.statistics(StatisticsArgs{Domain: "calculus"})))
	assert.EqualValues(t, 5, out["total_concepts"])
	assert.EqualValues(t, 4, out["total_edges"])
}

func mustRespond(resp *mcp.ToolResponse, err error) *mcp.ToolResponse {
	if err != nil {
		panic(err)
	}
	return resp
}

func ptr[T any](v T) *T { return &v }
