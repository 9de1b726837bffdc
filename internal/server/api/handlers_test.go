package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

// Helper to create a test server with routes over an in-memory store
func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemory()
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	svc := service.New(st, graph.DefaultThresholds(), service.WithClock(func() time.Time { return now }))

	ts := httptest.NewServer(New(svc, nil).Routes())
	t.Cleanup(func() {
		ts.Close()
		st.Close(context.Background())
	})
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	status, body := do(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", decodeJSON(t, body)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits"}`)

	status, body := do(t, ts, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "kg_operations_total")
}

func TestCreateNodeRequestValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{
			name:       "valid request",
			body:       `{"concept":"Chain Rule","domain":"calculus","tags":["core"]}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid json",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
			wantField:  "body",
		},
		{
			name:       "missing concept",
			body:       `{"domain":"calculus"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "concept",
		},
		{
			name:       "difficulty out of range",
			body:       `{"concept":"x","difficulty":3}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "difficulty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			status, body := do(t, ts, http.MethodPost, "/api/nodes", tt.body)
			assert.Equal(t, tt.wantStatus, status, string(body))
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, decodeJSON(t, body)["field"])
			}
		})
	}
}

func TestCreateNodeTwiceUpdates(t *testing.T) {
	ts := setupTestServer(t)

	status, _ := do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Chain Rule"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Chain Rule","description":"composition"}`)
	require.Equal(t, http.StatusOK, status)
	res := decodeJSON(t, body)
	assert.Equal(t, "chain_rule", res["id"])
	assert.Equal(t, false, res["created"])

	status, body = do(t, ts, http.MethodGet, "/api/nodes", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decodeJSON(t, body)["count"])
}

func TestGetNode(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Chain Rule"}`)

	status, body := do(t, ts, http.MethodGet, "/api/nodes/chain_rule", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chain Rule", decodeJSON(t, body)["concept"])

	status, body = do(t, ts, http.MethodGet, "/api/nodes/product_rule", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decodeJSON(t, body)["kind"])
}

func TestCreateEdgeRequestValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       `{"source_concept":"Limits","target_concept":"Derivatives","relation_type":"prerequisite"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown relation",
			body:       `{"source_concept":"Limits","target_concept":"Derivatives","relation_type":"needs"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown target",
			body:       `{"source_concept":"Limits","target_concept":"Integrals","relation_type":"prerequisite"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "self loop",
			body:       `{"source_concept":"Limits","target_concept":"limits","relation_type":"related_to"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing source",
			body:       `{"target_concept":"Derivatives","relation_type":"prerequisite"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits"}`)
			do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Derivatives"}`)

			status, body := do(t, ts, http.MethodPost, "/api/edges", tt.body)
			assert.Equal(t, tt.wantStatus, status, string(body))
		})
	}
}

func TestUpdateNodeRecordsReview(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits"}`)

	status, body := do(t, ts, http.MethodPatch, "/api/nodes/Limits", `{"quality":5,"mastery_recall":0.8}`)
	require.Equal(t, http.StatusOK, status, string(body))
	res := decodeJSON(t, body)
	assert.Equal(t, true, res["review_recorded"])
	assert.EqualValues(t, 1, res["interval_days"])
	assert.InDelta(t, 0.4, res["suggested_mastery"], 1e-9)

	status, _ = do(t, ts, http.MethodPatch, "/api/nodes/limits", `{"quality":9}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, ts, http.MethodPatch, "/api/nodes/missing", `{"quality":3}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestQueryEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits","domain":"calculus"}`)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Derivatives","domain":"calculus"}`)
	do(t, ts, http.MethodPost, "/api/edges", `{"source_concept":"limits","target_concept":"derivatives","relation_type":"prerequisite"}`)

	status, body := do(t, ts, http.MethodGet, "/api/query/prerequisites?node=Derivatives", "")
	require.Equal(t, http.StatusOK, status, string(body))
	res := decodeJSON(t, body)
	assert.Equal(t, "prerequisites", res["query_type"])
	assert.Len(t, res["matches"], 1)

	status, body = do(t, ts, http.MethodGet, "/api/query/all_nodes?domain=calculus&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeJSON(t, body)["matches"], 1)

	status, _ = do(t, ts, http.MethodGet, "/api/query/everything", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, ts, http.MethodGet, "/api/query/all_nodes?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "limit", decodeJSON(t, body)["field"])
}

func TestCycleConflict(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"A"}`)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"B"}`)
	do(t, ts, http.MethodPost, "/api/edges", `{"source_concept":"a","target_concept":"b","relation_type":"prerequisite"}`)
	do(t, ts, http.MethodPost, "/api/edges", `{"source_concept":"b","target_concept":"a","relation_type":"prerequisite"}`)

	status, body := do(t, ts, http.MethodGet, "/api/nodes/b/path", "")
	require.Equal(t, http.StatusConflict, status)
	res := decodeJSON(t, body)
	assert.Equal(t, "cycle", res["kind"])
	assert.Equal(t, []any{"a", "b", "a"}, res["cycle"])
}

func TestSubgraphAndPath(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits"}`)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Derivatives"}`)
	do(t, ts, http.MethodPost, "/api/edges", `{"source_concept":"limits","target_concept":"derivatives","relation_type":"prerequisite"}`)

	status, body := do(t, ts, http.MethodGet, "/api/nodes/derivatives/subgraph?format=json", "")
	require.Equal(t, http.StatusOK, status, string(body))
	res := decodeJSON(t, body)
	assert.EqualValues(t, 2, res["depth"])
	assert.Len(t, res["nodes"], 2)
	assert.NotContains(t, res, "mermaid")

	status, body = do(t, ts, http.MethodGet, "/api/nodes/derivatives/subgraph?format=mermaid", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(string(body), "graph TD\n"))

	status, _ = do(t, ts, http.MethodGet, "/api/nodes/derivatives/subgraph?depth=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, ts, http.MethodGet, "/api/nodes/derivatives/path?mermaid=true", "")
	require.Equal(t, http.StatusOK, status)
	res = decodeJSON(t, body)
	assert.Len(t, res["path"], 2)
	assert.Contains(t, res["mermaid"], "limits --> derivatives")

	status, _ = do(t, ts, http.MethodGet, "/api/nodes/derivatives/path?mermaid=maybe", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatistics(t *testing.T) {
	ts := setupTestServer(t)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Limits","domain":"calculus"}`)
	do(t, ts, http.MethodPost, "/api/nodes", `{"concept":"Vectors","domain":"linear algebra"}`)

	status, body := do(t, ts, http.MethodGet, "/api/stats?domain=calculus", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decodeJSON(t, body)["total_concepts"])
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{name: "default", query: "", want: 2},
		{name: "custom", query: "depth=5", want: 5},
		{name: "negative passes through", query: "depth=-1", want: -1},
		{name: "not a number", query: "depth=deep", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test?"+tt.query, nil)
			got, err := intParam(req, "depth", 2)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
