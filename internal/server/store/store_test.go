package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

var t0 = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// backends returns a fresh instance of every embedded store. Neo4j needs a
// running server and is not covered here.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "kg.db"))
	require.NoError(t, err)

	bdg, err := NewBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"badger": bdg,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close(ctx)
		}
	})
	return stores
}

func create(concept string) MutateFunc {
	return func(n *core.Node, exists bool) error {
		if !exists {
			n.Concept = concept
			n.Created = t0
		}
		n.Modified = t0
		return nil
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, s)
		})
	}
}

func TestMutateNodeCreateAndRead(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		n, err := s.MutateNode(ctx, "limits", CreateIfMissing, func(n *core.Node, exists bool) error {
			assert.False(t, exists)
			n.Concept = "Limits"
			n.Domain = "calculus"
			n.Tags = []string{"foundations"}
			n.MasteryRecall = 1
			n.MasteryApplication = 0.5
			n.Created = t0
			n.Modified = t0
			return nil
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, n.MasteryOverall, 1e-9)

		got, err := s.GetNode(ctx, "limits")
		require.NoError(t, err)
		assert.Equal(t, "Limits", got.Concept)
		assert.Equal(t, "calculus", got.Domain)
		assert.Equal(t, []string{"foundations"}, got.Tags)
		assert.Equal(t, core.DefaultEaseFactor, got.EaseFactor)
		assert.InDelta(t, 0.5, got.MasteryOverall, 1e-9)
		assert.Nil(t, got.NextReviewDue)
		assert.True(t, got.Created.Equal(t0))
	})
}

func TestMutateNodeMustExist(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "ghost", MustExist, create("Ghost"))
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = s.GetNode(ctx, "ghost")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestMutateNodeRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "a", CreateIfMissing, create("A"))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = s.MutateNode(ctx, "a", MustExist, func(n *core.Node, exists bool) error {
			n.Description = "changed"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.GetNode(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, got.Description)
	})
}

func TestMutateNodeEnforcesInvariants(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "a", CreateIfMissing, create("A"))
		require.NoError(t, err)

		_, err = s.MutateNode(ctx, "a", MustExist, func(n *core.Node, exists bool) error {
			n.ID = "b"
			return nil
		})
		assert.ErrorIs(t, err, core.ErrValidation)

		_, err = s.MutateNode(ctx, "a", MustExist, func(n *core.Node, exists bool) error {
			n.ReviewHistory = append(n.ReviewHistory, core.ReviewRecord{ReviewedAt: t0, Quality: 4})
			return nil
		})
		assert.ErrorIs(t, err, core.ErrValidation, "history without a due date")
	})
}

func TestReviewHistoryAppends(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "a", CreateIfMissing, create("A"))
		require.NoError(t, err)

		for i, q := range []int{5, 3, 4} {
			_, err := s.MutateNode(ctx, "a", MustExist, func(n *core.Node, exists bool) error {
				at := t0.Add(time.Duration(i) * 24 * time.Hour)
				n.ReviewHistory = append(n.ReviewHistory, core.ReviewRecord{ReviewedAt: at, Quality: q, Mastery: 0.1 * float64(i), Notes: "ok"})
				due := at.Add(24 * time.Hour)
				n.NextReviewDue = &due
				return nil
			})
			require.NoError(t, err)
		}

		got, err := s.GetNode(ctx, "a")
		require.NoError(t, err)
		require.Len(t, got.ReviewHistory, 3)
		assert.Equal(t, []int{5, 3, 4}, []int{got.ReviewHistory[0].Quality, got.ReviewHistory[1].Quality, got.ReviewHistory[2].Quality})
		assert.InDelta(t, 0.2, got.ReviewHistory[2].Mastery, 1e-9)
		require.NotNil(t, got.NextReviewDue)
		assert.True(t, got.NextReviewDue.Equal(t0.Add(72*time.Hour)))
	})
}

func TestFindNodeByConcept(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "derivatives", CreateIfMissing, create("Derivatives"))
		require.NoError(t, err)

		got, err := s.FindNodeByConcept(ctx, "DERIVATIVES")
		require.NoError(t, err)
		assert.Equal(t, "derivatives", got.ID)

		_, err = s.FindNodeByConcept(ctx, "Integrals")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestListNodesFilter(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		seed := []struct {
			id, domain string
			tags       []string
		}{
			{"c", "math", []string{"core"}},
			{"a", "math", nil},
			{"b", "physics", []string{"core"}},
		}
		for _, sd := range seed {
			_, err := s.MutateNode(ctx, sd.id, CreateIfMissing, func(n *core.Node, exists bool) error {
				n.Concept = sd.id
				n.Domain = sd.domain
				if sd.tags != nil {
					n.Tags = sd.tags
				}
				return nil
			})
			require.NoError(t, err)
		}

		ids := func(nodes []*core.Node) []string {
			out := []string{}
			for _, n := range nodes {
				out = append(out, n.ID)
			}
			return out
		}

		all, err := s.ListNodes(ctx, NodeFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(all))

		math, err := s.ListNodes(ctx, NodeFilter{Domain: "math"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(math))

		tagged, err := s.ListNodes(ctx, NodeFilter{Tag: "core"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(tagged))

		both, err := s.ListNodes(ctx, NodeFilter{Domain: "math", Tag: "core"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(both))
	})
}

func TestPutEdge(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		for _, id := range []string{"a", "b"} {
			_, err := s.MutateNode(ctx, id, CreateIfMissing, create(id))
			require.NoError(t, err)
		}

		edge := &core.Edge{
			ID:           core.EdgeID("a", "b", core.Prerequisite),
			Source:       "a",
			Target:       "b",
			RelationType: core.Prerequisite,
			Strength:     0.8,
			Created:      t0,
		}
		require.NoError(t, s.PutEdge(ctx, edge))

		// Re-adding keeps one edge and the first creation time
		again := edge.Clone()
		again.Strength = 0.3
		again.Reasoning = "updated"
		again.Created = t0.Add(time.Hour)
		require.NoError(t, s.PutEdge(ctx, again))
		assert.True(t, again.Created.Equal(t0))

		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap.Edges, 1)
		assert.InDelta(t, 0.3, snap.Edges[0].Strength, 1e-9)
		assert.Equal(t, "updated", snap.Edges[0].Reasoning)
		assert.Len(t, snap.Nodes, 2)
	})
}

func TestPutEdgeMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.MutateNode(ctx, "a", CreateIfMissing, create("A"))
		require.NoError(t, err)

		err = s.PutEdge(ctx, &core.Edge{
			ID:           core.EdgeID("a", "missing", core.RelatedTo),
			Source:       "a",
			Target:       "missing",
			RelationType: core.RelatedTo,
			Strength:     1,
			Created:      t0,
		})
		assert.ErrorIs(t, err, core.ErrNotFound)

		err = s.PutEdge(ctx, &core.Edge{ID: "x", Source: "a", Target: "a", RelationType: "teaches"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kg.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	_, err = s.MutateNode(ctx, "a", CreateIfMissing, func(n *core.Node, exists bool) error {
		n.Concept = "A"
		n.Misconceptions = []string{"thinks a is b"}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close(ctx)

	got, err := s.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"thinks a is b"}, got.Misconceptions)
}
