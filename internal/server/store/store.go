// Package store persists concept nodes and relationship edges.
//
// Every backend offers the same contract: single-record atomic upserts,
// lookup by id, scans by domain or tag, and a consistent snapshot of the
// whole graph for in-memory traversal.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mastery"
)

// Store defines the interface for graph storage backends.
// SQLite, Badger, Neo4j and the in-memory store implement it.
type Store interface {
	// Lifecycle
	Close(ctx context.Context) error

	// Node reads
	GetNode(ctx context.Context, id string) (*core.Node, error)
	FindNodeByConcept(ctx context.Context, concept string) (*core.Node, error)
	ListNodes(ctx context.Context, filter NodeFilter) ([]*core.Node, error)

	// MutateNode loads the node, applies fn and writes the result in one
	// transaction. Nothing is written if fn returns an error.
	MutateNode(ctx context.Context, id string, mode MutateMode, fn MutateFunc) (*core.Node, error)

	// PutEdge upserts an edge keyed by its id. Both endpoints must exist.
	PutEdge(ctx context.Context, edge *core.Edge) error

	// Snapshot reads all nodes and edges in a single read transaction.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// MutateMode controls what MutateNode does when the node is absent.
type MutateMode int

const (
	// MustExist fails with a NotFoundError when the node is absent.
	MustExist MutateMode = iota
	// CreateIfMissing hands fn a fresh node when the id is unknown.
	CreateIfMissing
)

// MutateFunc edits n in place. exists is false when n was freshly created.
type MutateFunc func(n *core.Node, exists bool) error

// NodeFilter narrows node scans. Empty fields match everything.
type NodeFilter struct {
	Domain string
	Tag    string
}

// Match reports whether n passes the filter.
func (f NodeFilter) Match(n *core.Node) bool {
	if f.Domain != "" && n.Domain != f.Domain {
		return false
	}
	if f.Tag != "" && !n.HasTag(f.Tag) {
		return false
	}
	return true
}

// Snapshot is a point-in-time copy of the whole graph.
type Snapshot struct {
	Nodes   []*core.Node
	Edges   []*core.Edge
	TakenAt time.Time
}

// apply runs fn against a working copy of current and enforces the node
// invariants every backend relies on: immutable id, append-only review
// history, derived overall mastery.
func apply(id string, current *core.Node, mode MutateMode, fn MutateFunc) (*core.Node, error) {
	exists := current != nil
	if !exists {
		if mode == MustExist {
			return nil, &core.NotFoundError{Kind: "node", ID: id}
		}
		current = core.NewNode(id, "", time.Time{})
	}

	next := current.Clone()
	if err := fn(next, exists); err != nil {
		return nil, err
	}

	if next.ID != id {
		return nil, &core.ValidationError{Field: "id", Value: next.ID, Reason: "node ids are immutable"}
	}
	if len(next.ReviewHistory) < len(current.ReviewHistory) {
		return nil, &core.ValidationError{Field: "review_history", Reason: "history is append-only"}
	}
	if (next.NextReviewDue == nil) != (len(next.ReviewHistory) == 0) {
		return nil, &core.ValidationError{Field: "next_review_due", Reason: "must be set exactly when a review is recorded"}
	}
	next.MasteryOverall = mastery.Overall(next.MasteryRecall, next.MasteryApplication, next.MasteryExplanation)
	return next, nil
}

// checkEdge validates an edge before it is written.
func checkEdge(e *core.Edge) error {
	if e.ID == "" {
		return &core.ValidationError{Field: "id", Reason: "edge id is required"}
	}
	if !e.RelationType.IsValid() {
		return &core.ValidationError{Field: "relation_type", Value: e.RelationType, Reason: fmt.Sprintf("must be one of %v", core.RelationTypes)}
	}
	return nil
}
