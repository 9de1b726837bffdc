package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// MemoryStore is an ephemeral, thread-safe Store. It is suitable for tests
// and for sessions whose graph does not need to outlive the process.
//
// A single RWMutex guards both maps so that Snapshot observes nodes and
// edges from the same instant.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*core.Node
	edges map[string]*core.Edge
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*core.Node),
		edges: make(map[string]*core.Edge),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// GetNode returns a copy of the node with id.
func (s *MemoryStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "node", ID: id}
	}
	return n.Clone(), nil
}

// FindNodeByConcept looks a node up by its display name, case-insensitively.
func (s *MemoryStore) FindNodeByConcept(ctx context.Context, concept string) (*core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *core.Node
	for _, n := range s.nodes {
		if strings.EqualFold(n.Concept, concept) && (found == nil || n.ID < found.ID) {
			found = n
		}
	}
	if found == nil {
		return nil, &core.NotFoundError{Kind: "node", ID: concept}
	}
	return found.Clone(), nil
}

// ListNodes returns copies of the nodes passing filter, ordered by id.
func (s *MemoryStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*core.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if filter.Match(n) {
			nodes = append(nodes, n.Clone())
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// MutateNode applies fn under the write lock.
func (s *MemoryStore) MutateNode(ctx context.Context, id string, mode MutateMode, fn MutateFunc) (*core.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := apply(id, s.nodes[id], mode, fn)
	if err != nil {
		return nil, err
	}
	s.nodes[id] = next
	return next.Clone(), nil
}

// PutEdge upserts edge.
func (s *MemoryStore) PutEdge(ctx context.Context, edge *core.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{edge.Source, edge.Target} {
		if _, ok := s.nodes[id]; !ok {
			return &core.NotFoundError{Kind: "node", ID: id}
		}
	}
	if prev, ok := s.edges[edge.ID]; ok {
		edge.Created = prev.Created
	}
	s.edges[edge.ID] = edge.Clone()
	return nil
}

// Snapshot copies the whole graph under one read lock.
func (s *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Nodes:   make([]*core.Node, 0, len(s.nodes)),
		Edges:   make([]*core.Edge, 0, len(s.edges)),
		TakenAt: time.Now(),
	}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n.Clone())
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, e.Clone())
	}
	return snap, nil
}
