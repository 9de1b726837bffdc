// Package service implements the knowledge graph operations on top of a
// Store: node and edge upserts, review recording, graph queries, subgraph
// and learning-path extraction, and statistics.
//
// Mutations are serialized by a mutex and each is one store transaction.
// Reads take one consistent snapshot and traverse it in memory.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/ctxlog"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/metrics"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

var tracer = otel.Tracer("knowledge-graph.service")

// Service exposes the knowledge graph operations.
type Service struct {
	store      store.Store
	thresholds graph.Thresholds
	now        func() time.Time

	// mu serializes writers; readers use store snapshots.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service over st.
func New(st store.Store, th graph.Thresholds, opts ...Option) *Service {
	s := &Service{
		store:      st,
		thresholds: th,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin starts a traced, measured operation. The returned func must be
// deferred with a pointer to the operation's named error.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Service."+op, trace.WithAttributes(attrs...))
	logger := ctxlog.FromContext(ctx).With("operation", op)

	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, core.ErrStorage) {
				logger.Error("operation failed", "error", err)
			} else {
				logger.Debug("operation rejected", "error", err)
			}
		} else {
			span.SetStatus(codes.Ok, "")
			logger.Debug("operation completed", "duration", time.Since(start))
		}
		span.End()
		metrics.Observe(op, start, err)
	}
}

// resolve finds a node by exact id, then concept name, then slug.
func (s *Service) resolve(ctx context.Context, ref string) (*core.Node, error) {
	n, err := s.store.GetNode(ctx, ref)
	if !errors.Is(err, core.ErrNotFound) {
		return n, err
	}
	n, err = s.store.FindNodeByConcept(ctx, ref)
	if !errors.Is(err, core.ErrNotFound) {
		return n, err
	}
	if slug := core.Slug(ref); slug != "" && slug != ref {
		n, err = s.store.GetNode(ctx, slug)
		if !errors.Is(err, core.ErrNotFound) {
			return n, err
		}
	}
	return nil, &core.NotFoundError{Kind: "node", ID: ref}
}

// snapshot reads the store and builds a traversal graph.
func (s *Service) snapshot(ctx context.Context) (*graph.Graph, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return graph.New(snap.Nodes, snap.Edges, s.thresholds), nil
}

// GetNode returns the node ref resolves to.
func (s *Service) GetNode(ctx context.Context, ref string) (n *core.Node, err error) {
	ctx, end := s.begin(ctx, "get_node", attribute.String("kg.node", ref))
	defer end(&err)

	return s.resolve(ctx, ref)
}

// ListNodes returns the nodes passing filter, ordered by id.
func (s *Service) ListNodes(ctx context.Context, filter store.NodeFilter) (nodes []*core.Node, err error) {
	ctx, end := s.begin(ctx, "list_nodes", attribute.String("kg.domain", filter.Domain))
	defer end(&err)

	nodes, err = s.store.ListNodes(ctx, filter)
	if nodes == nil {
		nodes = []*core.Node{}
	}
	return nodes, err
}
