package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Key prefixes. Nodes and edges are stored as JSON documents.
const (
	nodePrefix = "node/"
	edgePrefix = "edge/"
)

// maxConflictRetries bounds how often a write transaction is retried after
// badger reports a conflicting concurrent commit.
const maxConflictRetries = 5

// BadgerConfig holds configuration for the embedded Badger store.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadger opens a Badger store with the given configuration.
func NewBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, &core.ValidationError{Field: "path", Reason: "required for a persistent badger store"}
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, core.Storage("open", fmt.Errorf("create database directory %s: %w", cfg.Path, err))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, core.Storage("open", fmt.Errorf("open badger database: %w", err))
	}
	return &BadgerStore{db: db}, nil
}

// Close runs one value-log GC pass and closes the database.
func (s *BadgerStore) Close(ctx context.Context) error {
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		slog.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
	return s.db.Close()
}

// GetNode retrieves a node by id
func (s *BadgerStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	var node *core.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getBadgerNode(txn, id)
		return err
	})
	if err != nil {
		return nil, core.Storage("get node", err)
	}
	if node == nil {
		return nil, &core.NotFoundError{Kind: "node", ID: id}
	}
	return node, nil
}

// FindNodeByConcept looks a node up by display name, case-insensitively
func (s *BadgerStore) FindNodeByConcept(ctx context.Context, concept string) (*core.Node, error) {
	nodes, err := s.ListNodes(ctx, NodeFilter{})
	if err != nil {
		return nil, err
	}
	// ListNodes is ordered by id, so the first match has the smallest id.
	for _, n := range nodes {
		if strings.EqualFold(n.Concept, concept) {
			return n, nil
		}
	}
	return nil, &core.NotFoundError{Kind: "node", ID: concept}
}

// ListNodes returns nodes passing filter, ordered by id
func (s *BadgerStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*core.Node, error) {
	var nodes []*core.Node
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scanBadgerNodes(txn)
		if err != nil {
			return err
		}
		for _, n := range all {
			if filter.Match(n) {
				nodes = append(nodes, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.Storage("list nodes", err)
	}
	return nodes, nil
}

// MutateNode applies fn inside a badger read-write transaction, retrying
// on write conflicts.
func (s *BadgerStore) MutateNode(ctx context.Context, id string, mode MutateMode, fn MutateFunc) (*core.Node, error) {
	var next *core.Node
	err := s.update(ctx, func(txn *badger.Txn) error {
		current, err := getBadgerNode(txn, id)
		if err != nil {
			return err
		}
		next, err = apply(id, current, mode, fn)
		if err != nil {
			return err
		}
		return putBadgerJSON(txn, nodePrefix+id, next)
	})
	if err != nil {
		return nil, core.Storage("mutate node", err)
	}
	return next, nil
}

// PutEdge upserts edge
func (s *BadgerStore) PutEdge(ctx context.Context, edge *core.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, id := range []string{edge.Source, edge.Target} {
			if _, err := txn.Get([]byte(nodePrefix + id)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return &core.NotFoundError{Kind: "node", ID: id}
				}
				return err
			}
		}

		var prev core.Edge
		found, err := getBadgerJSON(txn, edgePrefix+edge.ID, &prev)
		if err != nil {
			return err
		}
		if found {
			edge.Created = prev.Created
		}
		return putBadgerJSON(txn, edgePrefix+edge.ID, edge)
	})
	return core.Storage("put edge", err)
}

// Snapshot reads all nodes and edges from one consistent badger view
func (s *BadgerStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		nodes, err := scanBadgerNodes(txn)
		if err != nil {
			return err
		}
		snap.Nodes = nodes

		return iteratePrefix(txn, edgePrefix, func(val []byte) error {
			var e core.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decoding edge: %w", err)
			}
			snap.Edges = append(snap.Edges, &e)
			return nil
		})
	})
	if err != nil {
		return nil, core.Storage("snapshot", err)
	}
	snap.TakenAt = time.Now()
	return snap, nil
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Helper functions

// getBadgerNode returns nil, nil when the node does not exist.
func getBadgerNode(txn *badger.Txn, id string) (*core.Node, error) {
	var n core.Node
	found, err := getBadgerJSON(txn, nodePrefix+id, &n)
	if err != nil || !found {
		return nil, err
	}
	return &n, nil
}

func scanBadgerNodes(txn *badger.Txn) ([]*core.Node, error) {
	var nodes []*core.Node
	err := iteratePrefix(txn, nodePrefix, func(val []byte) error {
		var n core.Node
		if err := json.Unmarshal(val, &n); err != nil {
			return fmt.Errorf("decoding node: %w", err)
		}
		nodes = append(nodes, &n)
		return nil
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, err
}

func iteratePrefix(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func getBadgerJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func putBadgerJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}
