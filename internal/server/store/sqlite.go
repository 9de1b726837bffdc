package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const nodeColumns = `id, concept, description, domain, tags, difficulty,
       mastery_recall, mastery_application, mastery_explanation, mastery_overall,
       ease_factor, interval_days, repetition_count, next_review_due, misconceptions,
       created_at, updated_at`

const edgeColumns = `id, source_id, target_id, relation_type, strength, reasoning, created_at`

// NewSQLite opens (creating if needed) the database at dbPath
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, core.Storage("create database directory", err)
		}
	}

	params := url.Values{}
	for _, pragma := range allPragmas() {
		params.Add("_pragma", pragma)
	}
	db, err := sql.Open("sqlite", dbPath+"?"+params.Encode())
	if err != nil {
		return nil, core.Storage("open", fmt.Errorf("opening sqlite database: %w", err))
	}

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.Storage("open", fmt.Errorf("connecting to sqlite: %w", err))
	}

	// Create schema
	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, core.Storage("open", fmt.Errorf("creating schema: %w", err))
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite connection
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// GetNode retrieves a node and its review history by id
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	n, err := s.getNode(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// FindNodeByConcept looks a node up by display name, case-insensitively
func (s *SQLiteStore) FindNodeByConcept(ctx context.Context, concept string) (*core.Node, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE concept = ? COLLATE NOCASE ORDER BY id LIMIT 1`, concept,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "node", ID: concept}
	}
	if err != nil {
		return nil, core.Storage("find node", err)
	}
	return s.getNode(ctx, s.db, id)
}

// ListNodes scans nodes by domain and/or tag, ordered by id
func (s *SQLiteStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*core.Node, error) {
	var where []string
	var args []any
	if filter.Domain != "" {
		where = append(where, "n.domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(n.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}

	query := "SELECT " + prefixColumns("n", nodeColumns) + " FROM nodes n"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY n.id"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Storage("list nodes", err)
	}
	defer tx.Rollback()

	nodes, err := s.queryNodes(ctx, tx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := s.attachHistory(ctx, tx, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// MutateNode applies fn inside a write transaction
func (s *SQLiteStore) MutateNode(ctx context.Context, id string, mode MutateMode, fn MutateFunc) (*core.Node, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Storage("begin", err)
	}
	defer tx.Rollback()

	current, err := s.getNode(ctx, tx, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	next, err := apply(id, current, mode, fn)
	if err != nil {
		return nil, err
	}

	prevReviews := 0
	if current != nil {
		prevReviews = len(current.ReviewHistory)
	}
	if err := s.writeNode(ctx, tx, next, prevReviews); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, core.Storage("commit", err)
	}
	return next, nil
}

// PutEdge upserts a relationship between two existing nodes
func (s *SQLiteStore) PutEdge(ctx context.Context, edge *core.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Storage("begin", err)
	}
	defer tx.Rollback()

	for _, id := range []string{edge.Source, edge.Target} {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "node", ID: id}
		}
		if err != nil {
			return core.Storage("put edge", err)
		}
	}

	query := `
		INSERT INTO edges (id, source_id, target_id, relation_type, strength, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strength = excluded.strength,
			reasoning = excluded.reasoning
	`
	_, err = tx.ExecContext(ctx, query,
		edge.ID,
		edge.Source,
		edge.Target,
		string(edge.RelationType),
		edge.Strength,
		edge.Reasoning,
		formatTime(edge.Created),
	)
	if err != nil {
		return core.Storage("put edge", fmt.Errorf("inserting edge: %w", err))
	}

	// Keep the original creation time on re-adds
	var createdAt string
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM edges WHERE id = ?`, edge.ID).Scan(&createdAt); err != nil {
		return core.Storage("put edge", err)
	}
	edge.Created = parseTime(createdAt)

	if err := tx.Commit(); err != nil {
		return core.Storage("commit", err)
	}
	return nil
}

// Snapshot reads every node, review and edge in one read transaction
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Storage("snapshot", err)
	}
	defer tx.Rollback()

	nodes, err := s.queryNodes(ctx, tx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
	if err != nil {
		return nil, err
	}
	if err := s.attachHistory(ctx, tx, nodes); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, "SELECT "+edgeColumns+" FROM edges ORDER BY id")
	if err != nil {
		return nil, core.Storage("snapshot", err)
	}
	defer rows.Close()

	var edges []*core.Edge
	for rows.Next() {
		edge, err := s.scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storage("snapshot", err)
	}

	return &Snapshot{Nodes: nodes, Edges: edges, TakenAt: time.Now()}, nil
}

// Helper functions

func (s *SQLiteStore) getNode(ctx context.Context, q querier, id string) (*core.Node, error) {
	nodes, err := s.queryNodes(ctx, q, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, &core.NotFoundError{Kind: "node", ID: id}
	}
	if err := s.attachHistory(ctx, q, nodes); err != nil {
		return nil, err
	}
	return nodes[0], nil
}

func (s *SQLiteStore) queryNodes(ctx context.Context, q querier, query string, args ...any) ([]*core.Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Storage("query nodes", err)
	}
	defer rows.Close()

	var nodes []*core.Node
	for rows.Next() {
		node, err := s.scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storage("query nodes", err)
	}
	return nodes, nil
}

// attachHistory loads review history for nodes, in sequence order.
func (s *SQLiteStore) attachHistory(ctx context.Context, q querier, nodes []*core.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	byID := make(map[string]*core.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	query := `SELECT node_id, reviewed_at, quality, mastery_snapshot, notes FROM review_history`
	var args []any
	if len(nodes) == 1 {
		query += ` WHERE node_id = ?`
		args = append(args, nodes[0].ID)
	}
	query += ` ORDER BY node_id, seq`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return core.Storage("query history", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID, reviewedAt string
		var rec core.ReviewRecord
		if err := rows.Scan(&nodeID, &reviewedAt, &rec.Quality, &rec.Mastery, &rec.Notes); err != nil {
			return core.Storage("scan history", err)
		}
		rec.ReviewedAt = parseTime(reviewedAt)
		if n, ok := byID[nodeID]; ok {
			n.ReviewHistory = append(n.ReviewHistory, rec)
		}
	}
	return core.Storage("query history", rows.Err())
}

func (s *SQLiteStore) writeNode(ctx context.Context, tx *sql.Tx, n *core.Node, prevReviews int) error {
	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	miscJSON, err := json.Marshal(n.Misconceptions)
	if err != nil {
		return fmt.Errorf("marshaling misconceptions: %w", err)
	}

	var due sql.NullString
	if n.NextReviewDue != nil {
		due = sql.NullString{String: formatTime(*n.NextReviewDue), Valid: true}
	}

	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			concept = excluded.concept,
			description = excluded.description,
			domain = excluded.domain,
			tags = excluded.tags,
			difficulty = excluded.difficulty,
			mastery_recall = excluded.mastery_recall,
			mastery_application = excluded.mastery_application,
			mastery_explanation = excluded.mastery_explanation,
			mastery_overall = excluded.mastery_overall,
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetition_count = excluded.repetition_count,
			next_review_due = excluded.next_review_due,
			misconceptions = excluded.misconceptions,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		n.ID,
		n.Concept,
		n.Description,
		n.Domain,
		string(tagsJSON),
		n.Difficulty,
		n.MasteryRecall,
		n.MasteryApplication,
		n.MasteryExplanation,
		n.MasteryOverall,
		n.EaseFactor,
		n.IntervalDays,
		n.RepetitionCount,
		due,
		string(miscJSON),
		formatTime(n.Created),
		formatTime(n.Modified),
	)
	if err != nil {
		return core.Storage("write node", fmt.Errorf("upserting node: %w", err))
	}

	// Review history is append-only: only the new tail is inserted
	for i := prevReviews; i < len(n.ReviewHistory); i++ {
		rec := n.ReviewHistory[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_history (node_id, seq, reviewed_at, quality, mastery_snapshot, notes)
			VALUES (?, ?, ?, ?, ?, ?)
		`, n.ID, i, formatTime(rec.ReviewedAt), rec.Quality, rec.Mastery, rec.Notes)
		if err != nil {
			return core.Storage("write node", fmt.Errorf("inserting review: %w", err))
		}
	}
	return nil
}

func (s *SQLiteStore) scanNode(rows *sql.Rows) (*core.Node, error) {
	var n core.Node
	var tags, misconceptions, createdAt, updatedAt string
	var due sql.NullString

	err := rows.Scan(&n.ID, &n.Concept, &n.Description, &n.Domain, &tags, &n.Difficulty,
		&n.MasteryRecall, &n.MasteryApplication, &n.MasteryExplanation, &n.MasteryOverall,
		&n.EaseFactor, &n.IntervalDays, &n.RepetitionCount, &due, &misconceptions,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, core.Storage("scan node", err)
	}

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, core.Storage("scan node", fmt.Errorf("decoding tags of %s: %w", n.ID, err))
	}
	if err := json.Unmarshal([]byte(misconceptions), &n.Misconceptions); err != nil {
		return nil, core.Storage("scan node", fmt.Errorf("decoding misconceptions of %s: %w", n.ID, err))
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Misconceptions == nil {
		n.Misconceptions = []string{}
	}
	if due.Valid {
		t := parseTime(due.String)
		n.NextReviewDue = &t
	}
	n.Created = parseTime(createdAt)
	n.Modified = parseTime(updatedAt)

	return &n, nil
}

func (s *SQLiteStore) scanEdge(rows *sql.Rows) (*core.Edge, error) {
	var e core.Edge
	var relation, createdAt string

	if err := rows.Scan(&e.ID, &e.Source, &e.Target, &relation, &e.Strength, &e.Reasoning, &createdAt); err != nil {
		return nil, core.Storage("scan edge", err)
	}
	e.RelationType = core.RelationType(relation)
	e.Created = parseTime(createdAt)
	return &e, nil
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
