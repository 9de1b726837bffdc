package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Neo4jStore implements Store on a Neo4j database. Concepts are :Concept
// nodes and edges are :RELATES relationships carrying their relation type.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4j creates a new Neo4j store
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, core.Storage("open", fmt.Errorf("creating neo4j driver: %w", err))
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, core.Storage("open", fmt.Errorf("connecting to neo4j: %w", err))
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{driver: driver, database: database}

	session := s.session(ctx)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `CREATE CONSTRAINT concept_id IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`, nil)
		return nil, err
	})
	if err != nil {
		driver.Close(ctx)
		return nil, core.Storage("open", fmt.Errorf("creating constraint: %w", err))
	}

	return s, nil
}

// Close closes the Neo4j connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// GetNode retrieves a node by ID
func (s *Neo4jStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return readNode(ctx, tx, id)
	})
	if err != nil {
		return nil, core.Storage("get node", err)
	}
	if result.(*core.Node) == nil {
		return nil, &core.NotFoundError{Kind: "node", ID: id}
	}
	return result.(*core.Node), nil
}

// FindNodeByConcept looks a node up by display name, case-insensitively
func (s *Neo4jStore) FindNodeByConcept(ctx context.Context, concept string) (*core.Node, error) {
	nodes, err := s.listNodes(ctx, `
		MATCH (n:Concept) WHERE toLower(n.concept) = toLower($concept)
		RETURN n ORDER BY n.id LIMIT 1
	`, map[string]any{"concept": concept})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, &core.NotFoundError{Kind: "node", ID: concept}
	}
	return nodes[0], nil
}

// ListNodes returns nodes passing filter, ordered by id
func (s *Neo4jStore) ListNodes(ctx context.Context, filter NodeFilter) ([]*core.Node, error) {
	return s.listNodes(ctx, `
		MATCH (n:Concept)
		WHERE ($domain = '' OR n.domain = $domain)
		  AND ($tag = '' OR $tag IN n.tags)
		RETURN n ORDER BY n.id
	`, map[string]any{"domain": filter.Domain, "tag": filter.Tag})
}

// MutateNode reads, applies fn and writes back inside one managed write
// transaction. The driver may retry the function, so fn must be pure.
func (s *Neo4jStore) MutateNode(ctx context.Context, id string, mode MutateMode, fn MutateFunc) (*core.Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		current, err := readNode(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		next, err := apply(id, current, mode, fn)
		if err != nil {
			return nil, err
		}

		params, err := nodeParams(next)
		if err != nil {
			return nil, err
		}
		query := `
			MERGE (n:Concept {id: $id})
			ON CREATE SET n.created_at = $created_at
			SET n.concept = $concept,
				n.description = $description,
				n.domain = $domain,
				n.tags = $tags,
				n.difficulty = $difficulty,
				n.mastery_recall = $mastery_recall,
				n.mastery_application = $mastery_application,
				n.mastery_explanation = $mastery_explanation,
				n.mastery_overall = $mastery_overall,
				n.ease_factor = $ease_factor,
				n.interval_days = $interval_days,
				n.repetition_count = $repetition_count,
				n.next_review_due = $next_review_due,
				n.review_history = $review_history,
				n.misconceptions = $misconceptions,
				n.updated_at = $updated_at
		`
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, core.Storage("mutate node", err)
	}
	return result.(*core.Node), nil
}

// PutEdge upserts a relationship between two existing nodes
func (s *Neo4jStore) PutEdge(ctx context.Context, edge *core.Edge) error {
	if err := checkEdge(edge); err != nil {
		return err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, id := range []string{edge.Source, edge.Target} {
			n, err := readNode(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			if n == nil {
				return nil, &core.NotFoundError{Kind: "node", ID: id}
			}
		}

		query := `
			MATCH (source:Concept {id: $source_id})
			MATCH (target:Concept {id: $target_id})
			MERGE (source)-[r:RELATES {id: $id}]->(target)
			ON CREATE SET r.created_at = $created_at, r.relation_type = $relation_type
			SET r.strength = $strength, r.reasoning = $reasoning
			RETURN r.created_at AS created_at
		`
		result, err := tx.Run(ctx, query, map[string]any{
			"id":            edge.ID,
			"source_id":     edge.Source,
			"target_id":     edge.Target,
			"relation_type": string(edge.RelationType),
			"strength":      edge.Strength,
			"reasoning":     edge.Reasoning,
			"created_at":    formatTime(edge.Created),
		})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		createdAt, _ := record.Get("created_at")
		s, _ := createdAt.(string)
		return s, nil
	})
	if err != nil {
		return core.Storage("put edge", err)
	}
	edge.Created = parseTime(created.(string))
	return nil
}

// Snapshot reads all nodes and edges in one read transaction
func (s *Neo4jStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodes, err := collectNodes(ctx, tx, `MATCH (n:Concept) RETURN n ORDER BY n.id`, nil)
		if err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, `
			MATCH (source:Concept)-[r:RELATES]->(target:Concept)
			RETURN r, source.id AS source_id, target.id AS target_id
			ORDER BY r.id
		`, nil)
		if err != nil {
			return nil, err
		}
		var edges []*core.Edge
		for res.Next(ctx) {
			record := res.Record()
			relValue, _ := record.Get("r")
			sourceID, _ := record.Get("source_id")
			targetID, _ := record.Get("target_id")
			rel := relValue.(neo4j.Relationship)

			edges = append(edges, &core.Edge{
				ID:           propString(rel.Props, "id"),
				Source:       sourceID.(string),
				Target:       targetID.(string),
				RelationType: core.RelationType(propString(rel.Props, "relation_type")),
				Strength:     propFloat(rel.Props, "strength"),
				Reasoning:    propString(rel.Props, "reasoning"),
				Created:      parseTime(propString(rel.Props, "created_at")),
			})
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return &Snapshot{Nodes: nodes, Edges: edges, TakenAt: time.Now()}, nil
	})
	if err != nil {
		return nil, core.Storage("snapshot", err)
	}
	return result.(*Snapshot), nil
}

// Helper functions

func (s *Neo4jStore) listNodes(ctx context.Context, query string, params map[string]any) ([]*core.Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectNodes(ctx, tx, query, params)
	})
	if err != nil {
		return nil, core.Storage("list nodes", err)
	}
	return result.([]*core.Node), nil
}

// readNode returns nil, nil when the node does not exist.
func readNode(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*core.Node, error) {
	nodes, err := collectNodes(ctx, tx, `MATCH (n:Concept {id: $id}) RETURN n`, map[string]any{"id": id})
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

func collectNodes(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]*core.Node, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	nodes := []*core.Node{}
	for result.Next(ctx) {
		nodeValue, _ := result.Record().Get("n")
		node, err := nodeFromProps(nodeValue.(neo4j.Node).Props)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, result.Err()
}

func nodeParams(n *core.Node) (map[string]any, error) {
	// Review history is stored as a JSON string (Neo4j doesn't support lists of maps)
	historyJSON, err := json.Marshal(n.ReviewHistory)
	if err != nil {
		return nil, fmt.Errorf("marshaling review history: %w", err)
	}

	var due any
	if n.NextReviewDue != nil {
		due = formatTime(*n.NextReviewDue)
	}

	return map[string]any{
		"id":                  n.ID,
		"concept":             n.Concept,
		"description":         n.Description,
		"domain":              n.Domain,
		"tags":                n.Tags,
		"difficulty":          n.Difficulty,
		"mastery_recall":      n.MasteryRecall,
		"mastery_application": n.MasteryApplication,
		"mastery_explanation": n.MasteryExplanation,
		"mastery_overall":     n.MasteryOverall,
		"ease_factor":         n.EaseFactor,
		"interval_days":       int64(n.IntervalDays),
		"repetition_count":    int64(n.RepetitionCount),
		"next_review_due":     due,
		"review_history":      string(historyJSON),
		"misconceptions":      n.Misconceptions,
		"created_at":          formatTime(n.Created),
		"updated_at":          formatTime(n.Modified),
	}, nil
}

func nodeFromProps(props map[string]any) (*core.Node, error) {
	n := &core.Node{
		ID:                 propString(props, "id"),
		Concept:            propString(props, "concept"),
		Description:        propString(props, "description"),
		Domain:             propString(props, "domain"),
		Tags:               propStrings(props, "tags"),
		Difficulty:         propFloat(props, "difficulty"),
		MasteryRecall:      propFloat(props, "mastery_recall"),
		MasteryApplication: propFloat(props, "mastery_application"),
		MasteryExplanation: propFloat(props, "mastery_explanation"),
		MasteryOverall:     propFloat(props, "mastery_overall"),
		EaseFactor:         propFloat(props, "ease_factor"),
		IntervalDays:       int(propInt(props, "interval_days")),
		RepetitionCount:    int(propInt(props, "repetition_count")),
		Misconceptions:     propStrings(props, "misconceptions"),
		Created:            parseTime(propString(props, "created_at")),
		Modified:           parseTime(propString(props, "updated_at")),
	}
	if due := propString(props, "next_review_due"); due != "" {
		t := parseTime(due)
		n.NextReviewDue = &t
	}
	if raw := propString(props, "review_history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.ReviewHistory); err != nil {
			return nil, errors.Join(fmt.Errorf("unmarshaling review history of %s", n.ID), err)
		}
	}
	return n, nil
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func propInt(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func propStrings(props map[string]any, key string) []string {
	out := []string{}
	items, _ := props[key].([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
