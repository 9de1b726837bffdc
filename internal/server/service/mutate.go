package service

import (
	"context"
	"slices"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mastery"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/metrics"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/scheduler"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

// AddNodeRequest creates a concept or updates the one with the same name.
type AddNodeRequest struct {
	Concept     string   `json:"concept" validate:"required"`
	Description string   `json:"description,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Difficulty  *float64 `json:"difficulty,omitempty" validate:"omitempty,gte=0,lte=1"`
	Tags        []string `json:"tags,omitempty"`
}

// NodeResult is the outcome of a node upsert.
type NodeResult struct {
	ID      string     `json:"id"`
	Created bool       `json:"created"`
	Node    *core.Node `json:"node"`
}

// AddNode upserts the node whose id is the slug of req.Concept. Empty
// optional fields leave existing values untouched.
func (s *Service) AddNode(ctx context.Context, req AddNodeRequest) (res *NodeResult, err error) {
	ctx, end := s.begin(ctx, "add_node", attribute.String("kg.concept", req.Concept))
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	id := core.Slug(req.Concept)
	if id == "" {
		return nil, &core.ValidationError{Field: "concept", Value: req.Concept, Reason: "must contain a letter or digit"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	created := false
	n, err := s.store.MutateNode(ctx, id, store.CreateIfMissing, func(n *core.Node, exists bool) error {
		if !exists {
			created = true
			n.Created = now
		}
		n.Concept = req.Concept
		if req.Description != "" {
			n.Description = req.Description
		}
		if req.Domain != "" {
			n.Domain = req.Domain
		}
		if req.Difficulty != nil {
			n.Difficulty = *req.Difficulty
		}
		if req.Tags != nil {
			tags := slices.Clone(req.Tags)
			slices.Sort(tags)
			n.Tags = slices.Compact(tags)
		}
		n.Modified = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &NodeResult{ID: n.ID, Created: created, Node: n}, nil
}

// AddEdgeRequest links two concepts. Concepts are resolved by id, name or
// slug.
type AddEdgeRequest struct {
	SourceConcept string   `json:"source_concept" validate:"required"`
	TargetConcept string   `json:"target_concept" validate:"required"`
	RelationType  string   `json:"relation_type" validate:"required"`
	Strength      *float64 `json:"strength,omitempty" validate:"omitempty,gte=0,lte=1"`
	Reasoning     string   `json:"reasoning,omitempty"`
}

// EdgeResult is the outcome of an edge upsert.
type EdgeResult struct {
	ID   string     `json:"id"`
	Edge *core.Edge `json:"edge"`
}

// AddEdge upserts the edge keyed by (source, relation, target). Re-adding
// an edge updates its strength and reasoning.
func (s *Service) AddEdge(ctx context.Context, req AddEdgeRequest) (res *EdgeResult, err error) {
	ctx, end := s.begin(ctx, "add_edge",
		attribute.String("kg.source", req.SourceConcept),
		attribute.String("kg.target", req.TargetConcept),
		attribute.String("kg.relation", req.RelationType),
	)
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	relation, err := core.ParseRelationType(req.RelationType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.resolve(ctx, req.SourceConcept)
	if err != nil {
		return nil, err
	}
	target, err := s.resolve(ctx, req.TargetConcept)
	if err != nil {
		return nil, err
	}
	if source.ID == target.ID {
		return nil, &core.ValidationError{Field: "target_concept", Value: req.TargetConcept, Reason: "an edge cannot connect a concept to itself"}
	}

	strength := core.DefaultStrength
	if req.Strength != nil {
		strength = *req.Strength
	}
	edge := &core.Edge{
		ID:           core.EdgeID(source.ID, target.ID, relation),
		Source:       source.ID,
		Target:       target.ID,
		RelationType: relation,
		Strength:     strength,
		Reasoning:    req.Reasoning,
		Created:      s.now(),
	}
	if err := s.store.PutEdge(ctx, edge); err != nil {
		return nil, err
	}
	return &EdgeResult{ID: edge.ID, Edge: edge}, nil
}

// UpdateNodeRequest records mastery changes, a review or a misconception.
type UpdateNodeRequest struct {
	NodeID                string   `json:"node_id" validate:"required"`
	Quality               *int     `json:"quality,omitempty" validate:"omitempty,gte=0,lte=5"`
	MasteryRecall         *float64 `json:"mastery_recall,omitempty" validate:"omitempty,gte=0,lte=1"`
	MasteryApplication    *float64 `json:"mastery_application,omitempty" validate:"omitempty,gte=0,lte=1"`
	MasteryExplanation    *float64 `json:"mastery_explanation,omitempty" validate:"omitempty,gte=0,lte=1"`
	Difficulty            *float64 `json:"difficulty,omitempty" validate:"omitempty,gte=0,lte=1"`
	MisconceptionDetected string   `json:"misconception_detected,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
}

// UpdateResult is the node after an update, plus the review outcome when
// a quality rating was given.
//
// SuggestedMastery is an advisory overall mastery derived from the rating
// and repetition count. It is never written to the node; the caller may
// feed it back as explicit mastery dimensions.
type UpdateResult struct {
	Node             *core.Node `json:"node"`
	ReviewRecorded   bool       `json:"review_recorded"`
	IntervalDays     int        `json:"interval_days,omitempty"`
	SuggestedMastery *float64   `json:"suggested_mastery,omitempty"`
}

// UpdateNode applies mastery dimensions and difficulty, then, if a quality
// rating is present, runs the scheduler and appends a review record whose
// snapshot is the new overall mastery. Without a rating the scheduling
// state is untouched.
func (s *Service) UpdateNode(ctx context.Context, req UpdateNodeRequest) (res *UpdateResult, err error) {
	ctx, end := s.begin(ctx, "update_node", attribute.String("kg.node", req.NodeID))
	defer end(&err)

	if err := core.Validate(req); err != nil {
		return nil, err
	}
	var quality scheduler.Quality
	if req.Quality != nil {
		if quality, err = scheduler.ParseQuality(*req.Quality); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.resolve(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var suggested *float64
	n, err := s.store.MutateNode(ctx, current.ID, store.MustExist, func(n *core.Node, exists bool) error {
		if req.MasteryRecall != nil {
			n.MasteryRecall = *req.MasteryRecall
		}
		if req.MasteryApplication != nil {
			n.MasteryApplication = *req.MasteryApplication
		}
		if req.MasteryExplanation != nil {
			n.MasteryExplanation = *req.MasteryExplanation
		}
		if req.Difficulty != nil {
			n.Difficulty = *req.Difficulty
		}

		if req.Quality != nil {
			next, err := scheduler.Review(scheduler.State{
				EaseFactor:   n.EaseFactor,
				IntervalDays: n.IntervalDays,
				Repetitions:  n.RepetitionCount,
			}, quality, now)
			if err != nil {
				return err
			}
			n.EaseFactor = next.EaseFactor
			n.IntervalDays = next.IntervalDays
			n.RepetitionCount = next.Repetitions
			due := next.NextReviewDue
			n.NextReviewDue = &due
			overall := mastery.Overall(n.MasteryRecall, n.MasteryApplication, n.MasteryExplanation)
			n.ReviewHistory = append(n.ReviewHistory, core.ReviewRecord{
				ReviewedAt: now,
				Quality:    int(quality),
				Mastery:    overall,
				Notes:      req.Notes,
			})
			suggested = nil
			if target, ok := scheduler.SuggestMastery(quality, next.Repetitions, overall); ok {
				suggested = &target
			}
		}

		n.AddMisconception(req.MisconceptionDetected)
		n.Modified = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &UpdateResult{Node: n}
	if req.Quality != nil {
		res.ReviewRecorded = true
		res.IntervalDays = n.IntervalDays
		res.SuggestedMastery = suggested
		metrics.ReviewsTotal.WithLabelValues(strconv.Itoa(int(quality))).Inc()
	}
	return res, nil
}
