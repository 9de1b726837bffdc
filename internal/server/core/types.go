package core

import (
	"fmt"
	"slices"
	"time"
)

// RelationType is the closed set of pedagogical relationships between concepts.
type RelationType string

const (
	Prerequisite RelationType = "prerequisite" // source must be known before target
	BuildsOn     RelationType = "builds_on"    // target extends source
	RelatedTo    RelationType = "related_to"
	Contradicts  RelationType = "contradicts" // source is a wrong belief about target
	AppliesTo    RelationType = "applies_to"
	ParentOf     RelationType = "parent_of"
)

// RelationTypes lists every valid relation type in declaration order.
var RelationTypes = []RelationType{Prerequisite, BuildsOn, RelatedTo, Contradicts, AppliesTo, ParentOf}

// IsValid reports whether r is one of the known relation types.
func (r RelationType) IsValid() bool {
	return slices.Contains(RelationTypes, r)
}

// ParseRelationType validates s against the closed set of relation types.
func ParseRelationType(s string) (RelationType, error) {
	r := RelationType(s)
	if !r.IsValid() {
		return "", &ValidationError{Field: "relation_type", Value: s, Reason: fmt.Sprintf("must be one of %v", RelationTypes)}
	}
	return r, nil
}

// ReviewRecord is one entry in a node's append-only review history.
type ReviewRecord struct {
	ReviewedAt time.Time `json:"reviewed_at"`
	Quality    int       `json:"quality"`
	Mastery    float64   `json:"mastery_snapshot"`
	Notes      string    `json:"notes,omitempty"`
}

// Node is a concept in the learner's graph.
type Node struct {
	ID          string   `json:"id"`
	Concept     string   `json:"concept"`
	Description string   `json:"description,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Tags        []string `json:"tags"`
	Difficulty  float64  `json:"difficulty"`

	MasteryRecall      float64 `json:"mastery_recall"`
	MasteryApplication float64 `json:"mastery_application"`
	MasteryExplanation float64 `json:"mastery_explanation"`
	// MasteryOverall is derived from the three dimensions and recomputed on every write.
	MasteryOverall float64 `json:"mastery_overall"`

	EaseFactor      float64        `json:"ease_factor"`
	IntervalDays    int            `json:"interval_days"`
	RepetitionCount int            `json:"repetition_count"`
	NextReviewDue   *time.Time     `json:"next_review_due"`
	ReviewHistory   []ReviewRecord `json:"review_history"`

	Misconceptions []string `json:"misconceptions"`

	Created  time.Time `json:"created_at"`
	Modified time.Time `json:"updated_at"`
}

// Default scheduling state for a concept that has never been reviewed.
const (
	DefaultEaseFactor = 2.5
	DefaultDifficulty = 0.5
	DefaultStrength   = 1.0
)

// NewNode returns a node with initial scheduling state and no mastery.
func NewNode(id, concept string, now time.Time) *Node {
	return &Node{
		ID:             id,
		Concept:        concept,
		Tags:           []string{},
		Difficulty:     DefaultDifficulty,
		EaseFactor:     DefaultEaseFactor,
		Misconceptions: []string{},
		Created:        now,
		Modified:       now,
	}
}

// AddMisconception inserts text into the misconception set. It reports
// whether the set changed; inserting an existing text is a no-op.
func (n *Node) AddMisconception(text string) bool {
	if text == "" || slices.Contains(n.Misconceptions, text) {
		return false
	}
	n.Misconceptions = append(n.Misconceptions, text)
	return true
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Tags = slices.Clone(n.Tags)
	c.Misconceptions = slices.Clone(n.Misconceptions)
	c.ReviewHistory = slices.Clone(n.ReviewHistory)
	if n.NextReviewDue != nil {
		due := *n.NextReviewDue
		c.NextReviewDue = &due
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Misconceptions == nil {
		c.Misconceptions = []string{}
	}
	return &c
}

// Edge is a typed, directed relationship between two concepts.
type Edge struct {
	ID           string       `json:"id"`
	Source       string       `json:"source_id"`
	Target       string       `json:"target_id"`
	RelationType RelationType `json:"relation_type"`
	Strength     float64      `json:"strength"`
	Reasoning    string       `json:"reasoning,omitempty"`
	Created      time.Time    `json:"created_at"`
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	return &c
}
