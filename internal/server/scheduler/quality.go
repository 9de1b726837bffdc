package scheduler

import (
	"fmt"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

// Quality is the learner's SM-2 response rating, 0 (blackout) to 5 (perfect).
type Quality int

const (
	Blackout    Quality = iota // Complete failure to recall.
	Remembered                 // Incorrect; answer recognized once shown.
	Familiar                   // Incorrect; answer seemed easy once shown.
	Difficult                  // Correct with serious difficulty.
	Hesitant                   // Correct after hesitation.
	Perfect                    // Correct, effortless.
)

var qualityNames = [...]string{
	Blackout:   "blackout",
	Remembered: "remembered",
	Familiar:   "familiar",
	Difficult:  "difficult",
	Hesitant:   "hesitant",
	Perfect:    "perfect",
}

// String returns the rating name, or "Quality(n)" for invalid values.
func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// IsValid reports whether q is within [0,5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Correct reports whether the rating counts as a successful recall.
func (q Quality) Correct() bool {
	return q >= Difficult
}

// ParseQuality validates an integer rating.
func ParseQuality(v int) (Quality, error) {
	q := Quality(v)
	if !q.IsValid() {
		return 0, &core.ValidationError{Field: "quality", Value: v, Reason: "must be between 0 and 5"}
	}
	return q, nil
}
