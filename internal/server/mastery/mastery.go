// Package mastery aggregates per-dimension mastery scores.
package mastery

// Dimension weights for the overall score.
const (
	RecallWeight      = 0.3
	ApplicationWeight = 0.4
	ExplanationWeight = 0.3
)

// Overall combines the three mastery dimensions into a single score in [0,1].
func Overall(recall, application, explanation float64) float64 {
	return Clamp(RecallWeight*recall + ApplicationWeight*application + ExplanationWeight*explanation)
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Band is a coarse mastery level used for display.
type Band string

const (
	Struggling Band = "struggling"
	Learning   Band = "learning"
	Proficient Band = "proficient"
	Mastered   Band = "mastered"
)

// BandOf maps an overall score to its display band.
func BandOf(overall float64) Band {
	switch {
	case overall < 0.3:
		return Struggling
	case overall < 0.6:
		return Learning
	case overall < 0.85:
		return Proficient
	default:
		return Mastered
	}
}

// Bucket names for progress distributions, lowest first.
var Buckets = []string{"not_started", "beginning", "learning", "proficient", "mastered"}

// BucketOf returns the distribution bucket for an overall score.
func BucketOf(overall float64) string {
	switch {
	case overall < 0.2:
		return Buckets[0]
	case overall < 0.4:
		return Buckets[1]
	case overall < 0.6:
		return Buckets[2]
	case overall < 0.8:
		return Buckets[3]
	default:
		return Buckets[4]
	}
}
