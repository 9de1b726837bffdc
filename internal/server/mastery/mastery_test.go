package mastery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverallWeights(t *testing.T) {
	assert.InDelta(t, 0.0, Overall(0, 0, 0), 1e-9)
	assert.InDelta(t, 1.0, Overall(1, 1, 1), 1e-9)
	assert.InDelta(t, 0.4, Overall(0, 1, 0), 1e-9)
	assert.InDelta(t, 0.3*0.5+0.4*0.8+0.3*0.2, Overall(0.5, 0.8, 0.2), 1e-9)
}

func TestOverallBounded(t *testing.T) {
	vals := []float64{-1, 0, 0.25, 0.5, 0.75, 1, 2}
	for _, r := range vals {
		for _, a := range vals {
			for _, e := range vals {
				o := Overall(r, a, e)
				assert.GreaterOrEqual(t, o, 0.0)
				assert.LessOrEqual(t, o, 1.0)
				assert.InDelta(t, Clamp(0.3*r+0.4*a+0.3*e), o, 1e-9)
			}
		}
	}
}

func TestBandOf(t *testing.T) {
	assert.Equal(t, Struggling, BandOf(0.1))
	assert.Equal(t, Learning, BandOf(0.3))
	assert.Equal(t, Proficient, BandOf(0.6))
	assert.Equal(t, Mastered, BandOf(0.85))
}

func TestBucketOf(t *testing.T) {
	assert.Equal(t, "not_started", BucketOf(0))
	assert.Equal(t, "beginning", BucketOf(0.2))
	assert.Equal(t, "learning", BucketOf(0.59))
	assert.Equal(t, "proficient", BucketOf(0.6))
	assert.Equal(t, "mastered", BucketOf(1))
}
