package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

var t0 = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func fresh() State {
	return State{EaseFactor: 2.5}
}

func mustReview(t *testing.T, st State, q Quality, now time.Time) Result {
	t.Helper()
	r, err := Review(st, q, now)
	require.NoError(t, err)
	return r
}

func TestPerfectSequence(t *testing.T) {
	r1 := mustReview(t, fresh(), Perfect, t0)
	assert.Equal(t, 1, r1.IntervalDays)
	assert.Equal(t, 1, r1.Repetitions)
	assert.InDelta(t, 2.6, r1.EaseFactor, 1e-9)

	r2 := mustReview(t, r1.State, Perfect, t0)
	assert.Equal(t, 6, r2.IntervalDays)
	assert.Equal(t, 2, r2.Repetitions)

	r3 := mustReview(t, r2.State, Perfect, t0)
	assert.Equal(t, int(math.Round(6*r2.EaseFactor)), r3.IntervalDays)
	assert.Equal(t, 3, r3.Repetitions)
}

func TestFailureResets(t *testing.T) {
	for q := Blackout; q < Difficult; q++ {
		t.Run(q.String(), func(t *testing.T) {
			st := State{EaseFactor: 2.8, IntervalDays: 40, Repetitions: 7}
			r := mustReview(t, st, q, t0)
			assert.Equal(t, 0, r.Repetitions)
			assert.Equal(t, 1, r.IntervalDays)
			assert.Less(t, r.EaseFactor, st.EaseFactor)
		})
	}
}

func TestEaseFloor(t *testing.T) {
	st := fresh()
	seq := []Quality{0, 5, 1, 0, 3, 0, 2, 0, 0, 4, 0, 0, 0, 1, 3, 3, 0}
	for _, q := range seq {
		r := mustReview(t, st, q, t0)
		assert.GreaterOrEqual(t, r.EaseFactor, MinEaseFactor)
		st = r.State
	}
	assert.Equal(t, MinEaseFactor, st.EaseFactor)
}

func TestEaseAdjustment(t *testing.T) {
	tests := []struct {
		q    Quality
		want float64
	}{
		{Perfect, 2.6},
		{Hesitant, 2.5},
		{Difficult, 2.36},
		{Familiar, 2.18},
		{Remembered, 1.96},
		{Blackout, 1.7},
	}
	for _, tt := range tests {
		t.Run(tt.q.String(), func(t *testing.T) {
			r := mustReview(t, fresh(), tt.q, t0)
			assert.InDelta(t, tt.want, r.EaseFactor, 1e-9)
		})
	}
}

func TestInvalidQuality(t *testing.T) {
	for _, q := range []Quality{-1, 6, 42} {
		_, err := Review(fresh(), q, t0)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrValidation)
	}
}

func TestMalformedStateClamped(t *testing.T) {
	r := mustReview(t, State{EaseFactor: 0.5, IntervalDays: -3, Repetitions: 2}, Hesitant, t0)
	assert.GreaterOrEqual(t, r.EaseFactor, MinEaseFactor)
	// reps 2 -> 3 uses prior interval, clamped to 0
	assert.Equal(t, 0, r.IntervalDays)
}

func TestDueDateHasDayGranularity(t *testing.T) {
	r := mustReview(t, fresh(), Perfect, t0)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), r.NextReviewDue)

	// month rollover
	end := time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 6, 0, 0, 0, 0, time.UTC), DueDate(end, 6))
}

func TestQualityString(t *testing.T) {
	assert.Equal(t, "perfect", Perfect.String())
	assert.Equal(t, "Quality(9)", Quality(9).String())
	assert.True(t, Difficult.Correct())
	assert.False(t, Familiar.Correct())
}

func TestSuggestMastery(t *testing.T) {
	tests := []struct {
		name    string
		q       Quality
		reps    int
		current float64
		want    float64
		ok      bool
	}{
		{"perfect and established", Perfect, 5, 0.5, 0.95, true},
		{"hesitant and established", Hesitant, 4, 0.5, 0.9, true},
		{"perfect early", Perfect, 2, 0.5, 0.8, true},
		{"hesitant early", Hesitant, 3, 0.2, 0.75, true},
		{"difficult after two", Difficult, 2, 0.0, 0.6, true},
		{"first success", Perfect, 1, 0.0, 0.4, true},
		{"familiar lapse", Familiar, 0, 0.8, 0.25, true},
		{"blackout lowers", Blackout, 0, 0.5, 0.4, true},
		{"blackout floor", Remembered, 0, 0.18, 0.1, true},
		{"already there", Difficult, 2, 0.58, 0, false},
		{"blackout at floor", Blackout, 0, 0.1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestMastery(tt.q, tt.reps, tt.current)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
