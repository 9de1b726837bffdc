// Package scheduler implements SM-2 spaced-repetition scheduling.
//
// Review is a pure function over a concept's scheduling state: it never reads
// the clock and never touches storage. Callers pass the review time.
package scheduler

import (
	"math"
	"time"
)

// MinEaseFactor is the SM-2 floor for the ease factor.
const MinEaseFactor = 1.3

// Fixed SM-2 intervals for the first two successful repetitions.
const (
	FirstInterval  = 1
	SecondInterval = 6
)

// State is the per-concept scheduling state.
type State struct {
	EaseFactor   float64 `json:"ease_factor"`
	IntervalDays int     `json:"interval_days"`
	Repetitions  int     `json:"repetition_count"`
}

// Result is the state after a review plus the next due date.
type Result struct {
	State
	NextReviewDue time.Time `json:"next_review_due"`
}

// Review applies one quality rating to st at time now.
//
// A malformed input state (ease below the floor, negative interval or
// repetition count) is clamped before use rather than propagated.
func Review(st State, q Quality, now time.Time) (Result, error) {
	if _, err := ParseQuality(int(q)); err != nil {
		return Result{}, err
	}
	st = sanitize(st)

	next := State{EaseFactor: nextEase(st.EaseFactor, q)}
	if q.Correct() {
		next.Repetitions = st.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.IntervalDays = FirstInterval
		case 2:
			next.IntervalDays = SecondInterval
		default:
			next.IntervalDays = int(math.Round(float64(st.IntervalDays) * st.EaseFactor))
		}
	} else {
		next.Repetitions = 0
		next.IntervalDays = FirstInterval
	}

	return Result{State: next, NextReviewDue: DueDate(now, next.IntervalDays)}, nil
}

// nextEase applies the SM-2 ease adjustment and the 1.3 floor.
func nextEase(ease float64, q Quality) float64 {
	d := float64(Perfect - q)
	ease += 0.1 - d*(0.08+d*0.02)
	return math.Max(MinEaseFactor, ease)
}

// DueDate returns the calendar day interval days after now, at midnight in
// now's location. Scheduling has day granularity.
func DueDate(now time.Time, interval int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+interval, 0, 0, 0, 0, now.Location())
}

func sanitize(st State) State {
	if st.EaseFactor < MinEaseFactor || math.IsNaN(st.EaseFactor) {
		st.EaseFactor = MinEaseFactor
	}
	if st.IntervalDays < 0 {
		st.IntervalDays = 0
	}
	if st.Repetitions < 0 {
		st.Repetitions = 0
	}
	return st
}

// minSuggestedChange is the smallest gap between the current and target
// mastery worth reporting.
const minSuggestedChange = 0.05

// SuggestMastery maps a review to a target overall mastery. reps is the
// repetition count after the review. ok is false when the target is within
// minSuggestedChange of current. The suggestion is advisory; callers decide
// whether to act on it.
func SuggestMastery(q Quality, reps int, current float64) (target float64, ok bool) {
	switch {
	case q >= Hesitant && reps >= 4:
		target = 0.9 + float64(q-Hesitant)*0.05
	case q >= Hesitant && reps >= 2:
		target = 0.75 + float64(q-Hesitant)*0.05
	case q >= Difficult && reps >= 2:
		target = 0.6
	case q >= Difficult:
		target = 0.4
	case q >= Familiar:
		target = 0.25
	default:
		target = math.Max(0.1, current-0.1)
	}
	target = math.Round(target*100) / 100
	if math.Abs(target-current) < minSuggestedChange {
		return 0, false
	}
	return target, true
}
