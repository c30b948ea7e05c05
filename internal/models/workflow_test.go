package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newWorkflow() *WorkflowCompletion {
	w := &WorkflowCompletion{RequiredSteps: DefaultSteps()}
	w.Recompute()
	return w
}

func TestDefaultSteps(t *testing.T) {
	steps := DefaultSteps()
	assert.Len(t, steps, 8)
	for _, s := range steps {
		assert.True(t, s.Required)
	}
}

func TestCompletionPercentage(t *testing.T) {
	w := newWorkflow()
	now := time.Now()

	assert.Equal(t, 0, w.CompletionPercentage)
	assert.False(t, w.IsComplete)

	// Complete 7 of 8 required steps: round(700/8) = 88
	for _, s := range w.RequiredSteps[:7] {
		w.MarkStep(s.ID, true, nil, now)
	}
	assert.Equal(t, 88, w.CompletionPercentage)
	assert.False(t, w.IsComplete)

	// The 8th takes it to 100
	w.MarkStep(w.RequiredSteps[7].ID, true, nil, now)
	assert.Equal(t, 100, w.CompletionPercentage)
	assert.True(t, w.IsComplete)
}

func TestIsCompleteIffRequiredCovered(t *testing.T) {
	now := time.Now()

	// Mixed required/optional list, toggled in arbitrary orders
	steps := StepList{
		{ID: "a", Name: "A", Required: true},
		{ID: "b", Name: "B", Required: false},
		{ID: "c", Name: "C", Required: true},
	}

	orders := [][]string{
		{"a", "c"},
		{"c", "a"},
		{"b", "a", "c"},
		{"c", "b", "a"},
	}

	for _, order := range orders {
		w := &WorkflowCompletion{RequiredSteps: steps}
		w.Recompute()

		for _, id := range order {
			w.MarkStep(id, true, nil, now)
		}

		// Complete iff both required steps are in the set, regardless of order
		// or optional-step noise
		assert.True(t, w.IsComplete, "order %v", order)
		assert.Equal(t, 100, w.CompletionPercentage)

		w.MarkStep("a", false, nil, now)
		assert.False(t, w.IsComplete)
		assert.Equal(t, 50, w.CompletionPercentage)
	}
}

func TestMarkStepIdempotent(t *testing.T) {
	w := newWorkflow()
	now := time.Now()

	changed := w.MarkStep("photos", true, map[string]interface{}{"count": 4}, now)
	assert.True(t, changed)

	changed = w.MarkStep("photos", true, nil, now)
	assert.False(t, changed, "re-completing a completed step is a no-op")
	assert.Len(t, w.CompletedSteps, 1)

	changed = w.MarkStep("photos", false, nil, now)
	assert.True(t, changed)
	assert.Len(t, w.CompletedSteps, 0)

	changed = w.MarkStep("photos", false, nil, now)
	assert.False(t, changed, "removing an absent step is a no-op")
}

func TestOptionalStepsExcludedFromPercentage(t *testing.T) {
	w := &WorkflowCompletion{
		RequiredSteps: StepList{
			{ID: "a", Name: "A", Required: true},
			{ID: "opt", Name: "Optional", Required: false},
		},
	}
	w.Recompute()
	assert.Equal(t, 0, w.CompletionPercentage)

	w.MarkStep("opt", true, nil, time.Now())
	assert.Equal(t, 0, w.CompletionPercentage, "optional steps do not count")

	w.MarkStep("a", true, nil, time.Now())
	assert.Equal(t, 100, w.CompletionPercentage)
	assert.True(t, w.IsComplete)
}

func TestOverrideExpired(t *testing.T) {
	now := time.Now()
	req := &SupervisorOverrideRequest{
		RequestedAt: now,
		ExpiresAt:   now.Add(OverrideExpiry),
	}

	assert.False(t, req.Expired(now))
	assert.False(t, req.Expired(now.Add(OverrideExpiry)))
	assert.True(t, req.Expired(now.Add(OverrideExpiry+time.Second)))
}

func TestUrgencyRank(t *testing.T) {
	assert.Greater(t, UrgencyCritical.Rank(), UrgencyHigh.Rank())
	assert.Greater(t, UrgencyHigh.Rank(), UrgencyMedium.Rank())
	assert.Greater(t, UrgencyMedium.Rank(), UrgencyLow.Rank())
}

func TestPhotoStatusPassing(t *testing.T) {
	assert.True(t, PhotoValid.Passing())
	assert.True(t, PhotoManualReview.Passing())
	assert.False(t, PhotoInvalid.Passing())
	assert.False(t, PhotoFlagged.Passing())
	assert.False(t, PhotoPending.Passing())
}
