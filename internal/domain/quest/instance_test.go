package quest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-quest/progression-engine/internal/domain/shared"
)

var testClock = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func newTestInstance(t *testing.T, cadence Cadence) *Instance {
	t.Helper()
	tmpl := Template{
		ID:         "test-quest",
		Title:      "Test quest",
		Cadence:    cadence,
		BaseXP:     100,
		Difficulty: shared.DifficultyEasy,
	}
	return NewInstance(tmpl, "user-1", testClock)
}

func TestInstance_HappyPath(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)
	assert.Equal(t, StateAssigned, inst.State)
	assert.True(t, inst.Deadline.After(testClock))

	require.NoError(t, inst.Activate(testClock.Add(time.Hour)))
	assert.Equal(t, StateActive, inst.State)

	res, err := inst.Complete(testClock.Add(2*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, int64(100), res.AwardedXP)
	assert.False(t, res.AlreadyTerminal)
}

func TestInstance_ActivateIsIdempotentWhileActive(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)

	require.NoError(t, inst.Activate(testClock))
	require.NoError(t, inst.Activate(testClock.Add(time.Minute)))
	assert.Equal(t, StateActive, inst.State)

	// ActivatedAt keeps the first activation time.
	assert.Equal(t, testClock, inst.ActivatedAt)
}

func TestInstance_ActivateRejectedAfterTerminal(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)
	require.NoError(t, inst.Activate(testClock))
	_, err := inst.Complete(testClock, 100)
	require.NoError(t, err)

	err = inst.Activate(testClock.Add(time.Minute))
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestInstance_CompleteWithoutActivateImpliesActivation(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)

	res, err := inst.Complete(testClock.Add(time.Hour), 42)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.False(t, inst.ActivatedAt.IsZero())
}

func TestInstance_RepeatCompletionIsNoOp(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)

	first, err := inst.Complete(testClock, 100)
	require.NoError(t, err)
	require.False(t, first.AlreadyTerminal)

	// A retried network call sees the same terminal outcome, no error.
	second, err := inst.Complete(testClock.Add(time.Second), 100)
	require.NoError(t, err)
	assert.True(t, second.AlreadyTerminal)
	assert.Equal(t, StateCompleted, second.State)
	assert.Equal(t, int64(100), second.AwardedXP)
}

func TestInstance_LazyExpiryOnComplete(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)
	require.NoError(t, inst.Activate(testClock))

	pastDeadline := inst.Deadline.Add(time.Hour)
	res, err := inst.Complete(pastDeadline, 100)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, res.State)
	assert.Zero(t, res.AwardedXP, "stale instances are never completable past the deadline")
	assert.True(t, res.AlreadyTerminal)
}

func TestInstance_ExpiryPredicate(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)

	assert.False(t, inst.IsExpired(testClock))
	assert.True(t, inst.IsExpired(inst.Deadline.Add(time.Second)))

	// Terminal instances never report expired.
	_, err := inst.Complete(testClock, 10)
	require.NoError(t, err)
	assert.False(t, inst.IsExpired(inst.Deadline.Add(time.Hour)))
}

func TestInstance_ExpireIfDueFromAssigned(t *testing.T) {
	inst := newTestInstance(t, CadenceDaily)

	moved := inst.ExpireIfDue(inst.Deadline.Add(time.Minute))
	assert.True(t, moved)
	assert.Equal(t, StateExpired, inst.State)

	// Idempotent: a second sweep does nothing.
	assert.False(t, inst.ExpireIfDue(inst.Deadline.Add(time.Hour)))
}

func TestInstance_FailTransition(t *testing.T) {
	inst := newTestInstance(t, CadenceWeekly)
	require.NoError(t, inst.Activate(testClock))

	state, err := inst.Fail(testClock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	// Failing again returns the terminal state without error.
	state, err = inst.Fail(testClock.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
}

func TestInstance_FailFromAssignedRejected(t *testing.T) {
	inst := newTestInstance(t, CadenceWeekly)

	_, err := inst.Fail(testClock)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Equal(t, StateAssigned, inst.State)
}

func TestCadence_Windows(t *testing.T) {
	at := time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC) // a Friday

	daily := CadenceDaily
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), daily.WindowStart(at))

	weekly := CadenceWeekly
	assert.Equal(t, time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), weekly.WindowStart(at))

	monthly := CadenceMonthly
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), monthly.WindowStart(at))
	assert.Equal(t, time.April, monthly.Deadline(at).Month())
}

func TestReward(t *testing.T) {
	tests := []struct {
		name   string
		base   int64
		diff   float64
		streak float64
		want   int64
	}{
		{"plain base", 100, 1.0, 1.0, 100},
		{"difficulty scales", 100, 1.5, 1.0, 150},
		{"streak scales", 100, 1.0, 1.1, 110},
		{"both multipliers", 100, 2.0, 1.1, 220},
		{"rounds to nearest", 15, 1.5, 1.0, 23},
		{"zero base", 0, 2.0, 1.5, 0},
		{"sub-one streak clamps", 100, 1.0, 0.5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reward(tt.base, tt.diff, tt.streak))
		})
	}
}

func TestTemplateCatalog(t *testing.T) {
	catalog := Catalog()
	require.NotEmpty(t, catalog)

	seen := make(map[string]bool)
	for _, tmpl := range catalog {
		assert.True(t, tmpl.Cadence.IsValid(), "template %s has invalid cadence", tmpl.ID)
		assert.True(t, tmpl.Difficulty.IsValid(), "template %s has invalid difficulty", tmpl.ID)
		assert.Positive(t, tmpl.BaseXP, "template %s has no reward", tmpl.ID)
		assert.False(t, seen[tmpl.ID], "duplicate template id %s", tmpl.ID)
		seen[tmpl.ID] = true
	}

	tmpl, ok := TemplateByID("daily-read-chapter")
	require.True(t, ok)
	assert.Equal(t, CadenceDaily, tmpl.Cadence)

	assert.Len(t, TemplatesByCadence(CadenceDaily), 4)
	assert.Len(t, TemplatesByCadence(CadenceWeekly), 4)
	assert.Len(t, TemplatesByCadence(CadenceMonthly), 4)
}
