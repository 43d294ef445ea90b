package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(d int) time.Time {
	return time.Date(2026, 4, d, 12, 30, 0, 0, time.UTC)
}

func TestStreak_ConsecutiveDays(t *testing.T) {
	var s Streak

	s.RecordActivity(day(6))
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 1, s.Best)

	s.RecordActivity(day(7))
	s.RecordActivity(day(8))
	assert.Equal(t, 3, s.Current)
	assert.Equal(t, 3, s.Best)
}

func TestStreak_SameDayIsIdempotent(t *testing.T) {
	var s Streak

	s.RecordActivity(day(6))
	s.RecordActivity(day(6).Add(5 * time.Hour))
	s.RecordActivity(day(6).Add(11 * time.Hour))

	assert.Equal(t, 1, s.Current)
}

func TestStreak_MissedDayRestartsRun(t *testing.T) {
	var s Streak

	s.RecordActivity(day(6))
	s.RecordActivity(day(7))
	s.RecordActivity(day(9))

	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 2, s.Best)
	assert.Equal(t, time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC), s.StartedAt)
}

func TestStreak_OutOfOrderActivityKeepsRun(t *testing.T) {
	var s Streak

	s.RecordActivity(day(6))
	s.RecordActivity(day(7))
	s.RecordActivity(day(8))

	// A completion stamped with an earlier day arrives late.
	s.RecordActivity(day(7))

	assert.Equal(t, 3, s.Current)
	assert.Equal(t, time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC), s.LastActiveDate)
}

func TestStreak_ActiveDaysAsOf(t *testing.T) {
	var s Streak
	assert.Equal(t, 0, s.ActiveDaysAsOf(day(6)))

	s.RecordActivity(day(6))
	s.RecordActivity(day(7))

	// Observed the next day the run is still alive.
	assert.Equal(t, 2, s.ActiveDaysAsOf(day(8)))

	// Two days after the last activity the run has lapsed.
	assert.Equal(t, 0, s.ActiveDaysAsOf(day(9)))
}

func TestStreak_IsBroken(t *testing.T) {
	var s Streak
	assert.False(t, s.IsBroken(day(6)))

	s.RecordActivity(day(6))
	assert.False(t, s.IsBroken(day(7)))
	assert.True(t, s.IsBroken(day(8)))
}
