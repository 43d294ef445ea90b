package user

import (
	"time"

	"github.com/study-quest/progression-engine/pkg/timeutil"
)

// Streak tracks consecutive UTC days with at least one completed quest.
// It feeds the streak bonus multiplier on quest rewards.
type Streak struct {
	// Current is the current run of consecutive active days.
	Current int

	// Best is the longest run ever recorded.
	Best int

	// LastActiveDate is the most recent active day (start of day, UTC).
	LastActiveDate time.Time

	// StartedAt is when the current run began (start of day, UTC).
	StartedAt time.Time
}

// RecordActivity marks a day as active and updates the run.
func (s *Streak) RecordActivity(at time.Time) {
	day := timeutil.StartOfDay(at)

	if s.LastActiveDate.IsZero() {
		s.Current = 1
		s.Best = 1
		s.LastActiveDate = day
		s.StartedAt = day
		return
	}

	days := timeutil.DaysBetween(s.LastActiveDate, day)
	switch {
	case days < 0:
		// Out-of-order timestamp; a later day is already recorded.
		return
	case days == 0:
		// Same day, nothing changes.
		return
	case days == 1:
		s.Current++
		if s.Current > s.Best {
			s.Best = s.Current
		}
	default:
		// Missed at least one day, the run restarts.
		s.Current = 1
		s.StartedAt = day
	}

	s.LastActiveDate = day
}

// ActiveDaysAsOf returns the streak length as observed at the given time.
// A streak whose last active day is more than one day in the past has lapsed
// and counts as zero, even though Current still holds the stale run.
func (s *Streak) ActiveDaysAsOf(now time.Time) int {
	if s.LastActiveDate.IsZero() {
		return 0
	}
	if timeutil.DaysBetween(s.LastActiveDate, timeutil.StartOfDay(now)) > 1 {
		return 0
	}
	return s.Current
}

// IsBroken reports whether the run has lapsed as of now.
func (s *Streak) IsBroken(now time.Time) bool {
	if s.LastActiveDate.IsZero() {
		return false
	}
	return timeutil.DaysBetween(s.LastActiveDate, timeutil.StartOfDay(now)) > 1
}
