// Package leveling implements the pure leveling curve: a deterministic,
// monotonic mapping from cumulative XP to level and skill points. A Curve has
// no mutable state and is safe to call from any number of concurrent readers.
package leveling

import (
	"errors"
	"math"

	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Curve defines the XP thresholds per level.
//
// ThresholdFor(n) = Base * (n-1)^Growth is the cumulative XP required to
// reach level n. With Growth > 1 the per-level cost is strictly increasing.
// Every user starts at level 1 with zero XP.
type Curve struct {
	// Base scales the whole curve. With the default Base=100 and Growth=1.5,
	// level 2 costs 100 XP, level 3 costs 283 XP, level 4 costs 519 XP.
	Base float64

	// Growth is the exponent; must be > 1 so thresholds accelerate.
	Growth float64

	// SkillPointsPerLevel is the batch of skill points granted per level-up.
	SkillPointsPerLevel int

	// MaxLevel caps the curve. Zero means uncapped.
	MaxLevel int
}

var (
	// ErrInvalidCurve - curve parameters that would break monotonicity.
	ErrInvalidCurve = errors.New("leveling: base must be positive and growth must be > 1")
)

// DefaultCurve returns the production curve parameters.
func DefaultCurve() Curve {
	return Curve{
		Base:                100,
		Growth:              1.5,
		SkillPointsPerLevel: 5,
		MaxLevel:            0,
	}
}

// Validate checks the curve parameters.
func (c Curve) Validate() error {
	if c.Base <= 0 || c.Growth <= 1 {
		return ErrInvalidCurve
	}
	return nil
}

// ThresholdFor returns the cumulative XP required to reach the given level.
// Level 1 requires 0 XP. Levels below 2 therefore return 0.
func (c Curve) ThresholdFor(level user.Level) user.XP {
	if level <= 1 {
		return 0
	}
	return user.XP(math.Round(c.Base * math.Pow(float64(level-1), c.Growth)))
}

// LevelFor returns the level for a cumulative XP total. The result is
// monotonic non-decreasing in XP; two equal totals always map to the same
// level. Negative totals (possible under penalty entries) clamp to level 1.
func (c Curve) LevelFor(totalXP user.XP) user.Level {
	if totalXP <= 0 {
		return 1
	}

	level := user.Level(1)
	for {
		next := level + 1
		if c.MaxLevel > 0 && int(next) > c.MaxLevel {
			return level
		}
		if totalXP < c.ThresholdFor(next) {
			return level
		}
		level = next
	}
}

// SkillPointsBetween returns the skill points unlocked by moving from
// oldLevel to newLevel: one batch per level crossed, supporting multi-level
// jumps from a single large grant. Zero if the level did not increase.
func (c Curve) SkillPointsBetween(oldLevel, newLevel user.Level) int {
	if newLevel <= oldLevel {
		return 0
	}
	return int(newLevel-oldLevel) * c.SkillPointsPerLevel
}

// ProgressWithin returns how far into the current level a total is, as a
// fraction in [0, 1). At max level it returns 1.
func (c Curve) ProgressWithin(totalXP user.XP) float64 {
	level := c.LevelFor(totalXP)
	if c.MaxLevel > 0 && int(level) >= c.MaxLevel {
		return 1
	}

	floor := c.ThresholdFor(level)
	ceil := c.ThresholdFor(level + 1)
	if ceil <= floor {
		return 0
	}
	return float64(totalXP-floor) / float64(ceil-floor)
}
