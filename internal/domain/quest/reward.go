package quest

import "math"

// Reward computes the XP for a completed quest:
//
//	base reward x difficulty multiplier x streak bonus
//
// Multiplier values are policy parameters supplied by the caller (config),
// not structural constants.
func Reward(baseXP int64, difficultyMultiplier, streakMultiplier float64) int64 {
	if baseXP <= 0 {
		return 0
	}
	if difficultyMultiplier <= 0 {
		difficultyMultiplier = 1
	}
	if streakMultiplier < 1 {
		streakMultiplier = 1
	}
	return int64(math.Round(float64(baseXP) * difficultyMultiplier * streakMultiplier))
}
