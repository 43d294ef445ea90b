package shared

import "strings"

// Difficulty is a closed set of difficulty tiers, shared by quest templates
// and boss battles. Reward multipliers per tier are policy parameters and
// live in config; the tier itself is structural.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether the difficulty is a recognized tier.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Rank orders tiers for monotonicity checks: easy < normal < medium < hard.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyNormal:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	default:
		return -1
	}
}

// ParseDifficulty parses a string into a Difficulty.
func ParseDifficulty(s string) (Difficulty, bool) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	return d, d.IsValid()
}

// Difficulties returns all tiers in ascending order.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyNormal, DifficultyMedium, DifficultyHard}
}
