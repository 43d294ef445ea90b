// Package battle converts mock-exam outcomes into pass/fail verdicts and
// bonus XP. Scoring is a pure function of the score, the difficulty tier,
// and the policy parameters; the same inputs always produce the same result.
package battle

import (
	"math"
	"time"

	"github.com/study-quest/progression-engine/internal/domain/shared"
)

// Params are the scoring policy knobs. Defaults come from config; tests pin
// them explicitly.
type Params struct {
	// PerPointXP is the XP granted per effective score point before the
	// difficulty multiplier.
	PerPointXP float64

	// DiminishKnee is the score above which additional points count at
	// DiminishRate instead of full value. Keeps near-perfect runs from
	// dwarfing everything else on the leaderboard.
	DiminishKnee float64

	// DiminishRate is the fraction of value a point above the knee retains.
	DiminishRate float64

	// PassThreshold is the minimum score counted as a victory.
	PassThreshold int

	// ConsolationRate scales the XP of a failed battle. Zero disables
	// consolation XP entirely.
	ConsolationRate float64

	// Multipliers maps each difficulty tier to its reward multiplier.
	Multipliers map[shared.Difficulty]float64
}

// DefaultParams returns the standard scoring policy.
func DefaultParams() Params {
	return Params{
		PerPointXP:      2.0,
		DiminishKnee:    90,
		DiminishRate:    0.5,
		PassThreshold:   60,
		ConsolationRate: 0.25,
		Multipliers: map[shared.Difficulty]float64{
			shared.DifficultyEasy:   0.75,
			shared.DifficultyNormal: 1.0,
			shared.DifficultyMedium: 1.15,
			shared.DifficultyHard:   1.35,
		},
	}
}

// Result is the outcome of scoring one battle.
type Result struct {
	// UserID and ExamID identify the battle.
	UserID string
	ExamID string

	// Score is the raw exam score as submitted.
	Score int

	// Difficulty is the exam's tier.
	Difficulty shared.Difficulty

	// Passed is true when the score met the pass threshold.
	Passed bool

	// BonusXP is the XP granted for this battle. Failed battles earn
	// consolation XP, scaled down by policy.
	BonusXP int64

	// ScoredAt is when the result was computed.
	ScoredAt time.Time
}

// Scorer evaluates battle outcomes under a fixed policy.
type Scorer struct {
	params Params
}

// NewScorer builds a scorer. Zero-value params fields fall back to defaults
// so partial config overrides stay safe.
func NewScorer(params Params) *Scorer {
	def := DefaultParams()
	if params.PerPointXP <= 0 {
		params.PerPointXP = def.PerPointXP
	}
	if params.DiminishKnee <= 0 {
		params.DiminishKnee = def.DiminishKnee
	}
	if params.DiminishRate <= 0 || params.DiminishRate > 1 {
		params.DiminishRate = def.DiminishRate
	}
	if params.PassThreshold <= 0 {
		params.PassThreshold = def.PassThreshold
	}
	if params.ConsolationRate < 0 {
		params.ConsolationRate = def.ConsolationRate
	}
	if len(params.Multipliers) == 0 {
		params.Multipliers = def.Multipliers
	}
	return &Scorer{params: params}
}

// Score evaluates one battle. The score must be within [0, 100] and the
// difficulty must be a recognized tier; anything else is rejected before any
// state is touched.
func (s *Scorer) Score(userID, examID string, score int, difficulty shared.Difficulty, now time.Time) (Result, error) {
	if score < 0 || score > 100 {
		return Result{}, shared.WrapError("battle", "Score", shared.ErrValueOutOfRange,
			"score must be between 0 and 100", shared.ErrInvalidScore)
	}

	multiplier, ok := s.params.Multipliers[difficulty]
	if !ok || !difficulty.IsValid() {
		return Result{}, shared.WrapError("battle", "Score", shared.ErrInvalidInput,
			"unrecognized difficulty tier "+string(difficulty), shared.ErrInvalidDifficulty)
	}

	passed := score >= s.params.PassThreshold

	effective := float64(score)
	if effective > s.params.DiminishKnee {
		effective = s.params.DiminishKnee + (effective-s.params.DiminishKnee)*s.params.DiminishRate
	}

	bonus := effective * s.params.PerPointXP * multiplier
	if !passed {
		bonus *= s.params.ConsolationRate
	}

	return Result{
		UserID:     userID,
		ExamID:     examID,
		Score:      score,
		Difficulty: difficulty,
		Passed:     passed,
		BonusXP:    int64(math.Round(bonus)),
		ScoredAt:   now.UTC(),
	}, nil
}

// PassThreshold exposes the configured victory threshold.
func (s *Scorer) PassThreshold() int {
	return s.params.PassThreshold
}
