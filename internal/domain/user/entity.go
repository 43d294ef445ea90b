// Package user contains the progression view of a user: cached XP-derived
// fields, skill points, and study attributes. Identity itself is owned by the
// account subsystem; this package only reads and writes what the progression
// engine derives.
package user

import (
	"errors"
	"fmt"
	"time"
)

// XP represents accumulated experience points. The authoritative value is the
// sum of a user's XP ledger entries; the field on User is a cache of that sum.
type XP int64

// Add returns the XP with delta applied.
func (x XP) Add(delta XP) XP {
	return x + delta
}

// Level represents a progression tier, derived from XP via the leveling curve.
type Level int

// Attribute names a trainable study attribute.
type Attribute string

const (
	AttributeMemory        Attribute = "memory"
	AttributeFocus         Attribute = "focus"
	AttributeComprehension Attribute = "comprehension"
	AttributeSpeed         Attribute = "speed"
	AttributeMotivation    Attribute = "motivation"
)

// IsValid reports whether the attribute is one of the known names.
func (a Attribute) IsValid() bool {
	switch a {
	case AttributeMemory, AttributeFocus, AttributeComprehension, AttributeSpeed, AttributeMotivation:
		return true
	default:
		return false
	}
}

// Attributes holds point allocations per attribute.
type Attributes map[Attribute]int

// Clone returns a copy of the attribute map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// User is the progression engine's record for one account.
type User struct {
	// ID is the account identifier (UUID in string form), owned elsewhere.
	ID string

	// DisplayName is carried along for leaderboard projections.
	DisplayName string

	// TotalXP is the cached running sum of the user's ledger entries.
	TotalXP XP

	// Level is the cached level derived from TotalXP.
	Level Level

	// SkillPointsAvailable is the unspent skill point balance.
	SkillPointsAvailable int

	// SkillPointsSpent is the lifetime spent total.
	SkillPointsSpent int

	// Attributes holds allocated attribute points.
	Attributes Attributes

	// Streak tracks consecutive days with at least one completed quest.
	Streak Streak

	// RegisteredAt orders users for deterministic leaderboard tie-breaking:
	// on equal XP and level, the earliest-registered user ranks higher.
	RegisteredAt time.Time

	// CreatedAt is when the progression record was created.
	CreatedAt time.Time

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

var (
	// ErrEmptyUserID - a user record needs an account id.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrNegativeAllocation - attribute allocations must be positive.
	ErrNegativeAllocation = errors.New("attribute allocation must be positive")
)

// New creates a progression record for an account.
func New(id, displayName string, registeredAt time.Time) (*User, error) {
	if id == "" {
		return nil, ErrEmptyUserID
	}
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	now := time.Now().UTC()
	return &User{
		ID:           id,
		DisplayName:  displayName,
		TotalXP:      0,
		Level:        1,
		Attributes:   make(Attributes),
		Streak:       Streak{},
		RegisteredAt: registeredAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ApplyXP updates the cached XP total and level, crediting skill points for
// any levels gained. Returns the number of levels crossed (zero when the
// append did not change the level).
func (u *User) ApplyXP(newTotal XP, newLevel Level, skillPointsGranted int) int {
	levelsGained := int(newLevel - u.Level)

	u.TotalXP = newTotal
	if newLevel > u.Level {
		u.Level = newLevel
		u.SkillPointsAvailable += skillPointsGranted
	}
	u.UpdatedAt = time.Now().UTC()

	return levelsGained
}

// AllocateSkillPoints spends available skill points on attributes. The whole
// allocation is applied atomically: any invalid name or an over-budget total
// leaves the user unchanged.
func (u *User) AllocateSkillPoints(allocations map[Attribute]int) error {
	total := 0
	for attr, points := range allocations {
		if !attr.IsValid() {
			return fmt.Errorf("allocate %q: %w", attr, ErrUnknownAttribute)
		}
		if points <= 0 {
			return ErrNegativeAllocation
		}
		total += points
	}
	if total > u.SkillPointsAvailable {
		return ErrInsufficientPoints
	}

	if u.Attributes == nil {
		u.Attributes = make(Attributes)
	}
	for attr, points := range allocations {
		u.Attributes[attr] += points
	}
	u.SkillPointsAvailable -= total
	u.SkillPointsSpent += total
	u.UpdatedAt = time.Now().UTC()

	return nil
}

var (
	// ErrUnknownAttribute - allocation named an attribute that does not exist.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrInsufficientPoints - allocation exceeds the available balance.
	ErrInsufficientPoints = errors.New("not enough skill points")
)

// RecordCompletion updates the daily streak for a completed quest.
func (u *User) RecordCompletion(at time.Time) {
	u.Streak.RecordActivity(at)
	u.UpdatedAt = time.Now().UTC()
}

// String returns a compact representation for logging.
func (u *User) String() string {
	return fmt.Sprintf(
		"User{ID: %s, XP: %d, Level: %d, SkillPoints: %d}",
		u.ID, u.TotalXP, u.Level, u.SkillPointsAvailable,
	)
}

// Clone creates a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	clone := *u
	clone.Attributes = u.Attributes.Clone()
	return &clone
}
