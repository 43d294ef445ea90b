// Package ledger implements the XP ledger: an append-only record of
// XP-granting events and the source of truth for a user's total XP.
package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/study-quest/progression-engine/internal/domain/user"
	"github.com/study-quest/progression-engine/pkg/timeutil"
)

// Source identifies what kind of event granted (or deducted) XP.
// This is a closed set; anything else is rejected at entry construction.
type Source string

const (
	// SourceQuest - reward for a completed quest instance.
	SourceQuest Source = "quest"

	// SourceBossBattle - bonus from a scored mock exam.
	SourceBossBattle Source = "boss_battle"

	// SourceBonus - miscellaneous grants (Pomodoro session bonus, manual awards).
	SourceBonus Source = "bonus"

	// SourcePenalty - explicitly signed deductions.
	SourcePenalty Source = "penalty"
)

// IsValid reports whether the source is one of the known kinds.
func (s Source) IsValid() bool {
	switch s {
	case SourceQuest, SourceBossBattle, SourceBonus, SourcePenalty:
		return true
	default:
		return false
	}
}

// Entry is one immutable XP ledger record. Entries are never mutated or
// deleted; the sum of a user's entries is their total XP.
type Entry struct {
	// ID is the entry's own identifier.
	ID string

	// UserID is the account the XP belongs to.
	UserID string

	// Amount is the signed XP delta. Negative only for penalty entries.
	Amount int64

	// Source is the kind of event that produced the entry.
	Source Source

	// IdempotencyKey guarantees at-most-once application of the originating
	// event. Appending a key that already exists is rejected.
	IdempotencyKey string

	// RecordedAt is when the entry was appended.
	RecordedAt time.Time
}

var (
	// ErrInvalidSource - entry with a source outside the closed set.
	ErrInvalidSource = errors.New("ledger: invalid entry source")

	// ErrEmptyKey - entry without an idempotency key.
	ErrEmptyKey = errors.New("ledger: idempotency key is required")

	// ErrEmptyUser - entry without a user id.
	ErrEmptyUser = errors.New("ledger: user id is required")

	// ErrNegativeAmount - negative amount on a non-penalty source.
	ErrNegativeAmount = errors.New("ledger: only penalty entries may be negative")
)

// NewEntry creates a validated ledger entry.
func NewEntry(userID string, amount int64, source Source, idempotencyKey string, at time.Time) (Entry, error) {
	if userID == "" {
		return Entry{}, ErrEmptyUser
	}
	if !source.IsValid() {
		return Entry{}, ErrInvalidSource
	}
	if idempotencyKey == "" {
		return Entry{}, ErrEmptyKey
	}
	if amount < 0 && source != SourcePenalty {
		return Entry{}, ErrNegativeAmount
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return Entry{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         amount,
		Source:         source,
		IdempotencyKey: idempotencyKey,
		RecordedAt:     at.UTC(),
	}, nil
}

// Total sums a slice of entries. Used for replay and drift checks.
func Total(entries []Entry) user.XP {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return user.XP(sum)
}

// deriveKey hashes the material into a compact hex key. blake2b-128 keeps
// keys short enough for an indexed column while staying collision-safe.
func deriveKey(material string) string {
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:16])
}

// QuestCompletionKey derives the idempotency key for a quest completion:
// instance id plus the completion day bucket, so retried submissions of the
// same completion always collide while a hypothetical re-assignment on a
// later day would not.
func QuestCompletionKey(instanceID string, completedAt time.Time) string {
	bucket := timeutil.StartOfDay(completedAt).Format("2006-01-02")
	return deriveKey(fmt.Sprintf("quest:%s:%s", instanceID, bucket))
}

// BattleKey derives the idempotency key for a boss battle result.
func BattleKey(userID, examID string) string {
	return deriveKey(fmt.Sprintf("battle:%s:%s", userID, examID))
}

// SessionBonusKey derives the idempotency key for a Pomodoro session bonus.
func SessionBonusKey(sessionID string) string {
	return deriveKey(fmt.Sprintf("session:%s", sessionID))
}
