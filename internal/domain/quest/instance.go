package quest

import (
	"time"

	"github.com/google/uuid"

	"github.com/study-quest/progression-engine/internal/domain/shared"
)

// State is a quest instance lifecycle state.
//
// Assigned -> Active -> {Completed | Expired | Failed}
//
// Transitions run in one direction only: once terminal, an instance never
// comes back. Assigned instances may also expire directly when their deadline
// passes untouched.
type State string

const (
	StateAssigned  State = "assigned"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the state absorbs further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateExpired, StateFailed:
		return true
	default:
		return false
	}
}

// Instance is one assignment of a template to a user.
type Instance struct {
	// ID is the instance identifier (UUID).
	ID string

	// UserID is the assignee.
	UserID string

	// TemplateID references the immutable template definition.
	TemplateID string

	// State is the current lifecycle state.
	State State

	// AssignedAt is when the instance was created.
	AssignedAt time.Time

	// ActivatedAt is when first work was recorded. Zero until activated.
	ActivatedAt time.Time

	// Deadline is when the instance expires if not completed.
	Deadline time.Time

	// FinishedAt is when a terminal state was reached. Zero until terminal.
	FinishedAt time.Time

	// AwardedXP is the reward granted on completion. Zero otherwise.
	AwardedXP int64
}

// NewInstance assigns a template to a user.
func NewInstance(template Template, userID string, assignedAt time.Time) *Instance {
	at := assignedAt.UTC()
	return &Instance{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: template.ID,
		State:      StateAssigned,
		AssignedAt: at,
		Deadline:   template.Cadence.Deadline(at),
	}
}

// IsExpired is the pure expiry predicate: an instance past its deadline that
// never reached a terminal state. Evaluated lazily on read and by the
// periodic reconciliation sweep; both must produce identical terminal states.
func (i *Instance) IsExpired(now time.Time) bool {
	if i.State.IsTerminal() {
		return false
	}
	return !i.Deadline.IsZero() && now.After(i.Deadline)
}

// ExpireIfDue applies the expiry transition when the predicate holds.
// Returns true when the instance moved to Expired.
func (i *Instance) ExpireIfDue(now time.Time) bool {
	if !i.IsExpired(now) {
		return false
	}
	i.State = StateExpired
	i.FinishedAt = now.UTC()
	return true
}

// Activate records the first work toward the quest. Activating an already
// active instance is a no-op; a terminal instance rejects the transition.
// An instance past its deadline expires instead of activating.
func (i *Instance) Activate(now time.Time) error {
	if i.ExpireIfDue(now) {
		return transitionError("Activate", i, StateActive)
	}

	switch i.State {
	case StateAssigned:
		i.State = StateActive
		i.ActivatedAt = now.UTC()
		return nil
	case StateActive:
		return nil
	default:
		return transitionError("Activate", i, StateActive)
	}
}

// CompletionResult reports the outcome of a completion attempt.
type CompletionResult struct {
	// State is the instance's state after the attempt.
	State State

	// AwardedXP is the reward attached to the completion. For a repeat call
	// on an already completed instance this is the original award.
	AwardedXP int64

	// AlreadyTerminal is true when the attempt was absorbed by an earlier
	// terminal transition. Repeats of a completed instance are not errors -
	// this keeps retried network calls idempotent.
	AlreadyTerminal bool
}

// Complete applies the completion transition, attaching the computed reward.
// A stale instance past its deadline expires instead: it is never treated as
// completable. Completing an already terminal instance returns the existing
// terminal state without error.
func (i *Instance) Complete(now time.Time, rewardXP int64) (CompletionResult, error) {
	if i.State.IsTerminal() {
		return CompletionResult{State: i.State, AwardedXP: i.AwardedXP, AlreadyTerminal: true}, nil
	}

	if i.ExpireIfDue(now) {
		return CompletionResult{State: StateExpired, AlreadyTerminal: true}, nil
	}

	// First recorded work and completion may arrive as one call.
	if i.State == StateAssigned {
		i.State = StateActive
		i.ActivatedAt = now.UTC()
	}

	i.State = StateCompleted
	i.FinishedAt = now.UTC()
	i.AwardedXP = rewardXP

	return CompletionResult{State: StateCompleted, AwardedXP: rewardXP}, nil
}

// Fail applies the explicit failure transition (e.g. a boss-battle quest tied
// to a failed mock exam). No XP is granted. Failing an already terminal
// instance returns the existing terminal state without error.
func (i *Instance) Fail(now time.Time) (State, error) {
	if i.State.IsTerminal() {
		return i.State, nil
	}

	if i.ExpireIfDue(now) {
		return StateExpired, nil
	}

	if i.State != StateActive {
		return i.State, transitionError("Fail", i, StateFailed)
	}

	i.State = StateFailed
	i.FinishedAt = now.UTC()
	return StateFailed, nil
}

// transitionError builds an ErrInvalidTransition with enough context for the
// caller to render a meaningful message.
func transitionError(op string, i *Instance, target State) error {
	return shared.WrapError("quest", op, shared.ErrStateTransition,
		"cannot move instance "+i.ID+" from "+string(i.State)+" to "+string(target),
		shared.ErrInvalidTransition)
}

// Clone creates a copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}
