// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrDuplicate       = errors.New("duplicate event")
	ErrExpired         = errors.New("expired")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "quest", "leaderboard"
	Op      string // Operation that failed, e.g., "Append", "Complete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progression engine error taxonomy. Callers match these with errors.Is().
var (
	// ErrInvalidTransition - a quest state machine transition was violated.
	ErrInvalidTransition = NewDomainError("quest", "Transition", ErrStateTransition, "invalid quest state transition")

	// ErrDuplicateEvent - an idempotency key was replayed. Callers treat this
	// as success-with-no-op: the originating event has already been applied.
	ErrDuplicateEvent = NewDomainError("ledger", "Append", ErrDuplicate, "ledger entry with this idempotency key already exists")

	// ErrInvalidScore - a boss battle score outside [0, 100].
	ErrInvalidScore = NewDomainError("battle", "Score", ErrValueOutOfRange, "score must be between 0 and 100")

	// ErrInvalidDifficulty - an unrecognized difficulty tier.
	ErrInvalidDifficulty = NewDomainError("battle", "Score", ErrInvalidInput, "unrecognized difficulty tier")

	// ErrUnknownUser - referential lookup failure for a user id.
	ErrUnknownUser = NewDomainError("user", "Find", ErrNotFound, "user not found")

	// ErrUnknownQuest - referential lookup failure for a quest instance id.
	ErrUnknownQuest = NewDomainError("quest", "Find", ErrNotFound, "quest instance not found")

	// ErrUnknownTemplate - referential lookup failure for a quest template id.
	ErrUnknownTemplate = NewDomainError("quest", "FindTemplate", ErrNotFound, "quest template not found")

	// ErrPersistenceUnavailable - the persistence collaborator call failed.
	// Propagated to the caller; the engine performs no automatic retry.
	ErrPersistenceUnavailable = NewDomainError("store", "Call", ErrServiceUnavailable, "persistence store unavailable")
)

// Leveling and skill errors.
var (
	ErrInvalidAttribute       = NewDomainError("user", "Allocate", ErrInvalidInput, "unknown attribute name")
	ErrInsufficientSkillPoint = NewDomainError("user", "Allocate", ErrValueOutOfRange, "not enough skill points")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateEvent checks if the error is an idempotency-key replay.
func IsDuplicateEvent(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsPersistence checks if the error came from the persistence collaborator.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrTimeout)
}
