package application

import (
	"context"
	"time"

	"github.com/study-quest/progression-engine/internal/domain/ledger"
	"github.com/study-quest/progression-engine/internal/domain/quest"
	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Store is the persistence collaborator the engine depends on. The engine
// never opens connections or retries: a failed call surfaces as
// shared.ErrPersistenceUnavailable to the caller.
//
// AppendEntry (from ledger.Store) must be atomic append-if-absent keyed by
// idempotency key. All other methods are plain reads and writes.
type Store interface {
	ledger.Store

	// User returns the progression record for an account.
	// Returns shared.ErrUnknownUser when absent.
	User(ctx context.Context, id string) (*user.User, error)

	// SaveUser upserts a progression record.
	SaveUser(ctx context.Context, u *user.User) error

	// Users returns every progression record. Used by leaderboard rebuilds.
	Users(ctx context.Context) ([]*user.User, error)

	// QuestInstance returns one instance by id.
	// Returns shared.ErrUnknownQuest when absent.
	QuestInstance(ctx context.Context, id string) (*quest.Instance, error)

	// SaveQuestInstance upserts an instance.
	SaveQuestInstance(ctx context.Context, inst *quest.Instance) error

	// QuestInstancesFor returns all instances assigned to a user.
	QuestInstancesFor(ctx context.Context, userID string) ([]*quest.Instance, error)

	// OpenQuestInstances returns every non-terminal instance, for the expiry
	// reconciliation sweep.
	OpenQuestInstances(ctx context.Context) ([]*quest.Instance, error)

	// QuestInstanceInWindow returns the user's instance of a template whose
	// assignment falls inside the cadence window starting at windowStart, or
	// shared.ErrUnknownQuest when none exists. Backs the one-instance-per-
	// window assignment rule.
	QuestInstanceInWindow(ctx context.Context, userID, templateID string, windowStart time.Time) (*quest.Instance, error)
}

// Clock abstracts time for the engine so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
