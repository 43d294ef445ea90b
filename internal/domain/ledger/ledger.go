package ledger

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Store is the persistence collaborator for ledger entries. AppendEntry must
// be atomic append-if-absent keyed by idempotency key, returning
// shared.ErrDuplicateEvent when the key already exists.
type Store interface {
	AppendEntry(ctx context.Context, entry Entry) error
	EntriesFor(ctx context.Context, userID string) ([]Entry, error)
	Entries(ctx context.Context) ([]Entry, error)
}

// stripeCount is the number of per-user lock stripes. Appends for one user
// serialize on their stripe; appends across users proceed in parallel.
const stripeCount = 64

// Ledger caches running XP totals over the durable entry store. The cache is
// never authoritative: it can always be rebuilt by replaying the store.
type Ledger struct {
	store Store

	stripes [stripeCount]sync.Mutex

	mu       sync.RWMutex
	totals   map[string]int64
	seenKeys map[string]struct{}
	hydrated map[string]bool
}

// NewLedger creates a ledger over the given entry store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:    store,
		totals:   make(map[string]int64),
		seenKeys: make(map[string]struct{}),
		hydrated: make(map[string]bool),
	}
}

// stripeFor maps a user id onto a lock stripe.
func (l *Ledger) stripeFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &l.stripes[h.Sum32()%stripeCount]
}

// AppendResult reports the outcome of an append.
type AppendResult struct {
	// OldTotal is the user's total before the entry was applied.
	OldTotal user.XP

	// NewTotal is the total after the entry. On a duplicate, equal to OldTotal.
	NewTotal user.XP

	// Duplicate is true when the idempotency key had already been applied.
	// Duplicates are not an error for the originating caller.
	Duplicate bool
}

// Append records one entry. Appends for a given user serialize on that
// user's stripe so the cached running total never loses an update; appends
// for different users proceed in parallel. The store's append-if-absent
// provides the cross-process guarantee.
//
// Returns shared.ErrDuplicateEvent (wrapped in the result) when the
// idempotency key has been applied before.
func (l *Ledger) Append(ctx context.Context, entry Entry) (AppendResult, error) {
	stripe := l.stripeFor(entry.UserID)
	stripe.Lock()
	defer stripe.Unlock()

	if err := l.hydrateLocked(ctx, entry.UserID); err != nil {
		return AppendResult{}, err
	}

	l.mu.RLock()
	_, dup := l.seenKeys[entry.IdempotencyKey]
	total := l.totals[entry.UserID]
	l.mu.RUnlock()

	if dup {
		return AppendResult{OldTotal: user.XP(total), NewTotal: user.XP(total), Duplicate: true}, shared.ErrDuplicateEvent
	}

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		if shared.IsDuplicateEvent(err) {
			// Another writer got there first; record the key locally so the
			// fast path catches the next retry.
			l.mu.Lock()
			l.seenKeys[entry.IdempotencyKey] = struct{}{}
			l.mu.Unlock()
			return AppendResult{OldTotal: user.XP(total), NewTotal: user.XP(total), Duplicate: true}, shared.ErrDuplicateEvent
		}
		return AppendResult{}, shared.WrapError("ledger", "Append", shared.ErrServiceUnavailable, "store append failed", err)
	}

	l.mu.Lock()
	l.seenKeys[entry.IdempotencyKey] = struct{}{}
	l.totals[entry.UserID] = total + entry.Amount
	l.mu.Unlock()

	return AppendResult{
		OldTotal: user.XP(total),
		NewTotal: user.XP(total + entry.Amount),
	}, nil
}

// TotalFor returns the cached running sum for a user, hydrating from the
// store on first touch.
func (l *Ledger) TotalFor(ctx context.Context, userID string) (user.XP, error) {
	stripe := l.stripeFor(userID)
	stripe.Lock()
	defer stripe.Unlock()

	if err := l.hydrateLocked(ctx, userID); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return user.XP(l.totals[userID]), nil
}

// hydrateLocked loads a user's entries into the cache on first touch.
// Caller must hold the user's stripe.
func (l *Ledger) hydrateLocked(ctx context.Context, userID string) error {
	l.mu.RLock()
	done := l.hydrated[userID]
	l.mu.RUnlock()
	if done {
		return nil
	}

	entries, err := l.store.EntriesFor(ctx, userID)
	if err != nil {
		return shared.WrapError("ledger", "Hydrate", shared.ErrServiceUnavailable, "store read failed", err)
	}

	var total int64
	l.mu.Lock()
	for _, e := range entries {
		total += e.Amount
		l.seenKeys[e.IdempotencyKey] = struct{}{}
	}
	l.totals[userID] = total
	l.hydrated[userID] = true
	l.mu.Unlock()

	return nil
}

// Invalidate drops the cached total for a user, forcing a replay on next read.
func (l *Ledger) Invalidate(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.totals, userID)
	delete(l.hydrated, userID)
}

// Rebuild discards the whole cache and replays every entry from the store.
// Used by the leaderboard rebuild path and by drift checks.
func (l *Ledger) Rebuild(ctx context.Context) (map[string]user.XP, error) {
	entries, err := l.store.Entries(ctx)
	if err != nil {
		return nil, shared.WrapError("ledger", "Rebuild", shared.ErrServiceUnavailable, "store read failed", err)
	}

	totals := make(map[string]int64)
	seen := make(map[string]struct{}, len(entries))
	hydrated := make(map[string]bool)
	for _, e := range entries {
		totals[e.UserID] += e.Amount
		seen[e.IdempotencyKey] = struct{}{}
		hydrated[e.UserID] = true
	}

	l.mu.Lock()
	l.totals = totals
	l.seenKeys = seen
	l.hydrated = hydrated
	l.mu.Unlock()

	out := make(map[string]user.XP, len(totals))
	for id, total := range totals {
		out[id] = user.XP(total)
	}
	return out, nil
}

// EntriesFor exposes a user's raw entries for analytics replay and audits.
func (l *Ledger) EntriesFor(ctx context.Context, userID string) ([]Entry, error) {
	entries, err := l.store.EntriesFor(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("ledger", "EntriesFor", shared.ErrServiceUnavailable, "store read failed", err)
	}
	return entries, nil
}
