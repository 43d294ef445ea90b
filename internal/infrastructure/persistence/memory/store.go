// Package memory provides an in-memory implementation of the application
// Store. It backs tests and local development; the postgres package is the
// durable production implementation of the same interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/study-quest/progression-engine/internal/domain/ledger"
	"github.com/study-quest/progression-engine/internal/domain/quest"
	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Store keeps all state in maps under one RWMutex. All reads and writes
// exchange clones, so callers can never alias stored state.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*user.User
	quests  map[string]*quest.Instance
	entries []ledger.Entry
	byKey   map[string]int
	failing bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*user.User),
		quests: make(map[string]*quest.Instance),
		byKey:  make(map[string]int),
	}
}

// SetFailing toggles failure injection: while set, every call returns
// shared.ErrPersistenceUnavailable.
func (s *Store) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *Store) failLocked() error {
	if s.failing {
		return shared.ErrPersistenceUnavailable
	}
	return nil
}

// AppendEntry implements atomic append-if-absent keyed by idempotency key.
func (s *Store) AppendEntry(ctx context.Context, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failLocked(); err != nil {
		return err
	}
	if _, exists := s.byKey[entry.IdempotencyKey]; exists {
		return shared.ErrDuplicateEvent
	}

	s.byKey[entry.IdempotencyKey] = len(s.entries)
	s.entries = append(s.entries, entry)
	return nil
}

// EntriesFor returns a user's ledger entries in append order.
func (s *Store) EntriesFor(ctx context.Context, userID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	var out []ledger.Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every ledger entry in append order.
func (s *Store) Entries(ctx context.Context) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	out := make([]ledger.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// User returns a clone of the stored progression record.
func (s *Store) User(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrUnknownUser
	}
	return u.Clone(), nil
}

// SaveUser upserts a progression record.
func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failLocked(); err != nil {
		return err
	}
	s.users[u.ID] = u.Clone()
	return nil
}

// Users returns clones of all progression records, ordered by id for
// deterministic iteration.
func (s *Store) Users(ctx context.Context) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	out := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QuestInstance returns a clone of one instance.
func (s *Store) QuestInstance(ctx context.Context, id string) (*quest.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	inst, ok := s.quests[id]
	if !ok {
		return nil, shared.ErrUnknownQuest
	}
	return inst.Clone(), nil
}

// SaveQuestInstance upserts an instance.
func (s *Store) SaveQuestInstance(ctx context.Context, inst *quest.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failLocked(); err != nil {
		return err
	}
	s.quests[inst.ID] = inst.Clone()
	return nil
}

// QuestInstancesFor returns clones of a user's instances, newest first.
func (s *Store) QuestInstancesFor(ctx context.Context, userID string) ([]*quest.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	var out []*quest.Instance
	for _, inst := range s.quests {
		if inst.UserID == userID {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

// OpenQuestInstances returns clones of every non-terminal instance.
func (s *Store) OpenQuestInstances(ctx context.Context) ([]*quest.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	var out []*quest.Instance
	for _, inst := range s.quests {
		if !inst.State.IsTerminal() {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

// QuestInstanceInWindow finds the user's instance of a template assigned
// inside the cadence window starting at windowStart.
func (s *Store) QuestInstanceInWindow(ctx context.Context, userID, templateID string, windowStart time.Time) (*quest.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failLocked(); err != nil {
		return nil, err
	}

	for _, inst := range s.quests {
		if inst.UserID != userID || inst.TemplateID != templateID {
			continue
		}
		if !inst.AssignedAt.Before(windowStart) {
			return inst.Clone(), nil
		}
	}
	return nil, shared.ErrUnknownQuest
}
