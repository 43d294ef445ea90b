package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
)

// fakeStore is an in-memory Store with atomic append-if-absent semantics.
type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	byKey   map[string]struct{}
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: make(map[string]struct{})}
}

func (s *fakeStore) AppendEntry(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store down")
	}
	if _, ok := s.byKey[entry.IdempotencyKey]; ok {
		return shared.ErrDuplicateEvent
	}
	s.byKey[entry.IdempotencyKey] = struct{}{}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeStore) EntriesFor(_ context.Context, userID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store down")
	}
	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store down")
	}
	return append([]Entry(nil), s.entries...), nil
}

func mustEntry(t *testing.T, userID string, amount int64, source Source, key string) Entry {
	t.Helper()
	entry, err := NewEntry(userID, amount, source, key, time.Now())
	require.NoError(t, err)
	return entry
}

func TestLedger_AppendAccumulatesTotal(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newFakeStore())
	userID := uuid.NewString()

	res, err := l.Append(ctx, mustEntry(t, userID, 100, SourceQuest, "k1"))
	require.NoError(t, err)
	assert.Equal(t, user.XP(0), res.OldTotal)
	assert.Equal(t, user.XP(100), res.NewTotal)

	res, err = l.Append(ctx, mustEntry(t, userID, 250, SourceBossBattle, "k2"))
	require.NoError(t, err)
	assert.Equal(t, user.XP(100), res.OldTotal)
	assert.Equal(t, user.XP(350), res.NewTotal)

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(350), total)
}

func TestLedger_TotalEqualsSumOfEntries(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := NewLedger(store)
	userID := uuid.NewString()

	amounts := []int64{10, 25, 100, 5, 40}
	var want int64
	for i, amount := range amounts {
		_, err := l.Append(ctx, mustEntry(t, userID, amount, SourceQuest, uuid.NewString()))
		require.NoError(t, err, "append %d", i)
		want += amount
	}

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(want), total)

	// The cached total must agree with an arithmetic replay of the store.
	entries, err := store.EntriesFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(want), Total(entries))
}

func TestLedger_DuplicateKeyIsNoOp(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newFakeStore())
	userID := uuid.NewString()

	_, err := l.Append(ctx, mustEntry(t, userID, 100, SourceQuest, "same-key"))
	require.NoError(t, err)

	res, err := l.Append(ctx, mustEntry(t, userID, 100, SourceQuest, "same-key"))
	assert.ErrorIs(t, err, shared.ErrDuplicateEvent)
	assert.True(t, res.Duplicate)
	assert.Equal(t, user.XP(100), res.NewTotal)

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(100), total)
}

func TestLedger_DuplicateDetectedByColdCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	// First ledger instance writes the entry.
	first := NewLedger(store)
	userID := uuid.NewString()
	_, err := first.Append(ctx, mustEntry(t, userID, 50, SourceBonus, "cold-key"))
	require.NoError(t, err)

	// A fresh instance with an empty cache must still reject the replay,
	// either via hydration or via the store's append-if-absent.
	second := NewLedger(store)
	res, err := second.Append(ctx, mustEntry(t, userID, 50, SourceBonus, "cold-key"))
	assert.ErrorIs(t, err, shared.ErrDuplicateEvent)
	assert.True(t, res.Duplicate)

	total, err := second.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(50), total)
}

func TestLedger_PenaltyEntriesReduceTotal(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newFakeStore())
	userID := uuid.NewString()

	_, err := l.Append(ctx, mustEntry(t, userID, 200, SourceQuest, "k1"))
	require.NoError(t, err)
	_, err = l.Append(ctx, mustEntry(t, userID, -50, SourcePenalty, "k2"))
	require.NoError(t, err)

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(150), total)
}

func TestLedger_ConcurrentAppendsSameUser(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newFakeStore())
	userID := uuid.NewString()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, mustEntry(t, userID, 10, SourceQuest, uuid.NewString()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(writers*10), total)
}

func TestLedger_ConcurrentDuplicateSubmissions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := NewLedger(store)
	userID := uuid.NewString()

	const submitters = 16
	var wg sync.WaitGroup
	var successes, duplicates int64
	var mu sync.Mutex

	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, mustEntry(t, userID, 100, SourceQuest, "contested-key"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, shared.ErrDuplicate) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes, "exactly one submission wins")
	assert.Equal(t, int64(submitters-1), duplicates)

	total, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, user.XP(100), total, "no lost or duplicated update")

	entries, err := store.EntriesFor(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_RebuildMatchesIncrementalTotals(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := NewLedger(store)

	users := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, id := range users {
		for j := 0; j <= i; j++ {
			_, err := l.Append(ctx, mustEntry(t, id, int64(100*(j+1)), SourceQuest, uuid.NewString()))
			require.NoError(t, err)
		}
	}

	totals, err := l.Rebuild(ctx)
	require.NoError(t, err)

	for _, id := range users {
		total, err := l.TotalFor(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, total, totals[id], "rebuilt total diverged for %s", id)
	}
}

func TestLedger_StoreFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := NewLedger(store)
	userID := uuid.NewString()

	// Hydrate while healthy so the failure hits the append itself.
	_, err := l.TotalFor(ctx, userID)
	require.NoError(t, err)

	store.failing = true
	_, err = l.Append(ctx, mustEntry(t, userID, 10, SourceQuest, "k"))
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestNewEntry_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewEntry("", 10, SourceQuest, "k", now)
	assert.ErrorIs(t, err, ErrEmptyUser)

	_, err = NewEntry("u", 10, Source("mystery"), "k", now)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = NewEntry("u", 10, SourceQuest, "", now)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewEntry("u", -10, SourceQuest, "k", now)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = NewEntry("u", -10, SourcePenalty, "k", now)
	assert.NoError(t, err)
}

func TestIdempotencyKeys_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	// Same completion, different times within the same day: same key.
	assert.Equal(t,
		QuestCompletionKey("inst-1", at),
		QuestCompletionKey("inst-1", at.Add(3*time.Hour)),
	)

	// Different day bucket: different key.
	assert.NotEqual(t,
		QuestCompletionKey("inst-1", at),
		QuestCompletionKey("inst-1", at.AddDate(0, 0, 1)),
	)

	// Different instances never collide.
	assert.NotEqual(t,
		QuestCompletionKey("inst-1", at),
		QuestCompletionKey("inst-2", at),
	)

	assert.Equal(t, BattleKey("u1", "exam-1"), BattleKey("u1", "exam-1"))
	assert.NotEqual(t, BattleKey("u1", "exam-1"), BattleKey("u2", "exam-1"))
}
