package leaderboard

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-quest/progression-engine/internal/domain/user"
)

var registeredBase = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func rankedUser(id string, xp int64, level int, registeredOffset time.Duration) *user.User {
	return &user.User{
		ID:           id,
		TotalXP:      user.XP(xp),
		Level:        user.Level(level),
		RegisteredAt: registeredBase.Add(registeredOffset),
	}
}

func TestRanker_OrderingByXP(t *testing.T) {
	r := NewRanker()
	r.Upsert(rankedUser("low", 100, 2, 0))
	r.Upsert(rankedUser("high", 500, 4, 0))
	r.Upsert(rankedUser("mid", 300, 3, 0))

	top := r.TopN(3)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].Entry.UserID)
	assert.Equal(t, "mid", top[1].Entry.UserID)
	assert.Equal(t, "low", top[2].Entry.UserID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 3, top[2].Rank)
}

func TestRanker_Tiebreaks(t *testing.T) {
	r := NewRanker()

	// Same XP: higher level wins.
	r.Upsert(rankedUser("leveled", 300, 4, time.Hour))
	r.Upsert(rankedUser("flat", 300, 3, 0))

	// Same XP and level: earlier registration wins.
	r.Upsert(rankedUser("veteran", 200, 2, 0))
	r.Upsert(rankedUser("newcomer", 200, 2, time.Hour))

	// Full tie: user id breaks it deterministically.
	r.Upsert(rankedUser("bbb", 100, 1, 0))
	r.Upsert(rankedUser("aaa", 100, 1, 0))

	top := r.TopN(6)
	require.Len(t, top, 6)
	order := make([]string, len(top))
	for i, ranked := range top {
		order[i] = ranked.Entry.UserID
	}
	assert.Equal(t, []string{"leveled", "flat", "veteran", "newcomer", "aaa", "bbb"}, order)
}

func TestRanker_UpsertRepositions(t *testing.T) {
	r := NewRanker()
	r.Upsert(rankedUser("alice", 500, 4, 0))
	r.Upsert(rankedUser("bob", 300, 3, 0))

	change := r.Upsert(rankedUser("bob", 800, 5, 0))
	assert.Equal(t, 2, change.OldRank)
	assert.Equal(t, 1, change.NewRank)

	rank, ok := r.RankOf("alice")
	require.True(t, ok)
	assert.Equal(t, 2, rank)
	assert.Equal(t, 2, r.Len(), "repositioning must not duplicate the user")
}

func TestRanker_FirstUpsertHasNoOldRank(t *testing.T) {
	r := NewRanker()
	change := r.Upsert(rankedUser("alice", 100, 2, 0))
	assert.Zero(t, change.OldRank)
	assert.Equal(t, 1, change.NewRank)
}

func TestRanker_RankOfUnranked(t *testing.T) {
	r := NewRanker()
	_, ok := r.RankOf("ghost")
	assert.False(t, ok)
}

func TestRanker_Remove(t *testing.T) {
	r := NewRanker()
	r.Upsert(rankedUser("alice", 500, 4, 0))
	r.Upsert(rankedUser("bob", 300, 3, 0))

	assert.True(t, r.Remove("alice"))
	assert.False(t, r.Remove("alice"))
	assert.Equal(t, 1, r.Len())

	rank, ok := r.RankOf("bob")
	require.True(t, ok)
	assert.Equal(t, 1, rank)
}

func TestRanker_Page(t *testing.T) {
	r := NewRanker()
	for i := 0; i < 10; i++ {
		r.Upsert(rankedUser(fmt.Sprintf("user-%02d", i), int64(1000-i*100), 1, 0))
	}

	page := r.Page(3, 4)
	require.Len(t, page, 4)
	assert.Equal(t, 4, page[0].Rank)
	assert.Equal(t, "user-03", page[0].Entry.UserID)
	assert.Equal(t, 7, page[3].Rank)

	// Past the end: shorter page, not an error.
	tail := r.Page(8, 5)
	assert.Len(t, tail, 2)

	assert.Nil(t, r.Page(20, 5))
	assert.Nil(t, r.Page(-1, 5))
	assert.Nil(t, r.Page(0, 0))
}

func TestRanker_Around(t *testing.T) {
	r := NewRanker()
	for i := 0; i < 10; i++ {
		r.Upsert(rankedUser(fmt.Sprintf("user-%02d", i), int64(1000-i*100), 1, 0))
	}

	window, ok := r.Around("user-05", 2)
	require.True(t, ok)
	require.Len(t, window, 5)
	assert.Equal(t, 4, window[0].Rank)
	assert.Equal(t, "user-05", window[2].Entry.UserID)

	// Near the top the window clips at rank 1.
	window, ok = r.Around("user-00", 3)
	require.True(t, ok)
	assert.Equal(t, 1, window[0].Rank)

	_, ok = r.Around("ghost", 2)
	assert.False(t, ok)
}

func TestRanker_RebuildMatchesIncremental(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	incremental := NewRanker()
	finals := make(map[string]*user.User)

	// Random interleaving of inserts and repositions.
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("user-%03d", rng.Intn(200))
		u := rankedUser(id, int64(rng.Intn(10_000)), 1+rng.Intn(20),
			time.Duration(rng.Intn(100))*time.Minute)
		incremental.Upsert(u)
		finals[id] = u
	}

	rebuilt := NewRanker()
	for _, u := range finals {
		rebuilt.Upsert(u)
	}

	assert.Equal(t, rebuilt.Snapshot(), incremental.Snapshot())
}

func TestRanker_SnapshotRanksAreConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	r := NewRanker()
	for i := 0; i < 500; i++ {
		r.Upsert(rankedUser(fmt.Sprintf("user-%03d", i), int64(rng.Intn(5000)), 1+rng.Intn(10), 0))
	}

	for _, ranked := range r.Snapshot() {
		got, ok := r.RankOf(ranked.Entry.UserID)
		require.True(t, ok)
		assert.Equal(t, ranked.Rank, got)
	}
}

func TestRanker_ConcurrentUpsertsAndReads(t *testing.T) {
	r := NewRanker()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("user-%02d", rng.Intn(50))
				r.Upsert(rankedUser(id, int64(rng.Intn(10_000)), 1+rng.Intn(20), 0))
				r.RankOf(id)
				r.TopN(10)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 50)

	// After the dust settles every snapshot rank must still be coherent.
	snapshot := r.Snapshot()
	for i := 1; i < len(snapshot); i++ {
		assert.True(t, snapshot[i-1].Entry.ranksBefore(snapshot[i].Entry),
			"snapshot out of order at rank %d", snapshot[i].Rank)
	}
}
