// Package leaderboard maintains an explicit ordered index over user
// standings. Rank is stored, not recomputed per query: the index answers
// rank lookups and page reads in O(log n) without scanning all users.
package leaderboard

import (
	"sync"

	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Ranked is an Entry annotated with its 1-based rank.
type Ranked struct {
	Rank  int
	Entry Entry
}

// Ranker is the authoritative in-memory standings index. Safe for concurrent
// use: writes take the exclusive lock, reads the shared one.
type Ranker struct {
	mu      sync.RWMutex
	list    *skiplist
	entries map[string]Entry
}

// NewRanker creates an empty standings index.
func NewRanker() *Ranker {
	return &Ranker{
		list:    newSkiplist(),
		entries: make(map[string]Entry),
	}
}

// RankChange reports how an upsert moved a user.
type RankChange struct {
	UserID  string
	OldRank int // 0 when the user was not ranked before
	NewRank int
}

func entryFor(u *user.User) Entry {
	return Entry{
		UserID:       u.ID,
		XP:           int64(u.TotalXP),
		Level:        int(u.Level),
		RegisteredAt: u.RegisteredAt.UTC(),
	}
}

// Upsert inserts or repositions a user and reports the rank movement.
// The old position is removed and the new one inserted under one lock, so
// readers never observe the user in both places or neither.
func (r *Ranker) Upsert(u *user.User) RankChange {
	entry := entryFor(u)

	r.mu.Lock()
	defer r.mu.Unlock()

	oldRank := 0
	if old, ok := r.entries[entry.UserID]; ok {
		oldRank = r.list.rank(old)
		r.list.delete(old)
	}

	r.list.insert(entry)
	r.entries[entry.UserID] = entry

	return RankChange{
		UserID:  entry.UserID,
		OldRank: oldRank,
		NewRank: r.list.rank(entry),
	}
}

// Remove drops a user from the standings. Unranked users are a no-op.
func (r *Ranker) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return false
	}
	r.list.delete(entry)
	delete(r.entries, userID)
	return true
}

// RankOf returns the user's 1-based rank. ok is false for unranked users.
func (r *Ranker) RankOf(userID string) (rank int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, present := r.entries[userID]
	if !present {
		return 0, false
	}
	return r.list.rank(entry), true
}

// TopN returns the best n standings in rank order.
func (r *Ranker) TopN(n int) []Ranked {
	return r.Page(0, n)
}

// Page returns standings for ranks [offset+1, offset+limit] in rank order.
func (r *Ranker) Page(offset, limit int) []Ranked {
	if offset < 0 || limit <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.list.byRank(offset+1, limit)
	if len(entries) == 0 {
		return nil
	}
	out := make([]Ranked, len(entries))
	for i, e := range entries {
		out[i] = Ranked{Rank: offset + 1 + i, Entry: e}
	}
	return out
}

// Around returns the window of standings centered on the user: radius ranks
// above and below. ok is false for unranked users.
func (r *Ranker) Around(userID string, radius int) (window []Ranked, ok bool) {
	if radius < 0 {
		radius = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, present := r.entries[userID]
	if !present {
		return nil, false
	}

	rank := r.list.rank(entry)
	start := rank - radius
	if start < 1 {
		start = 1
	}
	entries := r.list.byRank(start, 2*radius+1)
	window = make([]Ranked, len(entries))
	for i, e := range entries {
		window[i] = Ranked{Rank: start + i, Entry: e}
	}
	return window, true
}

// Len returns the number of ranked users.
func (r *Ranker) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list.length
}

// Rebuild atomically replaces the whole index with standings built from the
// given users. Readers see either the old index or the new one, never a mix.
// Returns the number of users ranked.
func (r *Ranker) Rebuild(users []*user.User) int {
	list := newSkiplist()
	entries := make(map[string]Entry, len(users))
	for _, u := range users {
		if _, dup := entries[u.ID]; dup {
			continue
		}
		entry := entryFor(u)
		list.insert(entry)
		entries[u.ID] = entry
	}

	r.mu.Lock()
	r.list = list
	r.entries = entries
	r.mu.Unlock()
	return len(entries)
}

// Snapshot returns every standing in rank order. Used by the cache projection
// and by rebuild verification.
func (r *Ranker) Snapshot() []Ranked {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.list.byRank(1, r.list.length)
	out := make([]Ranked, len(entries))
	for i, e := range entries {
		out[i] = Ranked{Rank: i + 1, Entry: e}
	}
	return out
}
