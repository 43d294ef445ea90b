package leaderboard

import (
	"math/rand"
	"time"
)

const (
	skiplistMaxLevel = 32
	skiplistP        = 0.25
)

// Entry is one leaderboard row. Ordering is total XP descending, then level
// descending, then registration time ascending (earlier wins), then user id
// ascending as the final tiebreak. The ordering is total: two distinct users
// never compare equal.
type Entry struct {
	UserID       string
	XP           int64
	Level        int
	RegisteredAt time.Time
}

// ranksBefore reports whether e outranks other.
func (e Entry) ranksBefore(other Entry) bool {
	if e.XP != other.XP {
		return e.XP > other.XP
	}
	if e.Level != other.Level {
		return e.Level > other.Level
	}
	if !e.RegisteredAt.Equal(other.RegisteredAt) {
		return e.RegisteredAt.Before(other.RegisteredAt)
	}
	return e.UserID < other.UserID
}

type skiplistLevel struct {
	next *skiplistNode
	// span counts the nodes skipped when following next, including next
	// itself. Summing spans along a search path yields the rank.
	span int
}

type skiplistNode struct {
	entry  Entry
	levels []skiplistLevel
}

// skiplist is an ordered index over Entry with O(log n) insert, delete, and
// rank queries. Not safe for concurrent use; Ranker adds the locking.
type skiplist struct {
	head   *skiplistNode
	length int
	level  int
	rng    *rand.Rand
}

func newSkiplist() *skiplist {
	return &skiplist{
		head:  &skiplistNode{levels: make([]skiplistLevel, skiplistMaxLevel)},
		level: 1,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (sl *skiplist) randomLevel() int {
	level := 1
	for level < skiplistMaxLevel && sl.rng.Float64() < skiplistP {
		level++
	}
	return level
}

// insert adds an entry. The caller guarantees no node with the same user id
// is present (Ranker deletes before re-inserting on upsert).
func (sl *skiplist) insert(entry Entry) {
	var update [skiplistMaxLevel]*skiplistNode
	var rank [skiplistMaxLevel]int

	node := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		if i == sl.level-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for node.levels[i].next != nil && node.levels[i].next.entry.ranksBefore(entry) {
			rank[i] += node.levels[i].span
			node = node.levels[i].next
		}
		update[i] = node
	}

	level := sl.randomLevel()
	if level > sl.level {
		for i := sl.level; i < level; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].levels[i].span = sl.length
		}
		sl.level = level
	}

	inserted := &skiplistNode{entry: entry, levels: make([]skiplistLevel, level)}
	for i := 0; i < level; i++ {
		inserted.levels[i].next = update[i].levels[i].next
		update[i].levels[i].next = inserted

		inserted.levels[i].span = update[i].levels[i].span - (rank[0] - rank[i])
		update[i].levels[i].span = (rank[0] - rank[i]) + 1
	}

	for i := level; i < sl.level; i++ {
		update[i].levels[i].span++
	}

	sl.length++
}

// delete removes the node holding exactly this entry. Returns false when the
// entry is not present.
func (sl *skiplist) delete(entry Entry) bool {
	var update [skiplistMaxLevel]*skiplistNode

	node := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for node.levels[i].next != nil && node.levels[i].next.entry.ranksBefore(entry) {
			node = node.levels[i].next
		}
		update[i] = node
	}

	target := node.levels[0].next
	if target == nil || target.entry.UserID != entry.UserID {
		return false
	}

	for i := 0; i < sl.level; i++ {
		if update[i].levels[i].next == target {
			update[i].levels[i].span += target.levels[i].span - 1
			update[i].levels[i].next = target.levels[i].next
		} else {
			update[i].levels[i].span--
		}
	}

	for sl.level > 1 && sl.head.levels[sl.level-1].next == nil {
		sl.level--
	}

	sl.length--
	return true
}

// rank returns the 1-based position of the entry, or 0 when absent.
func (sl *skiplist) rank(entry Entry) int {
	node := sl.head
	traversed := 0
	for i := sl.level - 1; i >= 0; i-- {
		for node.levels[i].next != nil && node.levels[i].next.entry.ranksBefore(entry) {
			traversed += node.levels[i].span
			node = node.levels[i].next
		}
	}
	next := node.levels[0].next
	if next != nil && next.entry.UserID == entry.UserID {
		return traversed + 1
	}
	return 0
}

// byRank returns entries for 1-based ranks [start, start+count). Out-of-range
// portions are simply absent from the result.
func (sl *skiplist) byRank(start, count int) []Entry {
	if start < 1 || count <= 0 || start > sl.length {
		return nil
	}

	node := sl.head
	traversed := 0
	for i := sl.level - 1; i >= 0; i-- {
		for node.levels[i].next != nil && traversed+node.levels[i].span < start {
			traversed += node.levels[i].span
			node = node.levels[i].next
		}
	}

	out := make([]Entry, 0, count)
	node = node.levels[0].next
	for node != nil && len(out) < count {
		out = append(out, node.entry)
		node = node.levels[0].next
	}
	return out
}
