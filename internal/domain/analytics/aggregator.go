// Package analytics folds progression activity into per-subject time
// buckets. Buckets are derived data: they can always be rebuilt from the XP
// ledger and quest history, so the aggregator favors simplicity over
// durability.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/study-quest/progression-engine/pkg/timeutil"
)

// Granularity selects the bucket width.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// IsValid reports whether the granularity is recognized.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	default:
		return false
	}
}

// bucketStart truncates t to the start of the granularity window, in UTC.
func (g Granularity) bucketStart(t time.Time) time.Time {
	switch g {
	case GranularityWeek:
		return timeutil.StartOfWeek(t)
	case GranularityMonth:
		return timeutil.StartOfMonth(t)
	default:
		return timeutil.StartOfDay(t)
	}
}

// granularities are updated together on every record call.
var granularities = []Granularity{GranularityDay, GranularityWeek, GranularityMonth}

// Key identifies one bucket.
type Key struct {
	Subject     string
	Granularity Granularity
	Start       time.Time
}

// Bucket holds the counters for one subject and time window.
type Bucket struct {
	Key Key

	QuestsCompleted int
	XPEarned        int64
	SessionMinutes  int
	BattlesWon      int
	BattlesLost     int
}

// Aggregator accumulates activity counters. Safe for concurrent use.
//
// Every record call carries the idempotency key of the originating event;
// replays are dropped so a retried submission never double-counts.
type Aggregator struct {
	mu      sync.RWMutex
	buckets map[Key]*Bucket
	seen    map[string]struct{}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		buckets: make(map[Key]*Bucket),
		seen:    make(map[string]struct{}),
	}
}

// RecordQuestCompletion counts a completed quest and its XP.
// Returns false when the idempotency key was already recorded.
func (a *Aggregator) RecordQuestCompletion(idempotencyKey, subject string, xp int64, at time.Time) bool {
	return a.record(idempotencyKey, subject, at, func(b *Bucket) {
		b.QuestsCompleted++
		b.XPEarned += xp
	})
}

// RecordSession counts Pomodoro minutes and any session bonus XP.
func (a *Aggregator) RecordSession(idempotencyKey, subject string, minutes int, bonusXP int64, at time.Time) bool {
	return a.record(idempotencyKey, subject, at, func(b *Bucket) {
		b.SessionMinutes += minutes
		b.XPEarned += bonusXP
	})
}

// RecordBattle counts a boss battle outcome and its bonus XP.
func (a *Aggregator) RecordBattle(idempotencyKey, subject string, won bool, bonusXP int64, at time.Time) bool {
	return a.record(idempotencyKey, subject, at, func(b *Bucket) {
		if won {
			b.BattlesWon++
		} else {
			b.BattlesLost++
		}
		b.XPEarned += bonusXP
	})
}

func (a *Aggregator) record(idempotencyKey, subject string, at time.Time, apply func(*Bucket)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[idempotencyKey]; dup {
		return false
	}
	a.seen[idempotencyKey] = struct{}{}

	for _, g := range granularities {
		key := Key{Subject: subject, Granularity: g, Start: g.bucketStart(at)}
		bucket, ok := a.buckets[key]
		if !ok {
			bucket = &Bucket{Key: key}
			a.buckets[key] = bucket
		}
		apply(bucket)
	}
	return true
}

// Query returns the subject's buckets at the given granularity whose start
// falls within [from, to], ordered by start ascending.
func (a *Aggregator) Query(subject string, granularity Granularity, from, to time.Time) []Bucket {
	a.mu.RLock()
	defer a.mu.RUnlock()

	from = from.UTC()
	to = to.UTC()

	var out []Bucket
	for key, bucket := range a.buckets {
		if key.Subject != subject || key.Granularity != granularity {
			continue
		}
		if key.Start.Before(from) || key.Start.After(to) {
			continue
		}
		out = append(out, *bucket)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Start.Before(out[j].Key.Start)
	})
	return out
}

// Totals sums the subject's counters across all time at day granularity.
func (a *Aggregator) Totals(subject string) Bucket {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := Bucket{Key: Key{Subject: subject}}
	for key, bucket := range a.buckets {
		if key.Subject != subject || key.Granularity != GranularityDay {
			continue
		}
		total.QuestsCompleted += bucket.QuestsCompleted
		total.XPEarned += bucket.XPEarned
		total.SessionMinutes += bucket.SessionMinutes
		total.BattlesWon += bucket.BattlesWon
		total.BattlesLost += bucket.BattlesLost
	}
	return total
}

// Reset clears all buckets and dedup state. Used by full rebuilds.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[Key]*Bucket)
	a.seen = make(map[string]struct{})
}
