package analytics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 4, 10, 14, 30, 0, 0, time.UTC) // a Friday

func TestAggregator_QuestCompletionFillsAllGranularities(t *testing.T) {
	agg := NewAggregator()
	require.True(t, agg.RecordQuestCompletion("key-1", "math", 50, baseTime))

	day := agg.Query("math", GranularityDay, baseTime.AddDate(0, 0, -1), baseTime)
	require.Len(t, day, 1)
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), day[0].Key.Start)
	assert.Equal(t, 1, day[0].QuestsCompleted)
	assert.Equal(t, int64(50), day[0].XPEarned)

	week := agg.Query("math", GranularityWeek, baseTime.AddDate(0, 0, -7), baseTime)
	require.Len(t, week, 1)
	assert.Equal(t, time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), week[0].Key.Start)

	month := agg.Query("math", GranularityMonth, baseTime.AddDate(0, -1, 0), baseTime)
	require.Len(t, month, 1)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), month[0].Key.Start)
}

func TestAggregator_ReplayedKeyDoesNotDoubleCount(t *testing.T) {
	agg := NewAggregator()
	require.True(t, agg.RecordQuestCompletion("key-1", "math", 50, baseTime))
	assert.False(t, agg.RecordQuestCompletion("key-1", "math", 50, baseTime))

	totals := agg.Totals("math")
	assert.Equal(t, 1, totals.QuestsCompleted)
	assert.Equal(t, int64(50), totals.XPEarned)
}

func TestAggregator_SessionsAndBattles(t *testing.T) {
	agg := NewAggregator()
	agg.RecordSession("s-1", "math", 25, 5, baseTime)
	agg.RecordSession("s-2", "math", 25, 5, baseTime.Add(time.Hour))
	agg.RecordBattle("b-1", "math", true, 250, baseTime)
	agg.RecordBattle("b-2", "math", false, 25, baseTime)

	totals := agg.Totals("math")
	assert.Equal(t, 50, totals.SessionMinutes)
	assert.Equal(t, 1, totals.BattlesWon)
	assert.Equal(t, 1, totals.BattlesLost)
	assert.Equal(t, int64(285), totals.XPEarned)
}

func TestAggregator_SubjectsAreIsolated(t *testing.T) {
	agg := NewAggregator()
	agg.RecordQuestCompletion("k-1", "math", 50, baseTime)
	agg.RecordQuestCompletion("k-2", "history", 30, baseTime)

	assert.Equal(t, int64(50), agg.Totals("math").XPEarned)
	assert.Equal(t, int64(30), agg.Totals("history").XPEarned)
	assert.Zero(t, agg.Totals("physics").XPEarned)
}

func TestAggregator_QueryRangeAndOrder(t *testing.T) {
	agg := NewAggregator()
	for day := 1; day <= 10; day++ {
		at := time.Date(2026, 4, day, 12, 0, 0, 0, time.UTC)
		agg.RecordQuestCompletion(fmt.Sprintf("k-%d", day), "math", 10, at)
	}

	from := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 7, 23, 0, 0, 0, time.UTC)
	buckets := agg.Query("math", GranularityDay, from, to)
	require.Len(t, buckets, 5)
	for i := 1; i < len(buckets); i++ {
		assert.True(t, buckets[i-1].Key.Start.Before(buckets[i].Key.Start))
	}
	assert.Equal(t, from, buckets[0].Key.Start)
}

func TestAggregator_WeekBucketSpansDays(t *testing.T) {
	agg := NewAggregator()
	// Monday and Friday of the same ISO week.
	agg.RecordQuestCompletion("k-mon", "math", 10, time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC))
	agg.RecordQuestCompletion("k-fri", "math", 20, time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC))

	week := agg.Query("math", GranularityWeek, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), baseTime)
	require.Len(t, week, 1)
	assert.Equal(t, 2, week[0].QuestsCompleted)
	assert.Equal(t, int64(30), week[0].XPEarned)
}

func TestAggregator_Reset(t *testing.T) {
	agg := NewAggregator()
	agg.RecordQuestCompletion("k-1", "math", 50, baseTime)
	agg.Reset()

	assert.Zero(t, agg.Totals("math").QuestsCompleted)

	// Keys are forgotten too: a rebuild replays the same events.
	assert.True(t, agg.RecordQuestCompletion("k-1", "math", 50, baseTime))
}

func TestAggregator_ConcurrentRecords(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("w%d-k%d", worker, i)
				agg.RecordQuestCompletion(key, "math", 10, baseTime)
			}
		}(w)
	}
	wg.Wait()

	totals := agg.Totals("math")
	assert.Equal(t, 800, totals.QuestsCompleted)
	assert.Equal(t, int64(8000), totals.XPEarned)
}
