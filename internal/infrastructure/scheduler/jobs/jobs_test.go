package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-quest/progression-engine/internal/domain/leaderboard"
)

type fakeReconciler struct {
	expired int
	err     error
	calls   int
}

func (f *fakeReconciler) ReconcileExpiredQuests(context.Context, time.Time) (int, error) {
	f.calls++
	return f.expired, f.err
}

func TestExpireQuestsJob_Run(t *testing.T) {
	rec := &fakeReconciler{expired: 3}
	job := NewExpireQuestsJob(rec, nil, time.Second)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, int64(3), job.LastExpiredCount())
}

func TestExpireQuestsJob_SurfacesError(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("store down")}
	job := NewExpireQuestsJob(rec, nil, time.Second)

	assert.Error(t, job.Run(context.Background()))
}

type fakeSource struct {
	snapshot []leaderboard.Ranked
	names    map[string]string
	err      error
}

func (f *fakeSource) LeaderboardSnapshot(context.Context) ([]leaderboard.Ranked, map[string]string, error) {
	return f.snapshot, f.names, f.err
}

type fakeProjection struct {
	snapshot []leaderboard.Ranked
	names    map[string]string
	err      error
	calls    int
}

func (f *fakeProjection) RebuildFromSnapshot(_ context.Context, snapshot []leaderboard.Ranked, names map[string]string) error {
	f.calls++
	f.snapshot = snapshot
	f.names = names
	return f.err
}

func TestRefreshLeaderboardJob_Run(t *testing.T) {
	source := &fakeSource{
		snapshot: []leaderboard.Ranked{
			{Rank: 1, Entry: leaderboard.Entry{UserID: "alice", XP: 250, Level: 2}},
			{Rank: 2, Entry: leaderboard.Entry{UserID: "bob", XP: 160, Level: 2}},
		},
		names: map[string]string{"alice": "Alice", "bob": "Bob"},
	}
	projection := &fakeProjection{}
	job := NewRefreshLeaderboardJob(source, projection, nil, time.Second)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, projection.calls)
	assert.Len(t, projection.snapshot, 2)
	assert.Equal(t, "Alice", projection.names["alice"])
}

func TestRefreshLeaderboardJob_SurfacesErrors(t *testing.T) {
	t.Run("source failure", func(t *testing.T) {
		source := &fakeSource{err: errors.New("no snapshot")}
		job := NewRefreshLeaderboardJob(source, &fakeProjection{}, nil, time.Second)
		assert.Error(t, job.Run(context.Background()))
	})

	t.Run("projection failure", func(t *testing.T) {
		projection := &fakeProjection{err: errors.New("redis down")}
		job := NewRefreshLeaderboardJob(&fakeSource{}, projection, nil, time.Second)
		assert.Error(t, job.Run(context.Background()))
	})
}
