package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/study-quest/progression-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARD PROJECTION JOB
// ══════════════════════════════════════════════════════════════════════════════

// StandingSource produces the authoritative ranked ordering and the display
// names of every ranked user.
type StandingSource interface {
	LeaderboardSnapshot(ctx context.Context) ([]leaderboard.Ranked, map[string]string, error)
}

// Projection is the external read model the job refreshes.
type Projection interface {
	RebuildFromSnapshot(ctx context.Context, snapshot []leaderboard.Ranked, names map[string]string) error
}

// RefreshLeaderboardJob pushes the in-memory ranking into the external
// projection. The projection is never authoritative; a lost refresh is
// repaired by the next run.
type RefreshLeaderboardJob struct {
	source     StandingSource
	projection Projection
	logger     *slog.Logger
	timeout    time.Duration
}

// NewRefreshLeaderboardJob creates a new projection refresh job.
func NewRefreshLeaderboardJob(source StandingSource, projection Projection, logger *slog.Logger, timeout time.Duration) *RefreshLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &RefreshLeaderboardJob{
		source:     source,
		projection: projection,
		logger:     logger,
		timeout:    timeout,
	}
}

// Name returns the job name.
func (j *RefreshLeaderboardJob) Name() string {
	return "refresh_leaderboard"
}

// Description returns a human-readable description.
func (j *RefreshLeaderboardJob) Description() string {
	return "Refreshes the external leaderboard projection from the in-memory ranking"
}

// Run executes the refresh.
func (j *RefreshLeaderboardJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	snapshot, names, err := j.source.LeaderboardSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot leaderboard: %w", err)
	}

	if err := j.projection.RebuildFromSnapshot(ctx, snapshot, names); err != nil {
		return fmt.Errorf("rebuild projection: %w", err)
	}

	j.logger.Debug("leaderboard projection refreshed", "entries", len(snapshot))
	return nil
}
