// Package jobs contains implementations of the progression engine's scheduled
// jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE QUESTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// QuestReconciler sweeps open quest instances past their deadline into the
// expired state.
type QuestReconciler interface {
	ReconcileExpiredQuests(ctx context.Context, now time.Time) (int, error)
}

// ExpireQuestsJob periodically reconciles overdue quest instances. Reads
// already expire instances lazily; the sweep bounds how long an overdue
// instance can sit unobserved in the open state.
type ExpireQuestsJob struct {
	reconciler QuestReconciler
	logger     *slog.Logger
	timeout    time.Duration

	lastExpired atomic.Int64
}

// NewExpireQuestsJob creates a new expiry reconciliation job.
func NewExpireQuestsJob(reconciler QuestReconciler, logger *slog.Logger, timeout time.Duration) *ExpireQuestsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &ExpireQuestsJob{
		reconciler: reconciler,
		logger:     logger,
		timeout:    timeout,
	}
}

// Name returns the job name.
func (j *ExpireQuestsJob) Name() string {
	return "expire_quests"
}

// Description returns a human-readable description.
func (j *ExpireQuestsJob) Description() string {
	return "Sweeps open quest instances whose deadline has passed into the expired state"
}

// Run executes the sweep.
func (j *ExpireQuestsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	expired, err := j.reconciler.ReconcileExpiredQuests(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reconcile expired quests: %w", err)
	}

	j.lastExpired.Store(int64(expired))
	if expired > 0 {
		j.logger.Info("expired overdue quests", "count", expired)
	}
	return nil
}

// LastExpiredCount returns how many instances the previous run expired.
func (j *ExpireQuestsJob) LastExpiredCount() int64 {
	return j.lastExpired.Load()
}
