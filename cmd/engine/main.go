// Package main is the entry point for the progression engine worker.
//
// The worker owns the background lifecycle of the progression engine:
// it warms the leaderboard from the XP ledger, sweeps overdue quest
// instances into the expired state, and refreshes the Redis leaderboard
// projection for external readers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/study-quest/progression-engine/config"
	"github.com/study-quest/progression-engine/internal/application"
	"github.com/study-quest/progression-engine/internal/domain/battle"
	"github.com/study-quest/progression-engine/internal/domain/leveling"
	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/infrastructure/messaging"
	"github.com/study-quest/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/study-quest/progression-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/study-quest/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/study-quest/progression-engine/internal/infrastructure/scheduler"
	"github.com/study-quest/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/study-quest/progression-engine/pkg/logger"
	"github.com/study-quest/progression-engine/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	log := setupLogger(cfg)
	log.Info("starting progression engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	var store application.Store
	var dbConn *postgres.Connection

	if cfg.Database.URL != "" {
		log.Info("connecting to database")
		err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
			var connErr error
			dbConn, connErr = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
			if connErr != nil {
				return retry.Retryable(connErr)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection")
			dbConn.Close()
		}()

		log.Info("running database migrations")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		store = postgres.NewStore(dbConn)
		log.Info("database connection established")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store = memory.NewStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS LEADERBOARD PROJECTION (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var leaderboardCache *redisstore.LeaderboardCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
			var cacheErr error
			leaderboardCache, cacheErr = redisstore.NewLeaderboardCache(ctx, redisstore.Config{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if cacheErr != nil {
				return retry.Retryable(cacheErr)
			}
			return nil
		})
		if err != nil {
			log.Warn("redis unavailable, leaderboard projection disabled", logger.Err(err))
			leaderboardCache = nil
		} else {
			defer leaderboardCache.Close()
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = cfg.EventBus.AsyncMode
	busConfig.WorkerPoolSize = cfg.EventBus.WorkerPoolSize
	busConfig.Logger = slogger
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus")
		_ = eventBus.Close()
	}()

	if cfg.App.Debug {
		_ = eventBus.SubscribeAll(func(event shared.Event) error {
			slogger.Debug("event published",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
			)
			return nil
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	engine := application.NewEngine(store, eventBus, nil, log, buildPolicy(cfg.Progression))

	log.Info("warming leaderboard from ledger")
	ranked, err := engine.RebuildLeaderboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm leaderboard: %w", err)
	}
	log.Info("leaderboard warmed", logger.Int("users", ranked))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler

	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Logger:        slogger,
			EnableMetrics: true,
		})

		expireJob := jobs.NewExpireQuestsJob(engine, slogger, cfg.Scheduler.JobTimeout)
		if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireQuestsInterval)); err != nil {
			return fmt.Errorf("failed to register expire_quests job: %w", err)
		}

		if leaderboardCache != nil {
			refreshJob := jobs.NewRefreshLeaderboardJob(engine, leaderboardCache, slogger, cfg.Scheduler.JobTimeout)
			if err := sched.Register(refreshJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshLeaderboardInterval)); err != nil {
				return fmt.Errorf("failed to register refresh_leaderboard job: %w", err)
			}

			// Populate the projection before the first interval elapses.
			if _, err := sched.RunNow(ctx, refreshJob.Name()); err != nil {
				log.Warn("initial leaderboard projection refresh failed", logger.Err(err))
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progression engine is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))
	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	return nil
}

// buildPolicy maps the environment-driven progression rules onto the engine
// policy.
func buildPolicy(p config.ProgressionConfig) application.Policy {
	policy := application.DefaultPolicy()

	policy.Curve = leveling.Curve{
		Base:                p.CurveBase,
		Growth:              p.CurveGrowth,
		SkillPointsPerLevel: p.SkillPointsPerLevel,
	}
	policy.Scoring = battle.Params{
		PerPointXP:      p.BattlePerPointXP,
		DiminishKnee:    float64(p.BattleDiminishKnee),
		DiminishRate:    p.BattleDiminishRate,
		PassThreshold:   p.BattlePassThreshold,
		ConsolationRate: p.BattleConsolationRate,
	}
	policy.QuestMultipliers = map[shared.Difficulty]float64{
		shared.DifficultyEasy:   p.QuestEasyMultiplier,
		shared.DifficultyNormal: p.QuestNormalMultiplier,
		shared.DifficultyMedium: p.QuestMediumMultiplier,
		shared.DifficultyHard:   p.QuestHardMultiplier,
	}
	policy.StreakMinDays = p.StreakMinDays
	policy.StreakBonus = p.StreakBonus
	policy.SessionBonusXP = p.SessionBonusXP

	return policy
}

// setupSlog configures the structured logger used by the infrastructure
// components (event bus, scheduler).
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// setupLogger configures the engine's structured logger.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
