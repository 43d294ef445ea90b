// Package application wires the domain components into the progression
// engine facade. The engine consumes activity submissions from the calling
// layer, translates them into ledger entries and state transitions, and keeps
// the leaderboard and analytics projections current.
package application

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/study-quest/progression-engine/internal/domain/analytics"
	"github.com/study-quest/progression-engine/internal/domain/battle"
	"github.com/study-quest/progression-engine/internal/domain/leaderboard"
	"github.com/study-quest/progression-engine/internal/domain/ledger"
	"github.com/study-quest/progression-engine/internal/domain/leveling"
	"github.com/study-quest/progression-engine/internal/domain/quest"
	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
	"github.com/study-quest/progression-engine/pkg/logger"
)

// Policy bundles the tunable progression parameters. Defaults match the
// production configuration; config.Load overrides them from the environment.
type Policy struct {
	// Curve is the leveling curve.
	Curve leveling.Curve

	// Scoring parameterizes the boss battle scorer.
	Scoring battle.Params

	// QuestMultipliers scales quest rewards per difficulty tier.
	QuestMultipliers map[shared.Difficulty]float64

	// StreakMinDays is the streak length at which the bonus kicks in.
	StreakMinDays int

	// StreakBonus is the reward multiplier applied once the streak qualifies.
	StreakBonus float64

	// SessionBonusXP is granted per logged Pomodoro session.
	SessionBonusXP int64

	// EffortXPOnFailedQuest is granted when a quest is explicitly failed.
	// Zero disables effort XP.
	EffortXPOnFailedQuest int64
}

// DefaultPolicy returns the standard progression parameters.
func DefaultPolicy() Policy {
	return Policy{
		Curve:   leveling.DefaultCurve(),
		Scoring: battle.DefaultParams(),
		QuestMultipliers: map[shared.Difficulty]float64{
			shared.DifficultyEasy:   1.0,
			shared.DifficultyNormal: 1.1,
			shared.DifficultyMedium: 1.25,
			shared.DifficultyHard:   1.5,
		},
		StreakMinDays:         3,
		StreakBonus:           1.10,
		SessionBonusXP:        5,
		EffortXPOnFailedQuest: 0,
	}
}

// grantStripeCount is the number of per-user grant lock stripes.
const grantStripeCount = 64

// Engine is the progression engine facade. Safe for concurrent use; all
// internal state is guarded by the ledger's stripes, the ranker's lock, and
// the per-user grant stripes. No lock is held across a Store call except the
// per-user stripes that the serialization contracts require.
type Engine struct {
	store  Store
	ledger *ledger.Ledger
	curve  leveling.Curve
	scorer *battle.Scorer
	ranker *leaderboard.Ranker
	stats  *analytics.Aggregator
	bus    shared.EventPublisher
	clock  Clock
	policy Policy
	log    *logger.Logger

	// grants serializes each user's appends together with the user-record
	// save and ranker upsert that follow, so the stored record and the
	// leaderboard always reflect the latest applied total.
	grants [grantStripeCount]sync.Mutex
}

// NewEngine assembles the engine over a store. bus may be nil to disable
// event publication; clock may be nil to use the system clock.
func NewEngine(store Store, bus shared.EventPublisher, clock Clock, log *logger.Logger, policy Policy) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	if policy.Curve.Validate() != nil {
		policy.Curve = leveling.DefaultCurve()
	}
	if len(policy.QuestMultipliers) == 0 {
		policy.QuestMultipliers = DefaultPolicy().QuestMultipliers
	}

	return &Engine{
		store:  store,
		ledger: ledger.NewLedger(store),
		curve:  policy.Curve,
		scorer: battle.NewScorer(policy.Scoring),
		ranker: leaderboard.NewRanker(),
		stats:  analytics.NewAggregator(),
		bus:    bus,
		clock:  clock,
		policy: policy,
		log:    log.With(logger.Component("engine")),
	}
}

// RegisterUser creates the progression record for an account. Registering an
// existing account returns the stored record unchanged.
func (e *Engine) RegisterUser(ctx context.Context, id, displayName string) (*user.User, error) {
	existing, err := e.store.User(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	u, err := user.New(id, displayName, e.clock.Now())
	if err != nil {
		return nil, shared.WrapError("engine", "RegisterUser", shared.ErrInvalidInput, "invalid user", err)
	}
	if err := e.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}

	e.ranker.Upsert(u)
	e.log.Info("user registered", logger.UserID(id))
	return u, nil
}

// QuestOutcome reports the result of a quest completion submission.
type QuestOutcome struct {
	InstanceID string
	State      quest.State

	// AwardedXP is the reward attached to the completion.
	AwardedXP int64

	// Duplicate is true when the submission had already been applied. The
	// remaining fields still describe the user's current standing.
	Duplicate bool

	TotalXP            user.XP
	Level              user.Level
	LevelsGained       int
	SkillPointsGranted int
	Rank               int
}

// SubmitQuestCompletion records a quest completion: transitions the instance,
// appends the reward to the ledger under the completion's idempotency key,
// and refreshes the user's level, streak, rank, and analytics.
//
// Replayed submissions return Duplicate=true with no error and no side
// effects. A submission past the instance's deadline expires the instance
// instead and grants nothing.
func (e *Engine) SubmitQuestCompletion(ctx context.Context, userID, instanceID string, completedAt time.Time) (QuestOutcome, error) {
	if completedAt.IsZero() {
		completedAt = e.clock.Now()
	}

	u, err := e.store.User(ctx, userID)
	if err != nil {
		return QuestOutcome{}, err
	}

	inst, err := e.store.QuestInstance(ctx, instanceID)
	if err != nil {
		return QuestOutcome{}, err
	}
	if inst.UserID != userID {
		return QuestOutcome{}, shared.ErrUnknownQuest
	}

	tmpl, ok := quest.TemplateByID(inst.TemplateID)
	if !ok {
		return QuestOutcome{}, shared.ErrUnknownTemplate
	}

	reward := quest.Reward(tmpl.BaseXP, e.policy.QuestMultipliers[tmpl.Difficulty], e.streakMultiplier(u, completedAt))

	wasTerminal := inst.State.IsTerminal()
	res, err := inst.Complete(completedAt, reward)
	if err != nil {
		return QuestOutcome{}, err
	}

	if !wasTerminal {
		if err := e.store.SaveQuestInstance(ctx, inst); err != nil {
			return QuestOutcome{}, err
		}
		if res.State == quest.StateExpired {
			e.publish(shared.NewQuestExpiredEvent(userID, inst.ID, inst.Deadline))
		}
	}

	outcome := QuestOutcome{
		InstanceID: inst.ID,
		State:      res.State,
		AwardedXP:  res.AwardedXP,
		Duplicate:  res.AlreadyTerminal,
	}

	// A terminal instance absorbed the attempt: a replayed completion must
	// not derive a fresh ledger entry, whatever timestamp the retry carries.
	if res.AlreadyTerminal || res.State != quest.StateCompleted {
		e.fillStanding(ctx, u, &outcome.TotalXP, &outcome.Level, &outcome.Rank)
		return outcome, nil
	}

	key := ledger.QuestCompletionKey(inst.ID, completedAt)
	entry, err := ledger.NewEntry(userID, res.AwardedXP, ledger.SourceQuest, key, completedAt)
	if err != nil {
		return QuestOutcome{}, shared.WrapError("engine", "SubmitQuestCompletion", shared.ErrInvalidInput, "bad ledger entry", err)
	}

	stripe := e.grantStripe(userID)
	stripe.Lock()
	applied, err := e.ledger.Append(ctx, entry)
	if shared.IsDuplicateEvent(err) {
		stripe.Unlock()
		outcome.Duplicate = true
		e.fillStanding(ctx, u, &outcome.TotalXP, &outcome.Level, &outcome.Rank)
		return outcome, nil
	}
	if err != nil {
		stripe.Unlock()
		return QuestOutcome{}, err
	}

	u = e.refreshUser(ctx, u)
	u.RecordCompletion(completedAt)
	levelsGained, points, rank, err := e.applyGain(ctx, u, applied)
	stripe.Unlock()
	if err != nil {
		return QuestOutcome{}, err
	}

	e.stats.RecordQuestCompletion(key, tmpl.ID, res.AwardedXP, completedAt)
	e.publish(shared.NewXPGainedEvent(userID, entry.Amount, int64(applied.NewTotal), string(ledger.SourceQuest), key))
	e.publish(shared.NewQuestCompletedEvent(userID, inst.ID, tmpl.ID, res.AwardedXP, completedAt))

	outcome.TotalXP = applied.NewTotal
	outcome.Level = u.Level
	outcome.LevelsGained = levelsGained
	outcome.SkillPointsGranted = points
	outcome.Rank = rank

	e.log.Info("quest completed",
		logger.UserID(userID), logger.QuestID(inst.ID),
		logger.XPAmount(res.AwardedXP), logger.LevelValue(int(u.Level)))
	return outcome, nil
}

// BattleOutcome reports the result of a boss battle submission.
type BattleOutcome struct {
	ExamID     string
	Score      int
	Difficulty shared.Difficulty
	Passed     bool
	BonusXP    int64
	Duplicate  bool

	TotalXP            user.XP
	Level              user.Level
	LevelsGained       int
	SkillPointsGranted int
	Rank               int
}

// SubmitBossBattleResult scores a mock exam and grants the bonus XP. One exam
// per user is scored at most once: replays return Duplicate=true without
// error.
func (e *Engine) SubmitBossBattleResult(ctx context.Context, userID, examID string, score int, difficulty shared.Difficulty) (BattleOutcome, error) {
	now := e.clock.Now()

	u, err := e.store.User(ctx, userID)
	if err != nil {
		return BattleOutcome{}, err
	}

	scored, err := e.scorer.Score(userID, examID, score, difficulty, now)
	if err != nil {
		return BattleOutcome{}, err
	}

	outcome := BattleOutcome{
		ExamID:     examID,
		Score:      score,
		Difficulty: difficulty,
		Passed:     scored.Passed,
		BonusXP:    scored.BonusXP,
	}

	key := ledger.BattleKey(userID, examID)
	entry, err := ledger.NewEntry(userID, scored.BonusXP, ledger.SourceBossBattle, key, now)
	if err != nil {
		return BattleOutcome{}, shared.WrapError("engine", "SubmitBossBattleResult", shared.ErrInvalidInput, "bad ledger entry", err)
	}

	stripe := e.grantStripe(userID)
	stripe.Lock()
	applied, err := e.ledger.Append(ctx, entry)
	if shared.IsDuplicateEvent(err) {
		stripe.Unlock()
		outcome.Duplicate = true
		e.fillStanding(ctx, u, &outcome.TotalXP, &outcome.Level, &outcome.Rank)
		return outcome, nil
	}
	if err != nil {
		stripe.Unlock()
		return BattleOutcome{}, err
	}

	u = e.refreshUser(ctx, u)
	levelsGained, points, rank, err := e.applyGain(ctx, u, applied)
	stripe.Unlock()
	if err != nil {
		return BattleOutcome{}, err
	}

	e.stats.RecordBattle(key, examID, scored.Passed, scored.BonusXP, now)
	e.publish(shared.NewXPGainedEvent(userID, entry.Amount, int64(applied.NewTotal), string(ledger.SourceBossBattle), key))
	e.publish(shared.NewBattleScoredEvent(userID, examID, score, string(difficulty), scored.Passed, scored.BonusXP))

	outcome.TotalXP = applied.NewTotal
	outcome.Level = u.Level
	outcome.LevelsGained = levelsGained
	outcome.SkillPointsGranted = points
	outcome.Rank = rank

	e.log.Info("boss battle scored",
		logger.UserID(userID), logger.ExamID(examID),
		logger.Int("score", score), logger.Bool("passed", scored.Passed),
		logger.XPAmount(scored.BonusXP))
	return outcome, nil
}

// SessionOutcome reports the result of logging a Pomodoro session.
type SessionOutcome struct {
	SessionID string
	BonusXP   int64
	Duplicate bool
	TotalXP   user.XP
}

// LogPomodoroSession records a completed Pomodoro session: minutes flow into
// the analytics buckets for the subject and a small bonus XP entry is
// appended under the session's idempotency key.
func (e *Engine) LogPomodoroSession(ctx context.Context, userID, sessionID, subject string, startedAt time.Time, minutes int) (SessionOutcome, error) {
	if minutes <= 0 {
		return SessionOutcome{}, shared.NewDomainError("engine", "LogPomodoroSession", shared.ErrValueOutOfRange, "session minutes must be positive")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if startedAt.IsZero() {
		startedAt = e.clock.Now()
	}

	u, err := e.store.User(ctx, userID)
	if err != nil {
		return SessionOutcome{}, err
	}

	outcome := SessionOutcome{SessionID: sessionID, BonusXP: e.policy.SessionBonusXP}

	key := ledger.SessionBonusKey(sessionID)
	entry, err := ledger.NewEntry(userID, e.policy.SessionBonusXP, ledger.SourceBonus, key, startedAt)
	if err != nil {
		return SessionOutcome{}, shared.WrapError("engine", "LogPomodoroSession", shared.ErrInvalidInput, "bad ledger entry", err)
	}

	stripe := e.grantStripe(userID)
	stripe.Lock()
	applied, err := e.ledger.Append(ctx, entry)
	if shared.IsDuplicateEvent(err) {
		stripe.Unlock()
		outcome.Duplicate = true
		outcome.TotalXP = applied.NewTotal
		return outcome, nil
	}
	if err != nil {
		stripe.Unlock()
		return SessionOutcome{}, err
	}

	u = e.refreshUser(ctx, u)
	_, _, _, gainErr := e.applyGain(ctx, u, applied)
	stripe.Unlock()
	if gainErr != nil {
		return SessionOutcome{}, gainErr
	}

	e.stats.RecordSession(key, subject, minutes, e.policy.SessionBonusXP, startedAt)
	e.publish(shared.NewXPGainedEvent(userID, entry.Amount, int64(applied.NewTotal), string(ledger.SourceBonus), key))
	e.publish(shared.NewSessionLoggedEvent(userID, sessionID, startedAt, minutes))

	outcome.TotalXP = applied.NewTotal
	return outcome, nil
}

// AssignQuests assigns every eligible template of the cadence to the user,
// one instance per template per cadence window. Templates already assigned in
// the current window are skipped, so the call is safe to repeat.
func (e *Engine) AssignQuests(ctx context.Context, userID string, cadence quest.Cadence, now time.Time) ([]*quest.Instance, error) {
	if now.IsZero() {
		now = e.clock.Now()
	}

	u, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	var assigned []*quest.Instance
	windowStart := cadence.WindowStart(now)
	for _, tmpl := range quest.TemplatesByCadence(cadence) {
		if !tmpl.EligibleFor(u) {
			continue
		}

		_, err := e.store.QuestInstanceInWindow(ctx, userID, tmpl.ID, windowStart)
		if err == nil {
			continue
		}
		if !shared.IsNotFound(err) {
			return nil, err
		}

		inst := quest.NewInstance(tmpl, userID, now)
		if err := e.store.SaveQuestInstance(ctx, inst); err != nil {
			return nil, err
		}
		assigned = append(assigned, inst)
		e.publish(shared.NewQuestAssignedEvent(userID, inst.ID, tmpl.ID, inst.Deadline))
	}

	if len(assigned) > 0 {
		e.log.Info("quests assigned",
			logger.UserID(userID), logger.String("cadence", string(cadence)),
			logger.Int("count", len(assigned)))
	}
	return assigned, nil
}

// ActivateQuest records the first work toward a quest instance.
func (e *Engine) ActivateQuest(ctx context.Context, userID, instanceID string) error {
	inst, err := e.store.QuestInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.UserID != userID {
		return shared.ErrUnknownQuest
	}

	now := e.clock.Now()
	if err := inst.Activate(now); err != nil {
		if inst.State == quest.StateExpired {
			if saveErr := e.store.SaveQuestInstance(ctx, inst); saveErr != nil {
				return saveErr
			}
			e.publish(shared.NewQuestExpiredEvent(userID, inst.ID, inst.Deadline))
		}
		return err
	}
	return e.store.SaveQuestInstance(ctx, inst)
}

// GetQuests returns the user's quest instances with expiry applied lazily:
// an instance past its deadline comes back Expired even if no sweep has
// visited it yet.
func (e *Engine) GetQuests(ctx context.Context, userID string) ([]*quest.Instance, error) {
	instances, err := e.store.QuestInstancesFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	for _, inst := range instances {
		if inst.ExpireIfDue(now) {
			if err := e.store.SaveQuestInstance(ctx, inst); err != nil {
				return nil, err
			}
			e.publish(shared.NewQuestExpiredEvent(inst.UserID, inst.ID, inst.Deadline))
		}
	}
	return instances, nil
}

// ReconcileExpiredQuests sweeps all open instances and expires the overdue
// ones. The sweep reaches exactly the terminal states lazy evaluation would,
// and repeating it is a no-op. Returns the number of instances expired.
func (e *Engine) ReconcileExpiredQuests(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = e.clock.Now()
	}

	open, err := e.store.OpenQuestInstances(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, inst := range open {
		if !inst.ExpireIfDue(now) {
			continue
		}
		if err := e.store.SaveQuestInstance(ctx, inst); err != nil {
			return expired, err
		}
		e.publish(shared.NewQuestExpiredEvent(inst.UserID, inst.ID, inst.Deadline))
		expired++
	}

	if expired > 0 {
		e.log.Info("expired overdue quests", logger.Int("count", expired))
	}
	return expired, nil
}

// AllocateSkillPoints spends a user's skill points on attributes. The whole
// allocation applies atomically or not at all.
func (e *Engine) AllocateSkillPoints(ctx context.Context, userID string, allocations map[user.Attribute]int) (*user.User, error) {
	u, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := u.AllocateSkillPoints(allocations); err != nil {
		var kind error = shared.ErrInvalidInput
		switch {
		case errors.Is(err, user.ErrUnknownAttribute):
			kind = shared.ErrInvalidAttribute
		case errors.Is(err, user.ErrInsufficientPoints):
			kind = shared.ErrInsufficientSkillPoint
		}
		return nil, shared.WrapError("engine", "AllocateSkillPoints", kind, "allocation rejected", err)
	}
	if err := e.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Progress is a user's current standing.
type Progress struct {
	UserID               string
	DisplayName          string
	TotalXP              user.XP
	Level                user.Level
	ProgressWithinLevel  float64
	SkillPointsAvailable int
	SkillPointsSpent     int
	Attributes           user.Attributes
	StreakDays           int
	Rank                 int
}

// GetProgress returns the user's progression snapshot. The XP total comes
// from the ledger, so a stale cached field on the user record never leaks
// out.
func (e *Engine) GetProgress(ctx context.Context, userID string) (Progress, error) {
	u, err := e.store.User(ctx, userID)
	if err != nil {
		return Progress{}, err
	}

	total, err := e.ledger.TotalFor(ctx, userID)
	if err != nil {
		return Progress{}, err
	}

	rank, _ := e.ranker.RankOf(userID)
	return Progress{
		UserID:               u.ID,
		DisplayName:          u.DisplayName,
		TotalXP:              total,
		Level:                e.curve.LevelFor(total),
		ProgressWithinLevel:  e.curve.ProgressWithin(total),
		SkillPointsAvailable: u.SkillPointsAvailable,
		SkillPointsSpent:     u.SkillPointsSpent,
		Attributes:           u.Attributes.Clone(),
		StreakDays:           u.Streak.ActiveDaysAsOf(e.clock.Now()),
		Rank:                 rank,
	}, nil
}

// Standing is one leaderboard row.
type Standing struct {
	Rank        int
	UserID      string
	DisplayName string
	TotalXP     int64
	Level       int
}

// GetLeaderboard returns one page of standings in rank order.
func (e *Engine) GetLeaderboard(ctx context.Context, offset, limit int) ([]Standing, error) {
	page := e.ranker.Page(offset, limit)

	standings := make([]Standing, 0, len(page))
	for _, ranked := range page {
		standing := Standing{
			Rank:    ranked.Rank,
			UserID:  ranked.Entry.UserID,
			TotalXP: ranked.Entry.XP,
			Level:   ranked.Entry.Level,
		}
		if u, err := e.store.User(ctx, ranked.Entry.UserID); err == nil {
			standing.DisplayName = u.DisplayName
		}
		standings = append(standings, standing)
	}
	return standings, nil
}

// LeaderboardSnapshot returns the full ranked ordering together with the
// display names of every ranked user. Used to refresh external projections.
func (e *Engine) LeaderboardSnapshot(ctx context.Context) ([]leaderboard.Ranked, map[string]string, error) {
	snapshot := e.ranker.Snapshot()

	names := make(map[string]string, len(snapshot))
	for _, ranked := range snapshot {
		if u, err := e.store.User(ctx, ranked.Entry.UserID); err == nil {
			names[u.ID] = u.DisplayName
		}
	}
	return snapshot, names, nil
}

// GetAnalytics returns the subject's activity buckets at the given
// granularity, ordered by bucket start.
func (e *Engine) GetAnalytics(ctx context.Context, subject string, granularity analytics.Granularity, from, to time.Time) ([]analytics.Bucket, error) {
	if !granularity.IsValid() {
		return nil, shared.NewDomainError("engine", "GetAnalytics", shared.ErrInvalidInput, "unrecognized granularity "+string(granularity))
	}
	return e.stats.Query(subject, granularity, from, to), nil
}

// RebuildLeaderboard replays the full ledger and rebuilds the ranker from
// scratch. The rebuilt ordering is identical to what incremental updates
// produced. Returns the number of users ranked.
func (e *Engine) RebuildLeaderboard(ctx context.Context) (int, error) {
	totals, err := e.ledger.Rebuild(ctx)
	if err != nil {
		return 0, err
	}

	users, err := e.store.Users(ctx)
	if err != nil {
		return 0, err
	}

	snapshots := make([]*user.User, 0, len(users))
	for _, u := range users {
		snapshot := u.Clone()
		snapshot.TotalXP = totals[u.ID]
		snapshot.Level = e.curve.LevelFor(snapshot.TotalXP)
		snapshots = append(snapshots, snapshot)
	}

	ranked := e.ranker.Rebuild(snapshots)
	e.log.Info("leaderboard rebuilt", logger.Int("users", ranked))
	return ranked, nil
}

// grantStripe maps a user id onto a grant lock stripe.
func (e *Engine) grantStripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &e.grants[h.Sum32()%grantStripeCount]
}

// refreshUser re-reads the stored record under the grant stripe so the gain
// folds into the latest saved state rather than the copy loaded before the
// append. Falls back to the copy when the read fails; applyGain still derives
// levels from the append's totals, so a stale copy only delays cosmetic
// fields until the next save.
func (e *Engine) refreshUser(ctx context.Context, u *user.User) *user.User {
	fresh, err := e.store.User(ctx, u.ID)
	if err != nil {
		return u
	}
	return fresh
}

// applyGain folds a successful ledger append into the user record and the
// leaderboard, publishing level-up and rank-change events. Runs under the
// user's grant stripe. Levels come from the append's own before/after totals:
// consecutive appends see disjoint total ranges, so each level crossing
// grants its skill-point batch exactly once however the calls interleave.
func (e *Engine) applyGain(ctx context.Context, u *user.User, applied ledger.AppendResult) (levelsGained, skillPoints, rank int, err error) {
	oldLevel := e.curve.LevelFor(applied.OldTotal)
	newLevel := e.curve.LevelFor(applied.NewTotal)
	skillPoints = e.curve.SkillPointsBetween(oldLevel, newLevel)
	levelsGained = u.ApplyXP(applied.NewTotal, newLevel, skillPoints)

	if err := e.store.SaveUser(ctx, u); err != nil {
		return 0, 0, 0, err
	}

	change := e.ranker.Upsert(u)
	if levelsGained > 0 {
		e.publish(shared.NewLevelUpEvent(u.ID, int(oldLevel), int(newLevel), skillPoints))
	}
	if change.OldRank != change.NewRank {
		e.publish(shared.NewRankChangedEvent(u.ID, change.OldRank, change.NewRank))
	}
	return levelsGained, skillPoints, change.NewRank, nil
}

// fillStanding populates the current totals on a duplicate or no-op outcome.
func (e *Engine) fillStanding(ctx context.Context, u *user.User, total *user.XP, level *user.Level, rank *int) {
	if t, err := e.ledger.TotalFor(ctx, u.ID); err == nil {
		*total = t
		*level = e.curve.LevelFor(t)
	}
	if r, ok := e.ranker.RankOf(u.ID); ok {
		*rank = r
	}
}

// streakMultiplier returns the reward multiplier the user's current streak
// earns at the given time.
func (e *Engine) streakMultiplier(u *user.User, now time.Time) float64 {
	if e.policy.StreakBonus <= 1 || e.policy.StreakMinDays <= 0 {
		return 1
	}
	if u.Streak.ActiveDaysAsOf(now) >= e.policy.StreakMinDays {
		return e.policy.StreakBonus
	}
	return 1
}

func (e *Engine) publish(event shared.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(event); err != nil {
		e.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
}
