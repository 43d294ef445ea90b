// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. External collaborators submit quest/session/exam events;
// the engine translates them into XP events, which in turn drive the
// leaderboard and analytics projections.
const (
	// Ledger events
	EventXPGained EventType = "ledger.xp_gained"

	// Progression events
	EventLevelUp EventType = "progression.level_up"

	// Quest events
	EventQuestAssigned  EventType = "quest.assigned"
	EventQuestActivated EventType = "quest.activated"
	EventQuestCompleted EventType = "quest.completed"
	EventQuestExpired   EventType = "quest.expired"
	EventQuestFailed    EventType = "quest.failed"

	// Boss battle events
	EventBattleScored EventType = "battle.scored"

	// Session events
	EventSessionLogged EventType = "session.logged"

	// Leaderboard events
	EventRankChanged EventType = "leaderboard.rank_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// XPGainedEvent is emitted after a successful ledger append.
type XPGainedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	NewTotal       int64  `json:"new_total"`
	Source         string `json:"source"` // "quest", "boss_battle", "bonus"
	IdempotencyKey string `json:"idempotency_key"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"amount":          e.Amount,
		"new_total":       e.NewTotal,
		"source":          e.Source,
		"idempotency_key": e.IdempotencyKey,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newTotal int64, source, idempotencyKey string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent:      NewBaseEvent(EventXPGained, userID),
		UserID:         userID,
		Amount:         amount,
		NewTotal:       newTotal,
		Source:         source,
		IdempotencyKey: idempotencyKey,
	}
}

// LevelUpEvent is emitted when a ledger append pushes a user across one or
// more level thresholds.
type LevelUpEvent struct {
	BaseEvent
	UserID             string `json:"user_id"`
	OldLevel           int    `json:"old_level"`
	NewLevel           int    `json:"new_level"`
	SkillPointsGranted int    `json:"skill_points_granted"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":              e.UserID,
		"old_level":            e.OldLevel,
		"new_level":            e.NewLevel,
		"skill_points_granted": e.SkillPointsGranted,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel, skillPoints int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:          NewBaseEvent(EventLevelUp, userID),
		UserID:             userID,
		OldLevel:           oldLevel,
		NewLevel:           newLevel,
		SkillPointsGranted: skillPoints,
	}
}

// QuestAssignedEvent is emitted when a template is assigned to a user.
type QuestAssignedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	QuestInstanceID string    `json:"quest_instance_id"`
	TemplateID      string    `json:"template_id"`
	Deadline        time.Time `json:"deadline"`
}

// Payload implements Event interface.
func (e QuestAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"quest_instance_id": e.QuestInstanceID,
		"template_id":       e.TemplateID,
		"deadline":          e.Deadline.Format(time.RFC3339),
	}
}

// NewQuestAssignedEvent creates a new QuestAssignedEvent.
func NewQuestAssignedEvent(userID, instanceID, templateID string, deadline time.Time) QuestAssignedEvent {
	return QuestAssignedEvent{
		BaseEvent:       NewBaseEvent(EventQuestAssigned, instanceID),
		UserID:          userID,
		QuestInstanceID: instanceID,
		TemplateID:      templateID,
		Deadline:        deadline,
	}
}

// QuestCompletedEvent is emitted when a quest instance reaches Completed.
type QuestCompletedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	QuestInstanceID string    `json:"quest_instance_id"`
	TemplateID      string    `json:"template_id"`
	XPEarned        int64     `json:"xp_earned"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e QuestCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"quest_instance_id": e.QuestInstanceID,
		"template_id":       e.TemplateID,
		"xp_earned":         e.XPEarned,
		"completed_at":      e.CompletedAt.Format(time.RFC3339),
	}
}

// NewQuestCompletedEvent creates a new QuestCompletedEvent.
func NewQuestCompletedEvent(userID, instanceID, templateID string, xpEarned int64, completedAt time.Time) QuestCompletedEvent {
	return QuestCompletedEvent{
		BaseEvent:       NewBaseEvent(EventQuestCompleted, instanceID),
		UserID:          userID,
		QuestInstanceID: instanceID,
		TemplateID:      templateID,
		XPEarned:        xpEarned,
		CompletedAt:     completedAt,
	}
}

// QuestExpiredEvent is emitted when an instance is found past its deadline.
type QuestExpiredEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	QuestInstanceID string    `json:"quest_instance_id"`
	Deadline        time.Time `json:"deadline"`
}

// Payload implements Event interface.
func (e QuestExpiredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"quest_instance_id": e.QuestInstanceID,
		"deadline":          e.Deadline.Format(time.RFC3339),
	}
}

// NewQuestExpiredEvent creates a new QuestExpiredEvent.
func NewQuestExpiredEvent(userID, instanceID string, deadline time.Time) QuestExpiredEvent {
	return QuestExpiredEvent{
		BaseEvent:       NewBaseEvent(EventQuestExpired, instanceID),
		UserID:          userID,
		QuestInstanceID: instanceID,
		Deadline:        deadline,
	}
}

// BattleScoredEvent is emitted when a boss battle result has been scored.
type BattleScoredEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	ExamID     string `json:"exam_id"`
	Score      int    `json:"score"`
	Difficulty string `json:"difficulty"`
	Passed     bool   `json:"passed"`
	BonusXP    int64  `json:"bonus_xp"`
}

// Payload implements Event interface.
func (e BattleScoredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"exam_id":    e.ExamID,
		"score":      e.Score,
		"difficulty": e.Difficulty,
		"passed":     e.Passed,
		"bonus_xp":   e.BonusXP,
	}
}

// NewBattleScoredEvent creates a new BattleScoredEvent.
func NewBattleScoredEvent(userID, examID string, score int, difficulty string, passed bool, bonusXP int64) BattleScoredEvent {
	return BattleScoredEvent{
		BaseEvent:  NewBaseEvent(EventBattleScored, examID),
		UserID:     userID,
		ExamID:     examID,
		Score:      score,
		Difficulty: difficulty,
		Passed:     passed,
		BonusXP:    bonusXP,
	}
}

// SessionLoggedEvent is emitted when a Pomodoro session has been recorded.
type SessionLoggedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Minutes   int       `json:"minutes"`
}

// Payload implements Event interface.
func (e SessionLoggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"session_id": e.SessionID,
		"started_at": e.StartedAt.Format(time.RFC3339),
		"minutes":    e.Minutes,
	}
}

// NewSessionLoggedEvent creates a new SessionLoggedEvent.
func NewSessionLoggedEvent(userID, sessionID string, startedAt time.Time, minutes int) SessionLoggedEvent {
	return SessionLoggedEvent{
		BaseEvent: NewBaseEvent(EventSessionLogged, sessionID),
		UserID:    userID,
		SessionID: sessionID,
		StartedAt: startedAt,
		Minutes:   minutes,
	}
}

// RankChangedEvent is emitted when a user's leaderboard position changes.
type RankChangedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	OldRank    int    `json:"old_rank"`
	NewRank    int    `json:"new_rank"`
	RankChange int    `json:"rank_change"` // Positive = moved up, Negative = moved down
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"old_rank":    e.OldRank,
		"new_rank":    e.NewRank,
		"rank_change": e.RankChange,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(userID string, oldRank, newRank int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:  NewBaseEvent(EventRankChanged, userID),
		UserID:     userID,
		OldRank:    oldRank,
		NewRank:    newRank,
		RankChange: oldRank - newRank, // Positive means moved up
	}
}

// MovedUp returns true if the user moved up in rank.
func (e RankChangedEvent) MovedUp() bool {
	return e.RankChange > 0
}

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
