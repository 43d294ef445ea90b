package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/study-quest/progression-engine/internal/domain/ledger"
	"github.com/study-quest/progression-engine/internal/domain/quest"
	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
)

// Store is the durable implementation of the application's persistence
// interface. AppendEntry relies on the unique index over idempotency_key:
// INSERT .. ON CONFLICT DO NOTHING makes the append-if-absent atomic at the
// database, which is the cross-process idempotency guarantee.
type Store struct {
	conn *Connection
}

// NewStore creates a store over an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

func storeErr(op string, err error) error {
	return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "database call failed", err)
}

// AppendEntry inserts a ledger entry, rejecting idempotency-key replays.
func (s *Store) AppendEntry(ctx context.Context, entry ledger.Entry) error {
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO xp_ledger (id, user_id, amount, source, idempotency_key, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, entry.ID, entry.UserID, entry.Amount, string(entry.Source), entry.IdempotencyKey, entry.RecordedAt)
	if err != nil {
		return storeErr("AppendEntry", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDuplicateEvent
	}
	return nil
}

// EntriesFor returns a user's ledger entries in recorded order.
func (s *Store) EntriesFor(ctx context.Context, userID string) ([]ledger.Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, amount, source, idempotency_key, recorded_at
		FROM xp_ledger WHERE user_id = $1 ORDER BY recorded_at, id
	`, userID)
	if err != nil {
		return nil, storeErr("EntriesFor", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Entries returns every ledger entry in recorded order.
func (s *Store) Entries(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, amount, source, idempotency_key, recorded_at
		FROM xp_ledger ORDER BY recorded_at, id
	`)
	if err != nil {
		return nil, storeErr("Entries", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows rowScanner) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var source string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &source, &e.IdempotencyKey, &e.RecordedAt); err != nil {
			return nil, storeErr("scanEntries", err)
		}
		e.Source = ledger.Source(source)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scanEntries", err)
	}
	return out, nil
}

// User loads one progression record.
func (s *Store) User(ctx context.Context, id string) (*user.User, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, display_name, total_xp, level,
		       skill_points_available, skill_points_spent, attributes,
		       streak_current, streak_best, streak_last_active, streak_started,
		       registered_at, created_at, updated_at
		FROM users WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUnknownUser
		}
		return nil, storeErr("User", err)
	}
	return u, nil
}

// SaveUser upserts a progression record.
func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	attrs, err := json.Marshal(u.Attributes)
	if err != nil {
		return storeErr("SaveUser", err)
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO users (id, display_name, total_xp, level,
			skill_points_available, skill_points_spent, attributes,
			streak_current, streak_best, streak_last_active, streak_started,
			registered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			total_xp = EXCLUDED.total_xp,
			level = EXCLUDED.level,
			skill_points_available = EXCLUDED.skill_points_available,
			skill_points_spent = EXCLUDED.skill_points_spent,
			attributes = EXCLUDED.attributes,
			streak_current = EXCLUDED.streak_current,
			streak_best = EXCLUDED.streak_best,
			streak_last_active = EXCLUDED.streak_last_active,
			streak_started = EXCLUDED.streak_started,
			updated_at = EXCLUDED.updated_at
	`, u.ID, u.DisplayName, int64(u.TotalXP), int(u.Level),
		u.SkillPointsAvailable, u.SkillPointsSpent, attrs,
		u.Streak.Current, u.Streak.Best,
		nullableTime(u.Streak.LastActiveDate), nullableTime(u.Streak.StartedAt),
		u.RegisteredAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return storeErr("SaveUser", err)
	}
	return nil
}

// Users returns every progression record ordered by id.
func (s *Store) Users(ctx context.Context) ([]*user.User, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, display_name, total_xp, level,
		       skill_points_available, skill_points_spent, attributes,
		       streak_current, streak_best, streak_last_active, streak_started,
		       registered_at, created_at, updated_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, storeErr("Users", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("Users", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("Users", err)
	}
	return out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*user.User, error) {
	var u user.User
	var level int
	var totalXP int64
	var attrs []byte
	var lastActive, started *time.Time

	err := row.Scan(&u.ID, &u.DisplayName, &totalXP, &level,
		&u.SkillPointsAvailable, &u.SkillPointsSpent, &attrs,
		&u.Streak.Current, &u.Streak.Best, &lastActive, &started,
		&u.RegisteredAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	u.TotalXP = user.XP(totalXP)
	u.Level = user.Level(level)
	u.Attributes = make(user.Attributes)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.Attributes); err != nil {
			return nil, err
		}
	}
	if lastActive != nil {
		u.Streak.LastActiveDate = lastActive.UTC()
	}
	if started != nil {
		u.Streak.StartedAt = started.UTC()
	}
	return &u, nil
}

// QuestInstance loads one instance.
func (s *Store) QuestInstance(ctx context.Context, id string) (*quest.Instance, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, user_id, template_id, state, assigned_at, activated_at,
		       deadline, finished_at, awarded_xp
		FROM quest_instances WHERE id = $1
	`, id)

	inst, err := scanInstance(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUnknownQuest
		}
		return nil, storeErr("QuestInstance", err)
	}
	return inst, nil
}

// SaveQuestInstance upserts an instance.
func (s *Store) SaveQuestInstance(ctx context.Context, inst *quest.Instance) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO quest_instances (id, user_id, template_id, state,
			assigned_at, activated_at, deadline, finished_at, awarded_xp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			activated_at = EXCLUDED.activated_at,
			finished_at = EXCLUDED.finished_at,
			awarded_xp = EXCLUDED.awarded_xp
	`, inst.ID, inst.UserID, inst.TemplateID, string(inst.State),
		inst.AssignedAt, nullableTime(inst.ActivatedAt), inst.Deadline,
		nullableTime(inst.FinishedAt), inst.AwardedXP)
	if err != nil {
		return storeErr("SaveQuestInstance", err)
	}
	return nil
}

// QuestInstancesFor returns a user's instances, newest first.
func (s *Store) QuestInstancesFor(ctx context.Context, userID string) ([]*quest.Instance, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, template_id, state, assigned_at, activated_at,
		       deadline, finished_at, awarded_xp
		FROM quest_instances WHERE user_id = $1 ORDER BY assigned_at DESC
	`, userID)
	if err != nil {
		return nil, storeErr("QuestInstancesFor", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// OpenQuestInstances returns every non-terminal instance.
func (s *Store) OpenQuestInstances(ctx context.Context) ([]*quest.Instance, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, template_id, state, assigned_at, activated_at,
		       deadline, finished_at, awarded_xp
		FROM quest_instances WHERE state IN ('assigned', 'active')
	`)
	if err != nil {
		return nil, storeErr("OpenQuestInstances", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// QuestInstanceInWindow finds a user's instance of a template assigned at or
// after windowStart.
func (s *Store) QuestInstanceInWindow(ctx context.Context, userID, templateID string, windowStart time.Time) (*quest.Instance, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, user_id, template_id, state, assigned_at, activated_at,
		       deadline, finished_at, awarded_xp
		FROM quest_instances
		WHERE user_id = $1 AND template_id = $2 AND assigned_at >= $3
		ORDER BY assigned_at DESC LIMIT 1
	`, userID, templateID, windowStart)

	inst, err := scanInstance(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUnknownQuest
		}
		return nil, storeErr("QuestInstanceInWindow", err)
	}
	return inst, nil
}

func scanInstance(row scannable) (*quest.Instance, error) {
	var inst quest.Instance
	var state string
	var activated, finished *time.Time

	err := row.Scan(&inst.ID, &inst.UserID, &inst.TemplateID, &state,
		&inst.AssignedAt, &activated, &inst.Deadline, &finished, &inst.AwardedXP)
	if err != nil {
		return nil, err
	}

	inst.State = quest.State(state)
	if activated != nil {
		inst.ActivatedAt = activated.UTC()
	}
	if finished != nil {
		inst.FinishedAt = finished.UTC()
	}
	return &inst, nil
}

func scanInstances(rows rowScanner) ([]*quest.Instance, error) {
	var out []*quest.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, storeErr("scanInstances", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scanInstances", err)
	}
	return out, nil
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
