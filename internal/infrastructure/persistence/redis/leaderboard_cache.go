// Package redis implements the Redis-backed leaderboard projection. The
// projection mirrors the in-memory ranker for external readers; it is never
// authoritative and can be dropped and rebuilt from a ranker snapshot at any
// time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/study-quest/progression-engine/internal/domain/leaderboard"
)

var (
	// ErrNotRanked is returned when a user is not present in the projection.
	ErrNotRanked = errors.New("leaderboard_cache: user not ranked")

	// ErrInvalidPageParams is returned for invalid pagination parameters.
	ErrInvalidPageParams = errors.New("leaderboard_cache: invalid page parameters")
)

// Key layout:
//
//	leaderboard:xp    sorted set, member = user id, score = total XP
//	leaderboard:info  hash, member = user id, value = CachedStanding JSON
//
// The sorted set alone cannot express the full composite ordering (level and
// registration tiebreaks), so exact ties read from the info hash. For display
// purposes the XP-only ordering is accepted drift; the ranker remains the
// source of truth.
const (
	keyXP   = "leaderboard:xp"
	keyInfo = "leaderboard:info"

	// cacheTTL bounds staleness when the projection stops being refreshed.
	cacheTTL = 10 * time.Minute
)

// CachedStanding is one row of the projection.
type CachedStanding struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	XP           int64     `json:"xp"`
	Level        int       `json:"level"`
	Rank         int       `json:"rank"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// LeaderboardCache projects ranker standings into Redis sorted sets.
type LeaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache connects to Redis and verifies the connection.
func NewLeaderboardCache(ctx context.Context, cfg Config) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to ping: %w", err)
	}
	return &LeaderboardCache{client: client}, nil
}

// NewLeaderboardCacheWithClient wraps an existing client. Used by tests.
func NewLeaderboardCacheWithClient(client *redis.Client) *LeaderboardCache {
	return &LeaderboardCache{client: client}
}

// Close releases the underlying client.
func (l *LeaderboardCache) Close() error {
	return l.client.Close()
}

// UpdateStanding upserts one row. O(log N) in the sorted set.
func (l *LeaderboardCache) UpdateStanding(ctx context.Context, standing CachedStanding) error {
	if standing.UserID == "" {
		return ErrNotRanked
	}

	data, err := json.Marshal(standing)
	if err != nil {
		return fmt.Errorf("leaderboard_cache: marshal standing: %w", err)
	}

	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, keyXP, redis.Z{Score: float64(standing.XP), Member: standing.UserID})
	pipe.HSet(ctx, keyInfo, standing.UserID, data)
	pipe.Expire(ctx, keyXP, cacheTTL)
	pipe.Expire(ctx, keyInfo, cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RebuildFromSnapshot atomically replaces the projection with a full ranker
// snapshot.
func (l *LeaderboardCache) RebuildFromSnapshot(ctx context.Context, snapshot []leaderboard.Ranked, names map[string]string) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, keyXP, keyInfo)

	if len(snapshot) > 0 {
		members := make([]redis.Z, 0, len(snapshot))
		info := make(map[string]interface{}, len(snapshot))
		for _, ranked := range snapshot {
			entry := ranked.Entry
			members = append(members, redis.Z{Score: float64(entry.XP), Member: entry.UserID})
			data, err := json.Marshal(CachedStanding{
				UserID:       entry.UserID,
				DisplayName:  names[entry.UserID],
				XP:           entry.XP,
				Level:        entry.Level,
				Rank:         ranked.Rank,
				RegisteredAt: entry.RegisteredAt,
			})
			if err != nil {
				return fmt.Errorf("leaderboard_cache: marshal standing: %w", err)
			}
			info[entry.UserID] = data
		}
		pipe.ZAdd(ctx, keyXP, members...)
		pipe.HSet(ctx, keyInfo, info)
		pipe.Expire(ctx, keyXP, cacheTTL)
		pipe.Expire(ctx, keyInfo, cacheTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops one user from the projection.
func (l *LeaderboardCache) Remove(ctx context.Context, userID string) error {
	pipe := l.client.Pipeline()
	pipe.ZRem(ctx, keyXP, userID)
	pipe.HDel(ctx, keyInfo, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the best count rows by cached XP.
func (l *LeaderboardCache) Top(ctx context.Context, count int) ([]CachedStanding, error) {
	if count <= 0 {
		return nil, ErrInvalidPageParams
	}

	ids, err := l.client.ZRevRange(ctx, keyXP, 0, int64(count-1)).Result()
	if err != nil {
		return nil, err
	}
	return l.standingsFor(ctx, ids)
}

// Rank returns the cached 1-based XP rank of a user.
func (l *LeaderboardCache) Rank(ctx context.Context, userID string) (int, error) {
	rank, err := l.client.ZRevRank(ctx, keyXP, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotRanked
		}
		return 0, err
	}
	return int(rank) + 1, nil
}

// Count returns the number of projected rows.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	return l.client.ZCard(ctx, keyXP).Result()
}

// Invalidate drops the whole projection.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.client.Del(ctx, keyXP, keyInfo).Err()
}

func (l *LeaderboardCache) standingsFor(ctx context.Context, ids []string) ([]CachedStanding, error) {
	if len(ids) == 0 {
		return []CachedStanding{}, nil
	}

	data, err := l.client.HMGet(ctx, keyInfo, ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]CachedStanding, 0, len(ids))
	for i, v := range data {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var standing CachedStanding
		if err := json.Unmarshal([]byte(str), &standing); err != nil {
			continue
		}
		standing.Rank = i + 1
		out = append(out, standing)
	}
	return out, nil
}
