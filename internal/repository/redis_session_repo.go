package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"listsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix   = "session:"
	listSessionsKeyFmt = "list:%d:sessions"
)

// RedisSessionStore keeps presence in Redis: one hash per session that expires
// after the active window, plus a sorted set per list scored by last activity.
type RedisSessionStore struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client, window time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, window: window, now: time.Now}
}

func (r *RedisSessionStore) Touch(ctx context.Context, listID uint, sessionID, userAgent string) error {
	key := sessionKey(sessionID)
	now := r.now()

	// A session that moved lists must leave the old list's index
	prev, err := r.client.HGet(ctx, key, "list_id").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	pipe := r.client.TxPipeline()
	if prevID, convErr := strconv.ParseUint(prev, 10, 64); convErr == nil && uint(prevID) != listID {
		pipe.ZRem(ctx, listSessionsKey(uint(prevID)), sessionID)
	}
	pipe.HSet(ctx, key,
		"list_id", listID,
		"user_agent", userAgent,
		"last_activity", now.UnixMilli(),
	)
	pipe.Expire(ctx, key, r.window)
	pipe.ZAdd(ctx, listSessionsKey(listID), redis.Z{Score: float64(now.UnixMilli()), Member: sessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisSessionStore) Remove(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)

	listID, err := r.client.HGet(ctx, key, "list_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	pipe := r.client.TxPipeline()
	if id, convErr := strconv.ParseUint(listID, 10, 64); convErr == nil {
		pipe.ZRem(ctx, listSessionsKey(uint(id)), sessionID)
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove session %s: %w", sessionID, err)
	}
	return nil
}

// CountActive trims members older than window from the list index (lazy
// cleanup) and counts the rest.
func (r *RedisSessionStore) CountActive(ctx context.Context, listID uint, window time.Duration) (int64, error) {
	key := listSessionsKey(listID)
	cutoff := r.now().Add(-window).UnixMilli()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count active sessions for list %d: %w", listID, err)
	}
	return count.Val(), nil
}

// ListActive trims the list index like CountActive, then loads each
// remaining session hash. Hashes that already expired are skipped.
func (r *RedisSessionStore) ListActive(ctx context.Context, listID uint, window time.Duration) ([]models.Session, error) {
	key := listSessionsKey(listID)
	cutoff := r.now().Add(-window).UnixMilli()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	members := pipe.ZRevRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to list active sessions for list %d: %w", listID, err)
	}
	if len(members.Val()) == 0 {
		return nil, nil
	}

	reads := r.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(members.Val()))
	for i, sessionID := range members.Val() {
		hashes[i] = reads.HGetAll(ctx, sessionKey(sessionID))
	}
	if _, err := reads.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read sessions for list %d: %w", listID, err)
	}

	sessions := make([]models.Session, 0, len(hashes))
	for i, cmd := range hashes {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		ms, _ := strconv.ParseInt(fields["last_activity"], 10, 64)
		sessions = append(sessions, models.Session{
			ListID:       listID,
			SessionID:    members.Val()[i],
			UserAgent:    fields["user_agent"],
			LastActivity: time.UnixMilli(ms),
		})
	}
	return sessions, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func listSessionsKey(listID uint) string {
	return fmt.Sprintf(listSessionsKeyFmt, listID)
}
