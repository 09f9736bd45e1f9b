package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parentline/guardian/pkg/config"
	"github.com/parentline/guardian/pkg/observability/logging"
)

// RedisStore implements Store using Redis.
//
// Key patterns:
//   - {prefix}session:{id}          -> JSON session record
//   - {prefix}messages:{session_id} -> list of JSON message records
//   - {prefix}index:activity        -> sorted set of session IDs, score = last activity unix
//   - {prefix}index:user:{user_id}  -> set of session IDs owned by the user
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "guardian:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Infof("RedisStore connected to %s with prefix %s", cfg.Address, keyPrefix)
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) sessionKey(id string) string { return r.keyPrefix + "session:" + id }

func (r *RedisStore) messagesKey(sessionID string) string {
	return r.keyPrefix + "messages:" + sessionID
}

func (r *RedisStore) activityIndexKey() string { return r.keyPrefix + "index:activity" }

func (r *RedisStore) userIndexKey(userID string) string { return r.keyPrefix + "index:user:" + userID }

func (r *RedisStore) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return sess, nil
}

func (r *RedisStore) SaveSession(ctx context.Context, sess *Session) error {
	sess.Revision++
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(sess.ID), data, 0)
	if !sess.Archived {
		pipe.ZAdd(ctx, r.activityIndexKey(), redis.Z{
			Score:  float64(sess.LastActivityAt.Unix()),
			Member: sess.ID,
		})
	}
	pipe.SAdd(ctx, r.userIndexKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		sess.Revision--
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisStore) SaveMessage(ctx context.Context, m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	if err := r.client.RPush(ctx, r.messagesKey(m.SessionID), data).Err(); err != nil {
		return fmt.Errorf("redis save message: %w", err)
	}
	return nil
}

func (r *RedisStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.activityIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis idle query: %w", err)
	}

	var idle []string
	for _, id := range ids {
		sess, err := r.LoadSession(ctx, id)
		if err != nil {
			continue
		}
		if !sess.Archived {
			idle = append(idle, id)
		}
	}
	return idle, nil
}

func (r *RedisStore) ArchiveSession(ctx context.Context, sessionID string) error {
	sess, err := r.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Archived = true
	// Drop from the activity index so the archiver does not revisit it.
	if err := r.client.ZRem(ctx, r.activityIndexKey(), sessionID).Err(); err != nil {
		return fmt.Errorf("redis archive: %w", err)
	}
	return r.SaveSession(ctx, sess)
}

func (r *RedisStore) DeleteUserData(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, r.userIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis user index: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, r.sessionKey(id), r.messagesKey(id))
		pipe.ZRem(ctx, r.activityIndexKey(), id)
	}
	pipe.Del(ctx, r.userIndexKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete user data: %w", err)
	}

	logging.LogEvent("user_data_erased", map[string]interface{}{
		"user_id":  userID,
		"sessions": len(ids),
	})
	return nil
}
