package relay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "active_sessions"

// Registry publishes live sessions so other processes can see them
type Registry interface {
	Register(ctx context.Context, s *Session) error
	Touch(ctx context.Context, id string) error
	Unregister(ctx context.Context, id string) error
	Close() error
}

// RedisRegistry stores one hash per session plus a set of active ids
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry connects to Redis and verifies the connection
func NewRedisRegistry(ctx context.Context, addr, password string, ttl time.Duration) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", addr, err)
	}

	return &RedisRegistry{client: client, ttl: ttl}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *RedisRegistry) Register(ctx context.Context, s *Session) error {
	key := sessionKey(s.ID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"created_at":    s.CreatedAt.Format(time.RFC3339),
			"last_activity": s.LastActivity().Format(time.RFC3339),
			"status":        "active",
			"is_audio":      strconv.FormatBool(s.AudioMode),
		})
		pipe.SAdd(ctx, activeSessionsKey, s.ID)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Touch(ctx context.Context, id string) error {
	key := sessionKey(id)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last_activity", time.Now().Format(time.RFC3339))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, activeSessionsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unregister session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
