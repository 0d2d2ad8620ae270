package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/wizard"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix   = "booking_session:"
	submitKeyPrefix    = "booking_submit:"
	rateLimitKeyPrefix = "rate_limit:"
)

type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStateRepository) GetSession(ctx context.Context, id string) (*wizard.State, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var state wizard.State
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

// SetSession stores the session and restarts its TTL.
func (r *RedisStateRepository) SetSession(ctx context.Context, id string, state *wizard.State) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+id, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ClearSession(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rk := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}
	return count <= int64(limit), nil
}

// releaseLockScript удаляет ключ только если он принадлежит владельцу.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireSubmitLock takes the per-session submit lock with SETNX, storing
// owner as the value.
func (r *RedisStateRepository) AcquireSubmitLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, submitKeyPrefix+sessionID, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submit lock: %w", err)
	}
	return ok, nil
}

// ReleaseSubmitLock drops the lock if owner still holds it. A lock that
// expired and was taken by another submission is left alone.
func (r *RedisStateRepository) ReleaseSubmitLock(ctx context.Context, sessionID, owner string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := releaseLockScript.Run(ctx, r.client, []string{submitKeyPrefix + sessionID}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release submit lock: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
