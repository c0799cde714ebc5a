// Package runlog keeps the history of repair runs in Redis.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"airwaves/api/internal/repair"
)

// DefaultHistory is how many runs are kept per task.
const DefaultHistory = 50

// ErrNoRuns is returned when a task has never been recorded.
var ErrNoRuns = errors.New("no recorded runs")

// RedisStore implements run history storage using Redis
type RedisStore struct {
	client  *redis.Client
	prefix  string
	history int64
}

// NewRedisStore creates a new Redis-backed run log
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a run log from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  "airwaves:repair:",
		history: DefaultHistory,
	}
}

func (s *RedisStore) historyKey(task string) string {
	return s.prefix + task + ":runs"
}

func (s *RedisStore) lastKey(task string) string {
	return s.prefix + task + ":last"
}

// Record stores a finished run as the task's latest and prepends it to the
// bounded history list.
func (s *RedisStore) Record(ctx context.Context, tally repair.Tally) error {
	payload, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("marshal tally: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.historyKey(tally.Task), payload)
	pipe.LTrim(ctx, s.historyKey(tally.Task), 0, s.history-1)
	pipe.Set(ctx, s.lastKey(tally.Task), payload, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record run %s: %w", tally.RunID, err)
	}
	return nil
}

// History returns up to limit runs of task, newest first
func (s *RedisStore) History(ctx context.Context, task string, limit int) ([]repair.Tally, error) {
	if limit <= 0 || int64(limit) > s.history {
		limit = int(s.history)
	}
	raw, err := s.client.LRange(ctx, s.historyKey(task), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load run history: %w", err)
	}

	runs := make([]repair.Tally, 0, len(raw))
	for _, item := range raw {
		var tally repair.Tally
		if err := json.Unmarshal([]byte(item), &tally); err != nil {
			return nil, fmt.Errorf("unmarshal tally: %w", err)
		}
		runs = append(runs, tally)
	}
	return runs, nil
}

// Last returns the most recent run of task
func (s *RedisStore) Last(ctx context.Context, task string) (repair.Tally, error) {
	raw, err := s.client.Get(ctx, s.lastKey(task)).Result()
	if errors.Is(err, redis.Nil) {
		return repair.Tally{}, ErrNoRuns
	}
	if err != nil {
		return repair.Tally{}, fmt.Errorf("load last run: %w", err)
	}

	var tally repair.Tally
	if err := json.Unmarshal([]byte(raw), &tally); err != nil {
		return repair.Tally{}, fmt.Errorf("unmarshal tally: %w", err)
	}
	return tally, nil
}

// Hook adapts Record to a repair completion hook. Failures are logged only.
func (s *RedisStore) Hook(logger *zap.Logger) repair.Hook {
	return func(ctx context.Context, tally repair.Tally) {
		if err := s.Record(ctx, tally); err != nil {
			logger.Warn("record repair run failed", zap.String("task", tally.Task), zap.Error(err))
		}
	}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
