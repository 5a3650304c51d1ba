// Package storage provides training run record storage implementations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis as a backend.
// Runs of an experiment are kept in one list so several trainer processes
// can report into the same experiment.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: expiration of an experiment's run list, refreshed on every Put
//     (0 keeps runs forever)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl cannot be negative")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// conn returns the client, or redis.ErrClosed after Close.
func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, redis.ErrClosed
	}
	return r.client, nil
}

func runsKey(experiment string) string {
	return fmt.Sprintf("morepork:runs:%s", experiment)
}

// Put appends a run record to the experiment list "morepork:runs:{experiment}".
func (r *RedisStore) Put(ctx context.Context, run RunRecord) error {
	if run.Experiment == "" {
		return errors.New("experiment name required")
	}
	if !ValidExperiment(run.Experiment) {
		return fmt.Errorf("%w: %q", ErrInvalidExperiment, run.Experiment)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	client, err := r.conn()
	if err != nil {
		return err
	}

	key := runsKey(run.Experiment)
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store run in redis: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent run of an experiment.
//
// Returns:
//   - run: The run record (zero value if not found)
//   - found: true if the experiment has runs
//   - error: non-nil if an error occurred (excluding "not found")
func (r *RedisStore) GetLatest(ctx context.Context, experiment string) (RunRecord, bool, error) {
	if experiment == "" {
		return RunRecord{}, false, errors.New("experiment name required")
	}

	client, err := r.conn()
	if err != nil {
		return RunRecord{}, false, err
	}

	data, err := client.LIndex(ctx, runsKey(experiment), -1).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, fmt.Errorf("failed to get run from redis: %w", err)
	}

	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, false, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return run, true, nil
}

// List returns all runs of an experiment in insertion order.
func (r *RedisStore) List(ctx context.Context, experiment string) ([]RunRecord, error) {
	if experiment == "" {
		return nil, errors.New("experiment name required")
	}

	client, err := r.conn()
	if err != nil {
		return nil, err
	}

	items, err := client.LRange(ctx, runsKey(experiment), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from redis: %w", err)
	}

	runs := make([]RunRecord, 0, len(items))
	for i, item := range items {
		var run RunRecord
		if err := json.Unmarshal([]byte(item), &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run %d: %w", i, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Close closes the Redis client connection. It is idempotent; later calls
// to the other methods return redis.ErrClosed.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
