package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis state backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Key is the Redis key the bookmark is stored under
	Key string

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Key:     "csvtap:state",
		Timeout: 5 * time.Second,
	}
}

// RedisStore persists the bookmark in Redis. Useful when runs are
// scheduled across hosts and a shared low-latency state location beats a
// local file.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

// Load reads the persisted bookmark, returning an empty one when the key
// is absent.
func (s *RedisStore) Load(ctx context.Context) (*Bookmark, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.cfg.Key).Bytes()
	if err == redis.Nil {
		return NewBookmark(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state from Redis: %w", err)
	}

	b := NewBookmark()
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("%w: redis key %s: %v", ErrCorruptState, s.cfg.Key, err)
	}
	if b.Tables == nil {
		b.Tables = make(map[string]TableBookmark)
	}
	return b, nil
}

// Save writes the bookmark. No TTL: extraction state must survive
// arbitrary gaps between runs.
func (s *RedisStore) Save(ctx context.Context, b *Bookmark) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.cfg.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write state to Redis: %w", err)
	}
	return nil
}

// Name returns "redis".
func (s *RedisStore) Name() string {
	return "redis"
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
