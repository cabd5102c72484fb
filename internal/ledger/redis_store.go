package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/types"
)

// defaultRedisKey is where the snapshot blob lives when no key is given.
const defaultRedisKey = "fishit:processed_events"

// RedisStore persists snapshots as a single JSON blob in Redis, for
// deployments where local disk does not survive restarts.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and returns a snapshot store.
func NewRedisStore(cfg *config.RedisConfig, key string) (*RedisStore, error) {
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, key: key}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Load reads the snapshot blob. A missing key is an empty ledger.
func (s *RedisStore) Load(ctx context.Context) ([]types.ProcessedEvent, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var records []types.ProcessedEvent
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	return records, nil
}

// Save overwrites the snapshot blob.
func (s *RedisStore) Save(ctx context.Context, records []types.ProcessedEvent) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}
