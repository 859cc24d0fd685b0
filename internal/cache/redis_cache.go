package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisConfig holds the connection settings for NewRedisClient.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisUsageCache keeps usage summaries in Redis. The client is shared with
// the event bus and is not closed by Close.
type RedisUsageCache struct {
	client *redis.Client
	prefix string
}

// NewRedisUsageCache creates a usage cache on an existing client.
func NewRedisUsageCache(client *redis.Client, prefix string) *RedisUsageCache {
	return &RedisUsageCache{client: client, prefix: prefix}
}

// BuildKey returns the cache key of a user's summary.
func (c *RedisUsageCache) BuildKey(userID string) string {
	return fmt.Sprintf("%s:usage:%s", c.prefix, userID)
}

func (c *RedisUsageCache) Get(ctx context.Context, userID string) (*domain.UsageSummary, error) {
	data, err := c.client.Get(ctx, c.BuildKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheLookup(false)
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var summary domain.UsageSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	metrics.RecordCacheLookup(true)
	return &summary, nil
}

func (c *RedisUsageCache) Set(ctx context.Context, userID string, summary *domain.UsageSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.BuildKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisUsageCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.BuildKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisUsageCache) Close() error {
	return nil
}
