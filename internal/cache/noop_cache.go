package cache

import (
	"context"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// NoopUsageCache always misses. It is used when Redis is not configured.
type NoopUsageCache struct{}

func (NoopUsageCache) Get(ctx context.Context, userID string) (*domain.UsageSummary, error) {
	return nil, ErrCacheMiss
}

func (NoopUsageCache) Set(ctx context.Context, userID string, summary *domain.UsageSummary, ttl time.Duration) error {
	return nil
}

func (NoopUsageCache) Delete(ctx context.Context, userIDs ...string) error {
	return nil
}

func (NoopUsageCache) Close() error {
	return nil
}
