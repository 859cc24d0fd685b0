package cache

import (
	"context"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// UsageCache stores computed usage summaries per user.
type UsageCache interface {
	Get(ctx context.Context, userID string) (*domain.UsageSummary, error)
	Set(ctx context.Context, userID string, summary *domain.UsageSummary, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
	Close() error
}
