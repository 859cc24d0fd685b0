package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/cache"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
)

type usageServiceImpl struct {
	users     repository.UserRepository
	keys      repository.UserKeyRepository
	policy    *usage.Policy
	cache     cache.UsageCache
	cacheTTL  time.Duration
	publisher pubsub.Publisher
	sf        singleflight.Group
	now       func() time.Time
}

// NewUsageService creates a new usage service.
func NewUsageService(
	users repository.UserRepository,
	keys repository.UserKeyRepository,
	policy *usage.Policy,
	usageCache cache.UsageCache,
	cacheTTL time.Duration,
	publisher pubsub.Publisher,
) UsageService {
	return &usageServiceImpl{
		users:     users,
		keys:      keys,
		policy:    policy,
		cache:     usageCache,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *usageServiceImpl) CheckUsageByModel(ctx context.Context, userID, model string, isAuthenticated bool) error {
	if !isAuthenticated {
		return s.reject(ctx, userID, s.policy.AuthRequired())
	}

	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if s.policy.IsProModel(model) {
		now := s.now().UTC()
		count, stale := s.policy.ProCount(u, now)
		if stale {
			if err := s.users.ResetProCount(ctx, userID, now); err != nil {
				return fmt.Errorf("failed to reset pro usage: %w", err)
			}
			s.Invalidate(ctx, userID)
		}
		return s.reject(ctx, userID, s.policy.CheckProDaily(count))
	}

	hasKeys, err := s.keys.HasAny(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check api keys: %w", err)
	}
	return s.reject(ctx, userID, s.policy.CheckMonthly(u, hasKeys))
}

// reject records usage limit rejections and passes err through.
func (s *usageServiceImpl) reject(ctx context.Context, userID string, err error) error {
	var ule *domain.UsageLimitError
	if errors.As(err, &ule) {
		metrics.RecordUsageLimit(ule.Kind)
		audit.LogWithDetail(ctx, audit.ActionUsageLimitHit, userID, ule.Kind, ule.Message)
	}
	return err
}

func (s *usageServiceImpl) IncrementUsageByModel(ctx context.Context, userID, model string, isAuthenticated bool) error {
	if !isAuthenticated {
		return nil
	}

	now := s.now().UTC()
	pro := s.policy.IsProModel(model)
	var err error
	if pro {
		err = s.users.IncrementProCount(ctx, userID, now)
	} else {
		err = s.users.IncrementMessageCount(ctx, userID, now)
	}
	if err != nil {
		return fmt.Errorf("failed to update usage data: %w", err)
	}

	s.Invalidate(ctx, userID)
	s.publish(ctx, pubsub.UsageChannel(userID), pubsub.EventUsageIncremented, userID,
		pubsub.UsageIncrementedPayload{Model: model, ProModel: pro})
	return nil
}

func (s *usageServiceImpl) GetMessageUsage(ctx context.Context, userID string) (*domain.UsageSummary, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("usage cache get error")
	}

	result, err, _ := s.sf.Do(userID, func() (interface{}, error) {
		u, err := s.getUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		hasKeys, err := s.keys.HasAny(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check api keys: %w", err)
		}

		summary := s.policy.Summary(u, hasKeys, s.now())
		if err := s.cache.Set(ctx, userID, &summary, s.cacheTTL); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("usage cache set error")
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.UsageSummary), nil
}

func (s *usageServiceImpl) MaxModels(ctx context.Context, userID string) (int, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.policy.MaxModels(u), nil
}

func (s *usageServiceImpl) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("usage cache delete error")
	}
}

// ResetMonthly clears the monthly counters. Cached summaries expire on
// their own TTL.
func (s *usageServiceImpl) ResetMonthly(ctx context.Context) (int64, error) {
	n, err := s.users.ResetMonthlyCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly usage: %w", err)
	}
	audit.LogWithDetail(ctx, audit.ActionMonthlyReset, "", fmt.Sprintf("%d users", n), "monthly usage reset")
	s.publish(ctx, pubsub.UsageChannel("all"), pubsub.EventUsageReset, "", pubsub.UsageResetPayload{Users: n})
	return n, nil
}

func (s *usageServiceImpl) ResetDaily(ctx context.Context) (int64, error) {
	n, err := s.users.ResetDailyCounts(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily usage: %w", err)
	}
	return n, nil
}

func (s *usageServiceImpl) getUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error fetching user data: %w", err)
	}
	return u, nil
}

func (s *usageServiceImpl) publish(ctx context.Context, channel, eventType, userID string, payload interface{}) {
	publishEvent(ctx, s.publisher, channel, eventType, userID, payload)
}
