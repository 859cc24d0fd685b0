package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

func TestValidateUserIdentity(t *testing.T) {
	assert.ErrorIs(t, ValidateUserIdentity("u1", "u1", false), ErrNotAuthenticated)
	assert.ErrorIs(t, ValidateUserIdentity("", "u1", true), ErrNotAuthenticated)
	assert.ErrorIs(t, ValidateUserIdentity("u1", "u2", true), ErrUserMismatch)
	assert.NoError(t, ValidateUserIdentity("u1", "u1", true))
}

func TestUsage_UnauthenticatedIsRejected(t *testing.T) {
	e := newTestEnv(t)
	err := e.usage.CheckUsageByModel(context.Background(), "guest", freeModel, false)
	require.Error(t, err)

	var ule *domain.UsageLimitError
	require.ErrorAs(t, err, &ule)
	assert.Equal(t, domain.UsageLimitCode, ule.Code)
	assert.Contains(t, ule.Message, "Yodoo")
}

func TestUsage_UnknownUser(t *testing.T) {
	e := newTestEnv(t)
	err := e.usage.CheckUsageByModel(context.Background(), "ghost", freeModel, true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsage_FreeQuotaIsEnforced(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "u1")

	for i := 0; i < 2; i++ {
		require.NoError(t, e.usage.CheckUsageByModel(ctx, "u1", freeModel, true))
		require.NoError(t, e.usage.IncrementUsageByModel(ctx, "u1", freeModel, true))
	}

	err := e.usage.CheckUsageByModel(ctx, "u1", freeModel, true)
	require.True(t, isUsageLimit(err), "got %v", err)
	assert.Contains(t, err.Error(), "2/2")

	// Pro models have their own daily quota.
	assert.NoError(t, e.usage.CheckUsageByModel(ctx, "u1", proModel, true))
}

func TestUsage_IncrementIgnoresGuests(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "u1")

	require.NoError(t, e.usage.IncrementUsageByModel(ctx, "u1", freeModel, false))
	u, err := e.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.MessageCount)
}

func TestUsage_ProDailyQuotaResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "u1")
	svc := e.usage.(*usageServiceImpl)

	day1 := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	require.NoError(t, svc.CheckUsageByModel(ctx, "u1", proModel, true))
	require.NoError(t, svc.IncrementUsageByModel(ctx, "u1", proModel, true))
	assert.True(t, isUsageLimit(svc.CheckUsageByModel(ctx, "u1", proModel, true)))

	summary, err := svc.GetMessageUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DailyProCount)
	assert.Equal(t, 0, summary.RemainingPro)

	svc.now = func() time.Time { return day1.Add(2 * time.Hour) }
	require.NoError(t, svc.CheckUsageByModel(ctx, "u1", proModel, true))

	u, err := e.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.DailyProMessageCount)
}

func TestUsage_SummaryAndKeys(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "u1")
	require.NoError(t, e.usage.IncrementUsageByModel(ctx, "u1", freeModel, true))

	summary, err := e.usage.GetMessageUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MonthlyCount)
	assert.Equal(t, 2, summary.MonthlyLimit)
	assert.Equal(t, 1, summary.RemainingMonthly)
	assert.Equal(t, domain.PlanFree, summary.SubscriptionType)
	assert.False(t, summary.HasAPIKeys)

	_, err = e.keys.Save(ctx, "u1", domain.ProviderOpenAI, "sk-test-1234")
	require.NoError(t, err)

	summary, err = e.usage.GetMessageUsage(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, summary.HasAPIKeys)
	assert.Equal(t, testLimits().FreeWithKeysMonthly, summary.MonthlyLimit)
}

func TestUsage_MaxModelsFollowsPlan(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "u1")

	n, err := e.usage.MaxModels(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testLimits().FreeMaxModels, n)

	require.NoError(t, e.users.UpdateSubscription(ctx, "u1", domain.SubscriptionChange{Type: domain.PlanUnlimited, Status: domain.StatusActive}))
	n, err = e.usage.MaxModels(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testLimits().UnlimitedMaxModels, n)
}

func TestUsage_ResetMonthlyClearsMonthlyPlans(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.user(t, "free")
	e.user(t, "pro")
	require.NoError(t, e.users.UpdateSubscription(ctx, "pro", domain.SubscriptionChange{Type: domain.PlanPro, Status: domain.StatusActive}))
	for _, id := range []string{"free", "pro"} {
		require.NoError(t, e.usage.IncrementUsageByModel(ctx, id, freeModel, true))
	}

	n, err := e.usage.ResetMonthly(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pro, err := e.users.GetByID(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, 0, pro.MessageCount)

	free, err := e.users.GetByID(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, 1, free.MessageCount)
}
