package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdships/yodoo-rebuild/internal/llm"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Yodoo", cfg.Server.AppName)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "/api/files", cfg.Storage.Local.URLPrefix)
	assert.Equal(t, "sql", cfg.Search.Driver)
	assert.Equal(t, 100, cfg.Usage.FreeTotal)
	assert.Equal(t, 5000, cfg.Usage.ProMonthly)
	assert.Equal(t, llm.DefaultModel, cfg.Completion.DefaultModel)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "0 0 1 * *", cfg.Scheduler.MonthlyReset)
	assert.Equal(t, int64(10<<20), cfg.Attachments.MaxSize)
	assert.ElementsMatch(t, llm.DefaultFreeModels, cfg.Models.Free)
}

func TestLoadConventionalEnvNames(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("ENCRYPTION_KEY", "key")
	t.Setenv("POLAR_ACCESS_TOKEN", "polar_at")
	t.Setenv("POLAR_WEBHOOK_SECRET", "polar_wh")
	t.Setenv("POLAR_PRO_PRODUCT_ID", "prod_pro")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("USAGE_FREE_TOTAL", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "key", cfg.Auth.EncryptionKey)
	assert.Equal(t, "polar_at", cfg.Billing.Polar.AccessToken)
	assert.Equal(t, "polar_wh", cfg.Billing.Polar.WebhookSecret)
	assert.Equal(t, "prod_pro", cfg.Billing.Pro.ProductID)
	assert.Equal(t, "sk_test_1", cfg.Billing.Stripe.SecretKey)
	assert.Equal(t, "sk-openai", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, 7, cfg.Usage.FreeTotal)
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf-secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Auth:    AuthConfig{JWTSecret: "a", CSRFSecret: "b"},
		Billing: BillingConfig{Environment: "sandbox"},
		Search:  SearchConfig{Driver: "sql"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Billing.Environment = "staging"
	assert.Error(t, cfg.Validate())

	cfg.Billing.Environment = "production"
	cfg.Search.Driver = "solr"
	assert.Error(t, cfg.Validate())
}
