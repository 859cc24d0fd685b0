package config

import (
	"fmt"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/cache"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/scheduler"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	pkgconfig "github.com/jdships/yodoo-rebuild/pkg/config"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       cache.RedisConfig
	Cache       CacheConfig
	PubSub      pubsub.Config `mapstructure:"pubsub"`
	Storage     storage.Config
	Search      SearchConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Usage       usage.Limits
	Models      ModelsConfig
	LLM         LLMConfig `mapstructure:"llm"`
	Completion  service.CompletionConfig
	Attachments service.AttachmentConfig
	Billing     BillingConfig
	Scheduler   scheduler.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	AppName         string        `mapstructure:"app_name"`
	AppURL          string        `mapstructure:"app_url"`
	Env             string        `mapstructure:"env"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IsProduction reports whether the server runs with APP_ENV=production.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type CacheConfig struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// SearchConfig selects the chat title searcher: "sql" or "elasticsearch".
type SearchConfig struct {
	Driver    string   `mapstructure:"driver"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CSRFSecret    string        `mapstructure:"csrf_secret"`
	EncryptionKey string        `mapstructure:"encryption_key"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Idle              time.Duration `mapstructure:"idle"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// ModelsConfig lists the served models and the ones counted as free.
type ModelsConfig struct {
	Available []string `mapstructure:"available"`
	Free      []string `mapstructure:"free"`
}

type LLMConfig struct {
	OpenAI     llm.ProviderConfig `mapstructure:"openai"`
	Mistral    llm.ProviderConfig `mapstructure:"mistral"`
	OpenRouter llm.ProviderConfig `mapstructure:"openrouter"`
	Timeout    time.Duration      `mapstructure:"timeout"`
}

type BillingConfig struct {
	Provider    string               `mapstructure:"provider"`
	Environment string               `mapstructure:"environment"`
	Polar       billing.PolarConfig  `mapstructure:"polar"`
	Stripe      billing.StripeConfig `mapstructure:"stripe"`
	Pro         billing.PlanConfig   `mapstructure:"pro"`
	Unlimited   billing.PlanConfig   `mapstructure:"unlimited"`
}

var envBindings = map[string]string{
	"server.port":                    "PORT",
	"server.app_url":                 "APP_URL",
	"server.env":                     "APP_ENV",
	"log.level":                      "LOG_LEVEL",
	"database.driver":                "DB_DRIVER",
	"database.host":                  "DB_HOST",
	"database.port":                  "DB_PORT",
	"database.user":                  "DB_USER",
	"database.password":              "DB_PASSWORD",
	"database.dbname":                "DB_NAME",
	"database.sslmode":               "DB_SSLMODE",
	"database.file_path":             "DB_FILE_PATH",
	"database.max_idle_conns":        "DB_MAX_IDLE_CONNS",
	"database.max_open_conns":        "DB_MAX_OPEN_CONNS",
	"database.conn_max_lifetime":     "DB_CONN_MAX_LIFETIME",
	"redis.address":                  "REDIS_ADDRESS",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"pubsub.driver":                  "PUBSUB_DRIVER",
	"pubsub.kafka.brokers":           "KAFKA_BROKERS",
	"storage.driver":                 "STORAGE_DRIVER",
	"storage.s3.bucket":              "S3_BUCKET",
	"storage.s3.region":              "S3_REGION",
	"storage.s3.endpoint":            "S3_ENDPOINT",
	"storage.s3.access_key_id":       "S3_ACCESS_KEY_ID",
	"storage.s3.secret_access_key":   "S3_SECRET_ACCESS_KEY",
	"search.driver":                  "SEARCH_DRIVER",
	"search.addresses":               "ELASTICSEARCH_ADDRESSES",
	"auth.jwt_secret":                "JWT_SECRET",
	"auth.csrf_secret":               "CSRF_SECRET",
	"auth.encryption_key":            "ENCRYPTION_KEY",
	"llm.openai.api_key":             "OPENAI_API_KEY",
	"llm.mistral.api_key":            "MISTRAL_API_KEY",
	"llm.openrouter.api_key":         "OPENROUTER_API_KEY",
	"billing.provider":               "BILLING_PROVIDER",
	"billing.environment":            "BILLING_ENVIRONMENT",
	"billing.polar.access_token":     "POLAR_ACCESS_TOKEN",
	"billing.polar.webhook_secret":   "POLAR_WEBHOOK_SECRET",
	"billing.pro.product_id":         "POLAR_PRO_PRODUCT_ID",
	"billing.unlimited.product_id":   "POLAR_UNLIMITED_PRODUCT_ID",
	"billing.stripe.secret_key":      "STRIPE_SECRET_KEY",
	"billing.stripe.webhook_secret":  "STRIPE_WEBHOOK_SECRET",
	"billing.pro.price_id":           "STRIPE_PRO_PRICE_ID",
	"billing.unlimited.price_id":     "STRIPE_UNLIMITED_PRICE_ID",
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	limits := usage.DefaultLimits()
	attachments := service.DefaultAttachmentConfig()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.app_name", "Yodoo")
	v.SetDefault("server.app_url", "http://localhost:3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "yodoo")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/yodoo.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "yodoo:usage:")
	v.SetDefault("cache.ttl", time.Minute)
	v.SetDefault("pubsub.driver", "none")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "yodoo-api")
	v.SetDefault("pubsub.kafka.partitions", 3)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/files")
	v.SetDefault("storage.local.url_prefix", "/api/files")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "yodoo-attachments")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("search.driver", "sql")
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "yodoo-chats")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.cookie_name", "sb-access-token")
	v.SetDefault("auth.encryption_key", "")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 30)
	v.SetDefault("rate_limit.idle", 10*time.Minute)
	v.SetDefault("rate_limit.cleanup_interval", time.Minute)
	v.SetDefault("usage.free_total", limits.FreeTotal)
	v.SetDefault("usage.free_with_keys_monthly", limits.FreeWithKeysMonthly)
	v.SetDefault("usage.pro_monthly", limits.ProMonthly)
	v.SetDefault("usage.pro_with_keys_monthly", limits.ProWithKeysMonthly)
	v.SetDefault("usage.daily_pro_models", limits.DailyProModels)
	v.SetDefault("usage.free_max_models", limits.FreeMaxModels)
	v.SetDefault("usage.pro_max_models", limits.ProMaxModels)
	v.SetDefault("usage.unlimited_max_models", limits.UnlimitedMaxModels)
	v.SetDefault("usage.message_max_length", limits.MessageMaxLength)
	v.SetDefault("usage.daily_file_uploads", limits.DailyFileUploads)
	v.SetDefault("models.available", llm.DefaultModels)
	v.SetDefault("models.free", llm.DefaultFreeModels)
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("completion.default_model", llm.DefaultModel)
	v.SetDefault("completion.system_prompt", llm.DefaultSystemPrompt)
	v.SetDefault("completion.concurrency", 0)
	v.SetDefault("completion.timeout", 2*time.Minute)
	v.SetDefault("attachments.max_size", attachments.MaxSize)
	v.SetDefault("attachments.allowed_types", attachments.AllowedTypes)
	v.SetDefault("attachments.url_expiry", attachments.URLExpiry)
	v.SetDefault("billing.provider", "polar")
	v.SetDefault("billing.environment", "sandbox")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.monthly_reset", "0 0 1 * *")
	v.SetDefault("scheduler.daily_reset", "")
	v.SetDefault("scheduler.timeout", 5*time.Minute)

	if err := pkgconfig.BindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.CSRFSecret == "" {
		return fmt.Errorf("CSRF_SECRET is required")
	}
	if _, err := billing.ParseEnvironment(c.Billing.Environment); err != nil {
		return err
	}
	switch c.Search.Driver {
	case "sql", "elasticsearch":
	default:
		return fmt.Errorf("unsupported search driver: %s", c.Search.Driver)
	}
	return nil
}
