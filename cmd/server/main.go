package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/cache"
	"github.com/jdships/yodoo-rebuild/internal/config"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/handler"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/scheduler"
	"github.com/jdships/yodoo-rebuild/internal/search"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/database"
	"github.com/jdships/yodoo-rebuild/pkg/jwt"
	pkglog "github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
	"github.com/jdships/yodoo-rebuild/pkg/secretbox"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "yodoo-api",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db, domain.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	// Redis backs the usage cache and the redis event bus when configured
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	var usageCache cache.UsageCache = cache.NoopUsageCache{}
	if redisClient != nil {
		usageCache = cache.NewRedisUsageCache(redisClient, cfg.Cache.Prefix)
	}

	bus, err := pubsub.NewPubSub(cfg.PubSub, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer bus.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub initialized")

	go func() {
		if err := cache.NewInvalidator(usageCache, bus).Run(ctx); err != nil {
			logger.Error().Err(err).Msg("usage cache invalidator stopped")
		}
	}()

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Initialize repositories
	users := repository.NewGormUserRepository(db)
	chats := repository.NewGormChatRepository(db)
	messages := repository.NewGormMessageRepository(db)
	projectRepo := repository.NewGormProjectRepository(db)
	keyRepo := repository.NewGormUserKeyRepository(db)
	attachmentRepo := repository.NewGormAttachmentRepository(db)
	preferenceRepo := repository.NewGormPreferencesRepository(db)

	searcher, err := newSearcher(ctx, cfg.Search, chats, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize search")
	}

	var box *secretbox.Box
	if cfg.Auth.EncryptionKey != "" {
		box, err = secretbox.New(cfg.Auth.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid ENCRYPTION_KEY")
		}
	} else {
		logger.Warn().Msg("ENCRYPTION_KEY not set, user API keys are disabled")
	}

	completer := llm.NewClient(map[domain.Provider]llm.ProviderConfig{
		domain.ProviderOpenAI:     cfg.LLM.OpenAI,
		domain.ProviderMistral:    cfg.LLM.Mistral,
		domain.ProviderOpenRouter: cfg.LLM.OpenRouter,
	}, &http.Client{Timeout: cfg.LLM.Timeout}, cfg.Server.AppName, cfg.Server.AppURL)
	registry := llm.NewRegistry(cfg.Models.Available, cfg.Models.Free)
	policy := usage.NewPolicy(cfg.Usage, cfg.Models.Free, cfg.Server.AppName)

	// Initialize services
	usageSvc := service.NewUsageService(users, keyRepo, policy, usageCache, cfg.Cache.TTL, bus)
	prefs := service.NewPreferenceService(preferenceRepo)
	projects := service.NewProjectService(projectRepo, chats)
	keys := service.NewKeyService(keyRepo, box, usageSvc, bus)
	attachments := service.NewAttachmentService(attachmentRepo, chats, files, policy, cfg.Attachments)

	providers, err := newBillingProviders(cfg.Billing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize billing")
	}
	env, _ := billing.ParseEnvironment(cfg.Billing.Environment)
	active := cfg.Billing.Provider
	if len(providers) == 0 {
		active = ""
	}
	billingSvc, err := service.NewBillingService(providers, active, env,
		billing.NewCatalog(cfg.Billing.Pro, cfg.Billing.Unlimited), users, usageSvc, bus, cfg.Server.AppURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize billing service")
	}

	svc := handler.Services{
		Usage:       usageSvc,
		Users:       service.NewUserService(users, keyRepo, prefs, cfg.Completion.DefaultModel),
		Chats:       service.NewChatService(chats, messages, projectRepo, usageSvc, searcher, attachments, cfg.Completion.DefaultModel),
		Completions: service.NewCompletionService(registry, completer, chats, messages, projects, searcher, usageSvc, keys, policy, cfg.Completion),
		Preferences: prefs,
		Projects:    projects,
		Keys:        keys,
		Attachments: attachments,
		Billing:     billingSvc,
	}

	// Request guards
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token manager")
	}
	guards := handler.Guards{
		Auth: middleware.NewAuthMiddleware(tokens, cfg.Auth.CookieName, handler.PublicPrefixes...),
		CSRF: middleware.NewCSRF(cfg.Auth.CSRFSecret, cfg.Server.IsProduction(), handler.CSRFExempt...),
	}
	if cfg.RateLimit.Enabled {
		guards.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Idle)
		guards.RateLimiter.StartCleanup(ctx, cfg.RateLimit.CleanupInterval)
	}

	// Usage resets
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, usageSvc)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize scheduler")
		}
		sched.Start()
		logger.Info().Int("jobs", sched.Jobs()).Msg("scheduler started")
	}

	// Setup Gin router
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health", "/metrics"))
	r.Use(metrics.GinMiddleware())
	r.Use(middleware.SecurityHeaders(connectSources(cfg)))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	handler.NewHandler(svc, guards, files, cfg.Server.AppName).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streams run as long as the completion timeout.
		WriteTimeout: cfg.Completion.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("yodoo api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	cancel()

	logger.Info().Msg("yodoo api stopped")
}

func newSearcher(ctx context.Context, cfg config.SearchConfig, chats repository.ChatRepository, logger zerolog.Logger) (search.ChatSearcher, error) {
	if cfg.Driver != "elasticsearch" {
		return search.NewSQLSearcher(chats), nil
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	searcher := search.NewESSearcher(esClient, cfg.Index, chats)
	if err := searcher.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	logger.Info().Strs("addresses", cfg.Addresses).Str("index", cfg.Index).Msg("elasticsearch connected")
	return searcher, nil
}

// newBillingProviders builds every provider with credentials. The active
// one must be among them.
func newBillingProviders(cfg config.BillingConfig, logger zerolog.Logger) ([]billing.Provider, error) {
	env, err := billing.ParseEnvironment(cfg.Environment)
	if err != nil {
		return nil, err
	}

	var providers []billing.Provider
	if cfg.Polar.AccessToken != "" {
		p, err := billing.NewPolar(cfg.Polar, env, nil)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.Stripe.SecretKey != "" {
		s, err := billing.NewStripe(cfg.Stripe, env, nil)
		if err != nil {
			return nil, err
		}
		providers = append(providers, s)
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no billing provider configured, checkout is disabled")
	}
	return providers, nil
}

func connectSources(cfg *config.Config) []string {
	src := []string{cfg.Server.AppURL}
	if cfg.Billing.Provider == "stripe" {
		return append(src, "https://api.stripe.com")
	}
	return append(src, "https://api.polar.sh", "https://sandbox-api.polar.sh")
}
