package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/auth"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/catalog"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/content"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/currency"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/handlers"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/i18n"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/mail"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/config"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/idempotency"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/observability"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/sitemap"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, cfgErr := config.Load()

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	if cfgErr != nil {
		var invalid *config.ValidationError
		if errors.As(cfgErr, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(cfgErr))
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database not reachable at startup; catalog pages will degrade", zap.Error(err))
	}
	cancelPing()

	repo, err := catalog.NewSQLRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthCheck("database", repo),
	}

	rateCache, redisClient := newRateCache(ctx, logger, cfg)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		healthOpts = append(healthOpts, handlers.WithHealthCheck("redis", redisPinger{client: redisClient}))
	}

	provider := currency.NewHTTPRateProvider(
		currency.WithAPIKey(cfg.Rates.APIKey),
		currency.WithKeyedBaseURL(cfg.Rates.KeyedURL),
		currency.WithPublicURL(cfg.Rates.PublicURL),
		currency.WithFetchTimeout(cfg.Rates.Timeout),
	)
	converter, err := currency.NewConverter(currency.ConverterDeps{Provider: provider, Cache: rateCache})
	if err != nil {
		logger.Fatal("failed to initialise currency converter", zap.Error(err))
	}

	bundle, err := i18n.Default()
	if err != nil {
		logger.Fatal("failed to load translations", zap.Error(err))
	}

	relay := mail.NewRelay(mail.RelayConfig{
		Endpoint: cfg.Mail.Endpoint,
		APIKey:   cfg.Mail.APIKey,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	})
	if !relay.Configured() {
		logger.Warn("mail relay not configured; email endpoints will answer 500")
	}
	confirmer, err := mail.NewConfirmer(mail.ConfirmerDeps{Sender: relay, Bundle: bundle, AdminEmail: cfg.Mail.AdminEmail})
	if err != nil {
		logger.Fatal("failed to initialise order mailer", zap.Error(err))
	}

	replayStore, stopPurge := newReplayStore(logger, redisClient, cfg.Redis.KeyPrefix)
	defer stopPurge()

	routes := sitemap.DefaultRoutes()
	if path := strings.TrimSpace(cfg.Site.RoutesFile); path != "" {
		routes, err = sitemap.LoadRoutes(path)
		if err != nil {
			logger.Fatal("failed to load site routes", zap.String("path", path), zap.Error(err))
		}
	}
	builder, err := sitemap.NewBuilder(sitemap.BuilderDeps{Slugs: repo, Routes: routes})
	if err != nil {
		logger.Fatal("failed to initialise sitemap builder", zap.Error(err))
	}

	resolver := locale.NewResolver(cfg.Site.SpanishHost)
	origins := sitemap.NewOrigins(resolver, cfg.Site.SpanishOrigin, cfg.Site.EnglishOrigin)

	verifierOpts := []auth.VerifierOption{}
	if name := strings.TrimSpace(cfg.Auth.CookieName); name != "" {
		verifierOpts = append(verifierOpts, auth.WithCookieName(name))
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, verifierOpts...)

	home, err := catalog.NewHomeLoader(catalog.HomeLoaderDeps{Repository: repo, FeaturedCapacity: cfg.Site.FeaturedCapacity})
	if err != nil {
		logger.Fatal("failed to initialise home loader", zap.Error(err))
	}
	pages, err := handlers.NewPageHandlers(handlers.PageDeps{
		Catalog:     repo,
		Home:        home,
		Bundle:      bundle,
		Content:     content.NewRenderer(),
		Origins:     origins,
		Verifier:    verifier,
		Profiles:    repo,
		LoginPath:   cfg.Auth.LoginPath,
		ProviderURL: cfg.Auth.ProviderURL,
	})
	if err != nil {
		logger.Fatal("failed to initialise pages", zap.Error(err))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			middleware.Compress(5),
			locale.Middleware(resolver),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithAPIRoutes(handlers.NewConvertHandlers(converter).Routes),
		handlers.WithAPIRoutes(handlers.NewEmailHandlers(relay, confirmer, handlers.WithIdempotencyStore(replayStore)).Routes),
		handlers.WithSiteRoutes(handlers.NewSitemapHandlers(builder, origins).Routes),
		handlers.WithSiteRoutes(pages.Routes),
		handlers.WithNotFoundPage(pages.NotFound),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	observability.FromContext(ctx).Info("database pool configured",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return db, nil
}

// newRateCache shares the rate table through Redis when configured and reachable, else keeps it
// in process memory.
func newRateCache(ctx context.Context, logger *zap.Logger, cfg config.Config) (currency.RateCache, *redis.Client) {
	ttl := cfg.Rates.TTL
	if !cfg.Redis.Enabled() {
		return currency.NewMemoryRateCache(ttl, nil), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable; using in-memory rate cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return currency.NewMemoryRateCache(ttl, nil), nil
	}

	cache, err := currency.NewRedisRateCache(client, cfg.Redis.KeyPrefix, ttl)
	if err != nil {
		logger.Warn("redis rate cache init failed; using in-memory rate cache", zap.Error(err))
		_ = client.Close()
		return currency.NewMemoryRateCache(ttl, nil), nil
	}
	logger.Info("rate cache shared through redis", zap.String("key", cache.Key()))
	return cache, client
}

// newReplayStore keeps email idempotency records next to the rate table when Redis is up. The
// in-memory fallback is purged hourly until stop is called.
func newReplayStore(logger *zap.Logger, client *redis.Client, prefix string) (idempotency.Store, func()) {
	if client != nil {
		store, err := idempotency.NewRedisStore(client, prefix)
		if err == nil {
			return store, func() {}
		}
		logger.Warn("redis idempotency store init failed; using in-memory store", zap.Error(err))
	}

	store := idempotency.NewMemoryStore()
	ticker := time.NewTicker(time.Hour)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case now := <-ticker.C:
				if n := store.Purge(now); n > 0 {
					logger.Debug("purged idempotency records", zap.Int("count", n))
				}
			case <-done:
				return
			}
		}
	}()
	return store, func() {
		ticker.Stop()
		close(done)
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("STOREFRONT_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
