package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodlens/backend/config"
	httpDelivery "github.com/foodlens/backend/internal/delivery/http"
	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
	"github.com/foodlens/backend/internal/infrastructure/cache"
	"github.com/foodlens/backend/internal/infrastructure/llm"
	"github.com/foodlens/backend/internal/infrastructure/sqlite"
	"github.com/foodlens/backend/internal/logging"
	"github.com/foodlens/backend/internal/usecase"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting FoodLens backend",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Type),
		zap.Bool("resolver", cfg.Resolver.Enabled),
	)

	// Initialize infrastructure dependencies
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	sqlite.ConfigurePool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	normalizer := foodname.NewNormalizer(cfg.Matching.Delimiter, cfg.Matching.CategorySuffix)

	cacheRepo, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer cacheRepo.Close()

	catalog := cache.NewCachedCatalog(sqlite.NewCatalogStore(db, normalizer), cacheRepo, cfg.Cache.TTL, logger)
	contributed := sqlite.NewContributedStore(db)

	var resolver domain.SimilarityResolver
	if cfg.Resolver.Enabled {
		resolver = llm.NewClient(llm.Config{
			APIKey:        cfg.Resolver.APIKey,
			BaseURL:       cfg.Resolver.BaseURL,
			Model:         cfg.Resolver.Model,
			RatePerMinute: cfg.Resolver.RatePerMinute,
		}, logger)
		logger.Info("similarity resolver configured",
			zap.String("base_url", cfg.Resolver.BaseURL),
			zap.String("model", cfg.Resolver.Model),
		)
	} else {
		logger.Warn("similarity resolver disabled, stage 4 is skipped")
	}

	// Initialize usecase layer
	scorer := usecase.NewScorer(normalizer, usecase.ScorerConfig{
		Weights:             cfg.Matching.Weights,
		GenericPlaceholders: cfg.Matching.GenericPlaceholders,
		EnableDebugLogging:  cfg.Matching.EnableDebugLogging,
	}, logger)

	service := usecase.NewResolutionService(catalog, contributed, resolver, scorer, usecase.ResolutionConfig{
		FallbackMinScore:   cfg.Matching.FallbackMinScore,
		PopularityMinUsage: cfg.Matching.PopularityMinUsage,
		MaxCandidates:      cfg.Matching.MaxCandidates,
		ResolverCandidates: cfg.Matching.ResolverCandidates,
		ResolverTimeout:    cfg.Resolver.Timeout,
	}, logger)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(service, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cacheCloser is a cache repository that owns resources
type cacheCloser interface {
	domain.CacheRepository
	Close() error
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cacheCloser, error) {
	if cfg.Type == "redis" {
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL, "foodlens:")
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryCache(), nil
}
