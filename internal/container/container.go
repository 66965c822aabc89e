package container

import (
	"context"
	"fmt"
	"net/http"

	"go-vision-atlas/internal/atlas"
	"go-vision-atlas/internal/cache"
	"go-vision-atlas/internal/config"
	"go-vision-atlas/internal/logger"
	"go-vision-atlas/internal/model"
	"go-vision-atlas/internal/observer"
	"go-vision-atlas/internal/repository"
	"go-vision-atlas/internal/service"
	"go-vision-atlas/internal/storage"
	"go-vision-atlas/internal/strategy"
	"go-vision-atlas/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config        *config.Config
	responseCache *cache.ResponseCache
	metrics       *observer.MetricsObserver
	orchestrator  *service.Orchestrator
	handler       http.Handler
}

// NewContainer builds the dependency graph from configuration
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	imageFetcher := storage.NewHTTPImageFetcher()
	imageRepo := repository.NewImageRepository(imageFetcher)
	builder := atlas.NewBuilder(imageRepo)
	selector := strategy.NewSelector(cfg.AtlasThreshold)

	visionModel, err := model.NewGeminiVisionModel(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision model client: %w", err)
	}
	executor := model.NewExecutor(visionModel, cfg.MaxRetries, cfg.RetryBaseDelay)

	responseCache := cache.NewResponseCache(cfg.CacheTTL)
	responseCache.StartSweeper(cfg.CacheSweepInterval)

	var atlasStore storage.AtlasStore
	if cfg.AtlasStorageEnabled() {
		atlasStore, err = storage.NewAzureAtlasStore(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to create atlas store: %w", err)
		}
	}

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	buildOpts := atlas.DefaultBuildOptions()
	buildOpts.CellSize = cfg.CellSize
	buildOpts.Quality = cfg.AtlasQuality
	buildOpts.MaxFileSize = cfg.MaxAtlasBytes

	orchestrator := service.NewOrchestrator(
		imageRepo,
		builder,
		selector,
		executor,
		responseCache,
		atlasStore,
		publisher,
		buildOpts,
		cfg.ModelName,
	)
	handler := transport.NewHandler(orchestrator, metrics, cfg)

	return &Container{
		config:        cfg,
		responseCache: responseCache,
		metrics:       metrics,
		orchestrator:  orchestrator,
		handler:       handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases background resources
func (c *Container) Close() {
	c.responseCache.Stop()
}
