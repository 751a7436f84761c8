package container

import (
	"context"
	"fmt"
	"net/http"

	"go-eyewear-vision/internal/aggregator"
	"go-eyewear-vision/internal/config"
	"go-eyewear-vision/internal/logger"
	"go-eyewear-vision/internal/observer"
	"go-eyewear-vision/internal/parser"
	"go-eyewear-vision/internal/pipeline"
	"go-eyewear-vision/internal/storage"
	"go-eyewear-vision/internal/transport"
	"go-eyewear-vision/internal/vision"
	"go-eyewear-vision/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	validator *validation.URLValidator
	fetcher   storage.ImageFetcher
	vision    vision.VisionAnalyzer
	processor *pipeline.ProductProcessor
	metrics   *observer.MetricsObserver
	handler   http.Handler
}

// NewContainer builds the dependency graph from configuration.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	visionClient, err := vision.NewGeminiVisionClient(ctx, cfg.GeminiAPIKey, cfg.FallbackModels, cfg.VisionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vision client: %w", err)
	}

	validator := validation.NewURLValidator(cfg.URLValidationTimeout, cfg.MaxConcurrentValidations)
	fetcher := storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout)

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	processor := pipeline.NewProductProcessor(
		validator,
		fetcher,
		visionClient,
		parser.NewResponseParser(),
		aggregator.NewAggregator(),
		cfg,
	).WithEvents(events)

	handler := transport.NewHandler(processor, transport.ServerConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		GeminiConfigured:   cfg.GeminiAPIKey != "",
		Metrics:            metrics.GetMetrics,
	})

	return &Container{
		config:    cfg,
		validator: validator,
		fetcher:   fetcher,
		vision:    visionClient,
		processor: processor,
		metrics:   metrics,
		handler:   handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Processor returns the product pipeline
func (c *Container) Processor() *pipeline.ProductProcessor {
	return c.processor
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}
