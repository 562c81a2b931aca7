package container

import (
	"fmt"
	"net/http"

	"go-aid-analyzer/internal/config"
	"go-aid-analyzer/internal/factory"
	"go-aid-analyzer/internal/generation"
	"go-aid-analyzer/internal/logger"
	"go-aid-analyzer/internal/observer"
	"go-aid-analyzer/internal/service"
	"go-aid-analyzer/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	generator       generation.Generator
	events          *observer.EventPublisher
	registry        *prometheus.Registry
	analysisService service.AnalysisService
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Build dependency graph
	generator, err := factory.NewGeneratorFactory(cfg).CreateGenerator(factory.GeneratorType(cfg.Generator))
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsObserver, err := observer.NewMetricsObserver(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metricsObserver)

	analysisService := service.NewAnalysisService(generator, events)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	handler := transport.NewHandler(analysisService, cfg, generator.Name(), metricsHandler)

	return &Container{
		config:          cfg,
		generator:       generator,
		events:          events,
		registry:        registry,
		analysisService: analysisService,
		handler:         handler,
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

// Generator returns the configured upstream generator
func (c *Container) Generator() generation.Generator {
	return c.generator
}
