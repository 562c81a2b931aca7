package factory

import (
	"fmt"

	"go-aid-analyzer/internal/config"
	"go-aid-analyzer/internal/generation"
)

// GeneratorType represents the available generation backends
type GeneratorType string

const (
	// GeminiGenerator calls the Gemini REST API
	GeminiGenerator GeneratorType = "gemini"
	// StubGenerator answers locally without network access
	StubGenerator GeneratorType = "stub"
)

// GeneratorFactory creates generators
type GeneratorFactory interface {
	CreateGenerator(generatorType GeneratorType) (generation.Generator, error)
}

type generatorFactory struct {
	cfg *config.Config
}

// NewGeneratorFactory creates a factory bound to cfg
func NewGeneratorFactory(cfg *config.Config) GeneratorFactory {
	return &generatorFactory{cfg: cfg}
}

// CreateGenerator creates a generator based on the specified type
func (f *generatorFactory) CreateGenerator(generatorType GeneratorType) (generation.Generator, error) {
	switch generatorType {
	case GeminiGenerator, "":
		return generation.NewGeminiClient(generation.GeminiOptions{
			APIKey:          f.cfg.GeminiAPIKey,
			Model:           f.cfg.GeminiModel,
			BaseURL:         f.cfg.GeminiBaseURL,
			Timeout:         f.cfg.UpstreamTimeout,
			MaxResponseSize: f.cfg.MaxUpstreamResponseSize,
		}), nil
	case StubGenerator:
		return generation.NewStubGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported generator type: %s", generatorType)
	}
}
