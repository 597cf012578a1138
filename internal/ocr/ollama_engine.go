package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/ollama"
)

// OllamaEngine runs a local vision model through Ollama
type OllamaEngine struct {
	client      *ollama.Client
	logger      *logger.Logger
	model       string
	temperature float64
}

// NewOllamaEngine creates a new Ollama engine
func NewOllamaEngine(endpoint, model string, temperature float64, maxRetries int, log *logger.Logger) *OllamaEngine {
	if log == nil {
		log = logger.Get()
	}

	clientOpts := []ollama.ClientOption{
		ollama.WithLogger(log),
	}
	if endpoint != "" {
		clientOpts = append(clientOpts, ollama.WithEndpoint(endpoint))
	}
	if maxRetries > 0 {
		clientOpts = append(clientOpts, ollama.WithMaxRetries(maxRetries))
	}

	return &OllamaEngine{
		client:      ollama.NewClient(clientOpts...),
		logger:      log,
		model:       model,
		temperature: temperature,
	}
}

// Recognize asks the model for line records
func (o *OllamaEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	b64, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields("model", o.model, "provider", "ollama").Debug("Recognizing with Ollama")

	content, err := o.client.GenerateJSON(ctx, o.model, RecognitionPrompt, o.temperature, b64)
	if err != nil {
		return nil, fmt.Errorf("ollama recognition failed: %w", err)
	}
	return ParseRaw(stripFences(content)), nil
}

// HealthCheck verifies that Ollama is accessible and pulls the model if needed
func (o *OllamaEngine) HealthCheck(ctx context.Context) error {
	if err := o.client.HealthCheck(ctx); err != nil {
		return err
	}
	return o.client.EnsureModel(ctx, o.model)
}

// Name returns the provider name
func (o *OllamaEngine) Name() string {
	return string(ProviderOllama)
}
