// Package ocr wraps the recognition engines and turns their raw output into uniform text items.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// Engine is a text recognizer that accepts an in-memory image.
// Implementations return their output in one of the RawOutput shapes.
type Engine interface {
	// Recognize runs recognition on one image
	Recognize(ctx context.Context, img image.Image) (RawOutput, error)

	// HealthCheck verifies that the engine is reachable and usable
	HealthCheck(ctx context.Context) error

	// Name returns the provider name (e.g., "paddle", "tesseract", "openai")
	Name() string
}

// ProviderType names a recognition engine
type ProviderType string

const (
	// ProviderPaddle is a PaddleOCR serving endpoint
	ProviderPaddle ProviderType = "paddle"

	// ProviderTesseract is a local Tesseract install used through cgo
	ProviderTesseract ProviderType = "tesseract"

	// ProviderOllama is a local Ollama instance with a vision model
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI is OpenAI's vision-capable chat API
	ProviderOpenAI ProviderType = "openai"

	// ProviderAnthropic is Anthropic's Claude API with vision
	ProviderAnthropic ProviderType = "anthropic"

	// ProviderGoogle is Google's Gemini API
	ProviderGoogle ProviderType = "google"
)

// EngineConfig holds common configuration for all engines
type EngineConfig struct {
	Provider ProviderType

	// Model is the vision model for LLM providers (empty = provider default)
	Model string

	// Endpoint is the HTTP endpoint for paddle and ollama
	Endpoint string

	// Languages are Tesseract language codes
	Languages []string

	// APIKey is the API key for cloud providers
	APIKey string

	MaxRetries  int
	Temperature float64
}

// NewEngine creates an engine for the configured provider
func NewEngine(ctx context.Context, cfg *EngineConfig, log *logger.Logger) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config cannot be nil")
	}
	if log == nil {
		log = logger.Get()
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderPaddle:
		return NewPaddleEngine(cfg.Endpoint, cfg.MaxRetries, log), nil

	case ProviderTesseract:
		return NewTesseractEngine(cfg.Languages, log), nil

	case ProviderOllama:
		return NewOllamaEngine(cfg.Endpoint, model, cfg.Temperature, cfg.MaxRetries, log), nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable)")
		}
		return NewOpenAIEngine(cfg.APIKey, model, cfg.Temperature, cfg.MaxRetries, log), nil

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required (set ANTHROPIC_API_KEY environment variable)")
		}
		return NewAnthropicEngine(cfg.APIKey, model, cfg.Temperature, cfg.MaxRetries, log), nil

	case ProviderGoogle:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google API key is required (set GOOGLE_API_KEY environment variable)")
		}
		engine, err := NewGoogleEngine(ctx, cfg.APIKey, model, cfg.Temperature, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google engine: %w", err)
		}
		return engine, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: paddle, tesseract, ollama, openai, anthropic, google)", cfg.Provider)
	}
}

// DefaultModel returns a recommended default model for the given provider
func DefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderOllama:
		return "llava"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case ProviderGoogle:
		return "gemini-1.5-pro"
	default:
		return ""
	}
}

// encodePNG renders img as PNG bytes for engines that take encoded uploads
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNGBase64(img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
