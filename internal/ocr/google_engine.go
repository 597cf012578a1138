package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// GoogleEngine implements Engine with Google's Gemini API
type GoogleEngine struct {
	client      *genai.Client
	logger      *logger.Logger
	model       string
	temperature float64
}

// NewGoogleEngine creates a new Gemini engine
func NewGoogleEngine(ctx context.Context, apiKey, model string, temperature float64, log *logger.Logger) (*GoogleEngine, error) {
	if log == nil {
		log = logger.Get()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GoogleEngine{
		client:      client,
		logger:      log,
		model:       model,
		temperature: temperature,
	}, nil
}

// Recognize sends the PNG bytes inline and asks for a JSON answer
func (g *GoogleEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	g.logger.WithFields("model", g.model, "provider", "google").Debug("Recognizing with Google Gemini")

	genModel := g.client.GenerativeModel(g.model)
	genModel.SetTemperature(float32(g.temperature))
	genModel.ResponseMIMEType = "application/json"

	resp, err := genModel.GenerateContent(ctx, genai.Text(RecognitionPrompt), genai.ImageData("png", data))
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return ParseRaw(stripFences([]byte(txt))), nil
		}
	}
	return nil, fmt.Errorf("no text content in Gemini response")
}

// HealthCheck makes a minimal API call to verify credentials
func (g *GoogleEngine) HealthCheck(ctx context.Context) error {
	if _, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (g *GoogleEngine) Name() string {
	return string(ProviderGoogle)
}

// Close closes the Google client
func (g *GoogleEngine) Close() error {
	return g.client.Close()
}
