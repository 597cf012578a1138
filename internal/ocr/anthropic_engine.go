package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// AnthropicEngine implements Engine with Anthropic's Claude API
type AnthropicEngine struct {
	client      anthropic.Client
	logger      *logger.Logger
	model       string
	temperature float64
}

// NewAnthropicEngine creates a new Claude engine
func NewAnthropicEngine(apiKey, model string, temperature float64, maxRetries int, log *logger.Logger, extra ...option.RequestOption) *AnthropicEngine {
	if log == nil {
		log = logger.Get()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if maxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(maxRetries))
	}
	opts = append(opts, extra...)

	return &AnthropicEngine{
		client:      anthropic.NewClient(opts...),
		logger:      log,
		model:       model,
		temperature: temperature,
	}
}

// Recognize sends the image as a base64 block and parses the first text block of the answer
func (a *AnthropicEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	b64, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields("model", a.model, "provider", "anthropic").Debug("Recognizing with Anthropic Claude")

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(RecognitionPrompt),
				anthropic.NewImageBlockBase64("image/png", b64),
			),
		},
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return ParseRaw(stripFences([]byte(block.Text))), nil
		}
	}
	return nil, fmt.Errorf("no text content in Anthropic response")
}

// HealthCheck makes a minimal API call to verify credentials
func (a *AnthropicEngine) HealthCheck(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 10,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (a *AnthropicEngine) Name() string {
	return string(ProviderAnthropic)
}
