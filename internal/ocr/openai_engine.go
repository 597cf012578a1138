package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// OpenAIEngine implements Engine with OpenAI's vision-capable chat API
type OpenAIEngine struct {
	client      openai.Client
	logger      *logger.Logger
	model       string
	temperature float64
}

// NewOpenAIEngine creates a new OpenAI engine.
// Extra request options are appended after the API key (tests point WithBaseURL at a fake server).
func NewOpenAIEngine(apiKey, model string, temperature float64, maxRetries int, log *logger.Logger, extra ...option.RequestOption) *OpenAIEngine {
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

	return &OpenAIEngine{
		client:      openai.NewClient(opts...),
		logger:      log,
		model:       model,
		temperature: temperature,
	}
}

// Recognize sends the image as a data URL and parses the JSON answer
func (o *OpenAIEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	b64, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields("model", o.model, "provider", "openai").Debug("Recognizing with OpenAI")

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(RecognitionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + b64,
				}),
			}),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return ParseRaw(stripFences([]byte(resp.Choices[0].Message.Content))), nil
}

// HealthCheck verifies that the API key can see the model
func (o *OpenAIEngine) HealthCheck(ctx context.Context) error {
	if _, err := o.client.Models.Get(ctx, o.model); err != nil {
		return fmt.Errorf("openai health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (o *OpenAIEngine) Name() string {
	return string(ProviderOpenAI)
}
