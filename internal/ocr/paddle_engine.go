package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/paddle"
)

// PaddleEngine sends images to a PaddleOCR serving endpoint
type PaddleEngine struct {
	client *paddle.Client
	logger *logger.Logger
}

// NewPaddleEngine creates a PaddleOCR engine
func NewPaddleEngine(endpoint string, maxRetries int, log *logger.Logger) *PaddleEngine {
	if log == nil {
		log = logger.Get()
	}

	opts := []paddle.ClientOption{paddle.WithLogger(log)}
	if endpoint != "" {
		opts = append(opts, paddle.WithEndpoint(endpoint))
	}
	if maxRetries > 0 {
		opts = append(opts, paddle.WithMaxRetries(maxRetries))
	}

	return &PaddleEngine{
		client: paddle.NewClient(opts...),
		logger: log,
	}
}

// Recognize uploads the image and parses the pruned page result
func (p *PaddleEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	b64, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	raw, err := p.client.OCR(ctx, b64)
	if err != nil {
		return nil, fmt.Errorf("paddle recognition failed: %w", err)
	}
	return ParseRaw(raw), nil
}

// HealthCheck verifies that the serving endpoint is up
func (p *PaddleEngine) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

// Name returns the provider name
func (p *PaddleEngine) Name() string {
	return string(ProviderPaddle)
}
