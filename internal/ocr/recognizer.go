package ocr

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

// Recognizer adapts an Engine to the uniform item list the pipeline consumes
type Recognizer struct {
	engine  Engine
	logger  *logger.Logger
	timeout time.Duration
}

// RecognizerConfig holds configuration for the Recognizer
type RecognizerConfig struct {
	Engine Engine
	Logger *logger.Logger

	// Timeout bounds one engine call (0 = none)
	Timeout time.Duration
}

// NewRecognizer creates a Recognizer around an engine
func NewRecognizer(cfg *RecognizerConfig) (*Recognizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Recognizer{
		engine:  cfg.Engine,
		logger:  log,
		timeout: cfg.Timeout,
	}, nil
}

// Recognize runs the engine on one image and returns cleaned items in engine order.
// Engine failures are returned; a payload in neither known shape is logged and yields no items.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) ([]Item, error) {
	start := time.Now()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.engine.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	if u, ok := raw.(Unparsed); ok {
		r.logger.WithFields("engine", r.engine.Name(), "reason", u.Reason).Warn("Unrecognized engine output shape")
		return []Item{}, nil
	}

	items := Normalize(raw)
	r.logger.WithFields(
		"engine", r.engine.Name(),
		"items", len(items),
		"duration", time.Since(start),
	).Debug("Recognition completed")

	return items, nil
}

// HealthCheck delegates to the engine
func (r *Recognizer) HealthCheck(ctx context.Context) error {
	return r.engine.HealthCheck(ctx)
}

// EngineName returns the wrapped engine's provider name
func (r *Recognizer) EngineName() string {
	return r.engine.Name()
}

// Close releases engine resources when the engine holds any
func (r *Recognizer) Close() error {
	if c, ok := r.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
