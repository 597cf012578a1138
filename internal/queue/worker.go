package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
)

// Scanner scans encoded image bytes. *scan.Orchestrator satisfies it.
type Scanner interface {
	ScanBytes(ctx context.Context, data []byte) (*scan.Result, error)
}

// Worker consumes scan jobs
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	scanner Scanner
	logger  *logger.Logger
}

// WorkerConfig holds configuration for a worker
type WorkerConfig struct {
	RedisURL    string
	Logger      *logger.Logger
	Scanner     Scanner
	Queue       string // default: DefaultQueue
	Concurrency int    // default: 2
}

// NewWorker creates a worker. It does not connect until Run.
func NewWorker(cfg *WorkerConfig) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.WithFields("component", "worker")

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	w := &Worker{
		scanner: cfg.Scanner,
		logger:  log,
		mux:     asynq.NewServeMux(),
	}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{orDefault(cfg.Queue, DefaultQueue): 1},
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.WithFields("type", task.Type(), "error", err).Warn("Scan job failed")
		}),
		Logger:          log,
		ShutdownTimeout: 30 * time.Second,
	})
	w.mux.HandleFunc(TypeScanImage, w.handleScan)

	return w, nil
}

// Run processes jobs until ctx is canceled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting scan worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()
	w.logger.Info("Stopping scan worker")
	w.server.Shutdown()
	return ctx.Err()
}

func (w *Worker) handleScan(ctx context.Context, task *asynq.Task) error {
	data, err := w.process(ctx, task.Payload())
	if err != nil {
		return err
	}
	if _, err := task.ResultWriter().Write(data); err != nil {
		return fmt.Errorf("failed to store scan result: %w", err)
	}
	return nil
}

// process runs one scan and returns the encoded result. Input errors complete
// the job with an error result instead of retrying it; engine failures and
// partial scans are retried.
func (w *Worker) process(ctx context.Context, raw []byte) ([]byte, error) {
	var payload ScanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid scan payload: %v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	result, err := w.scanner.ScanBytes(ctx, payload.Image)
	if err != nil {
		if !scan.IsInputError(err) {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		result = scan.NewErrorResult(err)
	}
	if err := result.Err(); err != nil {
		// an engine outage or timeout is worth another attempt
		return nil, fmt.Errorf("scan incomplete: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan result: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.WithFields(
		"source", payload.Source,
		"status", result.Status,
		"duration", time.Since(start),
	).Info("Scan job completed")
	return data, nil
}

// retryDelay backs off 5s, 10s, 20s... capped at one minute
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
