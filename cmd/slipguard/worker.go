package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/slipguard/internal/queue"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process background scan jobs",
	Long: `Process scan jobs submitted to POST /scan/jobs.

The worker and the server share the Redis queue given by --queue-url. Each job
result is kept on the queue for queue.retention (default 24h) and served by
GET /scan/jobs/:id. Failed scans are retried with backoff; unreadable images
complete with an error result instead.

Examples:
  slipguard worker --queue-url redis://localhost:6379/1 --concurrency 4`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().String("queue-url", "", "Redis URL of the background scan queue")
	workerCmd.Flags().Int("concurrency", 2, "number of scans run in parallel")
	workerCmd.Flags().Int("max-variants", 3, "maximum preprocessing variants per image")
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg := appConfig
	if cfg.Queue.RedisURL == "" {
		return fmt.Errorf("queue.redis-url is required (set --queue-url or SLIPGUARD_QUEUE_REDIS_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	worker, err := queue.NewWorker(&queue.WorkerConfig{
		RedisURL:    cfg.Queue.RedisURL,
		Logger:      appLogger,
		Scanner:     p.orchestrator,
		Queue:       cfg.Queue.Name,
		Concurrency: cfg.Queue.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker error: %w", err)
	}
	return nil
}
