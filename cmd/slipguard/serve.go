package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/daemon"
	"github.com/platinummonkey/slipguard/internal/queue"
	"github.com/platinummonkey/slipguard/internal/server"
	"github.com/platinummonkey/slipguard/internal/state"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run slipguard as a long-running service.

Endpoints:
  POST /scan            {"image": "<base64 or data URL>"} or multipart "image" file
  POST /scan/jobs       same body, scanned in the background by "slipguard worker"
  GET  /scan/jobs/:id   job state and result
  POST /analyze         {"text": "..."} text risk score
  POST /analyze/chat    {"text": "<pasted chat>"} per-message risk scores
  GET  /history         ?account=<number> earlier sightings of an account
  GET  /health, /ready  liveness and readiness
  GET  /status          uptime and last batch summary
  POST /batch/trigger   scan the watch directory now
  POST /batch/cancel    cancel the batch in progress

With --watch-dir the service also scans that directory every --interval and,
unless --notify=false, whenever new images land in it, skipping unchanged files. The service stops gracefully on SIGINT/SIGTERM.

Examples:
  # Serve on the default :5000
  slipguard serve

  # Watch a screenshots folder every 10 minutes
  slipguard serve --watch-dir ~/Pictures/slips --interval 10m

  # Background jobs for "slipguard worker"
  slipguard serve --queue-url redis://localhost:6379/1

  # Redis cache, postgres history and a PID file
  slipguard serve \
    --redis-url redis://localhost:6379/0 \
    --history-dsn "postgres://slipguard@localhost/slipguard" \
    --pid-file /var/run/slipguard.pid`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":5000", "HTTP listen address")
	serveCmd.Flags().String("pid-file", "", "PID file path")
	serveCmd.Flags().String("watch-dir", "", "directory to scan periodically")
	serveCmd.Flags().Duration("interval", 5*time.Minute, "watch directory scan interval (e.g., 5m, 1h)")
	serveCmd.Flags().Bool("notify", true, "also scan as soon as new images land in the watch directory")
	serveCmd.Flags().String("queue-url", "", "Redis URL of the background scan queue (default disabled)")
	serveCmd.Flags().String("state-file", "", "batch state file (default $HOME/.slipguard-state.json)")
	serveCmd.Flags().Int("max-variants", 3, "maximum preprocessing variants per image")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := appConfig
	log := appLogger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	analyzer, err := newAnalyzer(cfg, log)
	if err != nil {
		return err
	}

	// batch state backs /history when postgres history is off, and the watch directory
	stateStore, err := state.LoadOrCreate(cfg.Batch.StateFile)
	if err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	srvCfg := &server.Config{
		Logger:       log,
		Scanner:      p.orchestrator,
		Analyzer:     analyzer,
		State:        stateStore,
		Checks:       p.readinessChecks(),
		CORSOrigins:  corsOrigins(cfg.Server.CORSOrigins),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if p.history != nil {
		srvCfg.History = p.history
	}
	if cfg.Queue.RedisURL != "" {
		jobs, err := queue.NewClient(&queue.ClientConfig{
			RedisURL:  cfg.Queue.RedisURL,
			Logger:    log,
			Queue:     cfg.Queue.Name,
			Retention: cfg.Queue.Retention,
			MaxRetry:  cfg.Queue.MaxRetry,
			Timeout:   cfg.Engine.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		defer func() { _ = jobs.Close() }()
		srvCfg.Jobs = jobs
		srvCfg.Checks = append(srvCfg.Checks, server.Check{Name: "queue", Fn: jobs.Ping})
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	status := daemon.NewStatusTracker()
	daemonCfg := &daemon.Config{
		Server:   srv,
		Logger:   log,
		Addr:     cfg.Server.Addr,
		PIDFile:  cfg.Server.PIDFile,
		WatchDir: cfg.Batch.WatchDir,
		Interval: cfg.Batch.Interval,
		Notify:   cfg.Batch.Notify,
		Status:   status,
	}
	if cfg.Batch.WatchDir != "" {
		runner, err := batch.New(&batch.Config{
			Logger:     log,
			Scanner:    p.orchestrator,
			StateStore: stateStore,
			Progress:   status.UpdateProgress,
		})
		if err != nil {
			return fmt.Errorf("failed to create batch runner: %w", err)
		}
		daemonCfg.Batch = runner
	}

	d, err := daemon.New(daemonCfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon error: %w", err)
	}

	log.Info("Daemon stopped")
	return nil
}

// corsOrigins maps the "*" wildcard to an empty list, which allows every origin
func corsOrigins(origins []string) []string {
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	return origins
}
