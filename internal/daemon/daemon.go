// Package daemon runs slipguard as a long-lived service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/server"
)

// BatchRunner scans a directory. *batch.Runner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, dir string, force bool) (*batch.Result, error)
}

// Daemon serves the HTTP API and periodically scans a watch directory
type Daemon struct {
	server        *server.Server
	batch         BatchRunner
	logger        *logger.Logger
	addr          string
	watchDir      string
	interval      time.Duration
	batchTimeout  time.Duration
	pidFile       string
	notify        bool
	notifyDelay   time.Duration
	httpServer    *http.Server
	listener      net.Listener
	ready         chan struct{}
	statusTracker *StatusTracker
	control       *batchControl
}

// Config holds configuration for the daemon
type Config struct {
	Server  *server.Server
	Logger  *logger.Logger
	Addr    string // HTTP listen address (e.g. ":5000")
	PIDFile string // Optional PID file path

	// Batch and WatchDir together enable periodic directory scans
	Batch        BatchRunner
	WatchDir     string
	Interval     time.Duration // How often to scan (default: 5 minutes)
	BatchTimeout time.Duration // Per-batch limit (default: 30 minutes)

	// Notify also queues a batch when new images settle in WatchDir
	Notify      bool
	NotifyDelay time.Duration // How long a file must stay unchanged (default: 2 seconds)

	// Status is shared with the batch runner for progress reporting; nil creates one
	Status *StatusTracker
}

// New creates a new daemon instance
func New(cfg *Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Server == nil {
		return nil, fmt.Errorf("server is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr is required")
	}
	if cfg.WatchDir != "" && cfg.Batch == nil {
		return nil, fmt.Errorf("batch runner is required when a watch directory is set")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 30 * time.Minute
	}

	notifyDelay := cfg.NotifyDelay
	if notifyDelay == 0 {
		notifyDelay = 2 * time.Second
	}

	tracker := cfg.Status
	if tracker == nil {
		tracker = NewStatusTracker()
	}
	tracker.SetWatchDir(cfg.WatchDir)

	d := &Daemon{
		server:        cfg.Server,
		batch:         cfg.Batch,
		logger:        log,
		addr:          cfg.Addr,
		watchDir:      cfg.WatchDir,
		interval:      interval,
		batchTimeout:  batchTimeout,
		pidFile:       cfg.PIDFile,
		notify:        cfg.Notify,
		notifyDelay:   notifyDelay,
		statusTracker: tracker,
		control:       newBatchControl(),
		ready:         make(chan struct{}),
	}

	router := cfg.Server.Router()
	router.GET("/status", d.handleStatus)
	router.POST("/batch/trigger", d.handleTriggerBatch)
	router.POST("/batch/cancel", d.handleCancelBatch)

	return d, nil
}

// Ready is closed once the HTTP server is listening
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the address the HTTP server is listening on. Call it after Ready.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return d.addr
	}
	return d.listener.Addr().String()
}

func (d *Daemon) batchEnabled() bool {
	return d.batch != nil && d.watchDir != ""
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.WithFields("addr", d.addr, "watch_dir", d.watchDir, "interval", d.interval).Info("Starting daemon")

	if d.pidFile != "" {
		if err := d.writePIDFile(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer d.removePIDFile()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.batchEnabled() && d.notify {
		d.startWatcher(ctx)
	}

	if err := d.startHTTP(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer d.stopHTTP()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	// a nil channel never fires, so the select below just serves when batches are off
	var tick <-chan time.Time
	if d.batchEnabled() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C

		d.logger.Info("Running initial batch")
		d.runBatch(ctx)
		d.statusTracker.SetNextBatchTime(time.Now().Add(d.interval))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Context canceled, shutting down")
			return ctx.Err()

		case sig := <-sigChan:
			d.logger.WithFields("signal", sig.String()).Info("Received shutdown signal")
			return nil

		case <-tick:
			d.logger.Info("Batch interval elapsed, triggering batch")
			d.runBatch(ctx)
			d.statusTracker.SetNextBatchTime(time.Now().Add(d.interval))

		case <-d.control.trigger:
			d.logger.Info("Manual batch requested")
			d.runBatch(ctx)
		}
	}
}

// runBatch executes a single directory batch with error recovery
func (d *Daemon) runBatch(ctx context.Context) {
	startTime := time.Now()
	d.statusTracker.BatchStarted()

	batchCtx, cancel := context.WithTimeout(ctx, d.batchTimeout)
	d.control.setCancel(cancel)
	defer func() {
		d.control.setCancel(nil)
		cancel()
	}()

	result, err := d.batch.Run(batchCtx, d.watchDir, false)
	duration := time.Since(startTime)

	if err != nil {
		d.logger.WithFields("error", err, "duration", duration).Error("Batch failed")
		d.statusTracker.BatchFailed(err, duration)
		return
	}

	d.statusTracker.BatchCompleted(NewBatchSummary(startTime, result))

	for _, fr := range result.Flagged() {
		d.logger.WithFields(
			"path", fr.Path,
			"banks", fr.Banks,
			"accounts", fr.Accounts,
			"warnings", fr.Warnings,
		).Warn("Flagged slip")
	}

	if result.HasFailures() {
		d.logger.WithFields("count", result.FailureCount).Warn("Batch completed with failures")
		for _, failure := range result.Failures {
			d.logger.WithFields("path", failure.Path, "error", failure.Error).Warn("Image scan failed")
		}
	}
}

// startWatcher watches the watch directory until ctx ends. Periodic batches
// still run when the watcher cannot be created.
func (d *Daemon) startWatcher(ctx context.Context) {
	w, err := newDirWatcher(d.watchDir, d.notifyDelay, d.logger, func() {
		if d.control.requestBatch() {
			d.logger.Debug("Queued batch for new images")
		}
	})
	if err != nil {
		d.logger.WithFields("dir", d.watchDir, "error", err).Warn("Failed to watch directory, relying on interval")
		return
	}

	go func() {
		w.run(ctx)
		if err := w.close(); err != nil {
			d.logger.WithError(err).Debug("Failed to close watcher")
		}
	}()
}

// writePIDFile writes the current process ID to the configured PID file
func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)

	if err := os.WriteFile(d.pidFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.WithFields("pid", pid, "file", d.pidFile).Info("Wrote PID file")
	return nil
}

// removePIDFile removes the PID file
func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}

	if err := os.Remove(d.pidFile); err != nil {
		d.logger.WithFields("file", d.pidFile, "error", err).
			Warn("Failed to remove PID file")
	} else {
		d.logger.WithFields("file", d.pidFile).Info("Removed PID file")
	}
}

// startHTTP binds the listen address and serves the API in the background
func (d *Daemon) startHTTP() error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return err
	}
	d.listener = ln
	close(d.ready)

	d.httpServer = &http.Server{
		Handler:           d.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		d.logger.WithFields("addr", ln.Addr().String()).Info("Starting HTTP server")
		if err := d.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.WithFields("error", err).Error("HTTP server failed")
		}
	}()

	return nil
}

// stopHTTP stops the HTTP server
func (d *Daemon) stopHTTP() {
	if d.httpServer == nil {
		return
	}

	d.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.logger.WithFields("error", err).Warn("Failed to shutdown HTTP server gracefully")
	} else {
		d.logger.Info("HTTP server stopped")
	}
}
