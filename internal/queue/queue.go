// Package queue runs slip scans as background jobs on a Redis-backed asynq queue.
//
// The HTTP server enqueues images with a Client and answers job status from the
// queue's inspector; one or more Workers run the scans and store each result on
// the completed task.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
)

// TypeScanImage is the task type of a slip scan job
const TypeScanImage = "scan:image"

const (
	// DefaultQueue is the queue name used when none is configured
	DefaultQueue = "slipguard"

	// DefaultRetention is how long completed jobs and their results are kept
	DefaultRetention = 24 * time.Hour

	// DefaultMaxRetry is how often a failing scan is retried
	DefaultMaxRetry = 3

	// DefaultTimeout bounds a single scan job
	DefaultTimeout = 5 * time.Minute
)

// ErrJobNotFound is returned for unknown or expired job IDs
var ErrJobNotFound = errors.New("job not found")

// Job states reported to clients
const (
	StatePending   = "pending"
	StateActive    = "active"
	StateRetry     = "retry"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ScanPayload is the task payload of a scan job
type ScanPayload struct {
	Image  []byte `json:"image"`
	Source string `json:"source,omitempty"`
}

// Job is the client view of a scan job
type Job struct {
	ID          string       `json:"id"`
	State       string       `json:"state"`
	Source      string       `json:"source,omitempty"`
	Retried     int          `json:"retried"`
	MaxRetry    int          `json:"max_retry"`
	LastError   string       `json:"last_error,omitempty"`
	Result      *scan.Result `json:"result,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Client enqueues scan jobs and reports their state
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *logger.Logger
	queue     string
	retention time.Duration
	maxRetry  int
	timeout   time.Duration
}

// ClientConfig holds configuration for the job client
type ClientConfig struct {
	RedisURL string
	Logger   *logger.Logger

	Queue     string        // default: DefaultQueue
	Retention time.Duration // default: DefaultRetention
	MaxRetry  int           // default: DefaultMaxRetry
	Timeout   time.Duration // default: DefaultTimeout
}

// NewClient connects a job client to Redis
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		logger:    log.WithFields("component", "queue"),
		queue:     orDefault(cfg.Queue, DefaultQueue),
		retention: cfg.Retention,
		maxRetry:  cfg.MaxRetry,
		timeout:   cfg.Timeout,
	}
	if c.retention <= 0 {
		c.retention = DefaultRetention
	}
	if c.maxRetry <= 0 {
		c.maxRetry = DefaultMaxRetry
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Enqueue submits an encoded image for scanning. Source is an optional label
// echoed back in the job (a file name, a chat id).
func (c *Client) Enqueue(ctx context.Context, image []byte, source string) (*Job, error) {
	if len(image) == 0 {
		return nil, &scan.InputError{Err: scan.ErrNoImage}
	}

	task, err := NewScanTask(image, source)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
		asynq.Retention(c.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue scan: %w", err)
	}

	c.logger.WithFields("job_id", info.ID, "source", source, "bytes", len(image)).Info("Enqueued scan job")
	return jobFromInfo(info)
}

// Get returns the current state of a job
func (c *Client) Get(_ context.Context, id string) (*Job, error) {
	info, err := c.inspector.GetTaskInfo(c.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to inspect job %s: %w", id, err)
	}
	return jobFromInfo(info)
}

// Ping verifies that Redis is reachable
func (c *Client) Ping(_ context.Context) error {
	if _, err := c.inspector.Queues(); err != nil {
		return fmt.Errorf("queue redis unreachable: %w", err)
	}
	return nil
}

// Close releases the Redis connections
func (c *Client) Close() error {
	errClient := c.client.Close()
	errInspector := c.inspector.Close()
	if errClient != nil {
		return errClient
	}
	return errInspector
}

// NewScanTask builds a scan task for image
func NewScanTask(image []byte, source string) (*asynq.Task, error) {
	payload, err := json.Marshal(ScanPayload{Image: image, Source: source})
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan payload: %w", err)
	}
	return asynq.NewTask(TypeScanImage, payload), nil
}

func jobFromInfo(info *asynq.TaskInfo) (*Job, error) {
	job := &Job{
		ID:        info.ID,
		State:     jobState(info.State),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}

	var payload ScanPayload
	if err := json.Unmarshal(info.Payload, &payload); err == nil {
		job.Source = payload.Source
	}

	if len(info.Result) > 0 {
		var result scan.Result
		if err := json.Unmarshal(info.Result, &result); err != nil {
			return nil, fmt.Errorf("failed to decode result of job %s: %w", info.ID, err)
		}
		job.Result = &result
	}
	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt
		job.CompletedAt = &completed
	}
	return job, nil
}

func jobState(s asynq.TaskState) string {
	switch s {
	case asynq.TaskStateActive:
		return StateActive
	case asynq.TaskStateRetry:
		return StateRetry
	case asynq.TaskStateCompleted:
		return StateCompleted
	case asynq.TaskStateArchived:
		return StateFailed
	default:
		return StatePending
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
