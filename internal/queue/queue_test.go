package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
)

type fakeScanner struct {
	result *scan.Result
	err    error
	got    []byte
}

func (f *fakeScanner) ScanBytes(_ context.Context, data []byte) (*scan.Result, error) {
	f.got = data
	return f.result, f.err
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *ClientConfig
	}{
		{"nil config", nil},
		{"no redis url", &ClientConfig{}},
		{"bad redis url", &ClientConfig{RedisURL: "http://localhost:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg); err == nil {
				t.Error("NewClient() should fail")
			}
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&ClientConfig{RedisURL: "redis://localhost:6379/0", Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if c.queue != DefaultQueue || c.retention != DefaultRetention || c.maxRetry != DefaultMaxRetry || c.timeout != DefaultTimeout {
		t.Errorf("defaults = %s/%v/%d/%v", c.queue, c.retention, c.maxRetry, c.timeout)
	}
}

func TestEnqueue_EmptyImage(t *testing.T) {
	c, err := NewClient(&ClientConfig{RedisURL: "redis://localhost:6379/0", Logger: logger.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	_, err = c.Enqueue(context.Background(), nil, "")
	if !errors.Is(err, scan.ErrNoImage) {
		t.Errorf("Enqueue(nil) error = %v, want ErrNoImage", err)
	}
}

func TestNewWorker_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *WorkerConfig
	}{
		{"nil config", nil},
		{"no redis url", &WorkerConfig{Scanner: &fakeScanner{}}},
		{"no scanner", &WorkerConfig{RedisURL: "redis://localhost:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWorker(tt.cfg); err == nil {
				t.Error("NewWorker() should fail")
			}
		})
	}
}

func newWorker(t *testing.T, s Scanner) *Worker {
	t.Helper()
	w, err := NewWorker(&WorkerConfig{RedisURL: "redis://localhost:6379/0", Scanner: s, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	return w
}

func payload(t *testing.T, image []byte, source string) []byte {
	t.Helper()
	task, err := NewScanTask(image, source)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TypeScanImage {
		t.Errorf("task type = %s, want %s", task.Type(), TypeScanImage)
	}
	return task.Payload()
}

func TestWorker_Process(t *testing.T) {
	ok := &scan.Result{Status: scan.StatusSuccess, Data: &scan.Data{ScanID: "s1", Accounts: []string{"1234567890"}}}

	tests := []struct {
		name       string
		scanner    *fakeScanner
		raw        []byte
		wantStatus scan.Status
		wantErr    bool
		skipRetry  bool
	}{
		{name: "success", scanner: &fakeScanner{result: ok}, wantStatus: scan.StatusSuccess},
		{name: "input error completes", scanner: &fakeScanner{err: &scan.InputError{Err: scan.ErrUnreadableImage}}, wantStatus: scan.StatusError},
		{name: "pipeline failure retries", scanner: &fakeScanner{err: errors.New("engine down")}, wantErr: true},
		{name: "bad payload", scanner: &fakeScanner{}, raw: []byte("{"), wantErr: true, skipRetry: true},
		{name: "engine outage retries", scanner: &fakeScanner{result: &scan.Result{Status: scan.StatusEmpty, EngineFailed: true}}, wantErr: true},
		{name: "partial scan retries", scanner: &fakeScanner{result: &scan.Result{Status: scan.StatusSuccess, Data: &scan.Data{}, Partial: true}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			if raw == nil {
				raw = payload(t, []byte("img"), "chat-1")
			}

			data, err := newWorker(t, tt.scanner).process(context.Background(), raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got := errors.Is(err, asynq.SkipRetry); got != tt.skipRetry {
					t.Errorf("SkipRetry = %v, want %v", got, tt.skipRetry)
				}
				return
			}

			if string(tt.scanner.got) != "img" {
				t.Errorf("scanned bytes = %q, want img", tt.scanner.got)
			}
			var result scan.Result
			if err := json.Unmarshal(data, &result); err != nil {
				t.Fatalf("result is not JSON: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", result.Status, tt.wantStatus)
			}
		})
	}
}

func TestJobFromInfo(t *testing.T) {
	result, _ := json.Marshal(&scan.Result{Status: scan.StatusSuccess, Data: &scan.Data{ScanID: "s1"}})
	completed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	info := &asynq.TaskInfo{
		ID:          "job-1",
		State:       asynq.TaskStateCompleted,
		Payload:     payload(t, []byte("img"), "a.png"),
		MaxRetry:    3,
		Retried:     1,
		LastErr:     "engine down",
		Result:      result,
		CompletedAt: completed,
	}

	job, err := jobFromInfo(info)
	if err != nil {
		t.Fatalf("jobFromInfo() error = %v", err)
	}
	if job.ID != "job-1" || job.State != StateCompleted || job.Source != "a.png" {
		t.Errorf("job = %+v", job)
	}
	if job.Retried != 1 || job.MaxRetry != 3 || job.LastError != "engine down" {
		t.Errorf("retry info = %d/%d/%q", job.Retried, job.MaxRetry, job.LastError)
	}
	if job.Result == nil || job.Result.Data.ScanID != "s1" {
		t.Errorf("Result = %+v, want scan s1", job.Result)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", job.CompletedAt, completed)
	}

	pending, err := jobFromInfo(&asynq.TaskInfo{ID: "job-2", State: asynq.TaskStatePending})
	if err != nil {
		t.Fatal(err)
	}
	if pending.Result != nil || pending.CompletedAt != nil {
		t.Errorf("pending job = %+v, want no result", pending)
	}

	if _, err := jobFromInfo(&asynq.TaskInfo{ID: "job-3", Result: []byte("{")}); err == nil {
		t.Error("corrupt result should fail")
	}
}

func TestJobState(t *testing.T) {
	tests := []struct {
		in   asynq.TaskState
		want string
	}{
		{asynq.TaskStatePending, StatePending},
		{asynq.TaskStateScheduled, StatePending},
		{asynq.TaskStateActive, StateActive},
		{asynq.TaskStateRetry, StateRetry},
		{asynq.TaskStateCompleted, StateCompleted},
		{asynq.TaskStateArchived, StateFailed},
	}
	for _, tt := range tests {
		if got := jobState(tt.in); got != tt.want {
			t.Errorf("jobState(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{5, time.Minute},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.n, nil, nil); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
