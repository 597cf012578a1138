package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/scan"
)

func TestStatusTracker(t *testing.T) {
	st := NewStatusTracker()

	status := st.GetStatus()
	if status.State != StateIdle {
		t.Errorf("Expected initial state to be idle, got %s", status.State)
	}

	st.BatchStarted()
	status = st.GetStatus()
	if status.State != StateScanning {
		t.Errorf("Expected state to be scanning, got %s", status.State)
	}
	if status.CurrentBatch == nil {
		t.Fatal("Expected CurrentBatch to be set")
	}

	st.UpdateProgress(42, 100, "/slips/a.png")
	status = st.GetStatus()
	if status.CurrentBatch.FilesProcessed != 42 || status.CurrentBatch.FilesTotal != 100 {
		t.Errorf("progress = %+v, want 42/100", status.CurrentBatch)
	}
	if status.CurrentBatch.CurrentFile != "/slips/a.png" {
		t.Errorf("CurrentFile = %s, want /slips/a.png", status.CurrentBatch.CurrentFile)
	}

	summary := BatchSummary{
		StartTime:      time.Now().Add(-1 * time.Minute),
		EndTime:        time.Now(),
		Duration:       1 * time.Minute,
		TotalFiles:     100,
		ProcessedFiles: 50,
		SuccessCount:   48,
		FailureCount:   2,
		SkippedCount:   50,
	}
	st.BatchCompleted(summary)
	status = st.GetStatus()
	if status.State != StateIdle {
		t.Errorf("Expected state to be idle after completion, got %s", status.State)
	}
	if status.CurrentBatch != nil {
		t.Error("Expected CurrentBatch to be nil after completion")
	}
	if status.LastBatchResult == nil || status.LastBatchResult.SuccessCount != 48 {
		t.Errorf("LastBatchResult = %+v", status.LastBatchResult)
	}
	if status.BatchDuration == nil || *status.BatchDuration != time.Minute {
		t.Errorf("BatchDuration = %v, want 1m", status.BatchDuration)
	}
}

func TestStatusTrackerError(t *testing.T) {
	st := NewStatusTracker()
	st.BatchStarted()
	st.BatchFailed(errors.New("permission denied"), 30*time.Second)

	status := st.GetStatus()
	if status.State != StateError {
		t.Errorf("Expected state to be error, got %s", status.State)
	}
	if status.ErrorMessage != "permission denied" {
		t.Errorf("ErrorMessage = %q", status.ErrorMessage)
	}
	if status.CurrentBatch != nil {
		t.Error("Expected CurrentBatch to be nil after failure")
	}

	st.BatchStarted()
	if msg := st.GetStatus().ErrorMessage; msg != "" {
		t.Errorf("ErrorMessage = %q after a new batch started, want empty", msg)
	}
}

func TestNewBatchSummary(t *testing.T) {
	result := batch.NewResult("/slips")
	result.TotalFiles = 4
	result.Processed = 3
	result.Skipped = 1
	result.Duration = 2 * time.Second
	result.AddSuccess(&batch.FileResult{Path: "a.png", Status: scan.StatusSuccess, Accounts: []string{"1234567890"}})
	result.AddSuccess(&batch.FileResult{Path: "b.png", Status: scan.StatusSuccess})
	result.AddSuccess(&batch.FileResult{Path: "c.png", Status: scan.StatusEmpty})

	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	s := NewBatchSummary(start, result)

	if s.SuccessCount != 2 || s.EmptyCount != 1 || s.SkippedCount != 1 || s.FlaggedCount != 1 {
		t.Errorf("NewBatchSummary() = %+v", s)
	}
	if !s.EndTime.Equal(start.Add(2 * time.Second)) {
		t.Errorf("EndTime = %v, want start+2s", s.EndTime)
	}
}

func TestStatusJSON(t *testing.T) {
	st := NewStatusTracker()
	st.SetWatchDir("/slips")

	now := time.Now()
	st.BatchCompleted(BatchSummary{StartTime: now.Add(-time.Minute), EndTime: now, Duration: time.Minute, TotalFiles: 10})
	st.SetNextBatchTime(now.Add(5 * time.Minute))

	data, err := json.Marshal(st.GetStatus())
	if err != nil {
		t.Fatalf("Failed to marshal status: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	for _, key := range []string{"state", "watch_dir", "next_batch_time", "last_batch_result", "uptime_seconds"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("status JSON missing %q", key)
		}
	}
	if _, ok := decoded["current_batch"]; ok {
		t.Error("current_batch present while idle")
	}
}

func TestHandleStatus(t *testing.T) {
	d := newDaemon(t, &Config{})
	d.statusTracker.BatchStarted()

	rec := httptest.NewRecorder()
	d.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != StateScanning {
		t.Errorf("State = %s, want scanning", got.State)
	}
}

func TestStatusTrackerConcurrency(t *testing.T) {
	st := NewStatusTracker()
	st.BatchStarted()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			st.UpdateProgress(i, 100, "slip.png")
			time.Sleep(1 * time.Millisecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = st.GetStatus()
			time.Sleep(1 * time.Millisecond)
		}
		done <- true
	}()

	<-done
	<-done

	if status := st.GetStatus(); status.State != StateScanning {
		t.Errorf("Expected scanning state, got %s", status.State)
	}
}
