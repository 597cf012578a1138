package daemon

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platinummonkey/slipguard/internal/batch"
)

// BatchState represents the current state of the daemon's watch-directory batches
type BatchState string

const (
	// StateIdle indicates the daemon is serving but not scanning a directory
	StateIdle BatchState = "idle"

	// StateScanning indicates a directory batch is in progress
	StateScanning BatchState = "scanning"

	// StateError indicates the last batch failed
	StateError BatchState = "error"
)

// Status represents the current daemon status
type Status struct {
	// State is the current batch state (idle, scanning, error)
	State BatchState `json:"state"`

	// WatchDir is the directory scanned periodically, if any
	WatchDir string `json:"watch_dir,omitempty"`

	// LastBatchTime is the timestamp of the last batch attempt
	LastBatchTime *time.Time `json:"last_batch_time,omitempty"`

	// NextBatchTime is the estimated time of the next batch
	NextBatchTime *time.Time `json:"next_batch_time,omitempty"`

	// BatchDuration is how long the last batch took
	BatchDuration *time.Duration `json:"batch_duration,omitempty"`

	// ErrorMessage contains the error from the last failed batch
	ErrorMessage string `json:"error_message,omitempty"`

	// CurrentBatch contains information about an in-progress batch
	CurrentBatch *BatchProgress `json:"current_batch,omitempty"`

	// LastBatchResult contains the result of the last completed batch
	LastBatchResult *BatchSummary `json:"last_batch_result,omitempty"`

	// UptimeSeconds is how long the daemon has been running
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// BatchProgress tracks the progress of an in-progress batch
type BatchProgress struct {
	StartTime      time.Time `json:"start_time"`
	FilesTotal     int       `json:"files_total"`
	FilesProcessed int       `json:"files_processed"`
	CurrentFile    string    `json:"current_file,omitempty"`
}

// BatchSummary contains a summary of a completed batch
type BatchSummary struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	SuccessCount   int `json:"success_count"`
	EmptyCount     int `json:"empty_count"`
	FailureCount   int `json:"failure_count"`

	// SkippedCount is how many files were unchanged since the last batch
	SkippedCount int `json:"skipped_count"`

	// FlaggedCount is how many scans found an account number or raised a warning
	FlaggedCount int  `json:"flagged_count"`
	Interrupted  bool `json:"interrupted,omitempty"`
}

// NewBatchSummary summarizes a batch result that started at start
func NewBatchSummary(start time.Time, result *batch.Result) BatchSummary {
	return BatchSummary{
		StartTime:      start,
		EndTime:        start.Add(result.Duration),
		Duration:       result.Duration,
		TotalFiles:     result.TotalFiles,
		ProcessedFiles: result.Processed,
		SuccessCount:   result.SuccessCount,
		EmptyCount:     result.EmptyCount,
		FailureCount:   result.FailureCount,
		SkippedCount:   result.Skipped,
		FlaggedCount:   len(result.Flagged()),
		Interrupted:    result.Interrupted,
	}
}

// StatusTracker tracks the daemon's current status in a thread-safe manner
type StatusTracker struct {
	mu         sync.RWMutex
	state      BatchState
	watchDir   string
	startTime  time.Time
	lastBatch  *time.Time
	nextBatch  *time.Time
	lastDur    *time.Duration
	errMsg     string
	curBatch   *BatchProgress
	lastResult *BatchSummary
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		state:     StateIdle,
		startTime: time.Now(),
	}
}

// GetStatus returns the current status
func (st *StatusTracker) GetStatus() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var cur *BatchProgress
	if st.curBatch != nil {
		c := *st.curBatch
		cur = &c
	}

	return Status{
		State:           st.state,
		WatchDir:        st.watchDir,
		LastBatchTime:   st.lastBatch,
		NextBatchTime:   st.nextBatch,
		BatchDuration:   st.lastDur,
		ErrorMessage:    st.errMsg,
		CurrentBatch:    cur,
		LastBatchResult: st.lastResult,
		UptimeSeconds:   int64(time.Since(st.startTime).Seconds()),
	}
}

// SetWatchDir records the directory being watched
func (st *StatusTracker) SetWatchDir(dir string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.watchDir = dir
}

// BatchStarted records the start of a batch
func (st *StatusTracker) BatchStarted() {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	st.state = StateScanning
	st.lastBatch = &now
	st.errMsg = ""
	st.curBatch = &BatchProgress{StartTime: now}
}

// UpdateProgress records the file about to be scanned. It matches batch.ProgressFunc.
func (st *StatusTracker) UpdateProgress(done, total int, path string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.curBatch != nil {
		st.curBatch.FilesProcessed = done
		st.curBatch.FilesTotal = total
		st.curBatch.CurrentFile = path
	}
}

// BatchCompleted records a finished batch
func (st *StatusTracker) BatchCompleted(summary BatchSummary) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state = StateIdle
	st.curBatch = nil
	st.lastResult = &summary
	st.errMsg = ""

	dur := summary.Duration
	st.lastDur = &dur
}

// BatchFailed records a failed batch
func (st *StatusTracker) BatchFailed(err error, duration time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state = StateError
	st.curBatch = nil
	st.lastDur = &duration

	if err != nil {
		st.errMsg = err.Error()
	}
}

// SetNextBatchTime updates when the next batch is scheduled
func (st *StatusTracker) SetNextBatchTime(t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextBatch = &t
}

// handleStatus serves the current status as JSON
func (d *Daemon) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.statusTracker.GetStatus())
}
