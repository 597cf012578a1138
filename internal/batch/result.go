package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/slipguard/internal/scan"
)

// Result contains the results of one batch run
type Result struct {
	Dir          string
	TotalFiles   int
	Processed    int
	Skipped      int
	SuccessCount int
	EmptyCount   int
	FailureCount int
	Pruned       int
	Interrupted  bool
	Duration     time.Duration
	Successes    []FileResult
	Failures     []FileFailure
}

// FileResult contains the scan outcome of a single file
type FileResult struct {
	Path     string
	Status   scan.Status
	ScanID   string
	Banks    []string
	Accounts []string
	Names    []string
	Quality  float64
	Warnings []string
	Duration time.Duration
}

// FileFailure contains information about a file that could not be scanned
type FileFailure struct {
	Path  string
	Error error
}

// NewResult creates a new batch result
func NewResult(dir string) *Result {
	return &Result{
		Dir:       dir,
		Successes: make([]FileResult, 0),
		Failures:  make([]FileFailure, 0),
	}
}

// AddSuccess adds a completed scan. Empty scans count separately.
func (r *Result) AddSuccess(fr *FileResult) {
	r.Successes = append(r.Successes, *fr)
	if fr.Status == scan.StatusEmpty {
		r.EmptyCount++
		return
	}
	r.SuccessCount++
}

// AddError adds a failed file
func (r *Result) AddError(path string, err error) {
	r.Failures = append(r.Failures, FileFailure{Path: path, Error: err})
	r.FailureCount++
}

// HasFailures returns true if there were any failures
func (r *Result) HasFailures() bool {
	return r.FailureCount > 0
}

// Flagged returns the scans that found an account number or raised a warning
func (r *Result) Flagged() []FileResult {
	var out []FileResult
	for _, fr := range r.Successes {
		if len(fr.Accounts) > 0 || len(fr.Warnings) > 0 {
			out = append(out, fr)
		}
	}
	return out
}

// Summary returns a human-readable summary of the batch result
func (r *Result) Summary() string {
	var sb strings.Builder

	sb.WriteString("Batch Summary:\n")
	sb.WriteString(fmt.Sprintf("  Directory: %s\n", r.Dir))
	sb.WriteString(fmt.Sprintf("  Total Files: %d\n", r.TotalFiles))
	sb.WriteString(fmt.Sprintf("  Processed: %d\n", r.Processed))
	sb.WriteString(fmt.Sprintf("  Skipped (unchanged): %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("  Successful: %d\n", r.SuccessCount))
	sb.WriteString(fmt.Sprintf("  Empty: %d\n", r.EmptyCount))
	sb.WriteString(fmt.Sprintf("  Failed: %d\n", r.FailureCount))
	sb.WriteString(fmt.Sprintf("  Duration: %v\n", r.Duration))
	if r.Interrupted {
		sb.WriteString("  Interrupted before all files were scanned\n")
	}

	if flagged := r.Flagged(); len(flagged) > 0 {
		sb.WriteString("\nFlagged:\n")
		for _, fr := range flagged {
			sb.WriteString(fmt.Sprintf("  - %s: banks=%s accounts=%s",
				fr.Path, strings.Join(fr.Banks, ","), strings.Join(fr.Accounts, ",")))
			if len(fr.Warnings) > 0 {
				sb.WriteString(fmt.Sprintf(" warnings=%q", fr.Warnings))
			}
			sb.WriteString("\n")
		}
	}

	if r.HasFailures() {
		sb.WriteString("\nFailures:\n")
		for _, failure := range r.Failures {
			sb.WriteString(fmt.Sprintf("  - %s: %v\n", failure.Path, failure.Error))
		}
	}

	return sb.String()
}

// String returns a string representation of the batch result
func (r *Result) String() string {
	return r.Summary()
}
