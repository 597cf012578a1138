// Package batch scans every image in a directory, skipping files unchanged since the last run.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
	"github.com/platinummonkey/slipguard/internal/state"
)

// imageExtensions are the file types a batch picks up
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether name has an image extension a batch picks up
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Scanner scans encoded image bytes. *scan.Orchestrator satisfies it.
type Scanner interface {
	ScanBytes(ctx context.Context, data []byte) (*scan.Result, error)
}

// Runner coordinates directory batch scans
type Runner struct {
	logger     *logger.Logger
	scanner    Scanner
	stateStore *state.Manager
	progress   ProgressFunc
}

// ProgressFunc is called before each file is scanned
type ProgressFunc func(done, total int, path string)

// Config holds configuration for the batch runner
type Config struct {
	Logger     *logger.Logger
	Scanner    Scanner
	StateStore *state.Manager
	Progress   ProgressFunc // optional
}

// New creates a new batch runner
func New(cfg *Config) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if cfg.StateStore == nil {
		return nil, fmt.Errorf("stateStore is required")
	}

	return &Runner{
		logger:     log,
		scanner:    cfg.Scanner,
		stateStore: cfg.StateStore,
		progress:   cfg.Progress,
	}, nil
}

// Run scans the images under dir. With force, unchanged files are scanned again.
// Cancelling ctx stops between files; the partial result is returned.
func (r *Runner) Run(ctx context.Context, dir string, force bool) (*Result, error) {
	r.logger.WithFields("dir", dir, "force", force).Info("Starting batch scan")
	startTime := time.Now()

	result := NewResult(dir)

	files, err := listImages(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	result.TotalFiles = len(files)
	r.logger.WithFields("count", len(files)).Info("Found images")

	if err := r.stateStore.Load(); err != nil {
		r.logger.WithFields("error", err).Warn("Failed to load state, starting fresh")
		r.stateStore.Reset()
	}

	present := make(map[string]bool, len(files))
	for i, path := range files {
		present[path] = true

		if err := ctx.Err(); err != nil {
			r.logger.WithFields("remaining", len(files)-i).Warn("Batch interrupted")
			result.Interrupted = true
			// unvisited files are still on disk
			for _, rest := range files[i:] {
				present[rest] = true
			}
			break
		}

		data, info, err := readFile(path)
		if err != nil {
			r.logger.WithFields("path", path, "error", err).Error("Failed to read image")
			result.AddError(path, err)
			continue
		}
		hash := hashBytes(data)

		fileState := r.stateStore.GetFile(path)
		if fileState == nil {
			fileState = state.NewFileState(path, hash, info.Size(), info.ModTime())
		}
		if !force && !fileState.NeedsScan(hash) {
			result.Skipped++
			continue
		}

		r.logger.WithFields("file", i+1, "total", len(files), "path", path).Info("Scanning image")
		if r.progress != nil {
			r.progress(i, len(files), path)
		}
		fr, err := r.scanFile(ctx, path, data)
		result.Processed++

		fileState.Size, fileState.ModTime = info.Size(), info.ModTime()
		if err != nil {
			r.logger.WithFields("path", path, "error", err).Error("Scan failed")
			result.AddError(path, err)
			// a cancelled batch leaves the file pending rather than spending a retry
			if ctx.Err() == nil {
				fileState.MarkError(hash, err)
			}
		} else {
			result.AddSuccess(fr)
			fileState.MarkScanned(hash, outcome(fr))
		}
		r.stateStore.PutFile(fileState)

		// save after each file so progress survives a crash
		if err := r.stateStore.Save(); err != nil {
			r.logger.WithFields("error", err).Warn("Failed to save state")
		}
	}

	if pruned := r.stateStore.Prune(present); pruned > 0 {
		result.Pruned = pruned
		r.logger.WithFields("count", pruned).Debug("Pruned deleted files from state")
	}
	r.stateStore.UpdateLastRun()
	if err := r.stateStore.Save(); err != nil {
		r.logger.WithFields("error", err).Warn("Failed to save state")
	}

	result.Duration = time.Since(startTime)

	r.logger.WithFields(
		"total", result.TotalFiles,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"successful", result.SuccessCount,
		"empty", result.EmptyCount,
		"failed", result.FailureCount,
		"duration", result.Duration,
	).Info("Batch scan completed")

	return result, nil
}

func (r *Runner) scanFile(ctx context.Context, path string, data []byte) (*FileResult, error) {
	start := time.Now()

	res, err := r.scanner.ScanBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	fr := &FileResult{
		Path:     path,
		Status:   res.Status,
		Duration: time.Since(start),
	}
	if res.Data != nil {
		fr.ScanID = res.Data.ScanID
		fr.Banks = res.Data.Banks
		fr.Accounts = res.Data.Accounts
		fr.Names = res.Data.Names
		fr.Quality = res.Data.Quality
		fr.Warnings = res.Data.Warnings
	}
	return fr, nil
}

func outcome(fr *FileResult) state.Outcome {
	status := state.ScanStatusSuccess
	if fr.Status == scan.StatusEmpty {
		status = state.ScanStatusEmpty
	}
	return state.Outcome{
		Status:   status,
		ScanID:   fr.ScanID,
		Banks:    fr.Banks,
		Accounts: fr.Accounts,
		Quality:  fr.Quality,
		Warnings: fr.Warnings,
	}
}

// listImages returns the image files under dir in lexical order, skipping hidden entries
func listImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsImage(name) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func readFile(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
