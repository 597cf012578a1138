package daemon

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/logger"
)

// dirWatcher reports new or rewritten images under the watch directory once they
// have stopped changing for the settle delay
type dirWatcher struct {
	fs     *fsnotify.Watcher
	logger *logger.Logger
	settle time.Duration
	notify func()
}

func newDirWatcher(dir string, settle time.Duration, log *logger.Logger, notify func()) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dw := &dirWatcher{fs: w, logger: log, settle: settle, notify: notify}
	if err := dw.addTree(dir); err != nil {
		w.Close()
		return nil, err
	}
	return dw, nil
}

// addTree watches dir and its subdirectories, skipping hidden ones
func (w *dirWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *dirWatcher) run(ctx context.Context) {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.WithFields("path", ev.Name, "error", err).Warn("Failed to watch new directory")
					}
					continue
				}
			}
			if batch.IsImage(name) {
				pending[ev.Name] = time.Now()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watch error")

		case now := <-ticker.C:
			settled := 0
			for path, t := range pending {
				if now.Sub(t) >= w.settle {
					delete(pending, path)
					settled++
				}
			}
			if settled > 0 {
				w.logger.WithFields("files", settled).Info("New images in watch directory")
				w.notify()
			}
		}
	}
}

func (w *dirWatcher) close() error {
	return w.fs.Close()
}
