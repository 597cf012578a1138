package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

func runTestWatcher(t *testing.T, dir string) *int32 {
	t.Helper()
	var calls int32
	w, err := newDirWatcher(dir, 50*time.Millisecond, logger.Nop(), func() { atomic.AddInt32(&calls, 1) })
	if err != nil {
		t.Fatalf("newDirWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.close()
	})
	return &calls
}

func TestDirWatcher_NotifiesOnImage(t *testing.T) {
	dir := t.TempDir()
	calls := runTestWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "slip.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "notification", func() bool { return atomic.LoadInt32(calls) >= 1 })
}

func TestDirWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	calls := runTestWatcher(t, dir)

	for _, name := range []string{"notes.txt", ".hidden.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(300 * time.Millisecond)

	if got := atomic.LoadInt32(calls); got != 0 {
		t.Errorf("notifications = %d, want 0", got)
	}
}

func TestDirWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	calls := runTestWatcher(t, dir)

	sub := filepath.Join(dir, "2024-06")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// give the watcher time to add the new directory
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "slip.jpg"), []byte("jpg"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "notification from subdirectory", func() bool { return atomic.LoadInt32(calls) >= 1 })
}

func TestRun_NotifyQueuesBatch(t *testing.T) {
	dir := t.TempDir()
	runner := &mockBatch{}
	d := newDaemon(t, &Config{
		Batch:       runner,
		WatchDir:    dir,
		Interval:    time.Hour,
		Notify:      true,
		NotifyDelay: 50 * time.Millisecond,
	})
	stop := startDaemon(t, d)
	defer func() { _ = stop() }()

	waitFor(t, "initial batch", func() bool { return runner.count() == 1 })

	if err := os.WriteFile(filepath.Join(dir, "new.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "batch for new image", func() bool { return runner.count() >= 2 })
}
