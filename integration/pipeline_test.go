package integration

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/cache"
	"github.com/platinummonkey/slipguard/internal/entity"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/normalize"
	"github.com/platinummonkey/slipguard/internal/ocr"
	"github.com/platinummonkey/slipguard/internal/scan"
	"github.com/platinummonkey/slipguard/internal/state"
)

// paddleServer answers /ocr with a fixed transfer slip reading
func paddleServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	pruned := map[string]interface{}{
		"rec_texts":  []string{"ธนาคารกสิกรไทย", "นาย สมชาย ใจดี", "เลขบัญชี 123-4-56789-0", "โอนเงินสำเร็จ"},
		"rec_scores": []float64{0.97, 0.95, 0.96, 0.93},
		"rec_polys": [][][]float64{
			{{40, 40}, {400, 40}, {400, 80}, {40, 80}},
			{{40, 120}, {400, 120}, {400, 160}, {40, 160}},
			{{40, 200}, {500, 200}, {500, 240}, {40, 240}},
			{{40, 280}, {300, 280}, {300, 320}, {40, 320}},
		},
	}
	raw, err := json.Marshal(pruned)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ocr":
			atomic.AddInt32(calls, 1)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"logId":     "test",
				"errorCode": 0,
				"errorMsg":  "Success",
				"result": map[string]interface{}{
					"ocrResults": []map[string]json.RawMessage{{"prunedResult": raw}},
				},
			})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slipImage is a dim striped picture that passes the blank check
func slipImage() *image.NRGBA {
	img := imaging.New(1000, 700, color.NRGBA{60, 60, 60, 255})
	for y := 0; y < 700; y++ {
		for x := 0; x < 1000; x++ {
			if (x/10)%2 == 1 {
				img.SetNRGBA(x, y, color.NRGBA{140, 140, 140, 255})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newPipeline(t *testing.T, endpoint string, store cache.Store) *scan.Orchestrator {
	t.Helper()
	log := logger.Nop()

	engine, err := ocr.NewEngine(context.Background(), &ocr.EngineConfig{
		Provider:   ocr.ProviderPaddle,
		Endpoint:   endpoint,
		MaxRetries: 1,
	}, log)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	recognizer, err := ocr.NewRecognizer(&ocr.RecognizerConfig{Engine: engine, Logger: log})
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	normalizer, err := normalize.New(&normalize.Config{Logger: log, DisableDeskew: true, DisableCrop: true})
	if err != nil {
		t.Fatalf("normalize.New() error = %v", err)
	}

	cfg := &scan.Config{
		Logger:     log,
		Recognizer: recognizer,
		Normalizer: normalizer,
		Extractor:  entity.NewExtractor(nil),
	}
	if store != nil {
		cfg.Cache = store
		cfg.CacheTTL = time.Hour
	}
	o, err := scan.New(cfg)
	if err != nil {
		t.Fatalf("scan.New() error = %v", err)
	}
	return o
}

func TestPipelineScanFile(t *testing.T) {
	var calls int32
	srv := paddleServer(t, &calls)
	o := newPipeline(t, srv.URL, nil)

	path := filepath.Join(t.TempDir(), "slip.png")
	writePNG(t, path, slipImage())

	result, err := o.ScanFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}
	if result.Status != scan.StatusSuccess {
		t.Fatalf("Status = %v (%s), want %v", result.Status, result.Message, scan.StatusSuccess)
	}

	d := result.Data
	if len(d.Banks) == 0 || d.Banks[0] != "KBNK" {
		t.Errorf("Banks = %v, want [KBNK]", d.Banks)
	}
	if len(d.Accounts) != 1 || d.Accounts[0] != "1234567890" {
		t.Errorf("Accounts = %v, want [1234567890]", d.Accounts)
	}
	if len(d.Names) == 0 {
		t.Errorf("Names = %v, want the account holder", d.Names)
	}
	if d.ScanID == "" {
		t.Error("ScanID should be set")
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Error("paddle server was never called")
	}
}

func TestPipelineCachedRescan(t *testing.T) {
	var calls int32
	srv := paddleServer(t, &calls)
	o := newPipeline(t, srv.URL, cache.NewMemoryStore())

	path := filepath.Join(t.TempDir(), "slip.png")
	writePNG(t, path, slipImage())

	if _, err := o.ScanFile(context.Background(), path); err != nil {
		t.Fatalf("first ScanFile() error = %v", err)
	}
	first := atomic.LoadInt32(&calls)

	result, err := o.ScanFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second ScanFile() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != first {
		t.Errorf("recognition calls = %d after rescan, want %d", got, first)
	}
	if result.Data == nil || !result.Data.Cached {
		t.Error("rescan should be served from the cache")
	}
}

func TestPipelineBatchWorkflow(t *testing.T) {
	var calls int32
	srv := paddleServer(t, &calls)
	o := newPipeline(t, srv.URL, nil)

	dir := t.TempDir()
	slips := filepath.Join(dir, "slips")
	if err := os.MkdirAll(slips, 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(slips, "a.png"), slipImage())
	writePNG(t, filepath.Join(slips, "blank.png"), imaging.New(1000, 700, color.White))
	if err := os.WriteFile(filepath.Join(slips, "broken.jpg"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	statePath := filepath.Join(dir, "state.json")
	stateStore, err := state.LoadOrCreate(statePath)
	if err != nil {
		t.Fatal(err)
	}
	runner, err := batch.New(&batch.Config{Logger: logger.Nop(), Scanner: o, StateStore: stateStore})
	if err != nil {
		t.Fatal(err)
	}

	result, err := runner.Run(context.Background(), slips, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SuccessCount != 1 || result.EmptyCount != 1 || result.FailureCount != 1 {
		t.Errorf("success/empty/failed = %d/%d/%d, want 1/1/1",
			result.SuccessCount, result.EmptyCount, result.FailureCount)
	}

	// a fresh manager sees what the first run persisted
	reloaded, err := state.LoadOrCreate(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.FilesWithAccount("1234567890"); len(got) != 1 {
		t.Errorf("FilesWithAccount() = %d files, want 1", len(got))
	}

	before := atomic.LoadInt32(&calls)
	runner, err = batch.New(&batch.Config{Logger: logger.Nop(), Scanner: o, StateStore: reloaded})
	if err != nil {
		t.Fatal(err)
	}
	again, err := runner.Run(context.Background(), slips, false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Error("unchanged slip should not be recognized again")
	}
	if again.Skipped < 2 {
		t.Errorf("Skipped = %d, want at least 2", again.Skipped)
	}
}
