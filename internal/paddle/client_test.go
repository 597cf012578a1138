package paddle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

const prunedFixture = `{"rec_texts":["กสิกรไทย","123-4-56789-0"],"rec_scores":[0.98,0.91],"rec_polys":[[[10,10],[90,10],[90,30],[10,30]],[[10,50],[120,50],[120,70],[10,70]]]}`

func newTestClient(url string) *Client {
	return NewClient(
		WithEndpoint(url),
		WithLogger(logger.Nop()),
		WithRetryDelay(time.Millisecond),
	)
}

func TestClient_OCR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Errorf("path = %s, want /ocr", r.URL.Path)
		}
		var req OCRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.File != "aW1hZ2U=" {
			t.Errorf("file = %q", req.File)
		}
		if req.FileType != FileTypeImage {
			t.Errorf("fileType = %d, want %d", req.FileType, FileTypeImage)
		}
		if req.Visualize == nil || *req.Visualize {
			t.Error("visualize should be sent as false")
		}

		w.Write([]byte(`{"logId":"x","errorCode":0,"errorMsg":"Success","result":{"ocrResults":[{"prunedResult":` + prunedFixture + `}]}}`))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).OCR(context.Background(), "aW1hZ2U=")
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}

	var pruned map[string]interface{}
	if err := json.Unmarshal(raw, &pruned); err != nil {
		t.Fatalf("pruned result is not JSON: %v", err)
	}
	if texts, _ := pruned["rec_texts"].([]interface{}); len(texts) != 2 {
		t.Errorf("rec_texts = %v, want 2 entries", pruned["rec_texts"])
	}
}

func TestClient_OCR_NoPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logId":"x","errorCode":0,"errorMsg":"Success","result":{"ocrResults":[]}}`))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).OCR(context.Background(), "eA==")
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if raw != nil {
		t.Errorf("OCR() = %s, want nil", raw)
	}
}

func TestClient_OCR_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
		wantErr   string
	}{
		{
			name:      "envelope error code",
			status:    http.StatusOK,
			body:      `{"errorCode":1001,"errorMsg":"bad image"}`,
			wantCalls: 1,
			wantErr:   "bad image",
		},
		{
			name:      "client error not retried",
			status:    http.StatusUnprocessableEntity,
			body:      `{"errorCode":422,"errorMsg":"file is required"}`,
			wantCalls: 1,
			wantErr:   "file is required",
		},
		{
			name:      "server error retried",
			status:    http.StatusInternalServerError,
			body:      `{"errorCode":500,"errorMsg":"predictor crashed"}`,
			wantCalls: DefaultMaxRetries + 1,
			wantErr:   "predictor crashed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).OCR(context.Background(), "eA==")
			if err == nil {
				t.Fatal("OCR() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("OCR() error = %v, want it to contain %q", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	// any non-5xx answer means the process is up
	if err := newTestClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := newTestClient("http://127.0.0.1:1").HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() expected error for unreachable endpoint")
	}
}
