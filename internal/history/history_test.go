package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platinummonkey/slipguard/internal/entity"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
)

// dryRunDB builds statements without a server
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	return db
}

func successResult() *scan.Result {
	return &scan.Result{
		Status: scan.StatusSuccess,
		Data: &scan.Data{
			ScanID:   uuid.NewString(),
			Banks:    []string{"KBNK"},
			Names:    []string{"สมชาย ใจดี"},
			Accounts: []string{"1234567890", "0987654321"},
			RawText:  []string{"กสิกรไทย", "1234567890"},
			Confidence: entity.Confidence{
				Accounts: map[string]float64{"1234567890": 0.9, "0987654321": 0.4},
			},
			Preprocessing: "balanced",
			Quality:       0.8,
		},
	}
}

func TestRecordFromResult(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	res := successResult()

	rec, ok := recordFromResult(res, now)
	if !ok {
		t.Fatal("recordFromResult() ok = false")
	}
	if rec.ID.String() != res.Data.ScanID {
		t.Errorf("ID = %v, want %v", rec.ID, res.Data.ScanID)
	}
	if rec.Banks != "KBNK" || rec.RawText != "กสิกรไทย\n1234567890" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Sightings) != 2 {
		t.Fatalf("Sightings = %d, want 2", len(rec.Sightings))
	}
	if s := rec.Sightings[1]; s.Account != "0987654321" || s.Confidence != 0.4 || s.ScanID != rec.ID {
		t.Errorf("Sightings[1] = %+v", s)
	}
}

func TestRecordFromResult_Skips(t *testing.T) {
	tests := []struct {
		name   string
		result *scan.Result
	}{
		{"nil", nil},
		{"empty", &scan.Result{Status: scan.StatusEmpty, Message: scan.MessageNoText}},
		{"error", &scan.Result{Status: scan.StatusError, Message: "bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := recordFromResult(tt.result, time.Now()); ok {
				t.Error("recordFromResult() ok = true, want false")
			}
		})
	}
}

func TestRecordFromResult_BadScanID(t *testing.T) {
	res := successResult()
	res.Data.ScanID = "not-a-uuid"
	rec, ok := recordFromResult(res, time.Now())
	if !ok || rec.ID == uuid.Nil {
		t.Errorf("recordFromResult() = %v, %v, want a fresh id", rec.ID, ok)
	}
}

func TestNormalizeAccount(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"123-4-56789-0", "1234567890"},
		{"๑๒๓ ๔๕๖", "123456"},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAccount(tt.in); got != tt.want {
			t.Errorf("NormalizeAccount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSightingsQuery(t *testing.T) {
	db := dryRunDB(t)

	tests := []struct {
		limit int
		want  string
	}{
		{5, "LIMIT 5"},
		{0, "LIMIT 20"},
		{1000, "LIMIT 20"},
	}
	for _, tt := range tests {
		sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			var out []AccountSighting
			return sightingsQuery(tx, "1234567890", tt.limit).Find(&out)
		})
		for _, want := range []string{`"account_sightings"`, "account = '1234567890'", "ORDER BY created_at DESC", tt.want} {
			if !strings.Contains(sql, want) {
				t.Errorf("query = %s, want containing %q", sql, want)
			}
		}
	}
}

func TestStore_DryRun(t *testing.T) {
	store := NewStore(dryRunDB(t), logger.Nop())

	if err := store.Record(context.Background(), successResult()); err != nil {
		t.Errorf("Record() error = %v", err)
	}
	if err := store.Record(context.Background(), &scan.Result{Status: scan.StatusEmpty}); err != nil {
		t.Errorf("Record(empty) error = %v", err)
	}
	if _, err := store.FindByAccount(context.Background(), "--", 10); err == nil {
		t.Error("FindByAccount() expected error for an account without digits")
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open("", logger.Nop()); err == nil {
		t.Error("Open(\"\") expected error")
	}
	if _, err := Open("host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1", logger.Nop()); err == nil {
		t.Error("Open() expected error for an unreachable server")
	}
}
