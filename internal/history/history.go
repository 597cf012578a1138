// Package history persists successful scans in postgres so account numbers can be
// looked up across reports.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/scan"
)

// DefaultLimit caps account look-ups
const DefaultLimit = 20

// ScanRecord is one successful scan
type ScanRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt     time.Time `gorm:"index"`
	Preprocessing string
	Quality       float64
	Banks         string
	Names         string
	RawText       string
	Warnings      string

	Sightings []AccountSighting `gorm:"foreignKey:ScanID;constraint:OnDelete:CASCADE"`
}

// AccountSighting is one account number seen in a scan
type AccountSighting struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ScanID     uuid.UUID `gorm:"type:uuid;index" json:"scan_id"`
	Account    string    `gorm:"size:12;index" json:"account"`
	Confidence float64   `json:"confidence"`
	Banks      string    `json:"banks"`
	Names      string    `json:"names"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store reads and writes scan history
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Open connects to postgres and migrates the schema
func Open(dsn string, log *logger.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("history dsn cannot be empty")
	}
	if log == nil {
		log = logger.Get()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}

	if err := db.AutoMigrate(&ScanRecord{}, &AccountSighting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	log.Info("Scan history enabled")
	return NewStore(db, log), nil
}

// NewStore wraps an open database
func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Get()
	}
	return &Store{db: db, logger: log}
}

// Record stores a successful scan and its accounts. Other statuses are ignored.
func (s *Store) Record(ctx context.Context, result *scan.Result) error {
	rec, ok := recordFromResult(result, time.Now())
	if !ok {
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record scan %s: %w", rec.ID, err)
	}

	s.logger.WithFields("scan_id", rec.ID, "accounts", len(rec.Sightings)).Debug("Scan recorded")
	return nil
}

// FindByAccount returns the most recent sightings of an account number, newest first
func (s *Store) FindByAccount(ctx context.Context, account string, limit int) ([]AccountSighting, error) {
	account = NormalizeAccount(account)
	if account == "" {
		return nil, fmt.Errorf("account number must contain digits")
	}

	var out []AccountSighting
	if err := sightingsQuery(s.db.WithContext(ctx), account, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return out, nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sightingsQuery(db *gorm.DB, account string, limit int) *gorm.DB {
	if limit <= 0 || limit > 100 {
		limit = DefaultLimit
	}
	return db.Model(&AccountSighting{}).
		Where("account = ?", account).
		Order("created_at DESC").
		Limit(limit)
}

// NormalizeAccount keeps only the digits of an account number, folding Thai numerals
func NormalizeAccount(account string) string {
	var sb strings.Builder
	for _, r := range account {
		switch {
		case r >= '๐' && r <= '๙':
			sb.WriteRune('0' + (r - '๐'))
		case r <= unicode.MaxASCII && unicode.IsDigit(r):
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func recordFromResult(result *scan.Result, now time.Time) (ScanRecord, bool) {
	if result == nil || result.Status != scan.StatusSuccess || result.Data == nil {
		return ScanRecord{}, false
	}

	d := result.Data
	id, err := uuid.Parse(d.ScanID)
	if err != nil {
		id = uuid.New()
	}

	banks := strings.Join(d.Banks, ",")
	names := strings.Join(d.Names, "|")

	rec := ScanRecord{
		ID:            id,
		CreatedAt:     now,
		Preprocessing: string(d.Preprocessing),
		Quality:       d.Quality,
		Banks:         banks,
		Names:         names,
		RawText:       strings.Join(d.RawText, "\n"),
		Warnings:      strings.Join(d.Warnings, "|"),
	}
	for _, acc := range d.Accounts {
		rec.Sightings = append(rec.Sightings, AccountSighting{
			ScanID:     id,
			Account:    acc,
			Confidence: d.Confidence.Accounts[acc],
			Banks:      banks,
			Names:      names,
			CreatedAt:  now,
		})
	}
	return rec, true
}
