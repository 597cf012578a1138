// Package scan drives the slip pipeline: normalize, pick presets, recognize each variant,
// merge and score it, extract entities, stop early when a variant is good enough and
// return the best one.
package scan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/platinummonkey/slipguard/internal/entity"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/normalize"
	"github.com/platinummonkey/slipguard/internal/ocr"
	"github.com/platinummonkey/slipguard/internal/quality"
	"github.com/platinummonkey/slipguard/internal/slipqr"
	"github.com/platinummonkey/slipguard/internal/textline"
	"github.com/platinummonkey/slipguard/internal/variant"
)

// Recognizer turns one image into recognized items. *ocr.Recognizer satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]ocr.Item, error)
}

// Cache stores encoded results keyed by image hash
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Recorder persists successful scans
type Recorder interface {
	Record(ctx context.Context, result *Result) error
}

// Thresholds are the tunable decision points of the pipeline
type Thresholds struct {
	MergeThreshold     float64
	EarlyExitQuality   float64
	AccountExitQuality float64
	BankExitQuality    float64
	MaxVariants        int

	BlankBrightness float64
	BlankContrast   float64
	BlankSharpness  float64
}

// DefaultThresholds returns the calibrated defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MergeThreshold:     textline.DefaultThreshold,
		EarlyExitQuality:   0.55,
		AccountExitQuality: 0.45,
		BankExitQuality:    0.50,
		MaxVariants:        variant.DefaultMax,
		BlankBrightness:    210,
		BlankContrast:      25,
		BlankSharpness:     160,
	}
}

// isBlank reports a bright, flat, featureless frame
func (t Thresholds) isBlank(s normalize.Stats) bool {
	return s.Brightness > t.BlankBrightness && s.Contrast < t.BlankContrast && s.Sharpness < t.BlankSharpness
}

// goodEnough reports whether a variant ends the search
func (t Thresholds) goodEnough(v *VariantResult) bool {
	switch {
	case v.Quality >= t.EarlyExitQuality:
		return true
	case len(v.Entities.Accounts) > 0 && v.Quality >= t.AccountExitQuality:
		return true
	case len(v.Entities.Banks) > 0 && v.Quality >= t.BankExitQuality:
		return true
	}
	return false
}

// Config holds configuration for the Orchestrator
type Config struct {
	Logger     *logger.Logger
	Recognizer Recognizer

	// Normalizer and Extractor default to their zero-config versions
	Normalizer *normalize.Normalizer
	Extractor  *entity.Extractor

	// Thresholds defaults to DefaultThresholds()
	Thresholds *Thresholds

	// Timeout bounds a whole scan (0 = none)
	Timeout time.Duration

	Cache    Cache
	CacheTTL time.Duration

	Recorder Recorder

	// SkipQR disables slip QR decoding
	SkipQR bool
}

// Orchestrator runs scans. It is safe for concurrent use when its Recognizer is.
type Orchestrator struct {
	logger     *logger.Logger
	recognizer Recognizer
	normalizer *normalize.Normalizer
	extractor  *entity.Extractor
	thresholds Thresholds
	timeout    time.Duration
	cache      Cache
	cacheTTL   time.Duration
	recorder   Recorder
	skipQR     bool
}

// New creates a new scan orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	norm := cfg.Normalizer
	if norm == nil {
		var err error
		norm, err = normalize.New(&normalize.Config{Logger: log})
		if err != nil {
			return nil, fmt.Errorf("failed to create normalizer: %w", err)
		}
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = entity.NewExtractor(nil)
	}

	thresholds := DefaultThresholds()
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}
	if thresholds.MaxVariants < 1 {
		return nil, fmt.Errorf("max variants must be at least 1, got %d", thresholds.MaxVariants)
	}
	if thresholds.MergeThreshold <= 0 {
		return nil, fmt.Errorf("merge threshold must be positive, got %f", thresholds.MergeThreshold)
	}

	return &Orchestrator{
		logger:     log,
		recognizer: cfg.Recognizer,
		normalizer: norm,
		extractor:  extractor,
		thresholds: thresholds,
		timeout:    cfg.Timeout,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		recorder:   cfg.Recorder,
		skipQR:     cfg.SkipQR,
	}, nil
}

// ScanFile scans the image at path
func (o *Orchestrator) ScanFile(ctx context.Context, path string) (*Result, error) {
	if path == "" {
		return nil, inputError(ErrNoImage, "empty path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, inputError(ErrImageNotFound, path)
		}
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}

	return o.ScanBytes(ctx, data)
}

// ScanBytes decodes and scans an encoded image. Results for identical bytes are served
// from the cache when one is configured.
func (o *Orchestrator) ScanBytes(ctx context.Context, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, inputError(ErrNoImage, "")
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	if cached := o.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, inputError(ErrUnreadableImage, err.Error())
	}

	result, err := o.ScanImage(ctx, img)
	if err != nil {
		return nil, err
	}

	if result.Cacheable() {
		o.toCache(ctx, key, result)
	}
	return result, nil
}

// ScanImage runs the pipeline on a decoded image
func (o *Orchestrator) ScanImage(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, inputError(ErrNoImage, "image has no pixels")
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	scanID := uuid.New().String()
	log := o.logger.WithScanID(scanID)
	start := time.Now()

	b := img.Bounds()
	log.WithFields("width", b.Dx(), "height", b.Dy()).Info("Starting scan")

	base, stats := o.normalizer.Normalize(img)
	log.WithFields(
		"brightness", stats.Brightness,
		"contrast", stats.Contrast,
		"sharpness", stats.Sharpness,
		"longest", stats.Longest,
	).Debug("Normalized image")

	if o.thresholds.isBlank(stats) {
		log.Info("Blank frame, skipping recognition")
		return emptyResult(MessageBlank), nil
	}

	qr := o.decodeQR(img, log)
	presets := variant.Select(stats, o.thresholds.MaxVariants)

	var attempted []VariantSummary
	var processed []*VariantResult
	for i, preset := range presets {
		if err := ctx.Err(); err != nil {
			if len(processed) == 0 {
				return nil, fmt.Errorf("scan cancelled: %w", err)
			}
			log.WithFields("remaining", len(presets)-i).Warn("Scan cancelled, selecting from processed variants")
			break
		}

		vlog := log.WithVariant(string(preset))
		vr, err := o.runVariant(ctx, base, preset, stats)
		if err != nil {
			vlog.WithError(err).Warn("Variant failed")
			attempted = append(attempted, VariantSummary{Label: preset, Error: err.Error()})
			continue
		}

		vlog.WithFields(
			"items", vr.ItemCount,
			"lines", len(vr.LineEntries),
			"quality", vr.Quality,
			"duration", vr.Duration,
		).Info("Variant processed")

		attempted = append(attempted, vr.summary())
		processed = append(processed, vr)

		if o.thresholds.goodEnough(vr) {
			log.WithFields("variant", preset, "quality", vr.Quality, "skipped", len(presets)-i-1).
				Info("Early exit")
			break
		}
	}

	// also set when the last variant was cut short by the deadline
	interrupted := ctx.Err() != nil

	best := selectBest(processed)
	if best == nil {
		result := emptyResult(MessageNoText)
		result.EngineFailed = allFailed(attempted)
		result.Partial = interrupted
		log.WithFields("attempted", len(attempted), "engine_failed", result.EngineFailed).
			Info("No readable text in any variant")
		return result, nil
	}

	result := o.buildResult(scanID, best, stats, attempted, time.Since(start))
	result.Partial = interrupted
	applyQR(result.Data, qr)
	log.WithFields(
		"variant", best.Label,
		"quality", best.Quality,
		"banks", len(result.Data.Banks),
		"accounts", len(result.Data.Accounts),
		"names", len(result.Data.Names),
		"duration", result.Data.Duration,
	).Info("Scan completed")

	if o.recorder != nil {
		if err := o.recorder.Record(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to record scan history")
		}
	}

	return result, nil
}

func (o *Orchestrator) decodeQR(img image.Image, log *logger.Logger) *slipqr.Code {
	if o.skipQR {
		return nil
	}
	code, err := slipqr.Decode(img)
	if err != nil {
		if !errors.Is(err, slipqr.ErrNotFound) {
			log.WithError(err).Debug("QR decode failed")
		}
		return nil
	}
	log.WithFields("kind", code.Kind, "bank", code.Bank, "valid_crc", code.ValidCRC).Info("Decoded slip QR")
	return code
}

// applyQR attaches the QR payload. A checksummed verification code names the
// sending bank even when the text did not.
func applyQR(data *Data, code *slipqr.Code) {
	if code == nil {
		return
	}
	data.QR = code
	if !code.ValidCRC || code.Bank == "" {
		return
	}
	for _, b := range data.Banks {
		if b == code.Bank {
			return
		}
	}
	data.Banks = append(data.Banks, code.Bank)
	if data.Confidence.Banks == nil {
		data.Confidence.Banks = make(map[string]float64)
	}
	data.Confidence.Banks[code.Bank] = 1.0
}

// runVariant evaluates one preset without touching orchestrator state
func (o *Orchestrator) runVariant(ctx context.Context, base *image.NRGBA, preset variant.Preset, stats normalize.Stats) (*VariantResult, error) {
	start := time.Now()

	img, err := variant.Render(base, preset, stats)
	if err != nil {
		return nil, fmt.Errorf("preprocess failed: %w", err)
	}

	items, err := o.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	lines := textline.Merge(items, o.thresholds.MergeThreshold)

	return &VariantResult{
		Label:       preset,
		Lines:       textline.Texts(lines),
		LineEntries: lines,
		Quality:     quality.Score(items),
		Entities:    o.extractor.Extract(lines),
		ItemCount:   len(items),
		Duration:    time.Since(start),
	}, nil
}

// allFailed reports whether recognition failed for every attempted variant
func allFailed(attempted []VariantSummary) bool {
	if len(attempted) == 0 {
		return false
	}
	for _, v := range attempted {
		if v.Error == "" {
			return false
		}
	}
	return true
}

// selectBest returns the highest-quality variant with any text; earlier variants win ties.
func selectBest(variants []*VariantResult) *VariantResult {
	var best *VariantResult
	for _, v := range variants {
		if len(v.LineEntries) == 0 {
			continue
		}
		if best == nil || v.Quality > best.Quality {
			best = v
		}
	}
	return best
}

func (o *Orchestrator) buildResult(scanID string, best *VariantResult, stats normalize.Stats, attempted []VariantSummary, elapsed time.Duration) *Result {
	raw := make([]string, 0, len(best.Lines))
	for _, line := range best.Lines {
		if cleaned := textline.DedupeTokens(line, textline.LineDedupeThreshold, textline.DedupeWindow); cleaned != "" {
			raw = append(raw, cleaned)
		}
	}

	warnings := []string{}
	if best.Entities.SlipDetected && len(best.Entities.Accounts) == 0 {
		warnings = append(warnings, WarningNoAccount)
	}
	if best.Entities.WalletDetected {
		warnings = append(warnings, WarningWallet)
	}

	return &Result{
		Status: StatusSuccess,
		Data: &Data{
			ScanID:        scanID,
			Banks:         best.Entities.Banks,
			Names:         best.Entities.Names,
			Accounts:      best.Entities.Accounts,
			RawText:       raw,
			Confidence:    best.Entities.Confidence,
			Warnings:      warnings,
			Preprocessing: best.Label,
			Quality:       best.Quality,
			Stats:         stats,
			Variants:      attempted,
			Duration:      elapsed,
		},
	}
}

func (o *Orchestrator) fromCache(ctx context.Context, key string) *Result {
	if o.cache == nil || o.cacheTTL <= 0 {
		return nil
	}

	data, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.WithError(err).Warn("Cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		o.logger.WithError(err).Warn("Discarding corrupt cache entry")
		return nil
	}
	if result.Data != nil {
		result.Data.Cached = true
	}

	o.logger.WithFields("key", key[:12]).Debug("Serving scan from cache")
	return &result
}

func (o *Orchestrator) toCache(ctx context.Context, key string, result *Result) {
	if o.cache == nil || o.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to encode scan for cache")
		return
	}
	if err := o.cache.Set(ctx, key, data, o.cacheTTL); err != nil {
		o.logger.WithError(err).Warn("Cache store failed")
	}
}
