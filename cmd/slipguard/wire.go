package main

import (
	"context"
	"fmt"

	"github.com/platinummonkey/slipguard/internal/cache"
	"github.com/platinummonkey/slipguard/internal/config"
	"github.com/platinummonkey/slipguard/internal/entity"
	"github.com/platinummonkey/slipguard/internal/history"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/normalize"
	"github.com/platinummonkey/slipguard/internal/ocr"
	"github.com/platinummonkey/slipguard/internal/risk"
	"github.com/platinummonkey/slipguard/internal/scan"
	"github.com/platinummonkey/slipguard/internal/server"
)

// pipeline holds the components a scanning command needs
type pipeline struct {
	recognizer   *ocr.Recognizer
	orchestrator *scan.Orchestrator
	cache        cache.Store
	history      *history.Store
}

// buildPipeline creates the recognition engine and everything the orchestrator depends on
func buildPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline, error) {
	engine, err := ocr.NewEngine(ctx, &ocr.EngineConfig{
		Provider:    ocr.ProviderType(cfg.Engine.Provider),
		Model:       cfg.Engine.Model,
		Endpoint:    cfg.Engine.Endpoint,
		Languages:   cfg.Engine.Languages,
		APIKey:      cfg.Engine.APIKey,
		MaxRetries:  cfg.Engine.MaxRetries,
		Temperature: cfg.Engine.Temperature,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", cfg.Engine.Provider, err)
	}

	recognizer, err := ocr.NewRecognizer(&ocr.RecognizerConfig{
		Engine:  engine,
		Logger:  log,
		Timeout: cfg.Engine.Timeout,
	})
	if err != nil {
		return nil, err
	}
	p := &pipeline{recognizer: recognizer}

	normalizer, err := normalize.New(&normalize.Config{
		Logger:  log,
		MaxSide: cfg.Pipeline.MaxSide,
		MinSide: cfg.Pipeline.MinSide,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	var table *entity.Table
	if cfg.KeywordsFile != "" {
		table, err = entity.LoadTable(cfg.KeywordsFile)
		if err != nil {
			p.Close()
			return nil, err
		}
		log.WithFields("file", cfg.KeywordsFile, "banks", len(table.Banks)).Info("Loaded keyword tables")
	}

	scanCfg := &scan.Config{
		Logger:     log,
		Recognizer: recognizer,
		Normalizer: normalizer,
		Extractor:  entity.NewExtractor(table),
		Thresholds: &scan.Thresholds{
			MergeThreshold:     cfg.Pipeline.MergeThreshold,
			EarlyExitQuality:   cfg.Pipeline.EarlyExitQuality,
			AccountExitQuality: cfg.Pipeline.AccountExitQuality,
			BankExitQuality:    cfg.Pipeline.BankExitQuality,
			MaxVariants:        cfg.Pipeline.MaxVariants,
			BlankBrightness:    cfg.Pipeline.BlankBrightness,
			BlankContrast:      cfg.Pipeline.BlankContrast,
			BlankSharpness:     cfg.Pipeline.BlankSharpness,
		},
		Timeout: cfg.Pipeline.ScanTimeout,
		SkipQR:  !cfg.Pipeline.DecodeQR,
	}

	if cfg.Cache.TTL > 0 {
		store, err := cache.New(ctx, cfg.Cache.RedisURL, log)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open scan cache: %w", err)
		}
		p.cache = store
		scanCfg.Cache = store
		scanCfg.CacheTTL = cfg.Cache.TTL
	}

	if cfg.History.DSN != "" {
		store, err := history.Open(cfg.History.DSN, log)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open scan history: %w", err)
		}
		p.history = store
		scanCfg.Recorder = store
	}

	p.orchestrator, err = scan.New(scanCfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// readinessChecks checks the engine and whichever backing stores are enabled
func (p *pipeline) readinessChecks() []server.Check {
	checks := []server.Check{{Name: "engine", Fn: p.recognizer.HealthCheck}}
	if rs, ok := p.cache.(*cache.RedisStore); ok {
		checks = append(checks, server.Check{Name: "cache", Fn: rs.Ping})
	}
	if p.history != nil {
		checks = append(checks, server.Check{Name: "history", Fn: p.history.Ping})
	}
	return checks
}

// Close releases the engine and any open stores
func (p *pipeline) Close() {
	log := logger.Get()
	if err := p.recognizer.Close(); err != nil {
		log.WithError(err).Warn("Failed to close recognition engine")
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			log.WithError(err).Warn("Failed to close scan cache")
		}
	}
	if p.history != nil {
		if err := p.history.Close(); err != nil {
			log.WithError(err).Warn("Failed to close scan history")
		}
	}
}

// newAnalyzer builds the text risk analyzer, honouring a category override file
func newAnalyzer(cfg *config.Config, log *logger.Logger) (*risk.Analyzer, error) {
	if cfg.RiskFile == "" {
		return risk.NewAnalyzer(nil), nil
	}
	categories, err := risk.LoadCategories(cfg.RiskFile)
	if err != nil {
		return nil, err
	}
	log.WithFields("file", cfg.RiskFile, "categories", len(categories)).Info("Loaded risk categories")
	return risk.NewAnalyzer(categories), nil
}
