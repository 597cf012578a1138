// Package server exposes slip scanning and text risk analysis over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/platinummonkey/slipguard/internal/history"
	"github.com/platinummonkey/slipguard/internal/logger"
	"github.com/platinummonkey/slipguard/internal/queue"
	"github.com/platinummonkey/slipguard/internal/risk"
	"github.com/platinummonkey/slipguard/internal/scan"
	"github.com/platinummonkey/slipguard/internal/state"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes = 20 << 20

// Scanner scans encoded image bytes
type Scanner interface {
	ScanBytes(ctx context.Context, data []byte) (*scan.Result, error)
}

// HistoryStore looks up earlier sightings of an account number
type HistoryStore interface {
	FindByAccount(ctx context.Context, account string, limit int) ([]history.AccountSighting, error)
}

// JobQueue runs scans in the background. *queue.Client satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, image []byte, source string) (*queue.Job, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
}

// Check is a named readiness check
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server wires the HTTP routes to the scanning pipeline
type Server struct {
	logger   *logger.Logger
	scanner  Scanner
	analyzer *risk.Analyzer
	history  HistoryStore
	jobs     JobQueue
	state    *state.Manager
	checks   []Check
	maxBody  int64
	started  time.Time
	engine   *gin.Engine
}

// Config holds configuration for the HTTP server
type Config struct {
	Logger   *logger.Logger
	Scanner  Scanner
	Analyzer *risk.Analyzer // nil uses the default categories
	History  HistoryStore   // optional
	Jobs     JobQueue       // optional, enables /scan/jobs
	State    *state.Manager // optional, answers /history from batch scans
	Checks   []Check        // readiness checks for /ready

	// CORSOrigins lists allowed origins; empty allows all
	CORSOrigins  []string
	MaxBodyBytes int64
}

// New creates a server and registers its routes
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = risk.NewAnalyzer(nil)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		logger:   log.WithFields("component", "server"),
		scanner:  cfg.Scanner,
		analyzer: analyzer,
		history:  cfg.History,
		jobs:     cfg.Jobs,
		state:    cfg.State,
		checks:   cfg.Checks,
		maxBody:  maxBody,
		started:  time.Now(),
	}
	s.engine = s.routes(cfg.CORSOrigins)
	return s, nil
}

// Router returns the gin engine so callers can mount extra routes
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) routes(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsCfg))

	r.Use(s.limitBody())

	r.POST("/scan", s.handleScan)
	r.POST("/scan/jobs", s.handleEnqueueScan)
	r.GET("/scan/jobs/:id", s.handleGetJob)
	r.POST("/analyze", s.handleAnalyze)
	r.POST("/analyze/chat", s.handleAnalyzeChat)
	r.GET("/history", s.handleHistory)
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		).Debug("HTTP request")
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
		}
		c.Next()
	}
}
