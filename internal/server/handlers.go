package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platinummonkey/slipguard/internal/history"
	"github.com/platinummonkey/slipguard/internal/queue"
	"github.com/platinummonkey/slipguard/internal/scan"
	"github.com/platinummonkey/slipguard/internal/state"
)

// ScanRequest carries a base64 image, optionally as a data URL
type ScanRequest struct {
	Image string `json:"image"`
}

// TextRequest carries text for risk analysis
type TextRequest struct {
	Text string `json:"text"`
}

// HistoryResponse lists earlier sightings of an account
type HistoryResponse struct {
	Account   string                    `json:"account"`
	Sightings []history.AccountSighting `json:"sightings"`
	Files     []*state.FileState        `json:"files"`
}

func (s *Server) handleScan(c *gin.Context) {
	data, err := readImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.scanner.ScanBytes(c.Request.Context(), data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readImage accepts a JSON body with a base64 image or a multipart "image" file
func readImage(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				return nil, err
			}
			return nil, &scan.InputError{Err: scan.ErrNoImage}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return io.ReadAll(f)
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isTooLarge(err) {
			return nil, err
		}
		return nil, &scan.InputError{Err: scan.ErrNoImage, Detail: "request body must be JSON with an image field"}
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, &scan.InputError{Err: scan.ErrNoImage}
	}
	return decodeBase64Image(req.Image)
}

// decodeBase64Image strips a data URL header ("data:image/png;base64,") and decodes the payload
func decodeBase64Image(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, &scan.InputError{Err: scan.ErrUnreadableImage, Detail: "invalid base64"}
	}
	return data, nil
}

// handleEnqueueScan accepts the same body as /scan and answers 202 with the job.
// The optional source query parameter is echoed back in the job.
func (s *Server) handleEnqueueScan(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "job queue is disabled"})
		return
	}

	data, err := readImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	job, err := s.jobs.Enqueue(c.Request.Context(), data, c.Query("source"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", "/scan/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "job queue is disabled"})
		return
	}

	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "job not found"})
			return
		}
		s.logger.WithFields("job_id", c.Param("id"), "error", err).Error("Job lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "job lookup failed"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.analyzer.Analyze(req.Text))
}

func (s *Server) handleAnalyzeChat(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.analyzer.AnalyzeChat(req.Text))
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil && s.state == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "history is disabled"})
		return
	}

	account := history.NormalizeAccount(c.Query("account"))
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "account is required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	resp := HistoryResponse{
		Account:   account,
		Sightings: []history.AccountSighting{},
		Files:     []*state.FileState{},
	}
	if s.history != nil {
		sightings, err := s.history.FindByAccount(c.Request.Context(), account, limit)
		if err != nil {
			s.logger.WithFields("account", account, "error", err).Error("History lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "history lookup failed"})
			return
		}
		resp.Sightings = append(resp.Sightings, sightings...)
	}
	if s.state != nil {
		resp.Files = append(resp.Files, s.state.FilesWithAccount(account)...)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, check := range s.checks {
		if err := check.Fn(ctx); err != nil {
			s.logger.WithFields("check", check.Name, "error", err).Warn("Readiness check failed")
			failed[check.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// fail maps scan errors to HTTP status codes with an error result body
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case isTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, scan.NewErrorResult(errors.New("image too large")))
	case scan.IsInputError(err):
		c.JSON(http.StatusBadRequest, scan.NewErrorResult(err))
	default:
		s.logger.WithError(err).Error("Scan failed")
		c.JSON(http.StatusInternalServerError, scan.NewErrorResult(err))
	}
}

func (s *Server) badRequest(c *gin.Context, err error) {
	if isTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "message": "request too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "request body must be JSON with a text field"})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
