package daemon

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// ControlResponse is the standard response for control API calls
type ControlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// batchControl manages manual batch triggering and cancellation
type batchControl struct {
	mu      sync.Mutex
	trigger chan struct{}
	cancel  context.CancelFunc
}

func newBatchControl() *batchControl {
	return &batchControl{
		trigger: make(chan struct{}, 1),
	}
}

// requestBatch queues a manual batch. It returns false when one is already queued.
func (bc *batchControl) requestBatch() bool {
	select {
	case bc.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (bc *batchControl) setCancel(cancel context.CancelFunc) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.cancel = cancel
}

// cancelRunning cancels the batch in progress, if any
func (bc *batchControl) cancelRunning() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.cancel == nil {
		return false
	}
	bc.cancel()
	bc.cancel = nil
	return true
}

// handleTriggerBatch handles POST /batch/trigger
func (d *Daemon) handleTriggerBatch(c *gin.Context) {
	if !d.batchEnabled() {
		c.JSON(http.StatusConflict, ControlResponse{
			Success: false,
			Message: "No watch directory configured",
		})
		return
	}

	if d.statusTracker.GetStatus().State == StateScanning {
		c.JSON(http.StatusConflict, ControlResponse{
			Success: false,
			Message: "Batch already in progress",
		})
		return
	}

	if !d.control.requestBatch() {
		c.JSON(http.StatusConflict, ControlResponse{
			Success: false,
			Message: "Batch already queued",
		})
		return
	}

	c.JSON(http.StatusAccepted, ControlResponse{
		Success: true,
		Message: "Batch queued",
	})
}

// handleCancelBatch handles POST /batch/cancel
func (d *Daemon) handleCancelBatch(c *gin.Context) {
	if !d.control.cancelRunning() {
		c.JSON(http.StatusConflict, ControlResponse{
			Success: false,
			Message: "No batch in progress to cancel",
		})
		return
	}

	c.JSON(http.StatusAccepted, ControlResponse{
		Success: true,
		Message: "Batch cancellation requested",
	})
}
