package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/slipguard/internal/entity"
	"github.com/platinummonkey/slipguard/internal/normalize"
	"github.com/platinummonkey/slipguard/internal/slipqr"
	"github.com/platinummonkey/slipguard/internal/textline"
	"github.com/platinummonkey/slipguard/internal/variant"
)

// Status is the terminal state of a scan
type Status string

const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

const (
	WarningNoAccount = "slip detected but no account number found"
	WarningWallet    = "high-risk wallet service detected"

	MessageBlank  = "image appears to be blank"
	MessageNoText = "no readable text"
)

// Result is what a scan returns to callers
type Result struct {
	Status  Status `json:"status"`
	Data    *Data  `json:"data,omitempty"`
	Message string `json:"message,omitempty"`

	// EngineFailed marks an empty result where recognition failed for every variant
	EngineFailed bool `json:"engine_failed,omitempty"`

	// Partial marks a result selected before all planned variants ran, because the
	// scan was cancelled or timed out
	Partial bool `json:"partial,omitempty"`
}

// Cacheable reports whether the result reflects a complete reading of the image
func (r *Result) Cacheable() bool {
	return !r.EngineFailed && !r.Partial
}

// Data is the payload of a successful scan
type Data struct {
	ScanID     string            `json:"scan_id"`
	Banks      []string          `json:"banks"`
	Names      []string          `json:"names"`
	Accounts   []string          `json:"accounts"`
	RawText    []string          `json:"raw_text"`
	Confidence entity.Confidence `json:"confidence"`
	Warnings   []string          `json:"warnings"`

	// QR is the decoded slip QR code, if the image carries one
	QR *slipqr.Code `json:"qr,omitempty"`

	// Preprocessing is the preset whose output was selected
	Preprocessing variant.Preset `json:"preprocessing"`
	Quality       float64        `json:"quality"`

	Stats    normalize.Stats  `json:"stats"`
	Variants []VariantSummary `json:"variants"`
	Duration time.Duration    `json:"duration_ns"`
	Cached   bool             `json:"cached,omitempty"`
}

// VariantSummary records one attempted variant in the result
type VariantSummary struct {
	Label   variant.Preset `json:"label"`
	Quality float64        `json:"quality"`
	Items   int            `json:"items"`
	Lines   int            `json:"lines"`
	Error   string         `json:"error,omitempty"`
}

// VariantResult is the full outcome of one preset. Only the selected one reaches the caller.
type VariantResult struct {
	Label       variant.Preset
	Lines       []string
	LineEntries []textline.Line
	Quality     float64
	Entities    entity.Entities
	ItemCount   int
	Duration    time.Duration
}

func (v *VariantResult) summary() VariantSummary {
	return VariantSummary{
		Label:   v.Label,
		Quality: v.Quality,
		Items:   v.ItemCount,
		Lines:   len(v.LineEntries),
	}
}

// NewErrorResult builds the error-status result for err
func NewErrorResult(err error) *Result {
	return &Result{Status: StatusError, Message: err.Error()}
}

func emptyResult(message string) *Result {
	return &Result{Status: StatusEmpty, Message: message}
}

// Summary returns a human-readable summary of the result
func (r *Result) Summary() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Status: %s\n", r.Status))
	if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Message: %s\n", r.Message))
	}
	if r.Data == nil {
		return sb.String()
	}

	d := r.Data
	sb.WriteString(fmt.Sprintf("Variant: %s (quality %.4f)\n", d.Preprocessing, d.Quality))
	for _, code := range d.Banks {
		sb.WriteString(fmt.Sprintf("Bank: %s (%.2f)\n", code, d.Confidence.Banks[code]))
	}
	for _, acc := range d.Accounts {
		sb.WriteString(fmt.Sprintf("Account: %s (%.2f)\n", acc, d.Confidence.Accounts[acc]))
	}
	for _, name := range d.Names {
		sb.WriteString(fmt.Sprintf("Name: %s (%.2f)\n", name, d.Confidence.Names[name]))
	}
	if qr := d.QR; qr != nil {
		switch qr.Kind {
		case slipqr.KindVerification:
			sb.WriteString(fmt.Sprintf("QR: verification bank=%s ref=%s crc=%t\n", qr.BankID, qr.TransRef, qr.ValidCRC))
		case slipqr.KindPromptPay:
			sb.WriteString(fmt.Sprintf("QR: promptpay id=%s amount=%s crc=%t\n", qr.PromptPayID, qr.Amount, qr.ValidCRC))
		default:
			sb.WriteString(fmt.Sprintf("QR: %s\n", qr.Raw))
		}
	}
	for _, w := range d.Warnings {
		sb.WriteString(fmt.Sprintf("Warning: %s\n", w))
	}
	if len(d.RawText) > 0 {
		sb.WriteString("Text:\n")
		for _, line := range d.RawText {
			sb.WriteString(fmt.Sprintf("  %s\n", line))
		}
	}

	return sb.String()
}

// String returns a string representation of the result
func (r *Result) String() string {
	return r.Summary()
}
