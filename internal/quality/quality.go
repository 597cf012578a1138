// Package quality scores how trustworthy one variant's recognition output is.
package quality

import (
	"math"
	"unicode/utf8"

	"github.com/platinummonkey/slipguard/internal/ocr"
)

const (
	// MinCandidateScore filters out detections too weak to count
	MinCandidateScore = 0.2

	// LowConfidence marks a candidate as uncertain
	LowConfidence = 0.45

	// LowConfidencePenalty is subtracted per unit fraction of uncertain candidates
	LowConfidencePenalty = 0.12
)

// Score returns the length-weighted mean confidence of the items, minus a penalty for the
// share of low-confidence items, clamped at zero and rounded to 4 decimals.
// Items scoring below MinCandidateScore are ignored unless nothing else is left.
func Score(items []ocr.Item) float64 {
	if len(items) == 0 {
		return 0
	}

	candidates := make([]ocr.Item, 0, len(items))
	for _, it := range items {
		if it.Score >= MinCandidateScore {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		candidates = items
	}

	var weighted, totalLen float64
	low := 0
	for _, it := range candidates {
		length := float64(max(utf8.RuneCountInString(it.Text), 1))
		weighted += it.Score * length
		totalLen += length
		if it.Score < LowConfidence {
			low++
		}
	}

	mean := weighted / totalLen
	penalty := LowConfidencePenalty * float64(low) / float64(len(candidates))

	return round4(math.Max(0, mean-penalty))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
