package textline

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

const (
	// LineDedupeThreshold is the similarity at which a repeated token in a line is dropped
	LineDedupeThreshold = 0.9

	// NameDedupeThreshold is looser; names repeat with small misreads
	NameDedupeThreshold = 0.85

	// DedupeWindow is how many previous kept tokens a token is compared against
	DedupeWindow = 2
)

var similarity = metrics.NewLevenshtein()

// DedupeTokens drops tokens that are near-duplicates of one of the previous window kept tokens.
// Overlapping detections of the same word often come back as "สมชาย สมชาย".
func DedupeTokens(line string, threshold float64, window int) string {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return line
	}

	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		lowered := strings.ToLower(token)
		duplicate := false
		for _, prev := range kept[max(0, len(kept)-window):] {
			if strutil.Similarity(lowered, strings.ToLower(prev), similarity) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}
