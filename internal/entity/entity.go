// Package entity pulls bank codes, account numbers and account-holder names out of
// merged recognition lines.
package entity

import (
	"regexp"
	"strings"

	"github.com/platinummonkey/slipguard/internal/textline"
)

// Entities is what the extractor found in one set of lines
type Entities struct {
	Banks      []string   `json:"banks"`
	Accounts   []string   `json:"accounts"`
	Names      []string   `json:"names"`
	Confidence Confidence `json:"confidence"`

	// SlipDetected is set when the lines read like a transfer slip
	SlipDetected bool `json:"slip_detected"`

	// WalletDetected is set when a matched institution is an e-wallet
	WalletDetected bool `json:"wallet_detected"`
}

// Confidence holds a score per extracted entity. Keys are always a subset of the entity lists.
type Confidence struct {
	Banks    map[string]float64 `json:"banks"`
	Accounts map[string]float64 `json:"accounts"`
	Names    map[string]float64 `json:"names"`
}

var (
	accountPattern = regexp.MustCompile(`\d{10,12}`)

	// Buddhist-era years (2500-2599) printed on their own in slip dates
	yearPattern = regexp.MustCompile(`^25\d{2}$`)

	thaiDigits = strings.NewReplacer(
		"๐", "0", "๑", "1", "๒", "2", "๓", "3", "๔", "4",
		"๕", "5", "๖", "6", "๗", "7", "๘", "8", "๙", "9",
	)
	accountSeparators = strings.NewReplacer("-", "", " ", "")
)

// Extractor matches lines against a keyword table
type Extractor struct {
	table *Table
}

// NewExtractor creates an extractor; a nil table uses DefaultTable.
func NewExtractor(table *Table) *Extractor {
	if table == nil {
		table = DefaultTable()
	}
	return &Extractor{table: table}
}

// Table returns the keyword table in use
func (e *Extractor) Table() *Table {
	return e.table
}

// Extract finds banks, accounts and names in the lines.
func (e *Extractor) Extract(lines []textline.Line) Entities {
	out := Entities{
		Banks:    []string{},
		Accounts: []string{},
		Names:    []string{},
		Confidence: Confidence{
			Banks:    map[string]float64{},
			Accounts: map[string]float64{},
			Names:    map[string]float64{},
		},
	}

	lowered := make([]string, len(lines))
	for i, l := range lines {
		lowered[i] = strings.ToLower(l.Text)
	}

	e.extractBanks(lines, lowered, &out)
	e.extractAccounts(lines, &out)
	e.extractNames(lines, lowered, &out)
	out.SlipDetected = containsAny(strings.Join(lowered, " "), e.table.SlipKeywords)

	return out
}

func (e *Extractor) extractBanks(lines []textline.Line, lowered []string, out *Entities) {
	for _, bank := range e.table.Banks {
		found := false
		best := 0.0
		for i, text := range lowered {
			if containsWord(text, bank.Keywords) {
				found = true
				best = max(best, lines[i].Score)
			}
		}
		if !found {
			continue
		}
		out.Banks = append(out.Banks, bank.Code)
		out.Confidence.Banks[bank.Code] = best
		if bank.Wallet {
			out.WalletDetected = true
		}
	}
}

// extractAccounts scans the concatenation of all lines with separators removed, so numbers
// split across detections are still found.
func (e *Extractor) extractAccounts(lines []textline.Line, out *Entities) {
	stripped := make([]string, len(lines))
	for i, l := range lines {
		stripped[i] = accountSeparators.Replace(dropYears(thaiDigits.Replace(l.Text)))
	}

	seen := make(map[string]bool)
	for _, run := range accountPattern.FindAllString(strings.Join(stripped, ""), -1) {
		if seen[run] {
			continue
		}
		seen[run] = true

		best := 0.0
		for i, s := range stripped {
			if strings.Contains(s, run) {
				best = max(best, lines[i].Score)
			}
		}
		out.Accounts = append(out.Accounts, run)
		out.Confidence.Accounts[run] = best
	}
}

// dropYears removes standalone Buddhist-era year tokens so a date can't run into a
// neighbouring number.
func dropYears(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if !yearPattern.MatchString(f) {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func (e *Extractor) extractNames(lines []textline.Line, lowered []string, out *Entities) {
	var candidates []string
	for i, line := range lines {
		text := strings.TrimSpace(line.Text)
		clean := strings.TrimSpace(lowered[i])

		if prefix, ok := e.matchPrefix(clean); ok {
			// a bare honorific is usually followed by the name on the next line
			if len([]rune(clean)) < len([]rune(prefix))+2 && i+1 < len(lines) {
				text = text + " " + strings.TrimSpace(lines[i+1].Text)
			}
			candidates = append(candidates, text)
			continue
		}

		if marker, ok := matchMarker(clean, e.table.NameMarkers); ok {
			candidates = append(candidates, strings.TrimSpace(removeFold(text, marker)))
			continue
		}

		if containsAny(clean, e.table.BusinessKeywords) {
			candidates = append(candidates, text)
		}
	}

	seen := make(map[string]bool)
	for _, c := range candidates {
		name := NormalizeName(c, e.table.NamePrefixes)
		name = textline.DedupeTokens(name, textline.NameDedupeThreshold, textline.DedupeWindow)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out.Names = append(out.Names, name)
		out.Confidence.Names[name] = nameConfidence(name, lines, lowered)
	}
}

func (e *Extractor) matchPrefix(clean string) (string, bool) {
	for _, p := range e.table.NamePrefixes {
		if strings.HasPrefix(clean, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// nameConfidence averages the scores of lines that contain the name or are contained by it.
func nameConfidence(name string, lines []textline.Line, lowered []string) float64 {
	target := strings.ToLower(name)
	var sum float64
	n := 0
	for i, text := range lowered {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.Contains(text, target) || strings.Contains(target, text) {
			sum += lines[i].Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func matchMarker(clean string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(clean, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

// removeFold deletes every case-insensitive occurrence of sub from s.
func removeFold(s, sub string) string {
	if sub == "" {
		return s
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(sub))
	return pattern.ReplaceAllString(s, "")
}

// containsWord is containsAny for bank and wallet names: a keyword that starts or
// ends with a Latin letter must not continue into a neighbouring Latin word, so
// "line pay" does not match inside "online payment".
func containsWord(text string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		for from := 0; from <= len(text)-len(k); {
			i := strings.Index(text[from:], k)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(k)
			if (!isLatinLetter(k[0]) || start == 0 || !isLatinLetter(text[start-1])) &&
				(!isLatinLetter(k[len(k)-1]) || end == len(text) || !isLatinLetter(text[end])) {
				return true
			}
			from = start + 1
		}
	}
	return false
}

func isLatinLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// containsAny reports whether text (already lower-cased) contains any keyword, ignoring case.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
