package entity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	letterPattern = regexp.MustCompile(`[A-Za-zก-๙]`)
	thaiPattern   = regexp.MustCompile(`[\x{0E00}-\x{0E7F}]`)
	latinPattern  = regexp.MustCompile(`[A-Za-z]`)
)

// NormalizeName reduces a candidate line to the tokens that look like a personal or
// business name. It stops at a second honorific or a token mixing Thai and Latin script.
func NormalizeName(text string, prefixes []string) string {
	prefixSet := make(map[string]bool, len(prefixes))
	for _, p := range prefixes {
		prefixSet[strings.ToLower(p)] = true
	}

	var kept []string
	for _, token := range strings.Fields(text) {
		if prefixSet[strings.ToLower(token)] && len(kept) > 0 {
			break
		}
		if strings.IndexFunc(token, unicode.IsDigit) >= 0 {
			continue
		}
		if utf8.RuneCountInString(token) == 1 && letterPattern.MatchString(token) {
			continue
		}
		if thaiPattern.MatchString(token) && latinPattern.MatchString(token) {
			break
		}
		if !letterPattern.MatchString(token) {
			continue
		}
		if isShortASCIINoise(token, prefixSet) {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// isShortASCIINoise matches fragments like "XJ" or "TWR" that recognizers emit around logos.
func isShortASCIINoise(token string, prefixSet map[string]bool) bool {
	if len(token) > 3 || prefixSet[strings.ToLower(token)] {
		return false
	}
	upper := 0
	for _, r := range token {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if float64(upper)/float64(len(token)) < 0.6 {
		return false
	}
	return !strings.ContainsAny(strings.ToLower(token), "aeiou")
}
