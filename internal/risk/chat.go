package risk

import (
	"regexp"
	"strings"
)

var (
	timestampPattern = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s?(AM|PM)?\b`)
	datePattern      = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	spacesPattern    = regexp.MustCompile(`\s{2,}`)

	emojiPattern    = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}]+`)
	repeatedPunct   = regexp.MustCompile(`([!?.]){2,}`)
	politeParticles = regexp.MustCompile(`(ครับ|ค่ะ|นะครับ|นะคะ)`)

	// senderNoise are chat-app labels that trail copied messages
	senderNoise = map[string]bool{
		"you": true, "me": true, "ฉัน": true, "ผม": true, "เรา": true, "คุณ": true,
		"คุณลุกค้า": true, "customer": true, "agent": true, "facebook": true,
		"messenger": true, "system": true, "admin": true, "administrator": true, "support": true,
	}
)

const separators = " ,;:"

// ExtractMessages splits a pasted transcript into messages, dropping dates, timestamps
// and a trailing sender label.
func ExtractMessages(raw string) []string {
	var messages []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		line = datePattern.ReplaceAllString(line, "")
		line = timestampPattern.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), ",;:")
		line = spacesPattern.ReplaceAllString(line, " ")
		if line == "" {
			continue
		}

		tailed := strings.TrimRight(line, separators)
		if i := strings.LastIndex(tailed, " "); i >= 0 {
			if senderNoise[strings.ToLower(strings.Trim(tailed[i+1:], separators))] {
				line = tailed[:i]
			}
		} else if senderNoise[strings.ToLower(strings.Trim(tailed, separators))] {
			continue
		}

		line = strings.Trim(strings.TrimSpace(line), ",;:")
		if line != "" {
			messages = append(messages, line)
		}
	}
	return messages
}

// NormalizeMessages lower-cases messages and removes emoji, polite particles and repeated
// punctuation. Messages left empty are dropped.
func NormalizeMessages(messages []string) []string {
	var out []string
	for _, msg := range messages {
		msg = strings.ToLower(msg)
		msg = emojiPattern.ReplaceAllString(msg, "")
		msg = politeParticles.ReplaceAllString(msg, "")
		msg = repeatedPunct.ReplaceAllString(msg, "$1")
		msg = strings.TrimSpace(msg)
		if msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// MessageReport scores one chat message
type MessageReport struct {
	Message string   `json:"message"`
	Score   int      `json:"score"`
	Status  string   `json:"risk_level"`
	Flags   []string `json:"categories"`
}

// ChatReport is the outcome of analyzing a transcript
type ChatReport struct {
	Messages  []MessageReport `json:"messages"`
	Risky     []MessageReport `json:"risky"`
	MaxScore  int             `json:"max_score"`
	Status    string          `json:"status"`
	Color     string          `json:"color"`
	Extracted int             `json:"extracted"`
}

// AnalyzeChat extracts, normalizes and scores every message of a transcript.
// The overall level follows the riskiest message.
func (a *Analyzer) AnalyzeChat(raw string) ChatReport {
	messages := NormalizeMessages(ExtractMessages(raw))

	report := ChatReport{
		Messages:  []MessageReport{},
		Risky:     []MessageReport{},
		Extracted: len(messages),
	}
	for _, msg := range messages {
		r := a.Analyze(msg)
		mr := MessageReport{Message: msg, Score: r.Score, Status: r.Status, Flags: r.Flags}
		report.Messages = append(report.Messages, mr)
		if r.Score >= RiskyThreshold {
			report.Risky = append(report.Risky, mr)
		}
		report.MaxScore = max(report.MaxScore, r.Score)
	}

	level := LevelFor(report.MaxScore)
	report.Status, report.Color = level.Status, level.Color
	return report
}
