// Package risk scores free text and chat transcripts for scam signals.
package risk

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MaxScore caps every report
	MaxScore = 100

	// RiskyThreshold is the score at which a chat message is reported
	RiskyThreshold = 40

	otpCodeWeight = 8
	accountWeight = 15

	FlagOTPCode = "พบรหัส OTP 6 หลัก"
	FlagAccount = "พบบัญชีต้องสงสัย"
)

// Category is a weighted keyword group
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Weight   int      `yaml:"weight" json:"weight"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type signal struct {
	name    string
	weight  int
	pattern *regexp.Regexp
}

var (
	otpCodePattern = regexp.MustCompile(`\b\d{6}\b`)
	accountPattern = regexp.MustCompile(`\d{3}-\d-\d{5}-\d`)

	thaiDigits = strings.NewReplacer(
		"๐", "0", "๑", "1", "๒", "2", "๓", "3", "๔", "4",
		"๕", "5", "๖", "6", "๗", "7", "๘", "8", "๙", "9",
	)

	defaultSignals = []signal{
		{"Url", 20, regexp.MustCompile(`(https?://|www\.|bit\.ly|tinyurl|\.xyz|\.top)`)},
		{"Money", 10, regexp.MustCompile(`\d+(,\d+)?\s*บาท`)},
		{"Time Pressure", 10, regexp.MustCompile(`\d+\s*(ชั่วโมง|วัน)`)},
		{"Otp", 25, regexp.MustCompile(`(?i)(otp|รหัส otp)`)},
	}
)

// DefaultCategories returns the built-in scam keyword groups
func DefaultCategories() []Category {
	return []Category{
		{Name: "Urgency", Weight: 15, Keywords: []string{"ด่วน", "เร่งด่วน", "ภายในวันนี้", "urgent", "immediately", "หมดเขต"}},
		{Name: "Impersonation", Weight: 20, Keywords: []string{"เจ้าหน้าที่", "ตำรวจ", "กรมสรรพากร", "ศาล", "dsi", "police", "officer"}},
		{Name: "Money Request", Weight: 15, Keywords: []string{"โอนเงิน", "โอนมา", "มัดจำ", "ค่าธรรมเนียม", "transfer", "deposit", "fee"}},
		{Name: "Prize", Weight: 15, Keywords: []string{"ได้รับรางวัล", "ถูกรางวัล", "โชคดี", "prize", "winner", "lucky"}},
		{Name: "Investment", Weight: 15, Keywords: []string{"ลงทุน", "ผลตอบแทน", "กำไร", "invest", "profit", "crypto"}},
		{Name: "Account Threat", Weight: 20, Keywords: []string{"บัญชีถูกระงับ", "อายัด", "ระงับบัญชี", "suspended", "frozen"}},
		{Name: "Credentials", Weight: 25, Keywords: []string{"รหัสผ่าน", "เลขบัตรประชาชน", "password", "pin", "cvv"}},
		{Name: "Loan", Weight: 10, Keywords: []string{"เงินกู้", "สินเชื่อ", "อนุมัติไว", "loan"}},
	}
}

// LoadCategories reads keyword groups from a yaml file with a top-level categories list
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk categories: %w", err)
	}

	var file struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse risk categories %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("risk categories %s: no categories defined", path)
	}
	for _, c := range file.Categories {
		if c.Name == "" || c.Weight <= 0 || len(c.Keywords) == 0 {
			return nil, fmt.Errorf("risk categories %s: category %q needs a name, a positive weight and keywords", path, c.Name)
		}
	}
	return file.Categories, nil
}

// Level is a display band for a score
type Level struct {
	Status string `json:"status"`
	Color  string `json:"color"`
}

// LevelFor maps a score to its display band
func LevelFor(score int) Level {
	switch {
	case score > 70:
		return Level{Status: "High Risk", Color: "#FF5252"}
	case score > 40:
		return Level{Status: "Warning", Color: "#FFA726"}
	case score > 0:
		return Level{Status: "Be cautious", Color: "#DECA30"}
	default:
		return Level{Status: "Safe", Color: "#4CAF50"}
	}
}

// Report is the outcome of analyzing one text
type Report struct {
	Score    int      `json:"risk_score"`
	Status   string   `json:"status"`
	Color    string   `json:"color"`
	Flags    []string `json:"flags"`
	Entities []string `json:"entities_found"`
}

// Analyzer scores text against keyword categories and regex signals
type Analyzer struct {
	categories []Category
	signals    []signal
}

// NewAnalyzer creates an analyzer; nil categories use DefaultCategories.
func NewAnalyzer(categories []Category) *Analyzer {
	if categories == nil {
		categories = DefaultCategories()
	}
	return &Analyzer{categories: categories, signals: defaultSignals}
}

// Analyze scores text. Account numbers in ddd-d-ddddd-d form are reported as entities.
func (a *Analyzer) Analyze(text string) Report {
	folded := thaiDigits.Replace(text)
	lowered := strings.ToLower(folded)

	flags := []string{}
	score := 0

	for _, c := range a.categories {
		for _, k := range c.Keywords {
			if k != "" && strings.Contains(lowered, strings.ToLower(k)) {
				flags = append(flags, c.Name)
				score += c.Weight
				break
			}
		}
	}

	for _, s := range a.signals {
		if s.pattern.MatchString(lowered) {
			flags = append(flags, s.name)
			score += s.weight
		}
	}

	if otpCodePattern.MatchString(folded) {
		flags = append(flags, FlagOTPCode)
		score += otpCodeWeight
	}

	entities := accountPattern.FindAllString(folded, -1)
	if entities == nil {
		entities = []string{}
	}
	if len(entities) > 0 {
		flags = append(flags, FlagAccount)
		score += accountWeight
	}

	score = min(score, MaxScore)
	level := LevelFor(score)

	return Report{
		Score:    score,
		Status:   level.Status,
		Color:    level.Color,
		Flags:    flags,
		Entities: entities,
	}
}
