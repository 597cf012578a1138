package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/platinummonkey/slipguard/internal/risk"
	"github.com/platinummonkey/slipguard/internal/scan"
)

func statusColor(s scan.Status) *color.Color {
	switch s {
	case scan.StatusSuccess:
		return color.New(color.FgGreen, color.Bold)
	case scan.StatusEmpty:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// riskColor follows the bands of risk.LevelFor
func riskColor(score int) *color.Color {
	switch {
	case score > 70:
		return color.New(color.FgRed, color.Bold)
	case score > 40:
		return color.New(color.FgHiYellow, color.Bold)
	case score > 0:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func printReport(w io.Writer, r risk.Report) {
	riskColor(r.Score).Fprintf(w, "%s (%d/100)\n", r.Status, r.Score)
	if len(r.Flags) > 0 {
		fmt.Fprintf(w, "Signals: %s\n", strings.Join(r.Flags, ", "))
	}
	if len(r.Entities) > 0 {
		fmt.Fprintf(w, "Accounts: %s\n", strings.Join(r.Entities, ", "))
	}
}

func printChatReport(w io.Writer, r risk.ChatReport) {
	riskColor(r.MaxScore).Fprintf(w, "%s (max %d/100)\n", r.Status, r.MaxScore)
	fmt.Fprintf(w, "Messages: %d, risky: %d\n", len(r.Messages), len(r.Risky))
	for _, m := range r.Risky {
		riskColor(m.Score).Fprintf(w, "  [%3d] ", m.Score)
		fmt.Fprintf(w, "%s", m.Message)
		if len(m.Flags) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(m.Flags, ", "))
		}
		fmt.Fprintln(w)
	}
}
