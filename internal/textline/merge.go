// Package textline groups recognized items into reading-order lines.
package textline

import (
	"math"
	"sort"
	"strings"

	"github.com/platinummonkey/slipguard/internal/ocr"
)

// DefaultThreshold is the vertical distance in pixels within which items share a line
const DefaultThreshold = 15.0

// Line is a group of items on one visual line
type Line struct {
	// Text is the item texts joined left to right with single spaces
	Text string `json:"text"`

	// Score is the mean item score
	Score float64 `json:"score"`

	Items []ocr.Item `json:"items"`
}

// Merge sorts items top to bottom and greedily groups them into lines.
// An item joins the current line when its center is within threshold of the
// most recently added item's center, so lines may drift but not jump.
// The input slice is not modified.
func Merge(items []ocr.Item, threshold float64) []Line {
	if len(items) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	sorted := make([]ocr.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y < sorted[j].Y
	})

	var lines []Line
	current := []ocr.Item{sorted[0]}
	for _, item := range sorted[1:] {
		last := current[len(current)-1]
		if math.Abs(item.Y-last.Y) <= threshold {
			current = append(current, item)
			continue
		}
		lines = append(lines, closeLine(current))
		current = []ocr.Item{item}
	}
	lines = append(lines, closeLine(current))

	return lines
}

func closeLine(items []ocr.Item) Line {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].X < items[j].X
	})

	texts := make([]string, len(items))
	var sum float64
	for i, item := range items {
		texts[i] = item.Text
		sum += item.Score
	}

	return Line{
		Text:  strings.Join(texts, " "),
		Score: sum / float64(len(items)),
		Items: items,
	}
}

// Texts returns the text of every line in order
func Texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}
