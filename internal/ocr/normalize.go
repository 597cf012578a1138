package ocr

import (
	"regexp"
	"strings"
)

var (
	// trailingLetter matches a stray single Latin letter at the end of a detection ("กสิกรไทย K")
	trailingLetter = regexp.MustCompile(`\s+[a-zA-Z]$`)

	// upperNoise matches detections that are nothing but 5+ capitals, usually misread UI chrome
	upperNoise = regexp.MustCompile(`^[A-Z]{5,}$`)
)

// UnplacedSpacing is the vertical gap given to consecutive detections that came
// without any polygon. It is far above any merge threshold, so each becomes its
// own line in engine order.
const UnplacedSpacing = 1000.0

// Normalize flattens any RawOutput shape into cleaned items in engine order.
// Entries without text are skipped; columnar lists of unequal length are cut to the shortest.
// When no entry has a polygon, items are stacked UnplacedSpacing apart in engine
// order; when only some lack one, those are dropped since they cannot be placed.
func Normalize(raw RawOutput) []Item {
	var items []Item

	switch r := raw.(type) {
	case Columnar:
		n := len(r.Texts)
		if len(r.Scores) < n {
			n = len(r.Scores)
		}
		if len(r.Polys) < n {
			n = len(r.Polys)
		}
		items = make([]Item, 0, n)
		for i := 0; i < n; i++ {
			if r.Texts[i] == "" {
				continue
			}
			items = append(items, NewItem(r.Texts[i], r.Scores[i], r.Polys[i]))
		}

	case Records:
		items = make([]Item, 0, len(r))
		for _, rec := range r {
			if rec.Text == "" {
				continue
			}
			items = append(items, NewItem(rec.Text, rec.Score, rec.Poly))
		}

	default:
		// Unparsed and nil carry nothing usable
		return nil
	}

	return Clean(placeUnboxed(items))
}

func placeUnboxed(items []Item) []Item {
	boxed := 0
	for _, it := range items {
		if len(it.Box) > 0 {
			boxed++
		}
	}

	switch boxed {
	case len(items):
		return items
	case 0:
		for i := range items {
			items[i].Y = float64(i) * UnplacedSpacing
		}
		return items
	}

	placed := items[:0]
	for _, it := range items {
		if len(it.Box) > 0 {
			placed = append(placed, it)
		}
	}
	return placed
}

// Clean drops trailing single-letter artifacts, pure upper-case noise and empty detections
func Clean(items []Item) []Item {
	cleaned := make([]Item, 0, len(items))
	for _, item := range items {
		text := trailingLetter.ReplaceAllString(item.Text, "")
		if upperNoise.MatchString(text) {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		item.Text = text
		cleaned = append(cleaned, item)
	}
	return cleaned
}
