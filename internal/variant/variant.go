// Package variant picks and renders the preprocessing presets tried for one scan.
package variant

import (
	"github.com/platinummonkey/slipguard/internal/normalize"
)

// Preset names one deterministic preprocessing transform
type Preset string

const (
	Balanced         Preset = "balanced"
	Upscaled         Preset = "upscaled"
	ContrastEnhanced Preset = "contrast-enhanced"
	Sharpened        Preset = "sharpened"
	Binarized        Preset = "binarized"
)

// DefaultMax is the number of presets tried per scan
const DefaultMax = 3

// AllPresets lists every preset in declaration order
var AllPresets = []Preset{Balanced, Upscaled, ContrastEnhanced, Sharpened, Binarized}

// Valid reports whether p names a known preset
func (p Preset) Valid() bool {
	for _, known := range AllPresets {
		if p == known {
			return true
		}
	}
	return false
}

// Select returns the ranked, de-duplicated presets for an image with the given stats.
// The first entry is the primary guess; later entries are fallbacks. At most max entries
// are returned (max <= 0 means DefaultMax).
func Select(stats normalize.Stats, max int) []Preset {
	if max <= 0 {
		max = DefaultMax
	}

	primary := primaryPreset(stats)
	order := []Preset{primary}
	add := func(p Preset, when bool) {
		if !when {
			return
		}
		for _, existing := range order {
			if existing == p {
				return
			}
		}
		order = append(order, p)
	}

	add(Balanced, primary != Balanced)
	add(ContrastEnhanced, stats.Brightness < 110)
	add(Binarized, stats.Brightness > 170)
	add(Sharpened, stats.Sharpness < 55)
	add(Upscaled, stats.Longest < 1200)

	if len(order) > max {
		order = order[:max]
	}
	return order
}

func primaryPreset(stats normalize.Stats) Preset {
	switch {
	case stats.Brightness < 95:
		return ContrastEnhanced
	case stats.Brightness > 185 && stats.Contrast < 35:
		return ContrastEnhanced
	case stats.Brightness > 185:
		return Balanced
	case stats.Sharpness < 45:
		return Sharpened
	case stats.Longest < 1100:
		return Upscaled
	default:
		return Balanced
	}
}
