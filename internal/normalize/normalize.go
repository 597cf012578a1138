// Package normalize turns a decoded photo or screenshot into the canonical base image
// the variant presets work from, and measures its lighting and sharpness.
package normalize

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/platinummonkey/slipguard/internal/logger"
)

const (
	// DefaultMaxSide caps the longest side of the base image
	DefaultMaxSide = 2400

	// DefaultMinSide is the longest side tiny images are enlarged to
	DefaultMinSide = 900

	// skew outside [minSkew, maxSkew] degrees is left alone
	minSkew = 0.5
	maxSkew = 15.0

	// working copies used for geometry are bounded for speed
	deskewWorkSide = 1000
	cropWorkSide   = 800
	statsWorkSide  = 800

	// document crop acceptance
	cropDiffThreshold   = 40
	cropPolyEpsilon     = 0.02
	cropMinFraction     = 0.2
	cropMaxFraction     = 0.9
	cropMinRectangular  = 0.85
	cropMinSide         = 300
	minForegroundPoints = 50
)

// Stats describes the lighting, contrast and sharpness of an image
type Stats struct {
	// Brightness is the mean grayscale intensity (0-255)
	Brightness float64 `json:"brightness"`

	// Contrast is the grayscale standard deviation
	Contrast float64 `json:"contrast"`

	// Sharpness is the variance of the 4-neighbour Laplacian response
	Sharpness float64 `json:"sharpness"`

	Width    int `json:"width"`
	Height   int `json:"height"`
	Longest  int `json:"longest"`
	Shortest int `json:"shortest"`
}

// Config holds configuration for the Normalizer
type Config struct {
	Logger *logger.Logger

	// MaxSide and MinSide bound the longest side of the base image (0 = default)
	MaxSide int
	MinSide int

	DisableDeskew bool
	DisableCrop   bool
}

// Normalizer produces base images
type Normalizer struct {
	logger  *logger.Logger
	maxSide int
	minSide int
	deskew  bool
	crop    bool
}

// New creates a Normalizer
func New(cfg *Config) (*Normalizer, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	maxSide, minSide := cfg.MaxSide, cfg.MinSide
	if maxSide == 0 {
		maxSide = DefaultMaxSide
	}
	if minSide == 0 {
		minSide = DefaultMinSide
	}
	if minSide < 0 || maxSide < minSide {
		return nil, fmt.Errorf("invalid side bounds: min %d, max %d", minSide, maxSide)
	}

	return &Normalizer{
		logger:  log,
		maxSide: maxSide,
		minSide: minSide,
		deskew:  !cfg.DisableDeskew,
		crop:    !cfg.DisableCrop,
	}, nil
}

// Normalize resizes, deskews and crops img, then measures the result.
// Geometry steps that fail leave the image unchanged.
func (n *Normalizer) Normalize(img image.Image) (*image.NRGBA, Stats) {
	base := n.resize(img)

	if n.deskew {
		base = n.safely("deskew", base, n.deskewImage)
	}
	if n.crop {
		base = n.safely("crop", base, n.cropDocument)
	}

	stats := ComputeStats(base)
	n.logger.WithFields(
		"width", stats.Width,
		"height", stats.Height,
		"brightness", round1(stats.Brightness),
		"contrast", round1(stats.Contrast),
		"sharpness", round1(stats.Sharpness),
	).Debug("Image normalized")

	return base, stats
}

// safely runs a geometry step and falls back to its input on panic or nil output
func (n *Normalizer) safely(step string, img *image.NRGBA, fn func(*image.NRGBA) *image.NRGBA) (out *image.NRGBA) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.WithFields("step", step, "panic", r).Warn("Geometry step failed, keeping image unchanged")
			out = img
		}
	}()

	if res := fn(img); res != nil {
		return res
	}
	return img
}

func (n *Normalizer) resize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())

	var target int
	filter := imaging.Lanczos
	switch {
	case longest > n.maxSide:
		target = n.maxSide
	case longest > 0 && longest < n.minSide:
		target = n.minSide
		filter = imaging.CatmullRom
	default:
		return imaging.Clone(img)
	}

	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, target, 0, filter)
	}
	return imaging.Resize(img, 0, target, filter)
}

// fitWithin downsizes img so its longest side is at most side; smaller images are returned as is
func fitWithin(img image.Image, side int) image.Image {
	b := img.Bounds()
	if b.Dx() <= side && b.Dy() <= side {
		return img
	}
	return imaging.Fit(img, side, side, imaging.Box)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
