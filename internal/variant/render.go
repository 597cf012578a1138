package variant

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/platinummonkey/slipguard/internal/normalize"
)

const (
	upscaleFactor = 1.5

	// recognition engines downsample anything larger than this anyway
	maxRenderSide = 3000

	// balanced inverts dark-mode screenshots below this brightness
	darkModeBrightness = 100

	binarizeWindow = 41
	binarizeBias   = 10

	unsharpSigma  = 3.0
	unsharpAmount = 0.5
)

// Render applies preset p to the base image. Rendering is deterministic and never mutates base.
func Render(base image.Image, p Preset, stats normalize.Stats) (*image.NRGBA, error) {
	switch p {
	case Balanced:
		img := imaging.Blur(upscale(base), 0.5)
		if stats.Brightness < darkModeBrightness {
			img = imaging.Invert(img)
		}
		return img, nil

	case Upscaled:
		return upscale(base), nil

	case ContrastEnhanced:
		img := stretchContrast(upscale(base))
		if stats.Brightness < 95 {
			img = imaging.AdjustGamma(img, 1.6)
		}
		return img, nil

	case Sharpened:
		return unsharpMask(upscale(base), unsharpSigma, unsharpAmount), nil

	case Binarized:
		return binarize(upscale(base), binarizeWindow, binarizeBias)

	default:
		return nil, fmt.Errorf("unknown preset %q", p)
	}
}

// upscale enlarges by 1.5x with a cubic filter, keeping the longest side within maxRenderSide
func upscale(img image.Image) *image.NRGBA {
	b := img.Bounds()
	longest := float64(max(b.Dx(), b.Dy()))
	factor := upscaleFactor
	if longest*factor > maxRenderSide {
		factor = math.Max(1, maxRenderSide/longest)
	}
	if factor == 1 {
		return imaging.Clone(img)
	}
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	return imaging.Resize(img, w, h, imaging.CatmullRom)
}

// stretchContrast maps the 1st..99th luminance percentiles onto the full range
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	var hist [256]int
	gray := imaging.Grayscale(img)
	for i := 0; i < len(gray.Pix); i += 4 {
		hist[gray.Pix[i]]++
	}

	total := len(gray.Pix) / 4
	lo, hi := percentile(hist, total, 0.01), percentile(hist, total, 0.99)
	if hi <= lo {
		return img
	}

	scale := 255 / float64(hi-lo)
	var lut [256]uint8
	for v := range lut {
		lut[v] = clamp8((float64(v) - float64(lo)) * scale)
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

func percentile(hist [256]int, total int, q float64) int {
	target := int(float64(total) * q)
	acc := 0
	for v, c := range hist {
		acc += c
		if acc > target {
			return v
		}
	}
	return 255
}

// unsharpMask computes (1+amount)*img - amount*blur(img, sigma)
func unsharpMask(img *image.NRGBA, sigma, amount float64) *image.NRGBA {
	blurred := imaging.Blur(img, sigma)
	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := (1+amount)*float64(img.Pix[i+c]) - amount*float64(blurred.Pix[i+c])
			out.Pix[i+c] = clamp8(v)
		}
	}
	return out
}

// binarize thresholds each pixel against its window mean minus bias
func binarize(img image.Image, window, bias int) (*image.NRGBA, error) {
	gray, err := normalize.GrayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.AdaptiveThreshold(gray, &out, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, window, float32(bias))

	return normalize.MatToNRGBA(out)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
