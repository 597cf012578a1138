package normalize

import (
	"image"

	"gocv.io/x/gocv"
)

// ComputeStats measures brightness, contrast and sharpness on a copy bounded to 800px,
// and reports the full-size dimensions of img.
func ComputeStats(img image.Image) Stats {
	b := img.Bounds()
	stats := Stats{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Longest:  max(b.Dx(), b.Dy()),
		Shortest: min(b.Dx(), b.Dy()),
	}

	gray, err := GrayMat(fitWithin(img, statsWorkSide))
	if err != nil {
		return stats
	}
	defer gray.Close()

	stats.Brightness, stats.Contrast = meanStdDev(gray)
	if gray.Rows() >= 3 && gray.Cols() >= 3 {
		stats.Sharpness = laplacianVariance(gray)
	}
	return stats
}

func meanStdDev(src gocv.Mat) (mean, stddev float64) {
	m := gocv.NewMat()
	defer m.Close()
	s := gocv.NewMat()
	defer s.Close()

	gocv.MeanStdDev(src, &m, &s)
	return m.GetDoubleAt(0, 0), s.GetDoubleAt(0, 0)
}

// laplacianVariance is the variance of the [0 1 0; 1 -4 1; 0 1 0] response
func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()

	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderReflect101)
	_, stddev := meanStdDev(lap)
	return stddev * stddev
}
