package normalize

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// deskewImage estimates skew from the minimal rotated rectangle around the foreground mass
func (n *Normalizer) deskewImage(img *image.NRGBA) *image.NRGBA {
	gray, err := GrayMat(fitWithin(img, deskewWorkSide))
	if err != nil {
		return nil
	}
	defer gray.Close()

	mask := foregroundMask(gray)
	defer mask.Close()

	points := contourPoints(mask)
	if len(points) < minForegroundPoints {
		return nil
	}
	pv := gocv.NewPointVectorFromPoints(points)
	defer pv.Close()

	rect := gocv.MinAreaRect(pv)
	if rect.Width == 0 || rect.Height == 0 {
		return nil
	}

	angle := normalizeAngle(rect.Angle)
	if math.Abs(angle) < minSkew || math.Abs(angle) > maxSkew {
		return nil
	}

	n.logger.WithFields("angle", round1(angle)).Debug("Correcting skew")
	return imaging.Rotate(img, angle, color.White)
}

// cropDocument crops to a large rectangular region that differs from the border background
func (n *Normalizer) cropDocument(img *image.NRGBA) *image.NRGBA {
	work := fitWithin(img, cropWorkSide)
	scale := float64(work.Bounds().Dx()) / float64(img.Bounds().Dx())

	gray, err := GrayMat(work)
	if err != nil {
		return nil
	}
	defer gray.Close()
	if gray.Rows() < 3 || gray.Cols() < 3 {
		return nil
	}

	background := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(borderMedian(gray)), 0, 0, 0), gray.Rows(), gray.Cols(), gocv.MatTypeCV8U)
	defer background.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, background, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, cropDiffThreshold, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	largest, area := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > area {
			largest, area = i, a
		}
	}
	if largest < 0 {
		return nil
	}
	contour := contours.At(largest)

	approx := gocv.ApproxPolyDP(contour, cropPolyEpsilon*gocv.ArcLength(contour, true), true)
	defer approx.Close()
	if approx.Size() != 4 {
		return nil
	}

	rect := gocv.MinAreaRect(contour)
	rectArea := float64(rect.Width * rect.Height)
	if rectArea == 0 || area/rectArea < cropMinRectangular {
		return nil
	}

	fraction := rectArea / float64(gray.Rows()*gray.Cols())
	if fraction < cropMinFraction || fraction > cropMaxFraction {
		return nil
	}

	if float64(rect.Width)/scale < cropMinSide || float64(rect.Height)/scale < cropMinSide {
		return nil
	}

	box := gocv.BoundingRect(approx)
	crop := image.Rect(
		int(math.Floor(float64(box.Min.X)/scale)), int(math.Floor(float64(box.Min.Y)/scale)),
		int(math.Ceil(float64(box.Max.X)/scale)), int(math.Ceil(float64(box.Max.Y)/scale)),
	).Intersect(img.Bounds())
	if crop.Empty() {
		return nil
	}

	n.logger.WithFields("crop", crop.String(), "fraction", round1(fraction*100)).Debug("Cropping to document")
	return imaging.Crop(img, crop)
}

// foregroundMask thresholds gray with Otsu and keeps the minority side as foreground,
// so light text on a dark UI is handled like dark text on paper
func foregroundMask(gray gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	gocv.Threshold(gray, &mask, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	if gocv.CountNonZero(mask) > gray.Rows()*gray.Cols()/2 {
		gocv.BitwiseNot(mask, &mask)
	}
	return mask
}

// contourPoints returns every point on the outer contours of mask
func contourPoints(mask gocv.Mat) []image.Point {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	var points []image.Point
	for i := 0; i < contours.Size(); i++ {
		points = append(points, contours.At(i).ToPoints()...)
	}
	return points
}

// normalizeAngle folds an edge direction into (-45, 45]; rectangle edges repeat every 90 degrees
func normalizeAngle(deg float64) float64 {
	for deg > 45 {
		deg -= 90
	}
	for deg <= -45 {
		deg += 90
	}
	return deg
}

// median of the one-pixel border of an 8-bit gray Mat
func borderMedian(gray gocv.Mat) uint8 {
	rows, cols := gray.Rows(), gray.Cols()
	var hist [256]int
	n := 0
	add := func(row, col int) {
		hist[gray.GetUCharAt(row, col)]++
		n++
	}
	for col := 0; col < cols; col++ {
		add(0, col)
		add(rows-1, col)
	}
	for row := 1; row < rows-1; row++ {
		add(row, 0)
		add(row, cols-1)
	}

	half := n / 2
	acc := 0
	for v, c := range hist {
		acc += c
		if acc > half {
			return uint8(v)
		}
	}
	return 255
}
