package normalize

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// GrayMat converts img to a single-channel 8-bit Mat. The caller closes it.
func GrayMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	if b.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}

	nrgba := imaging.Clone(img)
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, nrgba.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}

// MatToNRGBA copies an 8-bit Mat back into an image
func MatToNRGBA(mat gocv.Mat) (*image.NRGBA, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat: %w", err)
	}
	return imaging.Clone(img), nil
}
