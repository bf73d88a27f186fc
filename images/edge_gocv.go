//go:build gocv

package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GoCVEdgeDetector computes sobel gradient magnitudes with OpenCV.
//
// It is only built with the gocv build tag, which requires OpenCV headers and
// libraries on the build host.
type GoCVEdgeDetector struct {
	Threshold uint8
}

// Detect runs OpenCV's sobel operator over the luma of img.
func (d GoCVEdgeDetector) Detect(img image.Image) (*image.Gray, error) {
	gray, err := gocv.ImageGrayToMatGray(Luma(img))
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert image to mat")
	}
	defer gray.Close()

	gradX := gocv.NewMat()
	defer gradX.Close()
	gradY := gocv.NewMat()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(gradX, gradY, &magnitude)

	clamped := gocv.NewMat()
	defer clamped.Close()
	magnitude.ConvertTo(&clamped, gocv.MatTypeCV8U)

	out := image.NewGray(image.Rect(0, 0, clamped.Cols(), clamped.Rows()))
	for y := 0; y < clamped.Rows(); y++ {
		for x := 0; x < clamped.Cols(); x++ {
			if v := clamped.GetUCharAt(y, x); v >= d.Threshold {
				out.Pix[out.PixOffset(x, y)] = v
			}
		}
	}

	return out, nil
}
