package images

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/convolution"
)

// DefaultEdgeThreshold is the gradient magnitude below which a pixel is
// treated as "no edge".
const DefaultEdgeThreshold = 40

// EdgeDetector turns an image into a single-channel edge map of identical size.
//
// Every output pixel is either 0 (suppressed) or the clamped gradient
// magnitude at that pixel.
type EdgeDetector interface {
	Detect(img image.Image) (*image.Gray, error)
}

// sobelX is the horizontal sobel kernel; its transpose is the vertical one.
var sobelX = &convolution.Kernel{
	Matrix: []float64{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	},
	Width:  3,
	Height: 3,
}

// SobelEdgeDetector computes sobel gradient magnitudes on the luma channel
// and zeroes everything under Threshold.
type SobelEdgeDetector struct {
	Threshold uint8
}

// Detect runs the sobel operator over img.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - *image.Gray: The thresholded magnitude map, with bounds starting at the origin.
//   - error: Always nil.
func (d SobelEdgeDetector) Detect(img image.Image) (*image.Gray, error) {
	luma := Luma(img)
	gx := signedGradient(luma, sobelX)
	gy := signedGradient(luma, sobelX.Transposed())

	out := image.NewGray(luma.Bounds())
	for i := range out.Pix {
		magnitude := uint8(math.Min(math.Hypot(gx[i], gy[i]), 255))
		if magnitude < d.Threshold {
			continue
		}
		out.Pix[i] = magnitude
	}

	return out, nil
}

// signedGradient convolves luma with k and with -k and returns the absolute
// response per pixel, saturated at 255. Convolve clamps its output to
// [0, 255], so each pass recovers one sign of the gradient.
func signedGradient(luma *image.Gray, k convolution.Matrix) []float64 {
	negated := convolution.NewKernel(k.MaxX(), k.MaxY())
	for y := 0; y < k.MaxY(); y++ {
		for x := 0; x < k.MaxX(); x++ {
			negated.Matrix[y*negated.Width+x] = -k.At(x, y)
		}
	}

	rising := convolution.Convolve(luma, k, &convolution.Options{KeepAlpha: true})
	falling := convolution.Convolve(luma, negated, &convolution.Options{KeepAlpha: true})

	gradient := make([]float64, len(luma.Pix))
	for i := range gradient {
		// Gray input, so the red channel carries the response.
		gradient[i] = float64(rising.Pix[4*i]) + float64(falling.Pix[4*i])
	}
	return gradient
}

// Luma converts img to an 8-bit luma image using Luminance.
func Luma(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	Parallel(bounds.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < bounds.Dx(); x++ {
				gray.Pix[gray.PixOffset(x, y)] = Luminance(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	})
	return gray
}

// Luminance returns the Rec. 709 relative luminance of c, ignoring alpha.
func Luminance(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	return uint8(math.Round(0.2126*float64(r>>8) + 0.7152*float64(g>>8) + 0.0722*float64(b>>8)))
}
