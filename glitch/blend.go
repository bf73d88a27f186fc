package glitch

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-glitch/images"
)

// ErrNoComposites is returned when there is nothing to blend.
var ErrNoComposites = errors.New("no composites to blend")

// CanvasSize returns the minimum width and the minimum height over all
// composites.
func CanvasSize(composites []*Composite) image.Point {
	if len(composites) == 0 {
		return image.Point{}
	}

	size := composites[0].Size()
	for _, c := range composites[1:] {
		s := c.Size()
		size.X = min(size.X, s.X)
		size.Y = min(size.Y, s.Y)
	}
	return size
}

// Blend merges the composites into one canvas.
//
// Each canvas pixel samples every composite at (x mod width, y mod height).
// Sentinel pixels are ignored. The color channels take the maximum over the
// remaining samples and alpha comes from the last of them. A pixel with no
// contributing sample stays the sentinel. Rows are blended in parallel.
//
// Arguments:
//   - composites: The composites, in processing order.
//
// Returns:
//   - *image.NRGBA: The canvas, sized by CanvasSize.
//   - error: ErrNoComposites if the list is empty or the canvas would be empty.
func Blend(composites []*Composite) (*image.NRGBA, error) {
	size := CanvasSize(composites)
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Wrapf(ErrNoComposites, "canvas size %v", size)
	}

	canvas := image.NewNRGBA(image.Rectangle{Max: size})
	images.Parallel(size.Y, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < size.X; x++ {
				blendPixel(canvas, composites, x, y)
			}
		}
	})

	return canvas, nil
}

// blendPixel writes canvas pixel (x, y) from the tiled samples of every composite.
func blendPixel(canvas *image.NRGBA, composites []*Composite, x, y int) {
	r, g, b, a := Sentinel.R, Sentinel.G, Sentinel.B, Sentinel.A

	for _, c := range composites {
		bounds := c.Image.Rect
		sx := bounds.Min.X + images.Wrap(x, bounds.Dx())
		sy := bounds.Min.Y + images.Wrap(y, bounds.Dy())
		i := c.Image.PixOffset(sx, sy)
		p := c.Image.Pix[i : i+4 : i+4]
		if p[0] == Sentinel.R && p[1] == Sentinel.G && p[2] == Sentinel.B && p[3] == Sentinel.A {
			continue
		}
		r, g, b, a = max(r, p[0]), max(g, p[1]), max(b, p[2]), p[3]
	}

	i := canvas.PixOffset(x, y)
	canvas.Pix[i+0] = r
	canvas.Pix[i+1] = g
	canvas.Pix[i+2] = b
	canvas.Pix[i+3] = a
}

// Blender blends composites and burns in their labels.
type Blender struct {
	// Face renders the labels.
	Face *TextFace
	// Color is the label color.
	Color color.Color

	logger *zap.SugaredLogger
}

// NewBlender creates a blender.
func NewBlender(face *TextFace, c color.Color, logger *zap.SugaredLogger) *Blender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Blender{Face: face, Color: c, logger: logger}
}

// BurnLabels draws every label of every composite onto the canvas, composites
// in order and labels in detection order within each.
func (b *Blender) BurnLabels(canvas *image.NRGBA, composites []*Composite) {
	var labels []Label
	for _, c := range composites {
		labels = append(labels, c.Labels...)
	}
	b.Face.Draw(canvas, labels, b.Color)
}

// Combine blends the composites and burns in their labels.
//
// Arguments:
//   - composites: The composites, in processing order.
//
// Returns:
//   - *image.NRGBA: The final canvas.
//   - error: ErrNoComposites if there is nothing to blend.
func (b *Blender) Combine(composites []*Composite) (*image.NRGBA, error) {
	canvas, err := Blend(composites)
	if err != nil {
		return nil, err
	}

	b.BurnLabels(canvas, composites)

	b.logger.Infow("blended canvas",
		"composites", len(composites),
		"width", canvas.Rect.Dx(),
		"height", canvas.Rect.Dy(),
	)

	return canvas, nil
}
