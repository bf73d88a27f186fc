package glitch

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// TextFace renders label text at a fixed pixel height with an optional
// horizontal stretch.
//
// Faces cache glyphs internally, so every use goes through a mutex.
type TextFace struct {
	mu      sync.Mutex
	face    font.Face
	measure *gg.Context

	// Size is the vertical pixel size of the text.
	Size float64
	// Stretch scales the text horizontally; 1 draws it unstretched.
	Stretch float64
}

// NewTextFace loads the Go Regular font at the given size.
//
// Arguments:
//   - size: The vertical pixel size.
//   - stretch: The horizontal scale relative to size.
//
// Returns:
//   - *TextFace: The face.
//   - error: An error if the arguments are not positive or the font fails to parse.
func NewTextFace(size, stretch float64) (*TextFace, error) {
	if size <= 0 || stretch <= 0 {
		return nil, errors.Errorf("invalid text size %v with stretch %v", size, stretch)
	}

	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse font")
	}

	face := truetype.NewFace(ttf, &truetype.Options{Size: size})
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)

	return &TextFace{
		face:    face,
		measure: measure,
		Size:    size,
		Stretch: stretch,
	}, nil
}

// Measure returns the rendered width and height of text in whole pixels.
func (f *TextFace) Measure(text string) image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, h := f.measure.MeasureString(text)
	return image.Point{X: int(w * f.Stretch), Y: int(h)}
}

// Draw renders labels onto dst in a single color, overwriting what is
// underneath the glyphs.
//
// Arguments:
//   - dst: The image to draw on.
//   - labels: The labels, drawn in order.
//   - c: The text color.
func (f *TextFace) Draw(dst *image.NRGBA, labels []Label, c color.Color) {
	if len(labels) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bounds := dst.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.SetFontFace(f.face)
	dc.SetColor(c)

	for _, label := range labels {
		dc.Push()
		dc.Translate(float64(label.At.X), float64(label.At.Y))
		dc.Scale(f.Stretch, 1)
		// ay = 1 puts the top of the text, not the baseline, at the anchor.
		dc.DrawStringAnchored(label.Text, 0, 0, 0, 1)
		dc.Pop()
	}

	draw.Draw(dst, bounds, dc.Image(), image.Point{}, draw.Over)
}
