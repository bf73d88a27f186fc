package glitch

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

// filled returns a w x h NRGBA image painted with c.
func filled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func newFace(t testing.TB) *TextFace {
	t.Helper()
	face, err := NewTextFace(60, 1.5)
	require.NoError(t, err)
	return face
}
