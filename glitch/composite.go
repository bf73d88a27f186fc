// Package glitch - composes detection snippets onto edge maps and blends the
// results into a single canvas.
package glitch

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Kind tags which transform produced the base layer of a composite.
type Kind int

const (
	// RawComposite uses the original photograph as its base layer.
	RawComposite Kind = iota
	// EdgeComposite uses the edge map of the photograph as its base layer.
	EdgeComposite
)

func (k Kind) String() string {
	switch k {
	case RawComposite:
		return "raw"
	case EdgeComposite:
		return "edge"
	default:
		return "unknown"
	}
}

// Sentinel is the background color the blender treats as "no contribution".
var Sentinel = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// Label is a piece of text to burn into the final canvas at At, the top-left
// corner of the rendered text. At may be negative for labels that overhang
// the image.
type Label struct {
	Text string
	At   image.Point
}

// Composite is one source image after snippet overlay, together with the
// labels to draw once all composites are blended.
type Composite struct {
	Kind   Kind
	Image  *image.NRGBA
	Labels []Label
}

// NewComposite wraps a copy of base, rebased to the origin, as a composite of
// the given kind.
//
// Arguments:
//   - kind: The transform that produced base.
//   - base: The base layer. Gray edge maps become opaque gray pixels.
//
// Returns:
//   - *Composite: A composite with no labels.
func NewComposite(kind Kind, base image.Image) *Composite {
	return &Composite{Kind: kind, Image: imaging.Clone(base)}
}

// Size returns the width and height of the composite.
func (c *Composite) Size() image.Point {
	return c.Image.Bounds().Size()
}

// Snippet is a clamped crop of the original image and where it goes.
type Snippet struct {
	Crop    *image.NRGBA
	Anchor  image.Point
	Label   string
	LabelAt image.Point
}

// Bounds returns the destination rectangle of the snippet.
func (s Snippet) Bounds() image.Rectangle {
	return image.Rectangle{Min: s.Anchor, Max: s.Anchor.Add(s.Crop.Bounds().Size())}
}
