package glitch

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-glitch/models/postprocess"
	"github.com/nvr-ai/go-glitch/models/yolov8"
)

// ErrSizeMismatch is returned when an edge map does not match its source image.
var ErrSizeMismatch = errors.New("edge map size does not match source image")

// DefaultMaxSnippet bounds the size of a single pasted snippet.
var DefaultMaxSnippet = image.Point{X: 600, Y: 600}

// Compositor pastes crops of the original image onto a base layer, one per
// detection, and records where each label goes.
type Compositor struct {
	// MaxSnippet caps the width and height of every snippet.
	MaxSnippet image.Point
	// Face measures labels so they can be centered on their snippet.
	Face *TextFace
	// Labels maps class ids to display text.
	Labels []string

	logger *zap.SugaredLogger
}

// NewCompositor creates a compositor.
//
// Arguments:
//   - maxSnippet: The maximum snippet size.
//   - face: The label face.
//   - labels: The class names.
//   - logger: Destination for skipped detections; nil discards them.
//
// Returns:
//   - *Compositor: The compositor.
func NewCompositor(maxSnippet image.Point, face *TextFace, labels []string, logger *zap.SugaredLogger) *Compositor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Compositor{MaxSnippet: maxSnippet, Face: face, Labels: labels, logger: logger}
}

// ClampSnippet returns the rectangle a detection may copy from an image of the
// given size.
//
// The extent is capped both by maxSnippet and by the distance to the image
// edge, so the result always lies inside the image. The rectangle may be
// empty for degenerate detections.
//
// Arguments:
//   - size: The image size.
//   - maxSnippet: The maximum snippet size.
//   - d: The detection.
//
// Returns:
//   - image.Rectangle: The clamped rectangle.
//   - bool: False if the detection starts outside the image.
func ClampSnippet(size, maxSnippet image.Point, d postprocess.Detection) (image.Rectangle, bool) {
	if d.Left >= uint32(size.X) || d.Top >= uint32(size.Y) {
		return image.Rectangle{}, false
	}

	r := d.Rectangle()
	r.Max.X = min(r.Max.X, r.Min.X+maxSnippet.X, size.X)
	r.Max.Y = min(r.Max.Y, r.Min.Y+maxSnippet.Y, size.Y)

	return r, true
}

// Snippets cuts one snippet out of original per in-bounds detection.
//
// Arguments:
//   - original: The source photograph.
//   - detections: The detections, in paste order.
//
// Returns:
//   - []Snippet: The snippets; off-image detections are left out.
func (c *Compositor) Snippets(original image.Image, detections []postprocess.Detection) []Snippet {
	bounds := original.Bounds()
	snippets := make([]Snippet, 0, len(detections))

	for _, d := range detections {
		r, ok := ClampSnippet(bounds.Size(), c.MaxSnippet, d)
		if !ok {
			c.logger.Debugw("skipping out of bounds detection", "detection", d.String())
			continue
		}

		text := yolov8.Label(c.Labels, d.Class)
		textSize := c.Face.Measure(text)
		center := image.Point{X: r.Min.X + r.Dx()/2, Y: r.Min.Y + r.Dy()/2}

		snippets = append(snippets, Snippet{
			Crop:    imaging.Crop(original, r.Add(bounds.Min)),
			Anchor:  r.Min,
			Label:   text,
			LabelAt: center.Sub(textSize.Div(2)),
		})
	}

	return snippets
}

// Compose builds the composite of one source image.
//
// Arguments:
//   - original: The source photograph.
//   - edges: The edge map of original, or nil to paste onto the photograph itself.
//   - detections: The detections, in paste order. Later snippets overwrite
//     earlier ones where they overlap.
//
// Returns:
//   - *Composite: An EdgeComposite, or a RawComposite when edges is nil.
//   - error: ErrSizeMismatch if edges and original differ in size.
func (c *Compositor) Compose(original, edges image.Image, detections []postprocess.Detection) (*Composite, error) {
	var composite *Composite
	if edges == nil {
		composite = NewComposite(RawComposite, original)
	} else {
		if edges.Bounds().Size() != original.Bounds().Size() {
			return nil, errors.Wrapf(ErrSizeMismatch, "edges %v, original %v",
				edges.Bounds().Size(), original.Bounds().Size())
		}
		composite = NewComposite(EdgeComposite, edges)
	}

	for _, s := range c.Snippets(original, detections) {
		Paste(composite.Image, s)
		composite.Labels = append(composite.Labels, Label{Text: s.Label, At: s.LabelAt})
	}

	return composite, nil
}

// Paste copies the snippet crop onto dst at its anchor, replacing the
// destination pixels. Empty crops are a no-op.
func Paste(dst *image.NRGBA, s Snippet) {
	r := s.Bounds().Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, s.Crop, image.Point{}, draw.Src)
}
