// Package yolov8 - decodes YOLOv8 detection heads.
//
// A YOLOv8 head emits a single [1, 4+C, A] tensor: for each of A anchors the
// first four attributes are the box center and size in model input pixels and
// the remaining C attributes are per-class scores. There is no objectness
// column.
package yolov8

import (
	"image"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-glitch/images"
	"github.com/nvr-ai/go-glitch/models/postprocess"
)

// boxAttributes is the number of geometry attributes ahead of the class scores.
const boxAttributes = 4

// DefaultInputSize is the resolution YOLOv8 exports use when the graph leaves
// its spatial dimensions dynamic.
var DefaultInputSize = image.Point{X: 640, Y: 640}

// Decoder turns raw YOLOv8 output into suppressed detections in original image
// coordinates.
type Decoder struct {
	// Labels is the class list; its length fixes the expected attribute count.
	Labels []string
	// NMS configures the suppression step.
	NMS postprocess.NMSConfig
	// Fallback is the model input resolution used when the model leaves it
	// unspecified. A zero value makes such models an error.
	Fallback image.Point
}

// NewDecoder creates a decoder.
//
// Arguments:
//   - labels: The class names, in model output order.
//   - nms: The suppression thresholds.
//   - fallback: The input resolution to assume for models without a fixed one.
//
// Returns:
//   - The decoder.
func NewDecoder(labels []string, nms postprocess.NMSConfig, fallback image.Point) *Decoder {
	return &Decoder{Labels: labels, NMS: nms, Fallback: fallback}
}

// InputSize resolves the model input resolution from its declared input shape.
//
// Arguments:
//   - shape: The declared input shape, [batch, channels, height, width]. Dynamic
//     dimensions are reported as zero or negative values.
//
// Returns:
//   - The resolution as (width, height).
//   - ErrModelContractViolation if the shape is not fixed and there is no fallback.
func (d *Decoder) InputSize(shape []int64) (image.Point, error) {
	if len(shape) == 4 && shape[2] > 0 && shape[3] > 0 {
		return image.Point{X: int(shape[3]), Y: int(shape[2])}, nil
	}
	if d.Fallback.X > 0 && d.Fallback.Y > 0 {
		return d.Fallback, nil
	}
	return image.Point{}, errors.Wrapf(ErrModelContractViolation, "declared input shape %v", shape)
}

// Candidates splits the raw output into per-anchor boxes and a per-class score
// matrix. Boxes stay in model input space.
//
// Arguments:
//   - output: The raw [1, 4+C, A] float32 tensor.
//
// Returns:
//   - One corner-form box per anchor.
//   - scores[c][a], the score of class c at anchor a.
//   - ErrShapeMismatch if the tensor layout is not the expected one.
func (d *Decoder) Candidates(output *tensor.Dense) ([]images.Rect, [][]float32, error) {
	shape := output.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "expected [1, %d, anchors], got %v",
			boxAttributes+len(d.Labels), shape)
	}

	attributes, anchors := shape[1], shape[2]
	if attributes != boxAttributes+len(d.Labels) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "expected %d attributes for %d classes, got %d",
			boxAttributes+len(d.Labels), len(d.Labels), attributes)
	}

	data, ok := output.Data().([]float32)
	if !ok || len(data) < attributes*anchors {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "expected %d float32 values, got %T",
			attributes*anchors, output.Data())
	}

	// Attribute-major layout: attribute k of anchor a lives at k*anchors + a.
	boxes := make([]images.Rect, anchors)
	for a := 0; a < anchors; a++ {
		boxes[a] = images.RectFromCenter(
			data[a],
			data[anchors+a],
			data[2*anchors+a],
			data[3*anchors+a],
		)
	}

	scores := make([][]float32, len(d.Labels))
	for c := range scores {
		offset := (boxAttributes + c) * anchors
		scores[c] = data[offset : offset+anchors]
	}

	return boxes, scores, nil
}

// Decode suppresses the raw output and rescales the survivors to the original
// image.
//
// Suppression runs on the model-space boxes; only the survivors are rescaled.
//
// Arguments:
//   - output: The raw [1, 4+C, A] float32 tensor.
//   - original: The original image size.
//   - input: The model input resolution the image was resized to.
//
// Returns:
//   - The detections, class ascending and highest score first within a class.
//   - ErrShapeMismatch if the tensor layout is not the expected one.
func (d *Decoder) Decode(output *tensor.Dense, original, input image.Point) ([]postprocess.Detection, error) {
	if input.X <= 0 || input.Y <= 0 {
		return nil, errors.Wrapf(ErrModelContractViolation, "model input resolution %v", input)
	}

	boxes, scores, err := d.Candidates(output)
	if err != nil {
		return nil, err
	}

	sx, sy := ScaleFactors(original, input)

	selections := postprocess.Suppress(boxes, scores, d.NMS)
	detections := make([]postprocess.Detection, 0, len(selections))
	for _, s := range selections {
		detections = append(detections, ToDetection(
			boxes[s.Anchor].Scale(sx, sy),
			s.Class,
			scores[s.Class][s.Anchor],
			s.Anchor,
		))
	}

	return detections, nil
}

// ScaleFactors returns original/input per axis.
func ScaleFactors(original, input image.Point) (sx, sy float32) {
	return float32(original.X) / float32(input.X), float32(original.Y) / float32(input.Y)
}

// ToDetection converts a corner-form box in original image space to a
// detection with integer pixel offsets.
//
// The reported width and height are the truncated extent minus one. Boxes
// whose extent truncates to zero become zero-size detections instead of
// wrapping around.
func ToDetection(box images.Rect, class int, score float32, anchor int) postprocess.Detection {
	return postprocess.Detection{
		Left:   toPixel(box.X1),
		Top:    toPixel(box.Y1),
		Width:  inclusiveExtent(box.X2 - box.X1),
		Height: inclusiveExtent(box.Y2 - box.Y1),
		Class:  class,
		Score:  score,
		Anchor: anchor,
	}
}

// toPixel truncates v toward zero, saturating at the uint32 range. NaN maps to 0.
func toPixel(v float32) uint32 {
	switch {
	case math32.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}

func inclusiveExtent(v float32) uint32 {
	p := toPixel(v)
	if p == 0 {
		return 0
	}
	return p - 1
}

// Anchors returns the number of anchors a YOLOv8 head produces for an input
// resolution: one per cell of the stride 8, 16 and 32 grids.
func Anchors(input image.Point) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		n += (input.X / stride) * (input.Y / stride)
	}
	return n
}
