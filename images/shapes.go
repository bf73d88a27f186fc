// Package images - pixel geometry, edge maps and parallel helpers shared by
// the detection and compositing stages.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is a lightweight corner-form bounding box in floating point pixels.
//
// X2,Y2 are exclusive (like image.Rectangle).
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// RectFromCenter builds a Rect from a center point and a width/height pair,
// the layout YOLO-style detectors emit.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The extent of the box.
//
// Returns:
//   - The corner-form rectangle.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - 0.5*w,
		Y1: cy - 0.5*h,
		X2: cx + 0.5*w,
		Y2: cy + 0.5*h,
	}
}

// Scale multiplies every corner by the axis' scale factor.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{X1: r.X1 * sx, Y1: r.Y1 * sy, X2: r.X2 * sx, Y2: r.Y2 * sy}
}

// Width returns the horizontal extent, never negative.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent, never negative.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the rectangle.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU measures the overlap of two rectangles as
// Area(intersection) / Area(union), a value in [0, 1].
//
// The intersection corners are the maximum of the top-left corners and the
// minimum of the bottom-right corners. Non-overlapping (or touching) boxes and
// degenerate boxes with an empty union yield 0.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
