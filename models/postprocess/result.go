package postprocess

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-glitch/images"
)

// Candidate is one (anchor, class) pair considered by non-maximum suppression.
type Candidate struct {
	// The bounding box of the candidate, in whatever space the caller decoded it.
	Box images.Rect
	// The confidence score of the candidate for Class.
	Score float32
	// The predicted class index of the candidate.
	Class int
	// The anchor slot the candidate was read from. Used as the tie-break.
	Anchor int
}

// Selection identifies a surviving candidate by class and anchor index.
type Selection struct {
	Class  int
	Anchor int
}

// Detection is a box in original image pixel space that survived suppression.
//
// Width and Height are inclusive pixel extents and may be zero for degenerate
// detections.
type Detection struct {
	Left, Top     uint32
	Width, Height uint32
	Class         int
	Score         float32
	Anchor        int
}

// Rectangle returns the detection as an image.Rectangle.
func (d Detection) Rectangle() image.Rectangle {
	x, y := int(d.Left), int(d.Top)
	return image.Rect(x, y, x+int(d.Width), y+int(d.Height))
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (score %.3f) at (%d, %d) %dx%d",
		d.Class, d.Score, d.Left, d.Top, d.Width, d.Height)
}
