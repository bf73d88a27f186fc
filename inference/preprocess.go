package inference

import (
	"image"

	"github.com/nfnt/resize"
	"gorgonia.org/tensor"
)

// PrepareInput resizes an image to the model resolution and lays it out as a
// [1, 3, H, W] float32 tensor with channels scaled to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - size: The model input resolution as (width, height).
//
// Returns:
//   - *tensor.Dense: The planar RGB input tensor.
func PrepareInput(img image.Image, size image.Point) *tensor.Dense {
	resized := resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
	bounds := resized.Bounds()

	channelSize := size.X * size.Y
	data := make([]float32, 3*channelSize)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}

	return tensor.New(tensor.WithShape(1, 3, size.Y, size.X), tensor.WithBacking(data))
}
