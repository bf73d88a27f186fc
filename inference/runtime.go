// Package inference - Model runtimes and input preparation.
package inference

import (
	"context"

	"gorgonia.org/tensor"
)

// Runtime executes a detection model on a prepared input tensor.
type Runtime interface {
	// InputShape returns the declared model input shape, [batch, channels,
	// height, width]. Dynamic dimensions are reported as values <= 0.
	InputShape() []int64
	// Run executes the model on a [1, 3, H, W] input and returns the raw output.
	Run(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	// Close releases the runtime's resources.
	Close() error
}
