package yolov8

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when a model output does not have the
	// [1, 4+classes, anchors] layout.
	ErrShapeMismatch = errors.New("model output shape mismatch")

	// ErrModelContractViolation is returned when the model declares no fixed
	// input resolution and no fallback resolution is configured.
	ErrModelContractViolation = errors.New("model declares no fixed input resolution")
)
