package fit

import (
	"fmt"

	"github.com/sgostarter/i/commerr"
)

var (
	// ErrShapeMismatch is returned when the voxel batch, model bank and
	// parameter axes disagree on a dimension.
	ErrShapeMismatch = fmt.Errorf("shape mismatch: %w", commerr.ErrInvalidArgument)

	// ErrEmptyInput is returned when any input dimension is zero.
	ErrEmptyInput = fmt.Errorf("empty input: %w", commerr.ErrInvalidArgument)
)
