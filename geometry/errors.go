package geometry

import "errors"

// Input validation errors. Build wraps them with the offending index or
// lengths; test with errors.Is.
var (
	// ErrEmptyInput is returned when a series has no points.
	ErrEmptyInput = errors.New("geometry: empty input")

	// ErrShapeMismatch is returned when attribute arrays are neither
	// length 1 nor length N, or when X and Y differ in length.
	ErrShapeMismatch = errors.New("geometry: shape mismatch")

	// ErrInvalidColor is returned when a color value cannot be resolved.
	ErrInvalidColor = errors.New("geometry: invalid color")
)
