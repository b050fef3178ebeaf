package geometry

import "golang.org/x/exp/constraints"

// Kind selects how a series is drawn.
type Kind uint8

const (
	// KindPoints draws each vertex as a circle.
	KindPoints Kind = iota

	// KindLine connects consecutive vertices.
	KindLine
)

// String returns "points" or "line".
func (k Kind) String() string {
	if k == KindLine {
		return "line"
	}
	return "points"
}

// Coords is a read-only view of one coordinate axis.
// Host buffers of any float precision satisfy it through Floats.
type Coords interface {
	Len() int
	At(i int) float64
}

// Floats adapts a float32 or float64 slice to Coords without copying.
type Floats[T constraints.Float] []T

// Len returns the number of values.
func (f Floats[T]) Len() int { return len(f) }

// At returns value i widened to float64.
func (f Floats[T]) At(i int) float64 { return float64(f[i]) }

// Input is one host data series before validation.
//
// Colors and Sizes may be empty (defaults apply), length 1 (broadcast), or
// length N. For line series the first color and size are the series color and
// line width; per-point values color each segment by its starting vertex.
type Input struct {
	Kind   Kind
	Label  string
	X, Y   Coords
	Colors []Color
	Sizes  []float32
}

// Scatter returns a point series over x and y.
func Scatter[T constraints.Float](x, y []T) Input {
	return Input{Kind: KindPoints, X: Floats[T](x), Y: Floats[T](y)}
}

// Line returns a line series over x and y.
func Line[T constraints.Float](x, y []T) Input {
	return Input{Kind: KindLine, X: Floats[T](x), Y: Floats[T](y)}
}

// WithColors returns a copy of in using the given colors.
func (in Input) WithColors(c ...Color) Input {
	in.Colors = c
	return in
}

// WithSizes returns a copy of in using the given sizes.
func (in Input) WithSizes(s ...float32) Input {
	in.Sizes = s
	return in
}

// WithLabel returns a copy of in with a label used in logs and errors.
func (in Input) WithLabel(label string) Input {
	in.Label = label
	return in
}

// Len returns the point count implied by X, or 0 when X is nil.
func (in Input) Len() int {
	if in.X == nil {
		return 0
	}
	return in.X.Len()
}
