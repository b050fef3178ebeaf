package geometry

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/chart/internal/logging"
	"github.com/gogpu/chart/internal/workpool"
)

const (
	// DefaultBound is the coordinate magnitude past which values are clamped.
	DefaultBound = 1e30

	// DefaultPointSize is the point diameter in pixels when none is given.
	DefaultPointSize float32 = 2.0

	// DefaultLineWidth is the line width in pixels when none is given.
	DefaultLineWidth float32 = 1.0

	// parallelThreshold is the point count above which packing is split
	// across the shared worker pool.
	parallelThreshold = 1 << 16

	// packChunk is the number of vertices packed per task.
	packChunk = 1 << 15
)

// DefaultColor is the series color when none is given: (0, 0.5, 1, 1).
var DefaultColor = RGBA(0, 128, 255, 255)

var sharedPool = sync.OnceValue(func() *workpool.Pool { return workpool.New(0) })

// Options tune Build. The zero value uses the defaults above.
type Options struct {
	// Bound clamps every coordinate into [-Bound, Bound].
	Bound float64

	// Color replaces DefaultColor for series without colors.
	Color Color

	// PointSize and LineWidth replace the per-kind default size.
	PointSize float32
	LineWidth float32

	// Serial disables parallel packing.
	Serial bool
}

func (o Options) bound() float64 {
	if o.Bound > 0 && !math.IsInf(o.Bound, 0) && !math.IsNaN(o.Bound) {
		return math.Min(o.Bound, math.MaxFloat32)
	}
	return DefaultBound
}

func (o Options) color() Color {
	if o.Color.IsZero() {
		return DefaultColor
	}
	return o.Color
}

func (o Options) size(k Kind) float32 {
	if k == KindLine {
		if o.LineWidth > 0 {
			return o.LineWidth
		}
		return DefaultLineWidth
	}
	if o.PointSize > 0 {
		return o.PointSize
	}
	return DefaultPointSize
}

// Bounds is the axis-aligned extent of a series in data space.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Union returns the smallest Bounds containing b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Series is a validated, packed data series. Data holds Count vertices in
// the Packed layout.
type Series struct {
	Kind   Kind
	Label  string
	Data   []byte
	Count  int
	Bounds Bounds
	Layout Layout
}

// Vertex decodes vertex i.
func (s *Series) Vertex(i int) Vertex { return DecodeVertex(s.Data, i) }

// Build validates in and packs it.
//
// Validation order: empty input, attribute shapes, then colors. The first
// failure is returned and no Series is produced.
func Build(in Input, opts Options) (*Series, error) {
	n := in.Len()
	if n == 0 || in.Y == nil || in.Y.Len() == 0 {
		return nil, fmt.Errorf("%w: series %q has no points", ErrEmptyInput, in.Label)
	}
	if in.Y.Len() != n {
		return nil, fmt.Errorf("%w: x has %d values, y has %d", ErrShapeMismatch, n, in.Y.Len())
	}
	if !broadcastable(len(in.Colors), n) {
		return nil, fmt.Errorf("%w: %d colors for %d points", ErrShapeMismatch, len(in.Colors), n)
	}
	if !broadcastable(len(in.Sizes), n) {
		return nil, fmt.Errorf("%w: %d sizes for %d points", ErrShapeMismatch, len(in.Sizes), n)
	}

	colors, err := resolveColors(in.Colors, opts.color())
	if err != nil {
		return nil, err
	}
	sizes := in.Sizes
	if len(sizes) == 0 {
		sizes = []float32{opts.size(in.Kind)}
	}

	s := &Series{
		Kind:   in.Kind,
		Label:  in.Label,
		Data:   make([]byte, uint64(n)*Packed.Stride),
		Count:  n,
		Layout: Packed,
	}

	bound := opts.bound()
	pack := func(lo, hi int) Bounds {
		return packRange(s.Data, in.X, in.Y, colors, sizes, bound, lo, hi)
	}

	if opts.Serial || n < parallelThreshold {
		s.Bounds = pack(0, n)
	} else {
		s.Bounds = packParallel(n, pack)
	}

	logging.Logger().Debug("geometry: series packed",
		"label", in.Label, "kind", in.Kind, "points", n, "bytes", len(s.Data))
	return s, nil
}

func broadcastable(got, n int) bool {
	return got == 0 || got == 1 || got == n
}

func resolveColors(in []Color, fallback Color) ([][4]uint8, error) {
	if len(in) == 0 {
		in = []Color{fallback}
	}
	out := make([][4]uint8, len(in))
	for i, c := range in {
		rgba, err := c.Resolve()
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		out[i] = rgba
	}
	return out, nil
}

func packParallel(n int, pack func(lo, hi int) Bounds) Bounds {
	chunks := (n + packChunk - 1) / packChunk
	parts := make([]Bounds, chunks)
	sharedPool().Range(n, packChunk, func(lo, hi int) {
		parts[lo/packChunk] = pack(lo, hi)
	})
	b := parts[0]
	for _, p := range parts[1:] {
		b = b.Union(p)
	}
	return b
}

func packRange(dst []byte, xs, ys Coords, colors [][4]uint8, sizes []float32, bound float64, lo, hi int) Bounds {
	b := Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	for i := lo; i < hi; i++ {
		x := clampCoord(xs.At(i), bound)
		y := clampCoord(ys.At(i), bound)

		b.MinX = math.Min(b.MinX, float64(x))
		b.MaxX = math.Max(b.MaxX, float64(x))
		b.MinY = math.Min(b.MinY, float64(y))
		b.MaxY = math.Max(b.MaxY, float64(y))

		off := uint64(i) * Packed.Stride
		putVertex(dst[off:off+Packed.Stride], x, y, pick(colors, i), clampSize(pick(sizes, i)))
	}
	return b
}

func pick[T any](vals []T, i int) T {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[i]
}

// clampCoord narrows v to float32 inside [-bound, bound]. NaN maps to 0.
func clampCoord(v, bound float64) float32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > bound:
		return float32(bound)
	case v < -bound:
		return float32(-bound)
	}
	return float32(v)
}

func clampSize(s float32) float32 {
	if s != s || s < 0 {
		return 0
	}
	if s > math.MaxFloat32 {
		return math.MaxFloat32
	}
	return s
}
