// Package transform maps data-space coordinates to normalized device
// coordinates and implements interactive pan and zoom.
//
// A View is the affine map ndc = S*data + T per axis. Pan and Zoom return a
// new View; the packed geometry never changes, only the 32-byte uniform
// produced by View.Uniform is re-uploaded each frame.
package transform

import (
	"encoding/binary"
	"math"
)

const (
	// MinZoomFactor and MaxZoomFactor bound a single Zoom call.
	MinZoomFactor = 0.01
	MaxZoomFactor = 100.0

	// MinZoom and MaxZoom bound the accumulated zoom relative to the
	// fitted scale.
	MinZoom = 1e-6
	MaxZoom = 1e6

	// UniformSize is the byte size of View.Uniform.
	UniformSize = 32

	// MaxCoord bounds data ranges, matching the default coordinate clamp of
	// the geometry builder.
	MaxCoord = 1e30

	// The shaders see float32. A fitted scale is kept below maxFitScale so
	// it stays finite after MaxZoom, and every scale stays above minScale
	// so it does not flush to zero.
	maxScale    = math.MaxFloat32 / 2
	maxFitScale = maxScale / MaxZoom
	minScale    = 1e-36

	// Output ranges are limited so fitted scales stay within the bounds
	// above for any data range up to MaxCoord.
	maxOutput     = 1e6
	minOutputSpan = 1e-3

	// float32Eps is the relative float32 resolution; narrower data ranges
	// cannot be told apart after packing.
	float32Eps = 0x1p-23
)

// Range is a closed interval. Min may exceed Max to express an inverted axis.
type Range struct {
	Min, Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 { return r.Max - r.Min }

func (r Range) finite() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && !math.IsInf(r.Min, 0) && !math.IsInf(r.Max, 0)
}

// NDC is the default output range of both axes.
var NDC = Range{Min: -1, Max: 1}

// Size is a viewport size in pixels.
type Size struct {
	Width, Height float64
}

// Pixel is a position in window pixels, origin top-left, y down.
type Pixel struct {
	X, Y float64
}

// View is the data to NDC transform plus the ranges it was fit from.
// View is a value type; copying it is how a frame snapshots it.
type View struct {
	SX, SY float64
	TX, TY float64

	// DataX and DataY are the data ranges passed to Fit.
	DataX, DataY Range

	// OutX and OutY are the NDC ranges the data ranges map onto.
	OutX, OutY Range

	Viewport Size

	// fitSX is the scale Fit produced; zoom limits are relative to it.
	fitSX float64
}

// Bounds is the data extent handed to Fit.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

type fitConfig struct {
	rangeX, rangeY *Range
	outX, outY     Range
}

// FitOption customizes Fit.
type FitOption func(*fitConfig)

// WithRangeX overrides the auto-fitted data range on the X axis.
func WithRangeX(lo, hi float64) FitOption {
	return func(c *fitConfig) { c.rangeX = &Range{Min: lo, Max: hi} }
}

// WithRangeY overrides the auto-fitted data range on the Y axis.
func WithRangeY(lo, hi float64) FitOption {
	return func(c *fitConfig) { c.rangeY = &Range{Min: lo, Max: hi} }
}

// WithOutputX sets the NDC range the X data range maps onto.
// Passing (1, -1) mirrors the axis.
func WithOutputX(lo, hi float64) FitOption {
	return func(c *fitConfig) { c.outX = Range{Min: lo, Max: hi} }
}

// WithOutputY sets the NDC range the Y data range maps onto.
func WithOutputY(lo, hi float64) FitOption {
	return func(c *fitConfig) { c.outY = Range{Min: lo, Max: hi} }
}

// Fit maps the data bounds, or the custom ranges when given, onto the output
// ranges with independent X and Y scale.
//
// Degenerate or non-finite ranges are repaired so the scale is always finite
// and non-zero in float32: an empty or too narrow data range is widened
// around its center, endpoints are clamped to MaxCoord, and a bad output
// range falls back to NDC.
func Fit(b Bounds, viewport Size, opts ...FitOption) View {
	cfg := fitConfig{outX: NDC, outY: NDC}
	for _, o := range opts {
		o(&cfg)
	}

	dx := Range{Min: b.MinX, Max: b.MaxX}
	if cfg.rangeX != nil {
		dx = *cfg.rangeX
	}
	dy := Range{Min: b.MinY, Max: b.MaxY}
	if cfg.rangeY != nil {
		dy = *cfg.rangeY
	}

	ox, oy := repairOutput(cfg.outX), repairOutput(cfg.outY)
	dx, dy = repairData(dx, ox), repairData(dy, oy)

	sx := ox.Span() / dx.Span()
	sy := oy.Span() / dy.Span()
	return View{
		SX:       sx,
		SY:       sy,
		TX:       ox.Min - sx*dx.Min,
		TY:       oy.Min - sy*dy.Min,
		DataX:    dx,
		DataY:    dy,
		OutX:     ox,
		OutY:     oy,
		Viewport: viewport,
		fitSX:    sx,
	}
}

func repairData(r, out Range) Range {
	if !r.finite() {
		return NDC
	}
	r.Min = math.Min(math.Max(r.Min, -MaxCoord), MaxCoord)
	r.Max = math.Min(math.Max(r.Max, -MaxCoord), MaxCoord)
	if r.Min == r.Max {
		pad := math.Max(0.5, math.Abs(r.Min)*0.05)
		return Range{Min: r.Min - pad, Max: r.Max + pad}
	}

	mag := math.Max(math.Abs(r.Min), math.Abs(r.Max))
	narrowest := math.Max(math.Abs(out.Span())/maxFitScale, mag*float32Eps)
	if span := math.Abs(r.Span()); span < narrowest {
		c := r.Min/2 + r.Max/2
		half := narrowest / 2
		if r.Min > r.Max {
			return Range{Min: c + half, Max: c - half}
		}
		return Range{Min: c - half, Max: c + half}
	}
	return r
}

func repairOutput(r Range) Range {
	if !r.finite() || math.Abs(r.Span()) < minOutputSpan ||
		math.Abs(r.Min) > maxOutput || math.Abs(r.Max) > maxOutput {
		return NDC
	}
	return r
}

// Pan shifts the view by a pixel delta. Positive dy moves content down.
// A view without a viewport is returned unchanged.
func Pan(v View, dxPixels, dyPixels float64) View {
	if v.Viewport.Width <= 0 || v.Viewport.Height <= 0 {
		return v
	}
	if math.IsNaN(dxPixels) || math.IsInf(dxPixels, 0) || math.IsNaN(dyPixels) || math.IsInf(dyPixels, 0) {
		return v
	}
	v.TX += 2 * dxPixels / v.Viewport.Width
	v.TY -= 2 * dyPixels / v.Viewport.Height
	return v
}

// Zoom scales the view by factor about anchor, so the data point under the
// anchor pixel stays under it.
//
// The factor is clamped to [MinZoomFactor, MaxZoomFactor] and further limited
// so the accumulated zoom stays within [MinZoom, MaxZoom]. Non-positive or
// non-finite factors leave the view unchanged.
func Zoom(v View, factor float64, anchor Pixel) View {
	if factor == 1 || !(factor > 0) || math.IsInf(factor, 0) {
		return v
	}
	factor = math.Min(math.Max(factor, MinZoomFactor), MaxZoomFactor)

	if v.fitSX != 0 {
		cur := v.SX / v.fitSX
		next := math.Min(math.Max(cur*factor, MinZoom), MaxZoom)
		factor = next / cur
	}
	if small := math.Min(math.Abs(v.SX), math.Abs(v.SY)); small > 0 {
		factor = math.Max(factor, minScale/small)
	}
	if big := math.Max(math.Abs(v.SX), math.Abs(v.SY)); big > 0 {
		factor = math.Min(factor, maxScale/big)
	}
	if factor == 1 || !(factor > 0) {
		return v
	}

	a := v.PixelToNDC(anchor)
	v.SX *= factor
	v.SY *= factor
	v.TX = a.X - factor*(a.X-v.TX)
	v.TY = a.Y - factor*(a.Y-v.TY)
	return v
}

// Resize returns v with a new viewport. Scale and translation are unchanged
// because they live in NDC.
func Resize(v View, viewport Size) View {
	v.Viewport = viewport
	return v
}

// Point is a 2D coordinate in data or NDC space.
type Point struct {
	X, Y float64
}

// DataToNDC maps a data point to NDC.
func (v View) DataToNDC(x, y float64) Point {
	return Point{X: v.SX*x + v.TX, Y: v.SY*y + v.TY}
}

// NDCToData is the inverse of DataToNDC.
func (v View) NDCToData(p Point) Point {
	return Point{X: (p.X - v.TX) / v.SX, Y: (p.Y - v.TY) / v.SY}
}

// NDCToPixel maps NDC to window pixels.
func (v View) NDCToPixel(p Point) Pixel {
	return Pixel{
		X: (p.X + 1) * 0.5 * v.Viewport.Width,
		Y: (1 - p.Y) * 0.5 * v.Viewport.Height,
	}
}

// PixelToNDC maps window pixels to NDC.
func (v View) PixelToNDC(p Pixel) Point {
	if v.Viewport.Width <= 0 || v.Viewport.Height <= 0 {
		return Point{}
	}
	return Point{
		X: 2*p.X/v.Viewport.Width - 1,
		Y: 1 - 2*p.Y/v.Viewport.Height,
	}
}

// DataToPixel maps a data point to window pixels.
func (v View) DataToPixel(x, y float64) Pixel { return v.NDCToPixel(v.DataToNDC(x, y)) }

// PixelToData maps window pixels to a data point.
func (v View) PixelToData(p Pixel) Point { return v.NDCToData(v.PixelToNDC(p)) }

// Valid reports whether both scales are finite and non-zero and both
// translations are finite, as the float32 values the shaders receive.
func (v View) Valid() bool {
	for _, f := range [...]float64{v.SX, v.SY, v.TX, v.TY} {
		f32 := float64(float32(f))
		if math.IsNaN(f32) || math.IsInf(f32, 0) {
			return false
		}
	}
	return float32(v.SX) != 0 && float32(v.SY) != 0
}

// Uniform encodes the view for the shaders:
//
//	vec4(sx, sy, tx, ty), vec4(viewportW, viewportH, 0, 0)
func (v View) Uniform() [UniformSize]byte {
	var b [UniformSize]byte
	vals := [...]float32{
		float32(v.SX), float32(v.SY), float32(v.TX), float32(v.TY),
		float32(v.Viewport.Width), float32(v.Viewport.Height), 0, 0,
	}
	for i, f := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}
