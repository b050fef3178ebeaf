package chart

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/pipeline"
	"github.com/gogpu/chart/transform"
)

// Default chart dimensions in pixels.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// DefaultBackground is the clear color when none is given.
var DefaultBackground = geometry.RGBA(255, 255, 255, 255)

// Option configures a Chart during creation.
//
// Example:
//
//	c, err := chart.New(series,
//	    chart.WithSize(1024, 768),
//	    chart.WithBackground(geometry.Hex("#101820")),
//	    chart.WithXRange(0, 100),
//	)
type Option func(*options)

// options holds optional configuration for Chart creation.
type options struct {
	width, height uint32
	background    geometry.Color

	rangeX, rangeY *transform.Range
	outX, outY     *transform.Range

	build geometry.Options

	target     device.Target
	provider   gpucontext.DeviceProvider
	probe      []backend.ProbeOption
	deviceOpts []device.Option
	cache      *pipeline.Cache

	// err is a deferred option error reported by New.
	err error
}

func defaultOptions() options {
	return options{
		width:      DefaultWidth,
		height:     DefaultHeight,
		background: DefaultBackground,
		cache:      pipeline.Shared,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fitOptions returns the transform options for the configured ranges.
func (o *options) fitOptions() []transform.FitOption {
	var fo []transform.FitOption
	if o.rangeX != nil {
		fo = append(fo, transform.WithRangeX(o.rangeX.Min, o.rangeX.Max))
	}
	if o.rangeY != nil {
		fo = append(fo, transform.WithRangeY(o.rangeY.Min, o.rangeY.Max))
	}
	if o.outX != nil {
		fo = append(fo, transform.WithOutputX(o.outX.Min, o.outX.Max))
	}
	if o.outY != nil {
		fo = append(fo, transform.WithOutputY(o.outY.Min, o.outY.Max))
	}
	return fo
}

// WithSize sets the drawing size in pixels. For window targets the target's
// own size wins.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}

// WithBackground sets the clear color.
func WithBackground(c geometry.Color) Option {
	return func(o *options) {
		o.background = c
	}
}

// WithXRange fixes the X data range instead of fitting it to the data.
func WithXRange(lo, hi float64) Option {
	return func(o *options) {
		o.rangeX = &transform.Range{Min: lo, Max: hi}
	}
}

// WithYRange fixes the Y data range instead of fitting it to the data.
func WithYRange(lo, hi float64) Option {
	return func(o *options) {
		o.rangeY = &transform.Range{Min: lo, Max: hi}
	}
}

// WithOutputX sets the normalized device range the X data maps onto.
// WithOutputX(1, -1) mirrors the X axis.
func WithOutputX(lo, hi float64) Option {
	return func(o *options) {
		o.outX = &transform.Range{Min: lo, Max: hi}
	}
}

// WithOutputY sets the normalized device range the Y data maps onto.
func WithOutputY(lo, hi float64) Option {
	return func(o *options) {
		o.outY = &transform.Range{Min: lo, Max: hi}
	}
}

// WithPointSize sets the default point diameter in pixels.
func WithPointSize(px float32) Option {
	return func(o *options) {
		o.build.PointSize = px
	}
}

// WithLineWidth sets the default line width in pixels.
func WithLineWidth(px float32) Option {
	return func(o *options) {
		o.build.LineWidth = px
	}
}

// WithColor sets the color of series that carry no colors of their own.
func WithColor(c geometry.Color) Option {
	return func(o *options) {
		o.build.Color = c
	}
}

// WithBound sets the coordinate magnitude past which values are clamped.
func WithBound(b float64) Option {
	return func(o *options) {
		o.build.Bound = b
	}
}

// WithTarget sets where frames are drawn. The default is an offscreen
// texture of the configured size.
func WithTarget(t device.Target) Option {
	return func(o *options) {
		o.target = t
	}
}

// WithDeviceProvider draws with a device shared by the host instead of
// probing for one. The provider must expose HalDevice() and HalQueue()
// returning hal.Device and hal.Queue; it keeps ownership of both.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithProbe passes options to backend.Select.
func WithProbe(opts ...backend.ProbeOption) Option {
	return func(o *options) {
		o.probe = append(o.probe, opts...)
	}
}

// WithBackend restricts probing to one tier. backend.KindNone keeps
// auto-detection.
func WithBackend(k backend.Kind) Option {
	return WithProbe(backend.WithKind(k))
}

// WithDeviceOptions passes options to device.Open or device.Wrap.
func WithDeviceOptions(opts ...device.Option) Option {
	return func(o *options) {
		o.deviceOpts = append(o.deviceOpts, opts...)
	}
}

// WithPipelineCache sets the cache pipelines are shared through.
// The default is pipeline.Shared.
func WithPipelineCache(c *pipeline.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}
