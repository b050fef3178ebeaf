package chart

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/uuid"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/frame"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/transform"
)

// Chart is one scatter or line chart bound to its own GPU device.
//
// Chart is safe for concurrent use. Pan, Zoom and ResetView affect the next
// Render only; Render copies the view when the frame starts.
type Chart struct {
	id uuid.UUID

	// gpu serializes work that submits to the queue.
	gpu   sync.Mutex
	dev   *device.Device
	surf  *device.Surface
	sched *frame.Scheduler

	mu        sync.Mutex
	opts      options
	bounds    geometry.Bounds
	base      transform.View
	view      transform.View
	destroyed bool
}

// New validates and packs every series, then brings up the GPU path:
// backend selection, device, surface, pipelines, upload and scheduler.
//
// Input errors are returned before any GPU object exists. On any later
// failure everything created so far is released.
func New(series []geometry.Input, opts ...Option) (*Chart, error) {
	o := newOptions(opts)
	if o.err != nil {
		return nil, o.err
	}
	if o.width == 0 || o.height == 0 {
		return nil, fmt.Errorf("chart: size %dx%d: %w", o.width, o.height, ErrInvalidSize)
	}
	bg, err := clearColor(o.background)
	if err != nil {
		return nil, fmt.Errorf("chart: background: %w", err)
	}
	built, bounds, err := buildAll(series, o.build)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	c := &Chart{
		id:     id,
		opts:   o,
		bounds: bounds,
	}
	if err := c.init(built, bg); err != nil {
		c.release()
		return nil, err
	}

	w, h := c.surf.Size()
	c.base = transform.Fit(fitBounds(bounds), transform.Size{Width: float64(w), Height: float64(h)}, o.fitOptions()...)
	c.view = c.base
	c.logger().Info("chart: created", "backend", c.dev.Kind(), "series", len(built), "width", w, "height", h)
	return c, nil
}

func (c *Chart) init(built []*geometry.Series, bg gputypes.Color) error {
	o := &c.opts
	dev, err := openDevice(o, "chart-"+c.id.String()[:8])
	if err != nil {
		return err
	}
	c.dev = dev

	target := o.target
	if target == nil {
		target = device.OffscreenTarget{Width: o.width, Height: o.height}
	}
	if c.surf, err = dev.CreateSurface(target); err != nil {
		return err
	}

	c.sched, err = frame.New(dev, c.surf, frame.WithBackground(bg), frame.WithCache(o.cache))
	if err != nil {
		return err
	}

	bufs, err := upload(dev, built)
	if err != nil {
		return err
	}
	return c.sched.Swap(bufs)
}

// openDevice adopts the host's device when a provider is set and probes for
// a backend otherwise.
func openDevice(o *options, label string) (*device.Device, error) {
	devOpts := append([]device.Option{device.WithLabel(label)}, o.deviceOpts...)
	if o.provider != nil {
		return adoptProvider(o.provider, devOpts)
	}

	sel, err := backend.Select(o.probe...)
	if err != nil {
		return nil, err
	}
	dev, err := device.Open(sel, devOpts...)
	if err != nil {
		sel.Release()
		return nil, err
	}
	return dev, nil
}

// adoptProvider wraps a host device. The provider exposes hal objects
// through HalDevice and HalQueue, and optionally names its hal variant
// through HalBackend; Vulkan is assumed otherwise.
func adoptProvider(p any, opts []device.Option) (*device.Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	type halBackend interface {
		HalBackend() gputypes.Backend
	}
	type halAdapter interface {
		HalAdapter() any
	}

	hp, ok := p.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrDeviceInitFailed)
	}
	hd, ok := hp.HalDevice().(hal.Device)
	if !ok || hd == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrDeviceInitFailed)
	}
	hq, ok := hp.HalQueue().(hal.Queue)
	if !ok || hq == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrDeviceInitFailed)
	}

	variant := gputypes.BackendVulkan
	if hb, ok := p.(halBackend); ok {
		variant = hb.HalBackend()
	}
	strategy, err := backend.StrategyFor(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceInitFailed, err)
	}

	var adapter hal.Adapter
	if ha, ok := p.(halAdapter); ok {
		adapter, _ = ha.HalAdapter().(hal.Adapter)
	}
	return device.Wrap(hd, hq, strategy, adapter, opts...)
}

func buildAll(series []geometry.Input, opts geometry.Options) ([]*geometry.Series, geometry.Bounds, error) {
	if len(series) == 0 {
		return nil, geometry.Bounds{}, ErrNoSeries
	}
	built := make([]*geometry.Series, len(series))
	var bounds geometry.Bounds
	for i, in := range series {
		s, err := geometry.Build(in, opts)
		if err != nil {
			return nil, geometry.Bounds{}, fmt.Errorf("chart: series %d: %w", i, err)
		}
		built[i] = s
		if i == 0 {
			bounds = s.Bounds
		} else {
			bounds = bounds.Union(s.Bounds)
		}
	}
	return built, bounds, nil
}

// upload creates one buffer per series. On failure nothing stays allocated.
func upload(dev *device.Device, built []*geometry.Series) ([]*device.GeometryBuffer, error) {
	bufs := make([]*device.GeometryBuffer, 0, len(built))
	for _, s := range built {
		g, err := dev.UploadBuffer(s)
		if err != nil {
			for _, b := range bufs {
				b.Release()
			}
			return nil, err
		}
		bufs = append(bufs, g)
	}
	return bufs, nil
}

func clearColor(c geometry.Color) (gputypes.Color, error) {
	u, err := c.Unit()
	if err != nil {
		return gputypes.Color{}, err
	}
	return gputypes.Color{R: u[0], G: u[1], B: u[2], A: u[3]}, nil
}

func fitBounds(b geometry.Bounds) transform.Bounds {
	return transform.Bounds{MinX: b.MinX, MaxX: b.MaxX, MinY: b.MinY, MaxY: b.MaxY}
}

func (c *Chart) logger() *slog.Logger {
	return Logger().With("chart", c.id.String())
}

// ID identifies the chart in logs.
func (c *Chart) ID() uuid.UUID { return c.id }

// Backend returns the tier the chart renders with.
func (c *Chart) Backend() backend.Kind { return c.dev.Kind() }

// Size returns the drawing size in pixels.
func (c *Chart) Size() (width, height uint32) { return c.surf.Size() }

// View returns the current view.
func (c *Chart) View() transform.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Render draws one frame with the current view.
func (c *Chart) Render() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	v := c.view
	c.mu.Unlock()

	c.gpu.Lock()
	defer c.gpu.Unlock()
	return c.sched.Render(v)
}

// Pan moves the view by a pixel delta, y down.
func (c *Chart) Pan(dx, dy float64) {
	c.mu.Lock()
	c.view = transform.Pan(c.view, dx, dy)
	c.mu.Unlock()
}

// Zoom scales the view by factor around the pixel (x, y), which stays on
// the same data point. The factor is clamped to
// [transform.MinZoomFactor, transform.MaxZoomFactor].
func (c *Chart) Zoom(factor, x, y float64) {
	c.mu.Lock()
	c.view = transform.Zoom(c.view, factor, transform.Pixel{X: x, Y: y})
	c.mu.Unlock()
}

// ResetView restores the view fitted at creation or by the last SetSeries.
func (c *Chart) ResetView() {
	c.mu.Lock()
	c.view = c.base
	c.mu.Unlock()
}

// Resize changes the drawing size. Pan and zoom are kept. A frame in
// progress finishes at the old size first.
func (c *Chart) Resize(width, height uint32) error {
	c.gpu.Lock()
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		c.gpu.Unlock()
		return ErrDestroyed
	}
	err := c.surf.Resize(width, height)
	c.gpu.Unlock()
	if err != nil {
		return err
	}
	size := transform.Size{Width: float64(width), Height: float64(height)}

	c.mu.Lock()
	c.view = transform.Resize(c.view, size)
	c.base = transform.Resize(c.base, size)
	c.mu.Unlock()
	c.logger().Debug("chart: resized", "width", width, "height", height)
	return nil
}

// SetSeries replaces every series. The new geometry is validated and
// uploaded before anything changes and is drawn from the next frame on.
//
// The view is refitted to the new data unless it was panned or zoomed.
func (c *Chart) SetSeries(series ...geometry.Input) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	opts := c.opts
	c.mu.Unlock()

	built, bounds, err := buildAll(series, opts.build)
	if err != nil {
		return err
	}

	c.gpu.Lock()
	bufs, err := upload(c.dev, built)
	if err == nil {
		if err = c.sched.Swap(bufs); err != nil {
			for _, b := range bufs {
				b.Release()
			}
		}
	}
	c.gpu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	base := transform.Fit(fitBounds(bounds), c.base.Viewport, opts.fitOptions()...)
	if c.view == c.base {
		c.view = base
	}
	c.base, c.bounds = base, bounds
	return nil
}

// Snapshot reads the last rendered frame of an offscreen chart.
func (c *Chart) Snapshot() (*image.RGBA, error) {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return nil, ErrDestroyed
	}

	c.gpu.Lock()
	defer c.gpu.Unlock()
	return c.surf.Snapshot()
}

// Stats returns frame counters.
func (c *Chart) Stats() frame.Stats { return c.sched.Stats() }

// MemoryStats returns the GPU memory accounting of the chart's device.
func (c *Chart) MemoryStats() device.Stats { return c.dev.Stats() }

// Destroy waits for the GPU and releases every resource of the chart.
// Destroy is idempotent; every later call returns ErrDestroyed.
func (c *Chart) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.mu.Unlock()

	c.gpu.Lock()
	defer c.gpu.Unlock()
	c.release()
	c.logger().Info("chart: destroyed")
}

// release tears down in reverse creation order. Fields may be nil when New
// failed part way.
func (c *Chart) release() {
	if c.sched != nil {
		c.sched.Destroy()
	}
	if c.surf != nil {
		c.surf.Release()
	}
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			c.logger().Warn("chart: close device", "error", err)
		}
	}
}
