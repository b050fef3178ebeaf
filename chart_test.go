package chart

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/internal/haltest"
	"github.com/gogpu/chart/pipeline"
	"github.com/gogpu/chart/transform"
)

var (
	testX = []float64{0, 1, 2, 3}
	testY = []float64{10, 20, 15, 30}
)

func testSeries() []geometry.Input {
	return []geometry.Input{
		geometry.Scatter(testX, testY),
		geometry.Line(testX, testY).WithColors(geometry.Hex("#ff8800")),
	}
}

// testOptions select the noop hal under the Vulkan variant.
func testOptions(extra ...Option) []Option {
	return append([]Option{
		WithSize(64, 48),
		WithProbe(backend.WithLookup(haltest.Lookup(gputypes.BackendVulkan))),
		WithPipelineCache(pipeline.NewCache()),
	}, extra...)
}

func newTestChart(t *testing.T, extra ...Option) *Chart {
	t.Helper()
	c, err := New(testSeries(), testOptions(extra...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Destroy)
	return c
}

func TestChartLifecycle(t *testing.T) {
	c := newTestChart(t)

	if c.Backend() != backend.KindWebGPU {
		t.Errorf("Backend() = %v, want webgpu", c.Backend())
	}
	if c.ID().String() == "" || c.ID() == (newTestChart(t)).ID() {
		t.Error("charts should have distinct IDs")
	}
	if err := c.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if st := c.Stats(); st.Frames != 1 || st.Instances != 4+3 {
		t.Errorf("Stats() = %v, want 1 frame with 7 instances", st)
	}

	img, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("Snapshot() bounds = %v, want 64x48", b)
	}

	c.Destroy()
	c.Destroy()
	if err := c.Render(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Render() after Destroy error = %v, want ErrDestroyed", err)
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Snapshot() after Destroy error = %v, want ErrDestroyed", err)
	}
	if err := c.SetSeries(testSeries()...); !errors.Is(err, ErrDestroyed) {
		t.Errorf("SetSeries() after Destroy error = %v, want ErrDestroyed", err)
	}
	if err := c.Resize(10, 10); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Resize() after Destroy error = %v, want ErrDestroyed", err)
	}
}

func TestChartFallsBackToWebGL(t *testing.T) {
	c, err := New(testSeries(), testOptions(
		WithProbe(backend.WithLookup(haltest.Lookup(gputypes.BackendGL))),
	)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Destroy()
	if c.Backend() != backend.KindWebGL {
		t.Errorf("Backend() = %v, want webgl", c.Backend())
	}
	if err := c.Render(); err != nil {
		t.Errorf("Render() error = %v", err)
	}
}

func TestChartNoBackend(t *testing.T) {
	_, err := New(testSeries(), testOptions(
		WithProbe(backend.WithLookup(haltest.Lookup())),
	)...)
	if !errors.Is(err, ErrNoCapableBackend) {
		t.Errorf("New() error = %v, want ErrNoCapableBackend", err)
	}
}

func TestChartInputErrorsPrecedeGPU(t *testing.T) {
	tests := []struct {
		name   string
		series []geometry.Input
		opts   []Option
		want   error
	}{
		{"no series", nil, nil, ErrNoSeries},
		{"empty", []geometry.Input{geometry.Scatter([]float64{}, []float64{})}, nil, ErrEmptyInput},
		{"shape", []geometry.Input{geometry.Scatter(testX, testY[:2])}, nil, ErrShapeMismatch},
		{"color", []geometry.Input{geometry.Scatter(testX, testY).WithColors(geometry.Hex("#zz0000"))}, nil, ErrInvalidColor},
		{"zero size", testSeries(), []Option{WithSize(0, 10)}, ErrInvalidSize},
		{"background", testSeries(), []Option{WithBackground(geometry.Hex("nope"))}, ErrInvalidColor},
		{"config", testSeries(), []Option{WithConfig(Config{Backend: "vulkan"})}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &haltest.Backend{}
			lookup := func(gputypes.Backend) (hal.Backend, bool) { return b, true }

			opts := append(testOptions(WithProbe(backend.WithLookup(lookup))), tt.opts...)
			_, err := New(tt.series, opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
			if n := b.Created.Load(); n != 0 {
				t.Errorf("%d hal instances created before input validation failed", n)
			}
		})
	}
}

func TestChartPanZoomReset(t *testing.T) {
	c := newTestChart(t)
	base := c.View()
	buffers := c.MemoryStats().Buffers

	c.Pan(10, -5)
	panned := c.View()
	if panned == base {
		t.Fatal("Pan() did not change the view")
	}

	anchor := transform.Pixel{X: 20, Y: 30}
	data := panned.PixelToData(anchor)
	c.Zoom(2, anchor.X, anchor.Y)
	after := c.View().DataToPixel(data.X, data.Y)
	if math.Abs(after.X-anchor.X) > 1e-6 || math.Abs(after.Y-anchor.Y) > 1e-6 {
		t.Errorf("zoom anchor moved to %+v, want %+v", after, anchor)
	}

	if err := c.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := c.MemoryStats().Buffers; got != buffers {
		t.Errorf("pan/zoom changed buffer count from %d to %d", buffers, got)
	}

	c.ResetView()
	if c.View() != base {
		t.Error("ResetView() did not restore the fitted view")
	}
}

func TestChartRanges(t *testing.T) {
	c := newTestChart(t, WithXRange(-10, 10), WithOutputY(1, -1))
	v := c.View()
	if v.DataX != (transform.Range{Min: -10, Max: 10}) {
		t.Errorf("DataX = %+v, want [-10, 10]", v.DataX)
	}
	if p := v.DataToNDC(0, 30); math.Abs(p.Y+1) > 1e-9 {
		t.Errorf("inverted Y output: max maps to %v, want -1", p.Y)
	}
}

func TestChartResize(t *testing.T) {
	c := newTestChart(t)
	c.Pan(5, 5)
	sx := c.View().SX

	if err := c.Resize(128, 96); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if w, h := c.Size(); w != 128 || h != 96 {
		t.Errorf("Size() = %dx%d, want 128x96", w, h)
	}
	v := c.View()
	if v.Viewport != (transform.Size{Width: 128, Height: 96}) || v.SX != sx {
		t.Errorf("View() after resize = %+v", v)
	}
	if err := c.Resize(0, 96); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Resize(0, 96) error = %v, want ErrInvalidSize", err)
	}
	if err := c.Render(); err != nil {
		t.Errorf("Render() after resize error = %v", err)
	}
	if img, err := c.Snapshot(); err != nil || img.Bounds().Dx() != 128 {
		t.Errorf("Snapshot() after resize = %v, %v", img.Bounds(), err)
	}
}

func TestChartResizeWhileRendering(t *testing.T) {
	c := newTestChart(t)

	const rounds = 40
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range rounds {
			if err := c.Render(); err != nil {
				t.Errorf("Render() error = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := range rounds {
			w, h := uint32(64), uint32(48)
			if i%2 == 0 {
				w, h = 80, 60
			}
			if err := c.Resize(w, h); err != nil {
				t.Errorf("Resize() error = %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if st := c.Stats(); st.Stale != 0 || st.Frames != rounds {
		t.Errorf("Stats() = %+v, want %d frames and none stale", st, rounds)
	}
}

func TestChartSetSeries(t *testing.T) {
	c := newTestChart(t)
	if err := c.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wide := geometry.Scatter([]float64{-100, 100}, []float64{-50, 50})
	if err := c.SetSeries(wide); err != nil {
		t.Fatalf("SetSeries() error = %v", err)
	}
	if v := c.View(); v.DataX.Min != -100 || v.DataX.Max != 100 {
		t.Errorf("untouched view not refitted: DataX = %+v", v.DataX)
	}
	if err := c.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if st := c.Stats(); st.Instances != 2 {
		t.Errorf("Instances = %d after SetSeries, want 2", st.Instances)
	}
	if got := c.MemoryStats().Buffers; got != 2 {
		t.Errorf("Buffers = %d, want uniform + one series", got)
	}

	c.Pan(3, 3)
	panned := c.View()
	if err := c.SetSeries(geometry.Line(testX, testY)); err != nil {
		t.Fatalf("SetSeries() error = %v", err)
	}
	if c.View() != panned {
		t.Error("SetSeries() should keep a panned view")
	}

	if err := c.SetSeries(geometry.Scatter(testX, testY[:1])); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("SetSeries() error = %v, want ErrShapeMismatch", err)
	}
	if err := c.SetSeries(); !errors.Is(err, ErrNoSeries) {
		t.Errorf("SetSeries() error = %v, want ErrNoSeries", err)
	}
	if err := c.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if st := c.Stats(); st.Instances != 3 {
		t.Errorf("Instances = %d, want the last valid line (3 segments)", st.Instances)
	}
}

type hostProvider struct {
	dev     *haltest.Device
	queue   *haltest.Queue
	variant gputypes.Backend
}

func (p hostProvider) Device() gpucontext.Device             { return p.dev }
func (p hostProvider) Queue() gpucontext.Queue               { return p.queue }
func (p hostProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p hostProvider) Adapter() gpucontext.Adapter           { return nil }
func (p hostProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }
func (p hostProvider) HalDevice() any                        { return hal.Device(p.dev) }
func (p hostProvider) HalQueue() any                         { return hal.Queue(p.queue) }
func (p hostProvider) HalBackend() gputypes.Backend          { return p.variant }

type bareProvider struct{ hostProvider }

func (bareProvider) HalDevice() {}

func TestChartDeviceProvider(t *testing.T) {
	hd, hq := haltest.Open(t)
	p := hostProvider{dev: hd, queue: hq, variant: gputypes.BackendGL}

	c, err := New(testSeries(), testOptions(WithDeviceProvider(p))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Backend() != backend.KindWebGL {
		t.Errorf("Backend() = %v, want the tier serving the provider's variant", c.Backend())
	}
	if err := c.Render(); err != nil {
		t.Errorf("Render() error = %v", err)
	}
	c.Destroy()
	if hd.Destroyed() {
		t.Error("Destroy() destroyed the host's device")
	}
	if hd.LiveBuffers() != 0 || hd.LiveTextures() != 0 || hd.LivePipelines() != 0 {
		t.Errorf("leaked: %d buffers, %d textures, %d pipelines",
			hd.LiveBuffers(), hd.LiveTextures(), hd.LivePipelines())
	}
}

func TestChartDeviceProviderWithoutHAL(t *testing.T) {
	hd, hq := haltest.Open(t)
	p := bareProvider{hostProvider{dev: hd, queue: hq}}
	if _, err := New(testSeries(), testOptions(WithDeviceProvider(p))...); !errors.Is(err, ErrDeviceInitFailed) {
		t.Errorf("New() error = %v, want ErrDeviceInitFailed", err)
	}
}

func TestChartUploadFailureReleasesEverything(t *testing.T) {
	hd, hq := haltest.Open(t)
	hq.FailWrites(hal.ErrDeviceOutOfMemory)
	p := hostProvider{dev: hd, queue: hq, variant: gputypes.BackendMetal}

	_, err := New(testSeries(), testOptions(WithDeviceProvider(p))...)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("New() error = %v, want ErrOutOfMemory", err)
	}
	if hd.LiveBuffers() != 0 || hd.LiveTextures() != 0 || hd.LivePipelines() != 0 {
		t.Errorf("leaked: %d buffers, %d textures, %d pipelines",
			hd.LiveBuffers(), hd.LiveTextures(), hd.LivePipelines())
	}
}
