// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/internal/haltest"
	"github.com/gogpu/chart/pipeline"
	"github.com/gogpu/chart/transform"
)

type passthrough struct{}

func (passthrough) Kind() backend.Kind { return backend.KindWebGPU }
func (passthrough) PreferredFormats() []gputypes.TextureFormat {
	return []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}
}
func (passthrough) PresentMode() hal.PresentMode { return hal.PresentModeFifo }
func (passthrough) TranslateShader(_, wgsl string) (hal.ShaderSource, error) {
	return hal.ShaderSource{WGSL: wgsl}, nil
}

type fixture struct {
	dev   *device.Device
	hd    *haltest.Device
	hq    *haltest.Queue
	hs    *haltest.Surface
	surf  *device.Surface
	cache *pipeline.Cache
	view  transform.View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hd, hq := haltest.Open(t)
	dev, err := device.Wrap(hd, hq, passthrough{}, nil)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })

	hs := haltest.NewSurface()
	surf, err := dev.CreateSurface(device.SurfaceTarget{Surface: hs, Width: 320, Height: 240})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	t.Cleanup(surf.Release)

	return &fixture{
		dev: dev, hd: hd, hq: hq, hs: hs, surf: surf,
		cache: pipeline.NewCache(),
		view: transform.Fit(transform.Bounds{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10},
			transform.Size{Width: 320, Height: 240}),
	}
}

func (f *fixture) scheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(f.dev, f.surf, append([]Option{WithCache(f.cache)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Destroy)
	return s
}

// ready returns a scheduler with one small series installed.
func (f *fixture) ready(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s := f.scheduler(t, opts...)
	g := f.upload(t, geometry.Scatter([]float64{0, 1}, []float64{0, 1}))
	if err := s.Swap([]*device.GeometryBuffer{g}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	return s
}

func (f *fixture) upload(t *testing.T, in geometry.Input) *device.GeometryBuffer {
	t.Helper()
	built, err := geometry.Build(in, geometry.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	g, err := f.dev.UploadBuffer(built)
	if err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	return g
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateReady, "Ready"},
		{StateRendering, "Rendering"},
		{StateDestroyed, "Destroyed"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)

	if s.State() != StateReady {
		t.Fatalf("State() = %v, want Ready", s.State())
	}
	if err := s.Swap([]*device.GeometryBuffer{f.upload(t, geometry.Scatter([]float64{0, 1}, []float64{0, 1}))}); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() after Render = %v, want Ready", s.State())
	}
	if st := s.Stats(); st.Frames != 1 || st.Instances != 2 {
		t.Errorf("Stats() = %+v", st)
	}
	if f.hq.Submits() != 1 || f.hq.Presents() != 1 {
		t.Errorf("submits = %d, presents = %d; want 1, 1", f.hq.Submits(), f.hq.Presents())
	}

	s.Destroy()
	s.Destroy()
	if s.State() != StateDestroyed {
		t.Errorf("State() = %v, want Destroyed", s.State())
	}
	if err := s.Render(f.view); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Render after Destroy: error = %v, want ErrDestroyed", err)
	}
	if err := s.Swap(nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Swap after Destroy: error = %v, want ErrDestroyed", err)
	}
	if f.dev.Allocations() != 0 {
		t.Errorf("Allocations() after Destroy = %d, want 0", f.dev.Allocations())
	}
	if f.cache.Len() != 0 || f.hd.LivePipelines() != 0 {
		t.Error("pipeline set not released on Destroy")
	}
}

func TestZeroSchedulerNotReady(t *testing.T) {
	var s Scheduler
	if err := s.Render(transform.View{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Render() error = %v, want ErrNotReady", err)
	}
}

func TestRenderWithoutSeries(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)
	if err := s.Render(f.view); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Render() without geometry error = %v, want ErrNotReady", err)
	}

	if err := s.Swap(nil); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Render(f.view); !errors.Is(err, ErrNotReady) {
		t.Errorf("Render() with an empty staged set error = %v, want ErrNotReady", err)
	}
	if f.hq.Submits() != 0 || f.hq.Presents() != 0 || s.Stats().Frames != 0 {
		t.Error("nothing may be submitted before geometry exists")
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want Ready", s.State())
	}
}

func TestUniformCarriesView(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	view := transform.Zoom(f.view, 2, transform.Pixel{X: 10, Y: 20})
	if err := s.Render(view); err != nil {
		t.Fatalf("Render: %v", err)
	}
	m, err := f.hd.MapBuffer(s.uniform.Buffer(), 0, transform.UniformSize)
	if err != nil {
		t.Fatalf("MapBuffer: %v", err)
	}
	want := view.Uniform()
	if got := unsafe.Slice((*byte)(m.Ptr), transform.UniformSize); !bytes.Equal(got, want[:]) {
		t.Error("uniform does not hold the frame's view")
	}
}

func TestSwapAppliedAtFrameStart(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)
	x, y := []float64{0, 1, 2}, []float64{2, 1, 0}

	a := f.upload(t, geometry.Scatter(x, y))
	if err := s.Swap([]*device.GeometryBuffer{a}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render: %v", err)
	}

	b := f.upload(t, geometry.Line(x, y))
	if err := s.Swap([]*device.GeometryBuffer{b}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if a.Buffer() == nil {
		t.Fatal("old series released before the next frame")
	}
	if s.Series() != 1 {
		t.Errorf("Series() = %d, want 1", s.Series())
	}

	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if a.Buffer() != nil {
		t.Error("old series not released after the swap")
	}
	if b.Buffer() == nil {
		t.Error("new series released")
	}
	if st := s.Stats(); st.Swaps != 2 || st.Instances != 2 {
		t.Errorf("Stats() = %+v, want 2 swaps and 2 segment instances", st)
	}
	if f.dev.Allocations() != 2 {
		t.Errorf("Allocations() = %d, want uniform + one series", f.dev.Allocations())
	}
}

func TestSwapReleasesOldSetWhenWaitFails(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)
	x, y := []float64{0, 1}, []float64{1, 0}

	old := f.upload(t, geometry.Scatter(x, y))
	if err := s.Swap([]*device.GeometryBuffer{old}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render: %v", err)
	}
	next := f.upload(t, geometry.Line(x, y))
	if err := s.Swap([]*device.GeometryBuffer{next}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	f.hd.WaitIdleErr = haltest.ErrInjected
	if err := s.Render(f.view); !errors.Is(err, haltest.ErrInjected) {
		t.Fatalf("Render() error = %v, want injected fault", err)
	}
	f.hd.WaitIdleErr = nil

	if old.Buffer() != nil {
		t.Error("replaced series kept alive after a failed wait")
	}
	if f.dev.Allocations() != 2 {
		t.Errorf("Allocations() = %d, want uniform + new series", f.dev.Allocations())
	}
	if err := s.Render(f.view); err != nil {
		t.Errorf("Render() after recovery error = %v", err)
	}
}

func TestSwapTwiceReleasesStaged(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)
	x, y := []float64{0, 1}, []float64{0, 1}

	first := f.upload(t, geometry.Scatter(x, y))
	second := f.upload(t, geometry.Scatter(x, y))
	if err := s.Swap([]*device.GeometryBuffer{first}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Swap([]*device.GeometryBuffer{second}); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if first.Buffer() != nil {
		t.Error("superseded staged series not released")
	}
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if second.Buffer() == nil {
		t.Error("staged series released")
	}
}

func TestAcquireRetry(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)
	configures := f.hs.Configures()

	f.hs.QueueAcquireErrors(hal.ErrSurfaceOutdated, hal.ErrTimeout)
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	st := s.Stats()
	if st.AcquireRetries != 2 || st.Reconfigures != 1 || st.Frames != 1 {
		t.Errorf("Stats() = %+v, want 2 retries, 1 reconfigure, 1 frame", st)
	}
	if f.hs.Configures() != configures+1 {
		t.Errorf("surface configured %d more times, want 1", f.hs.Configures()-configures)
	}
}

// switching reports a preferred format that tests can change between frames.
type switching struct {
	passthrough
	mu     sync.Mutex
	format gputypes.TextureFormat
}

func (s *switching) set(f gputypes.TextureFormat) { s.mu.Lock(); s.format = f; s.mu.Unlock() }
func (s *switching) PreferredFormats() []gputypes.TextureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []gputypes.TextureFormat{s.format}
}

func TestFormatChangeRebuildsPipelines(t *testing.T) {
	hd, hq := haltest.Open(t)
	strategy := &switching{format: gputypes.TextureFormatBGRA8Unorm}
	dev, err := device.Wrap(hd, hq, strategy, nil)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	hs := haltest.NewSurface()
	surf, err := dev.CreateSurface(device.SurfaceTarget{Surface: hs, Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	t.Cleanup(surf.Release)

	cache := pipeline.NewCache()
	s, err := New(dev, surf, WithCache(cache))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	view := transform.Fit(transform.Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}, transform.Size{Width: 64, Height: 64})
	built, err := geometry.Build(geometry.Scatter([]float64{0, 1}, []float64{0, 1}), geometry.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	g, err := dev.UploadBuffer(built)
	if err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	if err := s.Swap([]*device.GeometryBuffer{g}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	strategy.set(gputypes.TextureFormatRGBA8Unorm)
	hs.QueueAcquireErrors(hal.ErrSurfaceOutdated)
	if err := s.Render(view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if surf.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Fatalf("Format() = %v after reconfigure, want RGBA8Unorm", surf.Format())
	}
	if st := s.Stats(); st.Rebuilds != 1 || st.Frames != 1 {
		t.Errorf("Stats() = %+v, want 1 rebuild and 1 frame", st)
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d sets, want only the new format", cache.Len())
	}

	if err := s.Render(view); err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if st := s.Stats(); st.Rebuilds != 1 {
		t.Errorf("Rebuilds = %d after a steady frame, want 1", st.Rebuilds)
	}

	s.Destroy()
	if cache.Len() != 0 {
		t.Errorf("cache Len() = %d after Destroy, want 0", cache.Len())
	}
}

func TestResizeDuringFrameReacquires(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)
	gen := f.surf.Generation()

	var once sync.Once
	f.hq.OnSubmit(func() {
		once.Do(func() {
			if err := f.surf.Resize(640, 480); err != nil {
				t.Errorf("Resize: %v", err)
			}
		})
	})
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if f.surf.Generation() != gen+1 {
		t.Fatalf("Generation() = %d, want %d", f.surf.Generation(), gen+1)
	}
	if f.hs.Discards() != 1 || f.hq.Presents() != 1 || f.hq.Submits() != 2 {
		t.Errorf("discards = %d, presents = %d, submits = %d; want 1, 1, 2",
			f.hs.Discards(), f.hq.Presents(), f.hq.Submits())
	}
	if st := s.Stats(); st.Stale != 1 || st.Frames != 1 {
		t.Errorf("Stats() = %+v, want 1 stale and 1 frame", st)
	}
}

func TestResizeEveryFrameGivesUp(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	var mu sync.Mutex
	w := uint32(320)
	f.hq.OnSubmit(func() {
		mu.Lock()
		w++
		width := w
		mu.Unlock()
		if err := f.surf.Resize(width, 240); err != nil {
			t.Errorf("Resize: %v", err)
		}
	})
	if err := s.Render(f.view); !errors.Is(err, device.ErrSurfaceOutOfDate) {
		t.Fatalf("Render() error = %v, want ErrSurfaceOutOfDate", err)
	}
	if f.hq.Presents() != 0 {
		t.Errorf("presents = %d, want no stale frame presented", f.hq.Presents())
	}
	if st := s.Stats(); st.Stale != MaxAcquireAttempts || st.Failed != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	f.hq.OnSubmit(nil)
	if err := s.Render(f.view); err != nil {
		t.Errorf("Render() after resizes stop error = %v", err)
	}
}

func TestResizeDuringOffscreenFrame(t *testing.T) {
	hd, hq := haltest.Open(t)
	dev, err := device.Wrap(hd, hq, passthrough{}, nil)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	surf, err := dev.CreateSurface(device.OffscreenTarget{Width: 32, Height: 32})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	t.Cleanup(surf.Release)

	f := &fixture{dev: dev, hd: hd, hq: hq, surf: surf, cache: pipeline.NewCache()}
	s := f.ready(t)
	view := transform.Fit(transform.Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}, transform.Size{Width: 32, Height: 32})

	var once sync.Once
	hq.OnSubmit(func() {
		once.Do(func() {
			if err := surf.Resize(48, 48); err != nil {
				t.Errorf("Resize: %v", err)
			}
			if hd.LiveTextures() != 2 {
				t.Errorf("live textures = %d mid-frame, want old and new", hd.LiveTextures())
			}
		})
	})
	if err := s.Render(view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if hd.LiveTextures() != 1 {
		t.Errorf("live textures = %d after the frame, want 1", hd.LiveTextures())
	}
	if st := s.Stats(); st.Stale != 1 || st.Frames != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestAcquireGivesUp(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	f.hs.QueueAcquireErrors(hal.ErrTimeout, hal.ErrTimeout, hal.ErrTimeout)
	if err := s.Render(f.view); !errors.Is(err, device.ErrAcquireTimeout) {
		t.Fatalf("Render() error = %v, want ErrAcquireTimeout", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want Ready after a transient failure", s.State())
	}
	if st := s.Stats(); st.Failed != 1 || st.AcquireRetries != MaxAcquireAttempts-1 {
		t.Errorf("Stats() = %+v", st)
	}
	if err := s.Render(f.view); err != nil {
		t.Errorf("Render() after recovery error = %v", err)
	}
}

func TestDeviceLostIsSticky(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	f.hs.QueueAcquireErrors(hal.ErrDeviceLost)
	if err := s.Render(f.view); !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("Render() error = %v, want ErrDeviceLost", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want Ready", s.State())
	}
	for range 2 {
		if err := s.Render(f.view); !errors.Is(err, device.ErrDeviceLost) {
			t.Errorf("later Render() error = %v, want ErrDeviceLost", err)
		}
	}
}

func TestSubmitFailureDiscardsFrame(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	f.hq.FailSubmits(haltest.ErrInjected)
	if err := s.Render(f.view); !errors.Is(err, haltest.ErrInjected) {
		t.Fatalf("Render() error = %v, want injected fault", err)
	}
	if f.hs.Discards() != 1 || f.hq.Presents() != 0 {
		t.Errorf("discards = %d, presents = %d; want 1, 0", f.hs.Discards(), f.hq.Presents())
	}

	f.hq.FailSubmits(nil)
	if err := s.Render(f.view); err != nil {
		t.Errorf("Render() after recovery error = %v", err)
	}
}

func TestPresentFailure(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t)

	f.hq.FailPresents(hal.ErrSurfaceOutdated)
	if err := s.Render(f.view); !errors.Is(err, device.ErrSurfaceOutOfDate) {
		t.Fatalf("Render() error = %v, want ErrSurfaceOutOfDate", err)
	}
}

func TestNewReleasesPartialState(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*fixture)
	}{
		{"pipeline", func(f *fixture) { f.hd.PipelineErr = haltest.ErrInjected }},
		{"uniform", func(f *fixture) { f.hd.BufferErr = hal.ErrDeviceOutOfMemory }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.inject(f)
			if _, err := New(f.dev, f.surf, WithCache(f.cache)); err == nil {
				t.Fatal("New() succeeded with injected fault")
			}
			if f.cache.Len() != 0 || f.hd.LivePipelines() != 0 || f.dev.Allocations() != 0 {
				t.Errorf("partial state left: sets %d, pipelines %d, buffers %d",
					f.cache.Len(), f.hd.LivePipelines(), f.dev.Allocations())
			}
		})
	}
}

func TestSchedulersShareCachedPipelines(t *testing.T) {
	f := newFixture(t)
	a := f.scheduler(t)
	b := f.scheduler(t)

	if a.set != b.set {
		t.Error("schedulers on one device and format should share pipelines")
	}
	a.Destroy()
	if f.hd.LivePipelines() != 2 {
		t.Errorf("live pipelines = %d after one Destroy, want 2", f.hd.LivePipelines())
	}
}

func TestConcurrentRender(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)
	if err := s.Swap([]*device.GeometryBuffer{f.upload(t, geometry.Line([]float64{0, 1, 2}, []float64{0, 1, 0}))}); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	const workers, frames = 8, 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range frames {
				if err := s.Render(f.view); err != nil {
					t.Errorf("Render() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := s.Stats().Frames; got != workers*frames {
		t.Errorf("Frames = %d, want %d", got, workers*frames)
	}
}

func TestBackgroundIsPremultipliedOnClear(t *testing.T) {
	f := newFixture(t)
	s := f.ready(t, WithBackground(gputypes.Color{R: 1, G: 0.5, B: 0, A: 0.5}))
	s.SetBackground(White)
	if err := s.Render(f.view); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}
