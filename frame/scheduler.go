// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/internal/logging"
	"github.com/gogpu/chart/pipeline"
	"github.com/gogpu/chart/transform"
)

// MaxAcquireAttempts bounds how often one frame tries to acquire a texture.
const MaxAcquireAttempts = 3

// White is the default clear color.
var White = gputypes.Color{R: 1, G: 1, B: 1, A: 1}

type options struct {
	background gputypes.Color
	cache      *pipeline.Cache
}

// Option configures a Scheduler.
type Option func(*options)

// WithBackground sets the clear color (straight alpha).
func WithBackground(c gputypes.Color) Option {
	return func(o *options) { o.background = c }
}

// WithCache sets the pipeline cache. The default is pipeline.Shared.
func WithCache(c *pipeline.Cache) Option {
	return func(o *options) { o.cache = c }
}

type submission struct {
	cmd   hal.CommandBuffer
	index uint64
}

// Scheduler renders frames of one chart.
//
// Scheduler is safe for concurrent use; frames are serialized.
type Scheduler struct {
	mu    sync.Mutex
	state State

	dev  *device.Device
	surf *device.Surface

	cache   *pipeline.Cache
	set     *pipeline.Set
	uniform *device.Uniform
	bind    hal.BindGroup

	background gputypes.Color
	series     []*device.GeometryBuffer
	pending    []*device.GeometryBuffer
	staged     bool
	inflight   []submission
	stats      Stats
}

// New creates the per-chart GPU state and moves the scheduler to Ready.
// The scheduler does not own dev or surf.
func New(dev *device.Device, surf *device.Surface, opts ...Option) (*Scheduler, error) {
	o := options{background: White, cache: pipeline.Shared}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		dev:        dev,
		surf:       surf,
		cache:      o.cache,
		background: o.background,
	}
	if err := s.init(); err != nil {
		s.releaseGPU()
		return nil, err
	}
	s.state = StateReady
	return s, nil
}

func (s *Scheduler) init() error {
	set, err := s.cache.Acquire(s.dev, s.surf.Format())
	if err != nil {
		return err
	}
	s.set = set

	s.uniform, err = s.dev.NewUniform("view_uniform", transform.UniformSize)
	if err != nil {
		return err
	}
	s.bind, err = s.set.NewBindGroup(s.uniform)
	return err
}

// releaseGPU frees everything init created. Caller holds mu or owns s.
func (s *Scheduler) releaseGPU() {
	if s.bind != nil {
		s.set.DestroyBindGroup(s.bind)
		s.bind = nil
	}
	s.uniform.Release()
	s.uniform = nil
	if s.set != nil {
		s.cache.Release(s.set)
		s.set = nil
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Series returns the number of series drawn each frame, counting a staged
// swap as already applied.
func (s *Scheduler) Series() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged {
		return len(s.pending)
	}
	return len(s.series)
}

// SetBackground changes the clear color from the next frame on.
func (s *Scheduler) SetBackground(c gputypes.Color) {
	s.mu.Lock()
	s.background = c
	s.mu.Unlock()
}

// Swap stages a new render set. It is applied at the start of the next frame
// and the previous buffers are released once the GPU is done with them. The
// scheduler owns the buffers from now on. Staging twice before a frame
// releases the first staged set.
func (s *Scheduler) Swap(series []*device.GeometryBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return ErrDestroyed
	}
	if s.staged {
		releaseAll(s.pending)
	}
	s.pending = append([]*device.GeometryBuffer(nil), series...)
	s.staged = true
	return nil
}

// Render draws one frame with view. The view is copied, so later changes
// by the caller affect only later frames.
func (s *Scheduler) Render(view transform.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateReady:
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, s.state)
	}
	if s.dev.Lost() {
		return device.ErrDeviceLost
	}
	n := len(s.series)
	if s.staged {
		n = len(s.pending)
	}
	if n == 0 {
		return fmt.Errorf("%w: no geometry", ErrNotReady)
	}

	start := time.Now()
	s.state = StateRendering
	err := s.render(view)
	s.state = StateReady

	if err != nil {
		s.stats.Failed++
		logging.Logger().Warn("frame: render failed", "error", err)
		return err
	}
	s.stats.Frames++
	s.stats.LastFrame = time.Since(start)
	return nil
}

func (s *Scheduler) render(view transform.View) error {
	s.reclaim()
	if err := s.applySwap(); err != nil {
		return err
	}

	u := view.Uniform()
	if err := s.uniform.Write(u[:]); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		f, err := s.acquire()
		if err != nil {
			return err
		}
		if f.Format != s.set.Format {
			if err := s.rebind(f.Format); err != nil {
				s.surf.Discard(f)
				return err
			}
		}

		if err := s.encode(f); err != nil {
			s.surf.Discard(f)
			return err
		}
		if s.surf.Current(f) {
			return s.surf.Present(f)
		}

		// The surface was resized after acquire; the frame targets the old
		// configuration.
		s.surf.Discard(f)
		s.stats.Stale++
		if attempt >= MaxAcquireAttempts {
			return fmt.Errorf("%w: resized during %d frames", device.ErrSurfaceOutOfDate, attempt)
		}
		logging.Logger().Debug("frame: stale frame discarded", "attempt", attempt, "generation", f.Generation)
	}
}

// applySwap installs the staged series. The old buffers may still be read
// by a submitted frame, so the GPU is drained before releasing them. A
// failed wait means the device is gone and they are released regardless.
func (s *Scheduler) applySwap() error {
	if !s.staged {
		return nil
	}
	old := s.series
	s.series, s.pending, s.staged = s.pending, nil, false
	s.stats.Swaps++
	if len(old) == 0 {
		return nil
	}
	err := s.dev.WaitIdle()
	if err == nil {
		s.reclaim()
	}
	releaseAll(old)
	return err
}

// rebind swaps the pipeline set for one matching a new surface format.
// The old set stays in place if the new one cannot be built.
func (s *Scheduler) rebind(format gputypes.TextureFormat) error {
	set, err := s.cache.Acquire(s.dev, format)
	if err != nil {
		return err
	}
	bind, err := set.NewBindGroup(s.uniform)
	if err != nil {
		s.cache.Release(set)
		return err
	}

	s.set.DestroyBindGroup(s.bind)
	s.cache.Release(s.set)
	s.set, s.bind = set, bind
	s.stats.Rebuilds++
	logging.Logger().Debug("frame: pipelines rebuilt", "format", format)
	return nil
}

// acquire gets a target texture, reconfiguring out-of-date surfaces and
// retrying timeouts up to MaxAcquireAttempts.
func (s *Scheduler) acquire() (*device.Frame, error) {
	for attempt := 1; ; attempt++ {
		f, err := s.surf.Acquire()
		if err == nil {
			return f, nil
		}
		if attempt >= MaxAcquireAttempts {
			return nil, fmt.Errorf("frame: acquire failed after %d attempts: %w", attempt, err)
		}

		switch {
		case errors.Is(err, device.ErrSurfaceOutOfDate):
			s.stats.Reconfigures++
			if rerr := s.surf.Reconfigure(); rerr != nil {
				return nil, fmt.Errorf("frame: reconfigure: %w", rerr)
			}
		case errors.Is(err, device.ErrAcquireTimeout):
		default:
			return nil, err
		}
		s.stats.AcquireRetries++
		logging.Logger().Warn("frame: acquire retry", "attempt", attempt, "error", err)
	}
}

func (s *Scheduler) encode(f *device.Frame) error {
	hd := s.dev.HAL()
	label := s.dev.Label()

	enc, err := hd.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_frame_encoder"})
	if err != nil {
		return s.dev.Classify("create command encoder", err)
	}
	if err := enc.BeginEncoding(label + "_frame"); err != nil {
		return s.dev.Classify("begin encoding", err)
	}

	bg := s.background
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label + "_frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       f.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: bg.R * bg.A, G: bg.G * bg.A, B: bg.B * bg.A, A: bg.A},
		}},
	})
	rp.SetViewport(0, 0, float32(f.Width), float32(f.Height), 0, 1)
	rp.SetBindGroup(0, s.bind, nil)

	var instances uint64
	for _, g := range s.series {
		instances += uint64(s.set.Record(rp, g))
	}
	rp.End()

	cmd, err := enc.EndEncoding()
	if err != nil {
		return s.dev.Classify("end encoding", err)
	}
	index, err := s.dev.Queue().Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		hd.FreeCommandBuffer(cmd)
		return s.dev.Classify("submit", err)
	}
	s.inflight = append(s.inflight, submission{cmd: cmd, index: index})
	s.stats.Instances = instances
	return nil
}

// reclaim frees command buffers of completed submissions.
func (s *Scheduler) reclaim() {
	if len(s.inflight) == 0 {
		return
	}
	done := s.dev.Queue().PollCompleted()
	keep := s.inflight[:0]
	for _, sub := range s.inflight {
		if sub.index <= done {
			s.dev.HAL().FreeCommandBuffer(sub.cmd)
			continue
		}
		keep = append(keep, sub)
	}
	clear(s.inflight[len(keep):])
	s.inflight = keep
}

// Destroy waits for the GPU, then releases all geometry, the uniform, and
// the pipeline reference. Every later call returns ErrDestroyed. The device
// and surface are left to their owner.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return
	}

	if !s.dev.Lost() {
		if err := s.dev.WaitIdle(); err != nil {
			logging.Logger().Warn("frame: wait idle on destroy", "error", err)
		}
	}
	for _, sub := range s.inflight {
		s.dev.HAL().FreeCommandBuffer(sub.cmd)
	}
	s.inflight = nil

	releaseAll(s.series)
	releaseAll(s.pending)
	s.series, s.pending, s.staged = nil, nil, false
	s.releaseGPU()
	s.state = StateDestroyed
	logging.Logger().Debug("frame: scheduler destroyed", "frames", s.stats.Frames)
}

func releaseAll(bufs []*device.GeometryBuffer) {
	for _, g := range bufs {
		g.Release()
	}
}
