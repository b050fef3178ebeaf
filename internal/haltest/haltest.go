// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package haltest provides noop-backed hal fakes with fault injection for
// package tests.
package haltest

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("haltest: injected fault")

// Lookup serves the noop backend for the listed variants and reports every
// other variant as unregistered.
func Lookup(variants ...gputypes.Backend) func(gputypes.Backend) (hal.Backend, bool) {
	return func(v gputypes.Backend) (hal.Backend, bool) {
		for _, want := range variants {
			if v == want {
				return noop.API{}, true
			}
		}
		return nil, false
	}
}

// Backend is a noop hal backend that can refuse instances or expose no
// adapters. It counts instance lifetimes.
type Backend struct {
	noop.API

	CreateErr  error
	NoAdapters bool

	Created   atomic.Int32
	Destroyed atomic.Int32
}

// CreateInstance implements hal.Backend.
func (b *Backend) CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error) {
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	inner, err := b.API.CreateInstance(desc)
	if err != nil {
		return nil, err
	}
	b.Created.Add(1)
	return &instance{Instance: inner, owner: b}, nil
}

type instance struct {
	hal.Instance
	owner *Backend
}

func (i *instance) EnumerateAdapters(s hal.Surface) []hal.ExposedAdapter {
	if i.owner.NoAdapters {
		return nil
	}
	return i.Instance.EnumerateAdapters(s)
}

func (i *instance) Destroy() {
	i.owner.Destroyed.Add(1)
	i.Instance.Destroy()
}

// Open creates a noop device and queue wrapped for fault injection.
// Both are released when the test ends.
func Open(t testing.TB) (*Device, *Queue) {
	t.Helper()

	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend exposes no adapters")
	}
	od, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		od.Device.Destroy()
		inst.Destroy()
	})
	return &Device{Device: od.Device}, &Queue{Queue: od.Queue}
}

// Adapter returns the noop adapter, for surface capability queries.
func Adapter(t testing.TB) hal.ExposedAdapter {
	t.Helper()
	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)
	return inst.EnumerateAdapters(nil)[0]
}

// Device wraps a hal.Device. Non-nil error fields make the matching call fail.
type Device struct {
	hal.Device

	BufferErr   error
	TextureErr  error
	ShaderErr   error
	PipelineErr error
	MapErr      error
	WaitIdleErr error

	// PipelineFailAfter fails CreateRenderPipeline once this many pipelines
	// have been created. Zero disables it.
	PipelineFailAfter int32

	liveBuffers   atomic.Int32
	liveTextures  atomic.Int32
	livePipelines atomic.Int32
	pipelines     atomic.Int32
	destroyed     atomic.Bool
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if d.BufferErr != nil {
		return nil, d.BufferErr
	}
	b, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.liveBuffers.Add(1)
	}
	return b, err
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.liveBuffers.Add(-1)
	d.Device.DestroyBuffer(b)
}

func (d *Device) MapBuffer(b hal.Buffer, off, size uint64) (hal.BufferMapping, error) {
	if d.MapErr != nil {
		return hal.BufferMapping{}, d.MapErr
	}
	return d.Device.MapBuffer(b, off, size)
}

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if d.TextureErr != nil {
		return nil, d.TextureErr
	}
	tex, err := d.Device.CreateTexture(desc)
	if err == nil {
		d.liveTextures.Add(1)
	}
	return tex, err
}

func (d *Device) DestroyTexture(tex hal.Texture) {
	d.liveTextures.Add(-1)
	d.Device.DestroyTexture(tex)
}

func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if d.ShaderErr != nil {
		return nil, d.ShaderErr
	}
	return d.Device.CreateShaderModule(desc)
}

func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if d.PipelineErr != nil {
		return nil, d.PipelineErr
	}
	if d.PipelineFailAfter > 0 && d.pipelines.Load() >= d.PipelineFailAfter {
		return nil, ErrInjected
	}
	p, err := d.Device.CreateRenderPipeline(desc)
	if err == nil {
		d.pipelines.Add(1)
		d.livePipelines.Add(1)
	}
	return p, err
}

func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.livePipelines.Add(-1)
	d.Device.DestroyRenderPipeline(p)
}

func (d *Device) WaitIdle() error {
	if d.WaitIdleErr != nil {
		return d.WaitIdleErr
	}
	return d.Device.WaitIdle()
}

func (d *Device) Destroy() {
	d.destroyed.Store(true)
	d.Device.Destroy()
}

// LiveBuffers returns created minus destroyed buffers.
func (d *Device) LiveBuffers() int { return int(d.liveBuffers.Load()) }

// LiveTextures returns created minus destroyed textures.
func (d *Device) LiveTextures() int { return int(d.liveTextures.Load()) }

// LivePipelines returns created minus destroyed render pipelines.
func (d *Device) LivePipelines() int { return int(d.livePipelines.Load()) }

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool { return d.destroyed.Load() }

// Queue wraps a hal.Queue with fault injection and counters.
type Queue struct {
	hal.Queue

	mu         sync.Mutex
	writeErr   error
	submitErr  error
	presentErr error
	onSubmit   func()
	submits    int
	presents   int
	writes     int
}

// FailWrites makes WriteBuffer return err. Nil clears the fault.
func (q *Queue) FailWrites(err error) { q.mu.Lock(); q.writeErr = err; q.mu.Unlock() }

// FailSubmits makes Submit return err. Nil clears the fault.
func (q *Queue) FailSubmits(err error) { q.mu.Lock(); q.submitErr = err; q.mu.Unlock() }

// FailPresents makes Present return err. Nil clears the fault.
func (q *Queue) FailPresents(err error) { q.mu.Lock(); q.presentErr = err; q.mu.Unlock() }

func (q *Queue) WriteBuffer(b hal.Buffer, off uint64, data []byte) error {
	q.mu.Lock()
	err := q.writeErr
	q.writes++
	q.mu.Unlock()
	if err != nil {
		return err
	}
	return q.Queue.WriteBuffer(b, off, data)
}

// OnSubmit runs fn at the start of every Submit, outside the queue lock.
// Nil removes the hook.
func (q *Queue) OnSubmit(fn func()) { q.mu.Lock(); q.onSubmit = fn; q.mu.Unlock() }

func (q *Queue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	hook := q.onSubmit
	q.mu.Unlock()
	if hook != nil {
		hook()
	}

	q.mu.Lock()
	err := q.submitErr
	if err == nil {
		q.submits++
	}
	q.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return q.Queue.Submit(cbs)
}

func (q *Queue) Present(s hal.Surface, tex hal.SurfaceTexture, damage []image.Rectangle) error {
	q.mu.Lock()
	err := q.presentErr
	if err == nil {
		q.presents++
	}
	q.mu.Unlock()
	if err != nil {
		return err
	}
	return q.Queue.Present(s, tex, damage)
}

// Submits returns the number of successful submissions.
func (q *Queue) Submits() int { q.mu.Lock(); defer q.mu.Unlock(); return q.submits }

// Presents returns the number of successful presentations.
func (q *Queue) Presents() int { q.mu.Lock(); defer q.mu.Unlock(); return q.presents }

// Surface is a noop surface whose acquire results can be scripted.
type Surface struct {
	noop.Surface

	mu          sync.Mutex
	acquireErrs []error
	configures  int
	discards    int
	last        *hal.SurfaceConfiguration
}

// NewSurface returns an unconfigured scripted surface.
func NewSurface() *Surface { return &Surface{} }

// QueueAcquireErrors appends errors returned by the next AcquireTexture
// calls, one per call. A nil entry lets that call succeed.
func (s *Surface) QueueAcquireErrors(errs ...error) {
	s.mu.Lock()
	s.acquireErrs = append(s.acquireErrs, errs...)
	s.mu.Unlock()
}

func (s *Surface) Configure(d hal.Device, cfg *hal.SurfaceConfiguration) error {
	s.mu.Lock()
	s.configures++
	c := *cfg
	s.last = &c
	s.mu.Unlock()
	return s.Surface.Configure(d, cfg)
}

func (s *Surface) AcquireTexture(f hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	s.mu.Lock()
	var err error
	if len(s.acquireErrs) > 0 {
		err = s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Surface.AcquireTexture(f)
}

func (s *Surface) DiscardTexture(tex hal.SurfaceTexture) {
	s.mu.Lock()
	s.discards++
	s.mu.Unlock()
	s.Surface.DiscardTexture(tex)
}

// Configures returns how many times Configure was called.
func (s *Surface) Configures() int { s.mu.Lock(); defer s.mu.Unlock(); return s.configures }

// Discards returns how many textures were discarded.
func (s *Surface) Discards() int { s.mu.Lock(); defer s.mu.Unlock(); return s.discards }

// LastConfig returns the most recent configuration, or nil.
func (s *Surface) LastConfig() *hal.SurfaceConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
