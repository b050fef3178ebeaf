// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/internal/logging"
)

// DefaultBudgetMB is the default cap on buffer and texture memory (1 GiB).
const DefaultBudgetMB = 1024

type config struct {
	budget uint64
	label  string
	limits gputypes.Limits
}

// Option configures Open and Wrap.
type Option func(*config)

// WithBudget caps the bytes of buffers and textures the device may hold.
// Allocations beyond the cap fail with ErrOutOfMemory before reaching hal.
// Zero disables the cap.
func WithBudget(bytes uint64) Option {
	return func(c *config) { c.budget = bytes }
}

// WithLabel sets the label prefix used for hal objects and logs.
func WithLabel(label string) Option {
	return func(c *config) { c.label = label }
}

// WithLimits overrides the limits requested from the adapter.
func WithLimits(l gputypes.Limits) Option {
	return func(c *config) { c.limits = l }
}

func newConfig(opts []Option) config {
	cfg := config{
		budget: DefaultBudgetMB << 20,
		label:  "chart",
		limits: gputypes.DefaultLimits(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Device is a hal device and queue plus the bookkeeping of every buffer and
// texture allocated through it.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	dev      hal.Device
	queue    hal.Queue
	strategy backend.Strategy
	sel      *backend.Selection // nil for wrapped devices
	adapter  hal.Adapter        // nil when unknown
	cfg      config

	stats  Stats
	live   map[hal.Buffer]uint64
	lost   atomic.Bool
	closed bool
}

// Stats reports memory held by a Device.
type Stats struct {
	// Buffers is the number of live buffers.
	Buffers int

	// Textures is the number of live textures.
	Textures int

	// UsedBytes is the memory held by live buffers and textures.
	UsedBytes uint64

	// BudgetBytes is the configured cap, 0 when unlimited.
	BudgetBytes uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Memory[%d buffers, %d textures, %d KiB]", s.Buffers, s.Textures, s.UsedBytes>>10)
}

// Open opens a device on the selected adapter. The Device takes ownership of
// sel and releases it on Close; on error sel is left to the caller.
func Open(sel *backend.Selection, opts ...Option) (*Device, error) {
	if sel == nil || sel.Adapter.Adapter == nil || sel.Strategy == nil {
		return nil, fmt.Errorf("%w: incomplete backend selection", ErrDeviceInitFailed)
	}
	cfg := newConfig(opts)

	od, err := sel.Adapter.Adapter.Open(0, cfg.limits)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDeviceInitFailed, sel, err)
	}
	if od.Device == nil || od.Queue == nil {
		return nil, fmt.Errorf("%w: open %s: adapter returned no device", ErrDeviceInitFailed, sel)
	}

	d := newDevice(od.Device, od.Queue, sel.Strategy, cfg)
	d.sel = sel
	d.adapter = sel.Adapter.Adapter
	logging.Logger().Info("device: opened", "label", cfg.label, "backend", sel.String())
	return d, nil
}

// Wrap adopts a device owned by the host application. Close does not
// destroy it. adapter may be nil; surface formats are then taken from the
// strategy's preference list.
func Wrap(dev hal.Device, queue hal.Queue, strategy backend.Strategy, adapter hal.Adapter, opts ...Option) (*Device, error) {
	if dev == nil || queue == nil || strategy == nil {
		return nil, fmt.Errorf("%w: nil device, queue or strategy", ErrDeviceInitFailed)
	}
	d := newDevice(dev, queue, strategy, newConfig(opts))
	d.adapter = adapter
	return d, nil
}

func newDevice(dev hal.Device, queue hal.Queue, s backend.Strategy, cfg config) *Device {
	return &Device{
		dev:      dev,
		queue:    queue,
		strategy: s,
		cfg:      cfg,
		stats:    Stats{BudgetBytes: cfg.budget},
		live:     make(map[hal.Buffer]uint64),
	}
}

// HAL returns the underlying hal device.
func (d *Device) HAL() hal.Device { return d.dev }

// Queue returns the underlying hal queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// Strategy returns the backend strategy the device was opened with.
func (d *Device) Strategy() backend.Strategy { return d.strategy }

// Kind returns the backend tier.
func (d *Device) Kind() backend.Kind { return d.strategy.Kind() }

// Label returns the label prefix of hal objects.
func (d *Device) Label() string { return d.cfg.label }

// Lost reports whether the device has been lost.
func (d *Device) Lost() bool { return d.lost.Load() }

// Allocations returns the number of live buffers.
func (d *Device) Allocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.Buffers
}

// Stats returns a snapshot of memory usage.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// check returns the error for a device that can no longer be used.
func (d *Device) check() error {
	if d.lost.Load() {
		return ErrDeviceLost
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrReleased
	}
	return nil
}

// reserve accounts size bytes against the budget.
func (d *Device) reserve(size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrReleased
	}
	if d.cfg.budget > 0 && d.stats.UsedBytes+size > d.cfg.budget {
		return fmt.Errorf("%w: %d KiB requested, %d of %d KiB in use",
			ErrOutOfMemory, size>>10, d.stats.UsedBytes>>10, d.cfg.budget>>10)
	}
	d.stats.UsedBytes += size
	return nil
}

func (d *Device) unreserve(size uint64) {
	d.mu.Lock()
	d.stats.UsedBytes -= min(size, d.stats.UsedBytes)
	d.mu.Unlock()
}

// createBuffer allocates a tracked hal buffer.
func (d *Device) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: d.cfg.label + "_" + label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		d.unreserve(size)
		return nil, d.Classify("create buffer "+label, err)
	}

	d.mu.Lock()
	d.live[buf] = size
	d.stats.Buffers++
	d.mu.Unlock()
	return buf, nil
}

// destroyBuffer destroys a tracked hal buffer. Unknown buffers are ignored.
func (d *Device) destroyBuffer(buf hal.Buffer) {
	d.mu.Lock()
	size, ok := d.live[buf]
	if ok {
		delete(d.live, buf)
		d.stats.Buffers--
		d.stats.UsedBytes -= min(size, d.stats.UsedBytes)
	}
	d.mu.Unlock()
	if ok {
		d.dev.DestroyBuffer(buf)
	}
}

func (d *Device) createTexture(desc *hal.TextureDescriptor, size uint64) (hal.Texture, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	tex, err := d.dev.CreateTexture(desc)
	if err != nil {
		d.unreserve(size)
		return nil, d.Classify("create texture "+desc.Label, err)
	}
	d.mu.Lock()
	d.stats.Textures++
	d.mu.Unlock()
	return tex, nil
}

func (d *Device) destroyTexture(tex hal.Texture, size uint64) {
	d.dev.DestroyTexture(tex)
	d.mu.Lock()
	d.stats.Textures--
	d.stats.UsedBytes -= min(size, d.stats.UsedBytes)
	d.mu.Unlock()
}

// WaitIdle blocks until the GPU finished all submitted work.
func (d *Device) WaitIdle() error {
	if err := d.check(); err != nil {
		return err
	}
	return d.Classify("wait idle", d.dev.WaitIdle())
}

// Close waits for the GPU, destroys buffers still alive, and destroys the
// device if it was opened by Open. Close is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	leaked := d.live
	d.live = make(map[hal.Buffer]uint64)
	d.stats.Buffers = 0
	d.mu.Unlock()

	var errs []error
	if !d.lost.Load() {
		if err := d.dev.WaitIdle(); err != nil {
			errs = append(errs, fmt.Errorf("wait idle: %w", err))
		}
	}
	if len(leaked) > 0 {
		logging.Logger().Warn("device: destroying unreleased buffers", "label", d.cfg.label, "count", len(leaked))
		for buf := range leaked {
			d.dev.DestroyBuffer(buf)
		}
	}
	if d.sel != nil {
		d.dev.Destroy()
		d.sel.Release()
	}
	logging.Logger().Debug("device: closed", "label", d.cfg.label)
	return errors.Join(errs...)
}
