// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/geometry"
	"github.com/gogpu/chart/internal/logging"
)

// GeometryBuffer is an uploaded series: a vertex buffer holding Count packed
// vertices. It is owned by the Device that created it.
type GeometryBuffer struct {
	Kind   geometry.Kind
	Label  string
	Count  int
	Layout geometry.Layout
	Bounds geometry.Bounds

	dev  *Device
	once sync.Once
	buf  hal.Buffer
}

// Buffer returns the hal vertex buffer, or nil after Release.
func (g *GeometryBuffer) Buffer() hal.Buffer {
	if g == nil {
		return nil
	}
	return g.buf
}

// Size returns the buffer size in bytes.
func (g *GeometryBuffer) Size() uint64 {
	return uint64(g.Count) * g.Layout.Stride
}

// Release destroys the vertex buffer. Release is idempotent.
func (g *GeometryBuffer) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.dev.destroyBuffer(g.buf)
		g.buf = nil
	})
}

// UploadBuffer copies a built series into a new vertex buffer.
//
// The buffer is created and written in one step. If the write fails the
// buffer is destroyed before returning, so a failed upload never changes
// Allocations.
func (d *Device) UploadBuffer(s *geometry.Series) (*GeometryBuffer, error) {
	if s == nil || s.Count == 0 || len(s.Data) == 0 {
		return nil, fmt.Errorf("device: upload: %w", geometry.ErrEmptyInput)
	}
	if uint64(len(s.Data)) != uint64(s.Count)*s.Layout.Stride {
		return nil, fmt.Errorf("device: upload: %d bytes for %d vertices of stride %d: %w",
			len(s.Data), s.Count, s.Layout.Stride, geometry.ErrShapeMismatch)
	}

	label := "vertices"
	if s.Label != "" {
		label = "vertices_" + s.Label
	}
	size := uint64(len(s.Data))
	buf, err := d.createBuffer(label, size, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	if err := d.queue.WriteBuffer(buf, 0, s.Data); err != nil {
		d.destroyBuffer(buf)
		return nil, d.Classify("write "+label, err)
	}

	logging.Logger().Debug("device: uploaded series",
		"label", s.Label, "kind", s.Kind, "vertices", s.Count, "bytes", size)

	return &GeometryBuffer{
		Kind:   s.Kind,
		Label:  s.Label,
		Count:  s.Count,
		Layout: s.Layout,
		Bounds: s.Bounds,
		dev:    d,
		buf:    buf,
	}, nil
}

// ReleaseBuffer releases g. It is equivalent to g.Release and accepts nil.
func (d *Device) ReleaseBuffer(g *GeometryBuffer) {
	g.Release()
}

// Uniform is a small uniform buffer rewritten every frame.
type Uniform struct {
	dev  *Device
	size uint64
	once sync.Once
	buf  hal.Buffer
}

// NewUniform allocates a uniform buffer of size bytes.
func (d *Device) NewUniform(label string, size uint64) (*Uniform, error) {
	if size == 0 {
		return nil, fmt.Errorf("device: uniform %q: %w", label, ErrInvalidSize)
	}
	buf, err := d.createBuffer(label, size, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	return &Uniform{dev: d, size: size, buf: buf}, nil
}

// Buffer returns the hal buffer, or nil after Release.
func (u *Uniform) Buffer() hal.Buffer { return u.buf }

// Size returns the buffer size in bytes.
func (u *Uniform) Size() uint64 { return u.size }

// Write replaces the buffer contents. len(data) must not exceed Size.
func (u *Uniform) Write(data []byte) error {
	if u.buf == nil {
		return ErrReleased
	}
	if uint64(len(data)) > u.size {
		return fmt.Errorf("device: uniform write of %d bytes exceeds %d", len(data), u.size)
	}
	if err := u.dev.check(); err != nil {
		return err
	}
	return u.dev.Classify("write uniform", u.dev.queue.WriteBuffer(u.buf, 0, data))
}

// Release destroys the buffer. Release is idempotent.
func (u *Uniform) Release() {
	if u == nil {
		return
	}
	u.once.Do(func() {
		u.dev.destroyBuffer(u.buf)
		u.buf = nil
	})
}
