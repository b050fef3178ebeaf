// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/internal/logging"
)

// Device and surface errors.
var (
	// ErrDeviceInitFailed is returned when the adapter cannot open a device.
	ErrDeviceInitFailed = errors.New("device: initialization failed")

	// ErrSurfaceUnsupported is returned when a target cannot be rendered to
	// with any format the backend strategy accepts.
	ErrSurfaceUnsupported = errors.New("device: surface unsupported")

	// ErrOutOfMemory is returned when a buffer or texture cannot be allocated.
	// It is fatal for the operation and leaves no partial allocation behind.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrDeviceLost is returned after the GPU device was lost.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrSurfaceOutOfDate is returned by Acquire when the surface must be
	// reconfigured before the next attempt.
	ErrSurfaceOutOfDate = errors.New("device: surface out of date")

	// ErrAcquireTimeout is returned by Acquire when no texture became
	// available in time.
	ErrAcquireTimeout = errors.New("device: acquire timeout")

	// ErrInvalidSize is returned for zero-area targets.
	ErrInvalidSize = errors.New("device: invalid size")

	// ErrReleased is returned when using a closed device, surface or buffer.
	ErrReleased = errors.New("device: released")
)

// Classify maps a hal error onto the package sentinels and records device
// loss. Unknown errors are returned unchanged.
func (d *Device) Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		if d.lost.CompareAndSwap(false, true) {
			logging.Logger().Error("device: lost", "op", op, "error", err)
		}
		return fmt.Errorf("%w: %s: %w", ErrDeviceLost, op, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %s: %w", ErrOutOfMemory, op, err)
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("%w: %s: %w", ErrSurfaceOutOfDate, op, err)
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		return fmt.Errorf("%w: %s: %w", ErrAcquireTimeout, op, err)
	case errors.Is(err, hal.ErrZeroArea):
		return fmt.Errorf("%w: %s: %w", ErrInvalidSize, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
