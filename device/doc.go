// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package device owns the GPU objects of one chart: the hal device and
// queue, the render target surface, vertex and uniform buffers.
//
// A Device is opened from a backend.Selection, or wraps a device the host
// application already owns:
//
//	sel, err := backend.Select()
//	if err != nil {
//		return err
//	}
//	dev, err := device.Open(sel)
//	if err != nil {
//		sel.Release()
//		return err
//	}
//	defer dev.Close()
//
//	surf, err := dev.CreateSurface(device.OffscreenTarget{Width: 800, Height: 600})
//
// Errors returned by hal are classified into this package's sentinel errors.
// ErrDeviceLost is sticky: once seen, every later operation fails with it
// and the chart owning the device has to be recreated.
package device
