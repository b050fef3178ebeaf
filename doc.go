// Package chart renders scatter and line charts with millions of points on
// the GPU at interactive frame rates.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/chart"
//	    "github.com/gogpu/chart/geometry"
//	)
//
//	c, err := chart.New([]geometry.Input{
//	    geometry.Scatter(xs, ys).WithColors(geometry.Hex("#ff8800")),
//	}, chart.WithSize(800, 600))
//	if err != nil {
//	    return err
//	}
//	defer c.Destroy()
//
//	c.Zoom(2, 400, 300)
//	if err := c.Render(); err != nil {
//	    return err
//	}
//	img, err := c.Snapshot()
//
// # Backends
//
// New probes the explicit GPU tier (Vulkan, Metal, DX12) first and falls
// back to OpenGL ES. Chart.Backend reports the result as "webgpu" or
// "webgl". Hosts that already own a device pass it with WithDeviceProvider.
//
// # Architecture
//
// The packages form a pipeline, leaf first:
//   - backend: capability probing and per-tier shader translation
//   - geometry: validation and packing of host data into vertex bytes
//   - transform: data to device coordinates, pan and zoom
//   - device: GPU device, memory accounting, buffers and render targets
//   - pipeline: the point and line render pipelines, shared per device
//   - frame: the per-frame acquire, draw and present loop
//
// Pan and zoom only rewrite a 32-byte uniform; geometry is uploaded once
// per SetSeries.
//
// # Coordinate System
//
// Pixel positions passed to Pan, Zoom and Resize have the origin at the
// top-left with y increasing down. Data y increases up.
package chart

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
