// Package geometry turns host-supplied coordinate, color, and size arrays into
// packed vertex data ready for GPU upload.
//
// Build validates its input in a fixed order and either returns a complete
// Series or an error; it never returns partial data and never touches a GPU
// device. The packed layout is shared by every backend:
//
//	offset  0  x      float32
//	offset  4  y      float32
//	offset  8  color  unorm8x4 (straight alpha, RGBA order)
//	offset 12  size   float32 (point diameter or line width, in pixels)
//
// Coordinates are narrowed to float32. Values outside the configured bound are
// clamped rather than rejected, which is a deliberately lossy behavior for
// outliers.
package geometry
