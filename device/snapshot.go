// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the required BytesPerRow alignment of
// texture-to-buffer copies.
const copyPitchAlignment = 256

// Snapshot reads the offscreen texture back into an image. It waits for all
// submitted work, so it reflects the last rendered frame.
func (s *Surface) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	if s.hal != nil || s.tex == nil {
		return nil, fmt.Errorf("%w: snapshot needs an offscreen target", ErrSurfaceUnsupported)
	}
	d := s.dev
	if err := d.check(); err != nil {
		return nil, err
	}

	w, h := s.width, s.height
	rowBytes := w * 4
	pitch := (rowBytes + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(pitch) * uint64(h)

	staging, err := d.createBuffer("snapshot_staging", size, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer d.destroyBuffer(staging)

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: d.cfg.label + "_snapshot"})
	if err != nil {
		return nil, d.Classify("create snapshot encoder", err)
	}
	if err := enc.BeginEncoding(d.cfg.label + "_snapshot"); err != nil {
		return nil, d.Classify("begin snapshot encoding", err)
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: s.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	enc.CopyTextureToBuffer(s.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: s.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: s.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, d.Classify("end snapshot encoding", err)
	}
	defer d.dev.FreeCommandBuffer(cmd)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return nil, d.Classify("submit snapshot", err)
	}
	if err := d.dev.WaitIdle(); err != nil {
		return nil, d.Classify("wait snapshot", err)
	}

	mapping, err := d.dev.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, d.Classify("map snapshot", err)
	}
	defer func() { _ = d.dev.UnmapBuffer(staging) }()
	if mapping.Ptr == nil {
		return nil, fmt.Errorf("device: map snapshot: nil mapping")
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), size)

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := range int(h) {
		copy(img.Pix[y*img.Stride:y*img.Stride+int(rowBytes)], src[y*int(pitch):])
	}
	if s.format == gputypes.TextureFormatBGRA8Unorm || s.format == gputypes.TextureFormatBGRA8UnormSrgb {
		swapRB(img.Pix)
	}
	return img, nil
}

// swapRB converts BGRA pixels to RGBA in place.
func swapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
