// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/internal/logging"
)

// Target describes what a Surface renders into.
type Target interface {
	size() (width, height uint32)
}

// WindowTarget renders into a native window through a hal surface created
// from platform handles.
type WindowTarget struct {
	Display uintptr
	Window  uintptr
	Width   uint32
	Height  uint32
}

func (t WindowTarget) size() (uint32, uint32) { return t.Width, t.Height }

// SurfaceTarget renders into a hal surface the host already created.
// The Surface configures it but never destroys it.
type SurfaceTarget struct {
	Surface hal.Surface
	Width   uint32
	Height  uint32
}

func (t SurfaceTarget) size() (uint32, uint32) { return t.Width, t.Height }

// OffscreenTarget renders into a device texture that can be read back with
// Surface.Snapshot.
type OffscreenTarget struct {
	Width  uint32
	Height uint32
}

func (t OffscreenTarget) size() (uint32, uint32) { return t.Width, t.Height }

const colorUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc

// Surface is the render target of a chart.
//
// Resize and Acquire are serialized: a resize in progress blocks acquires
// until the surface is reconfigured. A frame acquired before a resize is
// stale afterwards; Current reports it.
type Surface struct {
	mu  sync.Mutex
	dev *Device

	hal      hal.Surface // nil for offscreen targets
	owned    bool
	format   gputypes.TextureFormat
	present  hal.PresentMode
	alpha    hal.CompositeAlphaMode
	width    uint32
	height   uint32
	gen      uint64
	released bool

	// Offscreen only.
	tex      hal.Texture
	view     hal.TextureView
	texSize  uint64
	inflight int
	retired  []offscreenTexture
}

// offscreenTexture is a texture replaced by a resize while a frame still
// renders into it.
type offscreenTexture struct {
	tex  hal.Texture
	view hal.TextureView
	size uint64
}

// Frame is a texture acquired for one frame.
type Frame struct {
	View       hal.TextureView
	Width      uint32
	Height     uint32
	Format     gputypes.TextureFormat
	Generation uint64

	surf    *Surface
	tex     hal.SurfaceTexture // nil for offscreen frames
	ownView bool
	done    bool
}

// CreateSurface creates a surface for target and configures it.
func (d *Device) CreateSurface(target Target) (*Surface, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrSurfaceUnsupported)
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	w, h := target.size()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}

	s := &Surface{dev: d, width: w, height: h, present: d.strategy.PresentMode()}
	switch t := target.(type) {
	case OffscreenTarget:
		s.format = d.strategy.PreferredFormats()[0]
		if err := s.createTexture(); err != nil {
			return nil, err
		}
		logging.Logger().Debug("device: offscreen surface", "width", w, "height", h, "format", s.format)
		return s, nil

	case WindowTarget:
		if d.sel == nil || d.sel.Instance == nil {
			return nil, fmt.Errorf("%w: window targets need a device opened from a backend selection", ErrSurfaceUnsupported)
		}
		hs, err := d.sel.Instance.CreateSurface(t.Display, t.Window)
		if err != nil {
			return nil, fmt.Errorf("%w: create surface: %w", ErrSurfaceUnsupported, err)
		}
		s.hal, s.owned = hs, true

	case SurfaceTarget:
		if t.Surface == nil {
			return nil, fmt.Errorf("%w: nil hal surface", ErrSurfaceUnsupported)
		}
		s.hal = t.Surface

	default:
		return nil, fmt.Errorf("%w: target %T", ErrSurfaceUnsupported, target)
	}

	if err := s.negotiate(); err != nil {
		s.destroyHAL()
		return nil, err
	}
	if err := s.configure(); err != nil {
		s.destroyHAL()
		return nil, err
	}
	logging.Logger().Debug("device: window surface",
		"width", w, "height", h, "format", s.format, "present", s.present)
	return s, nil
}

// negotiate picks the first strategy format the surface supports.
func (s *Surface) negotiate() error {
	prefs := s.dev.strategy.PreferredFormats()
	s.alpha = gputypes.CompositeAlphaModeOpaque
	if s.dev.adapter == nil {
		s.format = prefs[0]
		return nil
	}

	caps := s.dev.adapter.SurfaceCapabilities(s.hal)
	if caps == nil {
		return fmt.Errorf("%w: adapter cannot present to this surface", ErrSurfaceUnsupported)
	}
	i := slices.IndexFunc(prefs, func(f gputypes.TextureFormat) bool {
		return slices.Contains(caps.Formats, f)
	})
	if i < 0 {
		return fmt.Errorf("%w: none of %v in %v", ErrSurfaceUnsupported, prefs, caps.Formats)
	}
	s.format = prefs[i]
	if len(caps.PresentModes) > 0 && !slices.Contains(caps.PresentModes, s.present) {
		s.present = caps.PresentModes[0]
	}
	if len(caps.AlphaModes) > 0 && !slices.Contains(caps.AlphaModes, s.alpha) {
		s.alpha = caps.AlphaModes[0]
	}
	return nil
}

func (s *Surface) configure() error {
	err := s.hal.Configure(s.dev.dev, &hal.SurfaceConfiguration{
		Width:       s.width,
		Height:      s.height,
		Format:      s.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: s.present,
		AlphaMode:   s.alpha,
	})
	if err != nil {
		err = s.dev.Classify("configure surface", err)
		if !s.dev.Lost() {
			return fmt.Errorf("%w: %w", ErrSurfaceUnsupported, err)
		}
		return err
	}
	s.gen++
	return nil
}

func (s *Surface) createTexture() error {
	size := uint64(s.width) * uint64(s.height) * 4
	tex, err := s.dev.createTexture(&hal.TextureDescriptor{
		Label:         s.dev.cfg.label + "_offscreen",
		Size:          hal.Extent3D{Width: s.width, Height: s.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        s.format,
		Usage:         colorUsage,
	}, size)
	if err != nil {
		return err
	}
	view, err := s.dev.dev.CreateTextureView(tex, viewDesc(s.dev.cfg.label+"_offscreen_view", s.format))
	if err != nil {
		s.dev.destroyTexture(tex, size)
		return s.dev.Classify("create offscreen view", err)
	}
	s.tex, s.view, s.texSize = tex, view, size
	s.gen++
	return nil
}

func (s *Surface) destroyTexture() {
	if s.view != nil {
		s.dev.dev.DestroyTextureView(s.view)
		s.view = nil
	}
	if s.tex != nil {
		s.dev.destroyTexture(s.tex, s.texSize)
		s.tex = nil
	}
}

// dropRetired destroys replaced offscreen textures once no frame renders
// into them. Caller holds mu.
func (s *Surface) dropRetired() {
	if s.inflight > 0 || len(s.retired) == 0 {
		return
	}
	if err := s.dev.WaitIdle(); err != nil && !s.dev.Lost() {
		logging.Logger().Warn("device: wait idle before texture release", "error", err)
	}
	for _, t := range s.retired {
		s.dev.dev.DestroyTextureView(t.view)
		s.dev.destroyTexture(t.tex, t.size)
	}
	clear(s.retired)
	s.retired = s.retired[:0]
}

func (s *Surface) destroyHAL() {
	if s.hal == nil {
		return
	}
	s.hal.Unconfigure(s.dev.dev)
	if s.owned {
		s.hal.Destroy()
	}
	s.hal = nil
}

func viewDesc(label string, format gputypes.TextureFormat) *hal.TextureViewDescriptor {
	return &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
}

// Format returns the negotiated texture format.
func (s *Surface) Format() gputypes.TextureFormat { return s.format }

// Offscreen reports whether the surface renders into a device texture.
func (s *Surface) Offscreen() bool { return s.hal == nil }

// Size returns the current size in pixels.
func (s *Surface) Size() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Generation increases on every successful configuration. State that
// depends on the surface size or format is stale when it changes.
func (s *Surface) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Resize reconfigures the surface. A zero area is rejected with
// ErrInvalidSize and the surface keeps its previous size.
func (s *Surface) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if err := s.dev.check(); err != nil {
		return err
	}
	if width == s.width && height == s.height {
		return nil
	}

	prevW, prevH := s.width, s.height
	s.width, s.height = width, height
	var err error
	if s.hal == nil {
		old := offscreenTexture{tex: s.tex, view: s.view, size: s.texSize}
		if err = s.createTexture(); err == nil {
			s.retired = append(s.retired, old)
			s.dropRetired()
		}
	} else {
		err = s.configure()
	}
	if err != nil {
		s.width, s.height = prevW, prevH
		return err
	}
	logging.Logger().Debug("device: surface resized", "width", width, "height", height, "generation", s.gen)
	return nil
}

// Reconfigure applies the current configuration again. It is the recovery
// step after ErrSurfaceOutOfDate.
func (s *Surface) Reconfigure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.hal == nil {
		return nil
	}
	prev := s.format
	if err := s.negotiate(); err != nil {
		return err
	}
	if s.format != prev {
		logging.Logger().Info("device: surface format changed", "from", prev, "to", s.format)
	}
	return s.configure()
}

// Acquire returns the texture to render the next frame into.
//
// A suboptimal window texture is discarded and reported as
// ErrSurfaceOutOfDate so the caller reconfigures before retrying.
func (s *Surface) Acquire() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	if err := s.dev.check(); err != nil {
		return nil, err
	}

	f := &Frame{
		Width:      s.width,
		Height:     s.height,
		Format:     s.format,
		Generation: s.gen,
		surf:       s,
	}
	if s.hal == nil {
		f.View = s.view
		s.inflight++
		return f, nil
	}

	acq, err := s.hal.AcquireTexture(nil)
	if err != nil {
		return nil, s.dev.Classify("acquire", err)
	}
	if acq == nil || acq.Texture == nil {
		return nil, fmt.Errorf("%w: acquire returned no texture", ErrAcquireTimeout)
	}
	if acq.Suboptimal {
		s.hal.DiscardTexture(acq.Texture)
		return nil, fmt.Errorf("%w: suboptimal", ErrSurfaceOutOfDate)
	}

	view, err := s.dev.dev.CreateTextureView(acq.Texture, viewDesc(s.dev.cfg.label+"_frame_view", s.format))
	if err != nil {
		s.hal.DiscardTexture(acq.Texture)
		return nil, s.dev.Classify("create frame view", err)
	}
	f.View, f.tex, f.ownView = view, acq.Texture, true
	return f, nil
}

// Present shows a rendered frame. Offscreen frames have nothing to present.
func (s *Surface) Present(f *Frame) error {
	if f == nil || f.done {
		return nil
	}
	f.done = true
	defer f.releaseView()
	if f.tex == nil {
		s.finishOffscreen()
		return nil
	}
	if err := s.dev.queue.Present(s.hal, f.tex, nil); err != nil {
		return s.dev.Classify("present", err)
	}
	return nil
}

// Discard drops a frame without presenting it.
func (s *Surface) Discard(f *Frame) {
	if f == nil || f.done {
		return
	}
	f.done = true
	if f.tex == nil {
		s.finishOffscreen()
	} else if s.hal != nil {
		s.hal.DiscardTexture(f.tex)
	}
	f.releaseView()
}

// Current reports whether f was acquired at the surface's current
// generation. A stale frame must be discarded, not presented.
func (s *Surface) Current(f *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released && f.Generation == s.gen
}

func (s *Surface) finishOffscreen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.dropRetired()
}

func (f *Frame) releaseView() {
	if f.ownView && f.View != nil {
		f.surf.dev.dev.DestroyTextureView(f.View)
	}
	f.View = nil
}

// Release unconfigures and destroys the surface. Release is idempotent.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.inflight = 0
	s.dropRetired()
	s.destroyTexture()
	s.destroyHAL()
}
