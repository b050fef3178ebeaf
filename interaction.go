package chart

import (
	"math"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Scroll tuning for Interaction.
const (
	// ZoomPerLine is the zoom factor of one wheel line scrolled up.
	ZoomPerLine = 1.1

	// PixelsPerLine converts pixel scroll deltas to lines.
	PixelsPerLine = 40.0

	// LinesPerPage converts page scroll deltas to lines.
	LinesPerPage = 10.0
)

// Interaction turns window input into pan and zoom on a Chart:
// dragging with the primary button pans, the wheel and pinch gestures zoom
// around the pointer, and window resizes resize the chart. After each
// change it asks the window for a redraw.
//
// Event positions are in logical pixels and are scaled by the window's
// scale factor.
type Interaction struct {
	chart  *Chart
	window gpucontext.WindowProvider

	mu       sync.Mutex
	dragging bool
	dragID   int
	lastX    float64
	lastY    float64
}

// Bind registers handlers on src for c. window may be nil; then positions
// are not scaled and no redraw is requested.
//
// The richer pointer, scroll and gesture interfaces are used when src
// implements them; plain mouse callbacks serve otherwise.
func Bind(c *Chart, src gpucontext.EventSource, window gpucontext.WindowProvider) *Interaction {
	in := &Interaction{chart: c, window: window}
	if src == nil {
		return in
	}

	if ps, ok := src.(gpucontext.PointerEventSource); ok {
		ps.OnPointer(in.HandlePointer)
	} else {
		src.OnMousePress(func(b gpucontext.MouseButton, x, y float64) {
			if b == gpucontext.MouseButtonLeft {
				in.HandlePointer(gpucontext.PointerEvent{Type: gpucontext.PointerDown, PointerID: 1, X: x, Y: y, Button: gpucontext.ButtonLeft})
			}
		})
		src.OnMouseMove(func(x, y float64) {
			in.HandlePointer(gpucontext.PointerEvent{Type: gpucontext.PointerMove, PointerID: 1, X: x, Y: y})
		})
		src.OnMouseRelease(func(b gpucontext.MouseButton, x, y float64) {
			if b == gpucontext.MouseButtonLeft {
				in.HandlePointer(gpucontext.PointerEvent{Type: gpucontext.PointerUp, PointerID: 1, X: x, Y: y, Button: gpucontext.ButtonLeft})
			}
		})
	}

	if ss, ok := src.(gpucontext.ScrollEventSource); ok {
		ss.OnScrollEvent(in.HandleScroll)
	} else {
		src.OnScroll(func(dx, dy float64) {
			in.mu.Lock()
			x, y := in.lastX, in.lastY
			in.mu.Unlock()
			in.HandleScroll(gpucontext.ScrollEvent{X: x, Y: y, DeltaX: dx, DeltaY: dy, DeltaMode: gpucontext.ScrollDeltaLine})
		})
	}

	if gs, ok := src.(gpucontext.GestureEventSource); ok {
		gs.OnGesture(in.HandleGesture)
	}

	src.OnResize(in.HandleResize)
	return in
}

func (in *Interaction) scale() float64 {
	if in.window == nil {
		return 1
	}
	if s := in.window.ScaleFactor(); s > 0 {
		return s
	}
	return 1
}

func (in *Interaction) redraw() {
	if in.window != nil {
		in.window.RequestRedraw()
	}
}

// HandlePointer pans while the primary pointer is dragged.
func (in *Interaction) HandlePointer(ev gpucontext.PointerEvent) {
	s := in.scale()
	x, y := ev.X*s, ev.Y*s

	in.mu.Lock()
	var dx, dy float64
	moved := false
	switch ev.Type {
	case gpucontext.PointerDown:
		if ev.Button == gpucontext.ButtonLeft && !in.dragging {
			in.dragging, in.dragID = true, ev.PointerID
		}
	case gpucontext.PointerMove:
		if in.dragging && ev.PointerID == in.dragID {
			dx, dy, moved = x-in.lastX, y-in.lastY, true
		}
	case gpucontext.PointerUp, gpucontext.PointerCancel:
		if ev.PointerID == in.dragID {
			in.dragging = false
		}
	}
	in.lastX, in.lastY = x, y
	in.mu.Unlock()

	if moved && (dx != 0 || dy != 0) {
		in.chart.Pan(dx, dy)
		in.redraw()
	}
}

// HandleScroll zooms around the pointer; scrolling up zooms in.
func (in *Interaction) HandleScroll(ev gpucontext.ScrollEvent) {
	lines := ev.DeltaY
	switch ev.DeltaMode {
	case gpucontext.ScrollDeltaPixel:
		lines /= PixelsPerLine
	case gpucontext.ScrollDeltaPage:
		lines *= LinesPerPage
	}
	if lines == 0 {
		return
	}
	s := in.scale()
	in.chart.Zoom(math.Pow(ZoomPerLine, -lines), ev.X*s, ev.Y*s)
	in.redraw()
}

// HandleGesture applies pinch zoom around the gesture center, then pans by
// the centroid movement.
func (in *Interaction) HandleGesture(ev gpucontext.GestureEvent) {
	s := in.scale()
	changed := false
	if ev.ZoomDelta > 0 && ev.ZoomDelta != 1 {
		in.chart.Zoom(ev.ZoomDelta, ev.Center.X*s, ev.Center.Y*s)
		changed = true
	}
	if t := ev.TranslationDelta; t.X != 0 || t.Y != 0 {
		in.chart.Pan(t.X*s, t.Y*s)
		changed = true
	}
	if changed {
		in.redraw()
	}
}

// HandleResize resizes the chart to the window's physical size.
// Zero sizes, as reported for minimized windows, are ignored.
func (in *Interaction) HandleResize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s := in.scale()
	w := uint32(math.Round(float64(width) * s))
	h := uint32(math.Round(float64(height) * s))
	if err := in.chart.Resize(w, h); err != nil {
		in.chart.logger().Warn("chart: resize from window", "width", w, "height", h, "error", err)
		return
	}
	in.redraw()
}
