package overlay

import (
	"image/color"
	"log"

	"screen-chat-llm/src/geometry"
)

// State is the phase of one overlay session.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool { return s == StateCompleted || s == StateCancelled }

type Button int

const (
	ButtonPrimary Button = iota + 1
	ButtonSecondary
)

type EventKind int

const (
	PointerDown EventKind = iota + 1
	PointerMove
	PointerUp
	KeyCancel
)

// Event is one input event from a surface. Pos is in global logical
// coordinates: surfaces add the virtual-geometry origin to window-local positions.
type Event struct {
	Kind   EventKind
	Button Button
	Pos    geometry.Point
}

// SelectionResult is produced once per completed session.
type SelectionResult struct {
	Logical geometry.Rect // normalized
	Pixel   geometry.PixelRect
}

var (
	DimColor    = color.NRGBA{R: 0, G: 0, B: 0, A: 110}
	BorderColor = color.NRGBA{R: 255, G: 255, B: 255, A: 220}
)

const BorderWidth = 2

// Session is the selection state machine. It is not safe for concurrent use;
// the selector drives it from a single goroutine.
type Session struct {
	virtual geometry.Rect
	dpr     float64
	state   State
	start   geometry.Point
	current geometry.Point
	result  SelectionResult
	done    chan struct{}
}

// NewSession starts an idle session over virtual. A non-positive dpr is treated as 1.
func NewSession(virtual geometry.Rect, dpr float64) *Session {
	if dpr <= 0 {
		dpr = 1
	}
	return &Session{
		virtual: geometry.Normalize(virtual),
		dpr:     dpr,
		done:    make(chan struct{}),
	}
}

func (s *Session) State() State { return s.state }

// Done is closed when the session reaches Completed or Cancelled.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the selection, or false when the session did not complete.
func (s *Session) Result() (SelectionResult, bool) {
	if s.state != StateCompleted {
		return SelectionResult{}, false
	}
	return s.result, true
}

// Handle applies ev and reports whether the frame changed.
func (s *Session) Handle(ev Event) bool {
	if s.state.Terminal() {
		return false
	}

	switch ev.Kind {
	case KeyCancel:
		log.Printf("OVERLAY: cancel in state %s", s.state)
		s.finish(StateCancelled)
		return true

	case PointerDown:
		switch ev.Button {
		case ButtonPrimary:
			s.state = StateDragging
			s.start = ev.Pos
			s.current = ev.Pos
			return true
		case ButtonSecondary:
			log.Printf("OVERLAY: quick-select whole virtual screen %v", s.virtual)
			s.complete(s.virtual)
			return true
		}

	case PointerMove:
		if s.state == StateDragging {
			s.current = ev.Pos
			return true
		}

	case PointerUp:
		if s.state == StateDragging && ev.Button == ButtonPrimary {
			s.current = ev.Pos
			s.complete(geometry.RectFromPoints(s.start, s.current))
			return true
		}
	}
	return false
}

func (s *Session) complete(logical geometry.Rect) {
	s.result = SelectionResult{
		Logical: geometry.Normalize(logical),
		Pixel:   geometry.LogicalToPixel(logical, s.virtual, s.dpr),
	}
	log.Printf("OVERLAY: selection logical=%v pixel=%v dpr=%g", s.result.Logical, s.result.Pixel, s.dpr)
	s.finish(StateCompleted)
}

func (s *Session) finish(st State) {
	s.state = st
	close(s.done)
}

// Frame describes what the surface should paint for the current state.
func (s *Session) Frame() Frame {
	f := Frame{
		Bounds:      s.virtual,
		Dim:         DimColor,
		Border:      BorderColor,
		BorderWidth: BorderWidth,
	}
	if s.state == StateDragging {
		cut := geometry.Normalize(geometry.RectFromPoints(s.start, s.current))
		f.Cutout = &cut
	}
	return f
}

// Frame is a paint description. Bounds and Cutout are global logical rects;
// use Local and DimRegions for window-local painting.
type Frame struct {
	Bounds      geometry.Rect
	Dim         color.NRGBA
	Cutout      *geometry.Rect
	Border      color.NRGBA
	BorderWidth float64
}

// Local translates a global rect into surface-local coordinates.
func (f Frame) Local(r geometry.Rect) geometry.Rect {
	return geometry.Rect{X: r.X - f.Bounds.X, Y: r.Y - f.Bounds.Y, W: r.W, H: r.H}
}

// LocalCutout returns the cutout clipped to the surface, in local coordinates.
func (f Frame) LocalCutout() (geometry.Rect, bool) {
	if f.Cutout == nil {
		return geometry.Rect{}, false
	}
	c := f.Local(*f.Cutout)
	x0 := clamp(c.X, 0, f.Bounds.W)
	y0 := clamp(c.Y, 0, f.Bounds.H)
	x1 := clamp(c.X+c.W, 0, f.Bounds.W)
	y1 := clamp(c.Y+c.H, 0, f.Bounds.H)
	return geometry.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// DimRegions covers everything outside the cutout with at most four local
// rects, for backends that cannot clear a region of an already dimmed layer.
func (f Frame) DimRegions() []geometry.Rect {
	w, h := f.Bounds.W, f.Bounds.H
	c, ok := f.LocalCutout()
	if !ok {
		return []geometry.Rect{{X: 0, Y: 0, W: w, H: h}}
	}
	candidates := []geometry.Rect{
		{X: 0, Y: 0, W: w, H: c.Y},
		{X: 0, Y: c.Y + c.H, W: w, H: h - (c.Y + c.H)},
		{X: 0, Y: c.Y, W: c.X, H: c.H},
		{X: c.X + c.W, Y: c.Y, W: w - (c.X + c.W), H: c.H},
	}
	regions := candidates[:0]
	for _, r := range candidates {
		if r.W > 0 && r.H > 0 {
			regions = append(regions, r)
		}
	}
	return regions
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
