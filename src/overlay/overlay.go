package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync/atomic"

	"screen-chat-llm/src/geometry"
)

// ErrSelectionActive is returned when Select is called while another
// selection is still open.
var ErrSelectionActive = errors.New("a region selection is already active")

// Scene is what one selection runs over: the virtual geometry in logical
// units, the device pixel ratio, and an optional frozen screenshot to paint
// under the dimming layer.
type Scene struct {
	Virtual    geometry.Rect
	DPR        float64
	Background image.Image
}

// Selector defines a synchronous region-selection API owned by the event loop.
// The call blocks until the user completes or cancels the selection.
// Returns (result, cancelled, error). If cancelled is true, result is undefined and err is nil.
type Selector interface {
	Select(ctx context.Context, scene Scene) (SelectionResult, bool, error)
}

// Surface is a platform window covering the virtual screen.
type Surface interface {
	// Open shows the surface over virtual, painting background if non-nil.
	Open(virtual geometry.Rect, background image.Image) error
	// Next pumps pending platform input until one event is available.
	Next(ctx context.Context) (Event, error)
	// Paint redraws the surface from f.
	Paint(f Frame)
	// Close hides and releases the surface.
	Close() error
}

// SurfaceFactory creates a fresh surface per selection.
type SurfaceFactory func() Surface

type modalSelector struct {
	newSurface SurfaceFactory
	active     atomic.Bool
}

// NewSelector returns a Selector that runs each selection as a modal session
// over a surface from newSurface.
func NewSelector(newSurface SurfaceFactory) Selector {
	return &modalSelector{newSurface: newSurface}
}

func (m *modalSelector) Select(ctx context.Context, scene Scene) (SelectionResult, bool, error) {
	if !m.active.CompareAndSwap(false, true) {
		return SelectionResult{}, false, ErrSelectionActive
	}
	defer m.active.Store(false)

	sess := NewSession(scene.Virtual, scene.DPR)
	surface := m.newSurface()
	if err := surface.Open(scene.Virtual, scene.Background); err != nil {
		return SelectionResult{}, false, fmt.Errorf("open overlay: %w", err)
	}
	defer func() {
		if err := surface.Close(); err != nil {
			log.Printf("OVERLAY: close failed: %v", err)
		}
	}()

	surface.Paint(sess.Frame())
	for {
		select {
		case <-sess.Done():
			res, ok := sess.Result()
			return res, !ok, nil
		default:
		}

		ev, err := surface.Next(ctx)
		if err != nil {
			return SelectionResult{}, false, err
		}
		if sess.Handle(ev) && !sess.State().Terminal() {
			surface.Paint(sess.Frame())
		}
	}
}
