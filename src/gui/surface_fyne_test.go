//go:build !windows

package gui

import (
	"context"
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"screen-chat-llm/src/geometry"
	"screen-chat-llm/src/overlay"
)

func mouse(x, y float32, b desktop.MouseButton) *desktop.MouseEvent {
	ev := &desktop.MouseEvent{Button: b}
	ev.Position = fyne.NewPos(x, y)
	return ev
}

func TestSelectionViewUsesCanvasScale(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	var events []overlay.Event
	v := newSelectionView(image.NewRGBA(image.Rect(0, 0, 4, 4)), 0, 0, func(ev overlay.Event) {
		events = append(events, ev)
	})
	v.scale = func() float32 { return 2 }

	v.MouseDown(mouse(100, 100, desktop.MouseButtonPrimary))
	v.MouseUp(mouse(300, 200, desktop.MouseButtonPrimary))

	sess := overlay.NewSession(geometry.Rect{W: 4000, H: 2400}, 1)
	for _, ev := range events {
		sess.Handle(ev)
	}
	res, ok := sess.Result()
	if !ok {
		t.Fatalf("session did not complete, state %v", sess.State())
	}
	want := geometry.PixelRect{Left: 200, Top: 200, Width: 400, Height: 200}
	if res.Pixel != want {
		t.Fatalf("pixel rect = %+v, want %+v", res.Pixel, want)
	}
}

func TestSelectionViewPaintsInCanvasUnits(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	v := newSelectionView(nil, 0, 0, func(overlay.Event) {})
	v.scale = func() float32 { return 2 }

	cut := geometry.Rect{X: 200, Y: 100, W: 400, H: 300}
	v.apply(overlay.Frame{Bounds: geometry.Rect{W: 1000, H: 800}, Cutout: &cut, BorderWidth: 2})

	if got := v.border.Position(); got != fyne.NewPos(100, 50) {
		t.Fatalf("border position = %v", got)
	}
	if got := v.border.Size(); got != fyne.NewSize(200, 150) {
		t.Fatalf("border size = %v", got)
	}
	if v.border.StrokeWidth != 1 {
		t.Fatalf("stroke width = %g", v.border.StrokeWidth)
	}
}

func TestSelectionViewDefaultsToUnitScale(t *testing.T) {
	v := &selectionView{originX: 10, originY: 20}
	if got := v.global(fyne.NewPos(5, 5)); got != (geometry.Point{X: 15, Y: 25}) {
		t.Fatalf("global = %v", got)
	}
	v.scale = func() float32 { return 0 }
	if got := v.global(fyne.NewPos(5, 5)); got != (geometry.Point{X: 15, Y: 25}) {
		t.Fatalf("global with zero scale = %v", got)
	}
}

func TestSurfaceQueueNeverBlocks(t *testing.T) {
	s := newPlatformSurface().(*fyneSurface)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.push(overlay.Event{Kind: overlay.PointerDown, Button: overlay.ButtonPrimary})
		for i := 0; i < 500; i++ {
			s.push(overlay.Event{Kind: overlay.PointerMove, Pos: geometry.Point{X: float64(i)}})
		}
		s.push(overlay.Event{Kind: overlay.PointerUp, Button: overlay.ButtonPrimary})
		for i := 0; i < 500; i++ {
			s.push(overlay.Event{Kind: overlay.KeyCancel})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a reader")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var kinds []overlay.EventKind
	var lastMove overlay.Event
	for i := 0; i < 3; i++ {
		ev, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == overlay.PointerMove {
			lastMove = ev
		}
	}
	if kinds[0] != overlay.PointerDown || kinds[1] != overlay.PointerMove || kinds[2] != overlay.PointerUp {
		t.Fatalf("kinds = %v", kinds)
	}
	if lastMove.Pos.X != 499 {
		t.Fatalf("moves were not collapsed to the latest: %v", lastMove.Pos)
	}
}

func TestSurfaceNextHonoursContext(t *testing.T) {
	s := newPlatformSurface()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); err != context.Canceled {
		t.Fatalf("Next err = %v", err)
	}
}

func TestSurfaceOpenWithoutBackground(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	s := newPlatformSurface()
	if err := s.Open(geometry.Rect{W: 800, H: 600}, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Paint(overlay.NewSession(geometry.Rect{W: 800, H: 600}, 1).Frame())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSurfaceOpenWithZeroWidthVirtual(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	s := newPlatformSurface()
	if err := s.Open(geometry.Rect{}, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSelectionViewHint(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	v := newSelectionView(nil, 0, 0, func(overlay.Event) {})
	if v.hint.Visible() {
		t.Fatal("hint visible before it was set")
	}
	v.showHint(partialHint)
	if !v.hint.Visible() || v.hint.Text != partialHint {
		t.Fatalf("hint = %q visible=%v", v.hint.Text, v.hint.Visible())
	}
}
