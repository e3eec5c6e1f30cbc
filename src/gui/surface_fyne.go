//go:build !windows

package gui

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"screen-chat-llm/src/geometry"
	"screen-chat-llm/src/overlay"
	"screen-chat-llm/src/screenshot"
)

const partialHint = "Drag to select on this display. Right-click selects all displays. Esc cancels."

func newPlatformSurface() overlay.Surface {
	return &fyneSurface{signal: make(chan struct{}, 1)}
}

// fyneSurface is a borderless full-screen fyne window over the primary
// display. Event handlers run on the fyne main goroutine and only queue
// events; Next drains them on the caller's goroutine.
type fyneSurface struct {
	win     fyne.Window
	view    *selectionView
	region  geometry.Rect
	visible bool

	mu      sync.Mutex
	pending []overlay.Event
	signal  chan struct{}
}

func (s *fyneSurface) Open(virtual geometry.Rect, background image.Image) error {
	app := fyne.CurrentApp()
	if app == nil {
		return errors.New("overlay requires a running fyne app")
	}
	region, err := screenshot.PrimaryDisplay()
	if err != nil {
		region = virtual
	}
	s.region = region

	// the window shows only the part of the capture under it
	dpr := 1.0
	if background != nil && virtual.W > 0 {
		dpr = float64(background.Bounds().Dx()) / virtual.W
		px := geometry.LogicalToPixel(region, virtual, dpr).Image().Add(background.Bounds().Min)
		if sub, ok := background.(interface {
			SubImage(image.Rectangle) image.Image
		}); ok {
			background = sub.SubImage(px)
		}
	}
	partial := region != virtual
	log.Printf("OVERLAY: fyne surface over %v (virtual %v, dpr %g)", region, virtual, dpr)

	fyne.DoAndWait(func() {
		if drv, ok := app.Driver().(desktop.Driver); ok {
			s.win = drv.CreateSplashWindow()
		} else {
			s.win = app.NewWindow("Select Region")
		}
		s.view = newSelectionView(background, region.X, region.Y, s.push)
		s.view.scale = s.win.Canvas().Scale
		if partial {
			s.view.showHint(partialHint)
		}
		s.win.SetPadded(false)
		s.win.SetContent(s.view)
		s.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
			if ev.Name == fyne.KeyEscape {
				s.push(overlay.Event{Kind: overlay.KeyCancel})
			}
		})
		s.win.SetOnClosed(func() {
			if s.visible {
				s.push(overlay.Event{Kind: overlay.KeyCancel})
			}
		})
		s.win.SetFullScreen(true)
		s.win.Show()
		s.win.RequestFocus()
		s.visible = true
	})
	return nil
}

// push never blocks the UI goroutine. Consecutive moves collapse into the
// latest one so the queue only grows with button and key events.
func (s *fyneSurface) push(ev overlay.Event) {
	s.mu.Lock()
	if n := len(s.pending); n > 0 && ev.Kind == overlay.PointerMove && s.pending[n-1].Kind == overlay.PointerMove {
		s.pending[n-1] = ev
	} else {
		s.pending = append(s.pending, ev)
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *fyneSurface) Next(ctx context.Context) (overlay.Event, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()
		select {
		case <-s.signal:
		case <-ctx.Done():
			return overlay.Event{}, ctx.Err()
		}
	}
}

func (s *fyneSurface) Paint(f overlay.Frame) {
	// paint relative to the window rather than the whole virtual screen
	f.Bounds = s.region
	fyne.Do(func() { s.view.apply(f) })
}

func (s *fyneSurface) Close() error {
	fyne.DoAndWait(func() {
		s.visible = false
		if s.win != nil {
			s.win.Close()
		}
	})
	return nil
}

// selectionView draws the frozen capture, dim rectangles and the border, and
// reports pointer input in global logical coordinates. Logical units are the
// display's own pixels; fyne positions are those divided by the canvas scale.
type selectionView struct {
	widget.BaseWidget

	background *canvas.Image
	dims       [4]*canvas.Rectangle
	border     *canvas.Rectangle
	hint       *canvas.Text
	originX    float64
	originY    float64
	scale      func() float32
	emit       func(overlay.Event)
}

func newSelectionView(background image.Image, originX, originY float64, emit func(overlay.Event)) *selectionView {
	if background == nil {
		background = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	v := &selectionView{
		background: canvas.NewImageFromImage(background),
		border:     canvas.NewRectangle(color.Transparent),
		hint:       canvas.NewText("", color.White),
		originX:    originX,
		originY:    originY,
		emit:       emit,
	}
	v.background.FillMode = canvas.ImageFillStretch
	v.background.ScaleMode = canvas.ImageScaleFastest
	for i := range v.dims {
		v.dims[i] = canvas.NewRectangle(overlay.DimColor)
		v.dims[i].Hide()
	}
	v.border.Hide()
	v.hint.Hide()
	v.ExtendBaseWidget(v)
	return v
}

func (v *selectionView) showHint(text string) {
	v.hint.Text = text
	v.hint.TextStyle = fyne.TextStyle{Bold: true}
	v.hint.Show()
}

func (v *selectionView) canvasScale() float64 {
	if v.scale == nil {
		return 1
	}
	if sc := v.scale(); sc > 0 {
		return float64(sc)
	}
	return 1
}

// place moves o over the local logical rect r.
func (v *selectionView) place(o fyne.CanvasObject, r geometry.Rect) {
	sc := v.canvasScale()
	o.Move(fyne.NewPos(float32(r.X/sc), float32(r.Y/sc)))
	o.Resize(fyne.NewSize(float32(r.W/sc), float32(r.H/sc)))
}

func (v *selectionView) apply(f overlay.Frame) {
	regions := f.DimRegions()
	for i, d := range v.dims {
		if i >= len(regions) {
			d.Hide()
			continue
		}
		d.FillColor = f.Dim
		v.place(d, regions[i])
		d.Show()
		d.Refresh()
	}
	if cut, ok := f.LocalCutout(); ok {
		v.border.StrokeColor = f.Border
		v.border.StrokeWidth = float32(f.BorderWidth / v.canvasScale())
		v.place(v.border, cut)
		v.border.Show()
	} else {
		v.border.Hide()
	}
	v.border.Refresh()
}

func (v *selectionView) global(p fyne.Position) geometry.Point {
	sc := v.canvasScale()
	return geometry.Point{X: v.originX + float64(p.X)*sc, Y: v.originY + float64(p.Y)*sc}
}

func (v *selectionView) MouseDown(ev *desktop.MouseEvent) {
	switch ev.Button {
	case desktop.MouseButtonPrimary:
		v.emit(overlay.Event{Kind: overlay.PointerDown, Button: overlay.ButtonPrimary, Pos: v.global(ev.Position)})
	case desktop.MouseButtonSecondary:
		v.emit(overlay.Event{Kind: overlay.PointerDown, Button: overlay.ButtonSecondary, Pos: v.global(ev.Position)})
	}
}

func (v *selectionView) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		v.emit(overlay.Event{Kind: overlay.PointerUp, Button: overlay.ButtonPrimary, Pos: v.global(ev.Position)})
	}
}

func (v *selectionView) Dragged(ev *fyne.DragEvent) {
	v.emit(overlay.Event{Kind: overlay.PointerMove, Pos: v.global(ev.Position)})
}

func (v *selectionView) DragEnd() {}

func (v *selectionView) Cursor() desktop.Cursor { return desktop.CrosshairCursor }

func (v *selectionView) CreateRenderer() fyne.WidgetRenderer {
	objects := []fyne.CanvasObject{v.background}
	for _, d := range v.dims {
		objects = append(objects, d)
	}
	objects = append(objects, v.border, v.hint)
	return &selectionRenderer{view: v, objects: objects}
}

type selectionRenderer struct {
	view    *selectionView
	objects []fyne.CanvasObject
}

func (r *selectionRenderer) Layout(size fyne.Size) {
	r.view.background.Move(fyne.NewPos(0, 0))
	r.view.background.Resize(size)
	hint := r.view.hint.MinSize()
	r.view.hint.Move(fyne.NewPos((size.Width-hint.Width)/2, hint.Height))
	r.view.hint.Resize(hint)
}

func (r *selectionRenderer) MinSize() fyne.Size { return fyne.NewSize(1, 1) }

func (r *selectionRenderer) Refresh() {
	for _, o := range r.objects {
		o.Refresh()
	}
}

func (r *selectionRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *selectionRenderer) Destroy() {}
