//go:build windows

package gui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"screen-chat-llm/src/geometry"
	"screen-chat-llm/src/overlay"
)

const (
	overlayClassName         = "ScreenChatOverlay"
	overlayKeyPollTimerID    = 1
	overlayKeyPollIntervalMs = 25
	idlePumpInterval         = 5 * time.Millisecond
)

var (
	user32DLL                    = syscall.NewLazyDLL("user32.dll")
	procAllowSetForegroundWindow = user32DLL.NewProc("AllowSetForegroundWindow")
	procGetAsyncKeyState         = user32DLL.NewProc("GetAsyncKeyState")

	gdi32DLL       = syscall.NewLazyDLL("gdi32.dll")
	procCreatePen  = gdi32DLL.NewProc("CreatePen")
	procRectangle  = gdi32DLL.NewProc("Rectangle")
	procStretchBlt = gdi32DLL.NewProc("StretchBlt")

	registerOnce    sync.Once
	registerErr     error
	wndProcCallback uintptr

	// only one overlay exists at a time; the window procedure routes to it
	activeSurface *win32Surface
)

func newPlatformSurface() overlay.Surface { return &win32Surface{} }

// win32Surface is a topmost popup spanning the virtual screen. All methods
// must run on the same OS thread.
type win32Surface struct {
	hwnd    win.HWND
	virtual geometry.Rect
	// window pixels per logical unit
	scaleX, scaleY float64

	bright, dim   bitmapDC
	width, height int32

	frame   overlay.Frame
	painted bool
	cursor  win.HCURSOR
	events  []overlay.Event
	escDown bool
}

type bitmapDC struct {
	dc     win.HDC
	bitmap win.HBITMAP
	old    win.HGDIOBJ
	w, h   int32
}

func registerClass() error {
	registerOnce.Do(func() {
		wndProcCallback = syscall.NewCallback(surfaceWndProc)
		wc := win.WNDCLASSEX{
			CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
			Style:         win.CS_HREDRAW | win.CS_VREDRAW,
			LpfnWndProc:   wndProcCallback,
			HInstance:     win.GetModuleHandle(nil),
			HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS)),
			LpszClassName: syscall.StringToUTF16Ptr(overlayClassName),
		}
		if win.RegisterClassEx(&wc) == 0 {
			registerErr = errors.New("failed to register overlay window class")
		}
	})
	return registerErr
}

func (s *win32Surface) Open(virtual geometry.Rect, background image.Image) error {
	if activeSurface != nil {
		return overlay.ErrSelectionActive
	}
	if err := registerClass(); err != nil {
		return err
	}

	vx := win.GetSystemMetrics(win.SM_XVIRTUALSCREEN)
	vy := win.GetSystemMetrics(win.SM_YVIRTUALSCREEN)
	vw := win.GetSystemMetrics(win.SM_CXVIRTUALSCREEN)
	vh := win.GetSystemMetrics(win.SM_CYVIRTUALSCREEN)
	log.Printf("OVERLAY: virtual screen x=%d y=%d w=%d h=%d, logical %v", vx, vy, vw, vh, virtual)
	if vw <= 0 || vh <= 0 || virtual.W <= 0 || virtual.H <= 0 {
		return fmt.Errorf("invalid virtual screen %dx%d", vw, vh)
	}

	s.virtual = virtual
	s.width, s.height = vw, vh
	s.scaleX = float64(vw) / virtual.W
	s.scaleY = float64(vh) / virtual.H
	s.cursor = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))

	screenDC := win.GetDC(0)
	defer win.ReleaseDC(0, screenDC)
	var err error
	if s.bright, s.dim, err = newBackgroundDCs(screenDC, background, overlay.DimColor.A); err != nil {
		return err
	}

	activeSurface = s
	s.hwnd = win.CreateWindowEx(
		win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW,
		syscall.StringToUTF16Ptr(overlayClassName),
		syscall.StringToUTF16Ptr("Select Region - drag to select, right-click for whole screen, ESC cancels"),
		win.WS_POPUP|win.WS_VISIBLE,
		vx, vy, vw, vh,
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if s.hwnd == 0 {
		activeSurface = nil
		s.releaseDCs()
		return errors.New("failed to create overlay window")
	}

	win.ShowWindow(s.hwnd, win.SW_SHOW)
	procAllowSetForegroundWindow.Call(uintptr(os.Getpid()))
	win.SetForegroundWindow(s.hwnd)
	win.BringWindowToTop(s.hwnd)
	win.SetFocus(s.hwnd)
	if win.SetTimer(s.hwnd, overlayKeyPollTimerID, overlayKeyPollIntervalMs, 0) == 0 {
		log.Printf("OVERLAY: Failed to start keyboard poll timer")
	}
	log.Printf("OVERLAY: window %v shown", s.hwnd)
	return nil
}

// Next pumps this thread's message queue until the window procedure queues an
// event or ctx is done.
func (s *win32Surface) Next(ctx context.Context) (overlay.Event, error) {
	var msg win.MSG
	for {
		if len(s.events) > 0 {
			ev := s.events[0]
			s.events = s.events[1:]
			return ev, nil
		}
		if err := ctx.Err(); err != nil {
			return overlay.Event{}, err
		}
		if s.hwnd == 0 {
			return overlay.Event{}, errors.New("overlay window closed")
		}
		if !win.PeekMessage(&msg, 0, 0, 0, win.PM_REMOVE) {
			time.Sleep(idlePumpInterval)
			continue
		}
		if msg.Message == win.WM_QUIT {
			// surface cancellation; keep the queue clean for the next overlay
			s.push(overlay.Event{Kind: overlay.KeyCancel})
			continue
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func (s *win32Surface) Paint(f overlay.Frame) {
	s.frame = f
	s.painted = true
	if s.hwnd != 0 {
		win.InvalidateRect(s.hwnd, nil, false)
		win.UpdateWindow(s.hwnd)
	}
}

func (s *win32Surface) Close() error {
	if s.hwnd != 0 {
		win.KillTimer(s.hwnd, overlayKeyPollTimerID)
		win.ReleaseCapture()
		win.DestroyWindow(s.hwnd)
		s.hwnd = 0
	}
	s.releaseDCs()
	if activeSurface == s {
		activeSurface = nil
	}
	return nil
}

func (s *win32Surface) releaseDCs() {
	s.bright.release()
	s.dim.release()
}

// push queues ev, collapsing consecutive moves.
func (s *win32Surface) push(ev overlay.Event) {
	if ev.Kind == overlay.PointerMove && len(s.events) > 0 && s.events[len(s.events)-1].Kind == overlay.PointerMove {
		s.events[len(s.events)-1] = ev
		return
	}
	s.events = append(s.events, ev)
}

// toLogical converts client pixels to global logical coordinates.
func (s *win32Surface) toLogical(lParam uintptr) geometry.Point {
	x := int16(win.LOWORD(uint32(lParam)))
	y := int16(win.HIWORD(uint32(lParam)))
	return geometry.Point{
		X: s.virtual.X + float64(x)/s.scaleX,
		Y: s.virtual.Y + float64(y)/s.scaleY,
	}
}

func (s *win32Surface) toClient(r geometry.Rect) (left, top, right, bottom int32) {
	return int32(r.X * s.scaleX), int32(r.Y * s.scaleY),
		int32((r.X + r.W) * s.scaleX), int32((r.Y + r.H) * s.scaleY)
}

func surfaceWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	s := activeSurface
	if s == nil || (s.hwnd != 0 && s.hwnd != hwnd) {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_LBUTTONDOWN:
		win.SetCapture(hwnd)
		s.push(overlay.Event{Kind: overlay.PointerDown, Button: overlay.ButtonPrimary, Pos: s.toLogical(lParam)})
		return 0

	case win.WM_RBUTTONDOWN:
		s.push(overlay.Event{Kind: overlay.PointerDown, Button: overlay.ButtonSecondary, Pos: s.toLogical(lParam)})
		return 0

	case win.WM_MOUSEMOVE:
		s.push(overlay.Event{Kind: overlay.PointerMove, Pos: s.toLogical(lParam)})
		return 0

	case win.WM_LBUTTONUP:
		win.ReleaseCapture()
		s.push(overlay.Event{Kind: overlay.PointerUp, Button: overlay.ButtonPrimary, Pos: s.toLogical(lParam)})
		return 0

	case win.WM_KEYDOWN:
		if wParam == win.VK_ESCAPE {
			s.escDown = true
			s.push(overlay.Event{Kind: overlay.KeyCancel})
		}
		return 0

	case win.WM_KEYUP, win.WM_SYSKEYUP:
		if wParam == win.VK_ESCAPE {
			s.escDown = false
		}
		return 0

	case win.WM_TIMER:
		if wParam == overlayKeyPollTimerID {
			// the overlay does not always get keyboard focus
			down, pressed := getAsyncKeyState(win.VK_ESCAPE)
			if !s.escDown && (down || pressed) {
				log.Printf("OVERLAY: Escape detected via async polling")
				s.push(overlay.Event{Kind: overlay.KeyCancel})
			}
			s.escDown = down
		}
		return 0

	case win.WM_SETCURSOR:
		if s.cursor != 0 {
			win.SetCursor(s.cursor)
		}
		return 1

	case win.WM_ERASEBKGND:
		return 1

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		s.paint(hdc)
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_NCHITTEST:
		// Force all points to be client area so the window receives mouse events
		return uintptr(win.HTCLIENT)

	case win.WM_DESTROY:
		// no PostQuitMessage: a leftover WM_QUIT would cancel the next overlay
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// paint composes the frame off-screen: dimmed capture, undimmed cutout, border.
func (s *win32Surface) paint(hdc win.HDC) {
	back := win.CreateCompatibleDC(hdc)
	defer win.DeleteDC(back)
	bmp := win.CreateCompatibleBitmap(hdc, s.width, s.height)
	defer win.DeleteObject(win.HGDIOBJ(bmp))
	old := win.SelectObject(back, win.HGDIOBJ(bmp))
	defer win.SelectObject(back, old)

	stretchBlt(back, 0, 0, s.width, s.height, s.dim.dc, 0, 0, s.dim.w, s.dim.h)

	if cut, ok := s.frame.LocalCutout(); ok && s.painted {
		l, t, r, b := s.toClient(cut)
		bx := float64(s.bright.w) / s.virtual.W
		by := float64(s.bright.h) / s.virtual.H
		stretchBlt(back, l, t, r-l, b-t, s.bright.dc,
			int32(cut.X*bx), int32(cut.Y*by), int32(cut.W*bx), int32(cut.H*by))
		drawBorder(back, l, t, r, b, s.frame)
	}

	win.BitBlt(hdc, 0, 0, s.width, s.height, back, 0, 0, win.SRCCOPY)
}

func stretchBlt(dst win.HDC, x, y, w, h int32, src win.HDC, sx, sy, sw, sh int32) {
	procStretchBlt.Call(uintptr(dst), uintptr(x), uintptr(y), uintptr(w), uintptr(h),
		uintptr(src), uintptr(sx), uintptr(sy), uintptr(sw), uintptr(sh), uintptr(win.SRCCOPY))
}

func drawBorder(hdc win.HDC, left, top, right, bottom int32, f overlay.Frame) {
	c := f.Border
	colorRef := uintptr(c.R) | uintptr(c.G)<<8 | uintptr(c.B)<<16
	width := max(1, int(f.BorderWidth))
	pen, _, _ := procCreatePen.Call(0, uintptr(width), colorRef)
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))
	procRectangle.Call(uintptr(hdc), uintptr(left), uintptr(top), uintptr(right), uintptr(bottom))
	win.SelectObject(hdc, oldPen)
	win.SelectObject(hdc, oldBrush)
	win.DeleteObject(win.HGDIOBJ(pen))
}

// newBackgroundDCs uploads the capture twice: as is, and darkened by alpha/255.
func newBackgroundDCs(ref win.HDC, background image.Image, alpha uint8) (bitmapDC, bitmapDC, error) {
	rgba, ok := background.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		b := background.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), background, b.Min, draw.Src)
	}
	w, h := int32(rgba.Rect.Dx()), int32(rgba.Rect.Dy())

	bright, brightBits, err := newDIB(ref, w, h)
	if err != nil {
		return bitmapDC{}, bitmapDC{}, err
	}
	dim, dimBits, err := newDIB(ref, w, h)
	if err != nil {
		bright.release()
		return bitmapDC{}, bitmapDC{}, err
	}

	keep := 255 - uint32(alpha)
	for y := 0; y < int(h); y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+int(w)*4]
		row := y * int(w) * 4
		for x := 0; x < len(src); x += 4 {
			r, g, b := src[x], src[x+1], src[x+2]
			brightBits[row+x], brightBits[row+x+1], brightBits[row+x+2], brightBits[row+x+3] = b, g, r, 255
			dimBits[row+x] = byte(uint32(b) * keep / 255)
			dimBits[row+x+1] = byte(uint32(g) * keep / 255)
			dimBits[row+x+2] = byte(uint32(r) * keep / 255)
			dimBits[row+x+3] = 255
		}
	}
	return bright, dim, nil
}

// newDIB creates a top-down 32bpp DIB selected into its own memory DC.
func newDIB(ref win.HDC, w, h int32) (bitmapDC, []byte, error) {
	dc := win.CreateCompatibleDC(ref)
	info := win.BITMAPINFOHEADER{
		BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
		BiWidth:       w,
		BiHeight:      -h,
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: win.BI_RGB,
	}
	var bits unsafe.Pointer
	bmp := win.CreateDIBSection(dc, &info, win.DIB_RGB_COLORS, &bits, 0, 0)
	if bmp == 0 || bits == nil {
		win.DeleteDC(dc)
		return bitmapDC{}, nil, errors.New("failed to create overlay bitmap")
	}
	old := win.SelectObject(dc, win.HGDIOBJ(bmp))
	// 32bpp rows are already DWORD aligned
	pix := unsafe.Slice((*byte)(bits), int(w)*int(h)*4)
	return bitmapDC{dc: dc, bitmap: bmp, old: old, w: w, h: h}, pix, nil
}

func (b *bitmapDC) release() {
	if b.dc == 0 {
		return
	}
	win.SelectObject(b.dc, b.old)
	win.DeleteObject(win.HGDIOBJ(b.bitmap))
	win.DeleteDC(b.dc)
	*b = bitmapDC{}
}

func getAsyncKeyState(vk int32) (bool, bool) {
	state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	st := uint16(state)
	return st&0x8000 != 0, st&0x0001 != 0
}
