package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log"

	"github.com/kbinani/screenshot"

	"screen-chat-llm/src/geometry"
)

// ErrOutOfBounds is returned by Crop when the requested rect is not fully
// inside the source bitmap. Crop never clamps; callers clamp first.
var ErrOutOfBounds = errors.New("crop rectangle out of bounds")

// ErrNoDisplays is returned when the platform reports no active display.
var ErrNoDisplays = errors.New("no active displays found")

// Snapshot is one frozen capture of the whole virtual screen.
type Snapshot struct {
	Image   *image.RGBA
	Virtual geometry.Rect // logical units
	DPR     float64
}

// Take captures every display and measures the device pixel ratio. A positive
// dprOverride replaces the measured ratio.
func Take(dprOverride float64) (*Snapshot, error) {
	img, err := Capture()
	if err != nil {
		return nil, fmt.Errorf("failed to capture virtual screen: %w", err)
	}
	virtual, err := VirtualGeometry()
	if err != nil {
		return nil, err
	}
	dpr := dprOverride
	if dpr <= 0 {
		dpr = EstimateDevicePixelRatio(img.Bounds(), virtual)
	}
	log.Printf("screenshot: virtual=%v bitmap=%dx%d dpr=%g", virtual, img.Bounds().Dx(), img.Bounds().Dy(), dpr)
	return &Snapshot{Image: img, Virtual: virtual, DPR: dpr}, nil
}

// Capture captures the entire virtual screen across all active displays
func Capture() (*image.RGBA, error) {
	union, err := displayUnion()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(union)
	if err != nil {
		return nil, err
	}
	return normalizeOrigin(img), nil
}

// VirtualGeometry returns the bounding rect of all displays in logical units.
func VirtualGeometry() (geometry.Rect, error) {
	union, err := displayUnion()
	if err != nil {
		return geometry.Rect{}, err
	}
	return toLogical(union), nil
}

// PrimaryDisplay returns the bounds of display 0 in logical units.
func PrimaryDisplay() (geometry.Rect, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return geometry.Rect{}, ErrNoDisplays
	}
	return toLogical(screenshot.GetDisplayBounds(0)), nil
}

func displayUnion() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, ErrNoDisplays
	}
	// Compute union of all display bounds
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

func toLogical(r image.Rectangle) geometry.Rect {
	return geometry.Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), W: float64(r.Dx()), H: float64(r.Dy())}
}

// EstimateDevicePixelRatio divides the captured bitmap width by the logical
// virtual width. It assumes one ratio for every display and falls back to 1.
func EstimateDevicePixelRatio(bitmap image.Rectangle, virtual geometry.Rect) float64 {
	if virtual.W <= 0 || bitmap.Dx() <= 0 {
		return 1
	}
	return float64(bitmap.Dx()) / virtual.W
}

// Crop copies r out of img. The returned bitmap owns its pixels and starts at 0,0.
func Crop(img *image.RGBA, r geometry.PixelRect) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("crop: nil bitmap")
	}
	src := img.Bounds()
	want := r.Image().Add(src.Min)
	if r.Width <= 0 || r.Height <= 0 || !want.In(src) {
		return nil, fmt.Errorf("%w: rect %v, bitmap %dx%d", ErrOutOfBounds, r, src.Dx(), src.Dy())
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(out, out.Bounds(), img, want.Min, draw.Src)
	return out, nil
}

// EncodePNG converts img to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %v", err)
	}
	return buf.Bytes(), nil
}

// normalizeOrigin rebases img so pixel (0,0) is the virtual-screen top-left.
func normalizeOrigin(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	rebased := *img
	rebased.Rect = image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy())
	return &rebased
}
