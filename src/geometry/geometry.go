// Package geometry maps logical (toolkit) screen coordinates onto device pixels.
//
// All rounding in this package is round-half-to-even. Sub-pixel selections that
// land exactly on a half pixel (common at 1.5x scaling) therefore round the same
// way regardless of sign, which keeps LogicalToPixel scale-consistent.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is a position in logical units.
type Point struct {
	X float64
	Y float64
}

// Rect is a logical rectangle. W and H may be negative while a drag is in
// progress (the start point lies right of / below the current point).
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// RectFromPoints returns the rect spanned from start to current, unnormalized.
func RectFromPoints(start, current Point) Rect {
	return Rect{X: start.X, Y: start.Y, W: current.X - start.X, H: current.Y - start.Y}
}

// Normalize returns the equivalent rect with non-negative extents and the
// origin at the minimum corner. Zero-extent rects stay zero-size at the same point.
func Normalize(r Rect) Rect {
	return Rect{
		X: math.Min(r.X, r.X+r.W),
		Y: math.Min(r.Y, r.Y+r.H),
		W: math.Abs(r.W),
		H: math.Abs(r.H),
	}
}

// Contains reports whether p lies inside the normalized rect, edges included.
func (r Rect) Contains(p Point) bool {
	n := Normalize(r)
	return p.X >= n.X && p.X <= n.X+n.W && p.Y >= n.Y && p.Y <= n.Y+n.H
}

// Empty reports whether r has zero area.
func (r Rect) Empty() bool { return r.W == 0 || r.H == 0 }

func (r Rect) String() string {
	return fmt.Sprintf("{x:%g y:%g w:%g h:%g}", r.X, r.Y, r.W, r.H)
}

// PixelRect is a device-pixel rectangle relative to the virtual-geometry origin.
// Left/Top may be negative for selections that start off-screen.
type PixelRect struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Image converts p to an image.Rectangle in bitmap coordinates.
func (p PixelRect) Image() image.Rectangle {
	return image.Rect(p.Left, p.Top, p.Left+p.Width, p.Top+p.Height)
}

// Clamp intersects p with bounds. ok is false when nothing of p is left.
func (p PixelRect) Clamp(bounds image.Rectangle) (PixelRect, bool) {
	in := p.Image().Intersect(bounds)
	if in.Empty() {
		return PixelRect{}, false
	}
	return PixelRect{Left: in.Min.X, Top: in.Min.Y, Width: in.Dx(), Height: in.Dy()}, true
}

func (p PixelRect) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", p.Left, p.Top, p.Width, p.Height)
}

// LogicalToPixel maps a logical selection onto device pixels relative to the
// top-left corner of virtual. Width and height never drop below one pixel, so
// a click without drag still yields a croppable 1x1 rect.
func LogicalToPixel(logical, virtual Rect, dpr float64) PixelRect {
	n := Normalize(logical)
	return PixelRect{
		Left:   round((n.X - virtual.X) * dpr),
		Top:    round((n.Y - virtual.Y) * dpr),
		Width:  max(1, round(n.W*dpr)),
		Height: max(1, round(n.H*dpr)),
	}
}

func round(v float64) int {
	return int(math.RoundToEven(v))
}
