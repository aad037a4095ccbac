// Package geometry holds the rectangle math shared by the occlusion core and
// the device-metrics collaborators.
package geometry

import "fmt"

// Rect is an axis-aligned rectangle given by its edges. Right and Bottom are
// exclusive in screen terms but the core never relies on that, it only unions,
// pads and translates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Valid reports whether the rect is not inverted. Zero-area rects are valid.
func (r Rect) Valid() bool {
	return r.Right >= r.Left && r.Bottom >= r.Top
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Union returns the smallest rect enclosing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// Pad grows the rect by n on all four sides.
func (r Rect) Pad(n int) Rect {
	return Rect{
		Left:   r.Left - n,
		Top:    r.Top - n,
		Right:  r.Right + n,
		Bottom: r.Bottom + n,
	}
}

// OffsetX translates the rect horizontally. Top and Bottom are untouched.
func (r Rect) OffsetX(dx int) Rect {
	r.Left += dx
	r.Right += dx
	return r
}

// Intersect returns the overlapping area of r and o. ok is false when the
// rects do not overlap with a positive area.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	isect := Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
	if isect.Right <= isect.Left || isect.Bottom <= isect.Top {
		return Rect{}, false
	}
	return isect, true
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// FromXYWH converts an origin/size rectangle, the form X11 and most window
// systems report, into edge form.
func FromXYWH(x, y, width, height int) Rect {
	return Rect{Left: x, Top: y, Right: x + width, Bottom: y + height}
}
