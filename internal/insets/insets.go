// Package insets supplies the horizontal coordinate offset between UI-layer
// logical coordinates and native screen coordinates.
//
// The offset comes from display safe-area or cutout insets and changes with
// orientation. Collaborators push updates; the occlusion worker reads the
// current value on every aggregation.
package insets

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Source supplies the current horizontal offset.
type Source interface {
	LeftPadding() int
}

// Orientation of the display the recording is taken from.
type Orientation int

const (
	Portrait Orientation = iota
	LandscapeLeft
	PortraitUpsideDown
	LandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case LandscapeLeft:
		return "landscape-left"
	case PortraitUpsideDown:
		return "portrait-upside-down"
	case LandscapeRight:
		return "landscape-right"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation accepts the names printed by Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "portrait":
		return Portrait, nil
	case "landscape-left", "landscape":
		return LandscapeLeft, nil
	case "portrait-upside-down":
		return PortraitUpsideDown, nil
	case "landscape-right":
		return LandscapeRight, nil
	default:
		return Portrait, fmt.Errorf("unknown orientation %q", s)
	}
}

// Insets are the non-content margins of a display, in native pixels.
type Insets struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Metrics is one device-metrics observation.
type Metrics struct {
	Insets      Insets      `json:"insets"`
	Orientation Orientation `json:"orientation"`
}

// LeftPadding derives the horizontal offset for m. Content is laid out from
// the left inset edge in every orientation, so only the left inset matters.
func (m Metrics) LeftPadding() int {
	if m.Insets.Left < 0 {
		return 0
	}
	return m.Insets.Left
}

// Static is a fixed offset.
type Static int

func (s Static) LeftPadding() int { return int(s) }

// Tracker holds the latest Metrics pushed by an orientation or inset-change
// callback. It is safe for concurrent use.
type Tracker struct {
	current atomic.Pointer[Metrics]
}

func NewTracker(initial Metrics) *Tracker {
	t := &Tracker{}
	t.Update(initial)
	return t
}

// Update replaces the current metrics.
func (t *Tracker) Update(m Metrics) {
	t.current.Store(&m)
}

// Metrics returns the current observation.
func (t *Tracker) Metrics() Metrics {
	if m := t.current.Load(); m != nil {
		return *m
	}
	return Metrics{}
}

func (t *Tracker) LeftPadding() int {
	return t.Metrics().LeftPadding()
}
