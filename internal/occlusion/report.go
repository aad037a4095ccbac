// Package occlusion implements the occlusion-frame aggregator: it turns a
// stream of per-widget bound reports into the list of rects to mask for one
// captured frame.
//
// Nothing in this package is safe for concurrent use. An Engine and the
// stores it owns belong to exactly one goroutine; see internal/capture for the
// worker that enforces that.
package occlusion

import (
	"errors"
	"fmt"

	"github.com/1broseidon/occlude/internal/geometry"
)

// WidgetKey identifies one mounted UI element instance.
type WidgetKey string

// BoundReport is one widget's geometry and visibility at a reporting instant.
// A nil Rect means the widget is not laid out yet and contributes no geometry.
type BoundReport struct {
	Key     WidgetKey      `json:"key"`
	Rect    *geometry.Rect `json:"rect,omitempty"`
	Visible bool           `json:"visible"`
}

// Batch is the unit the UI layer reports: every widget it knows about at one
// monotonic millisecond timestamp.
type Batch struct {
	Timestamp int64         `json:"timestamp"`
	Reports   []BoundReport `json:"reports"`
}

// Frame is what the frame store keeps per timestamp.
type Frame struct {
	Timestamp int64
	Reports   []BoundReport
}

var (
	ErrEmptyKey     = errors.New("empty widget key")
	ErrInvertedRect = errors.New("inverted rect")
)

// Validate checks a single report structurally.
func (r BoundReport) Validate() error {
	if r.Key == "" {
		return ErrEmptyKey
	}
	if r.Rect != nil && !r.Rect.Valid() {
		return fmt.Errorf("%w %v for key %q", ErrInvertedRect, *r.Rect, r.Key)
	}
	return nil
}
