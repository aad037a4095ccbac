package occlusion

import (
	"math"

	"github.com/1broseidon/occlude/internal/framestore"
)

// Window is the inclusive timestamp interval aggregated for one capture.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// WindowResolver maps a requested capture interval onto the frames actually
// present in the store.
//
// Start is the nearest frame at or before requestedStart-Slack (the oldest
// frame when none is that old). End is always the newest frame: widget
// positions settle slightly after the capture trigger fires, so the freshest
// snapshot wins over a strict requestedEnd bound.
//
// The resolver also remembers how far previous windows reached. Frames that
// arrived after the last window but sit below the computed Start are pulled
// into the window, so every frame is aggregated at least once before the
// evictor may drop it.
type WindowResolver struct {
	Slack int64

	coveredThrough int64
	covered        bool
}

// Resolve computes the window for one capture request. ok is false when the
// store is empty.
func (w *WindowResolver) Resolve(store *framestore.Store[Frame], requestedStart, requestedEnd int64) (Window, bool) {
	last, ok := store.Last()
	if !ok {
		return Window{}, false
	}

	start, ok := store.Floor(subSaturating(requestedStart, w.Slack))
	if !ok {
		start, _ = store.First()
	}

	win := Window{Start: start.Key, End: last.Key}

	uncovered, ok := store.First()
	if w.covered {
		uncovered, ok = store.Higher(w.coveredThrough)
	}
	if ok && uncovered.Key < win.Start {
		win.Start = uncovered.Key
	}

	return win, true
}

// subSaturating returns a-b clamped to the int64 range.
func subSaturating(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	if b < 0 && a > math.MaxInt64+b {
		return math.MaxInt64
	}
	return a - b
}

// MarkCovered records that win was aggregated.
func (w *WindowResolver) MarkCovered(win Window) {
	if !w.covered || win.End > w.coveredThrough {
		w.coveredThrough = win.End
	}
	w.covered = true
}

// Reset forgets coverage history, as at the start of a new session.
func (w *WindowResolver) Reset() {
	w.coveredThrough = 0
	w.covered = false
}
