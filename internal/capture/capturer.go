package capture

import (
	"log/slog"

	"github.com/1broseidon/occlude/internal/geometry"
)

// Request asks for the masks of one captured frame. Start and End are the
// capture interval in the UI layer's monotonic milliseconds.
type Request struct {
	ID    uint64 `json:"id,omitempty"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// Capturer receives the final rect list for a frame and goes on to mask and
// encode it. Capture is called on the synchronizer's worker goroutine and must
// not block.
type Capturer interface {
	Capture(req Request, rects []geometry.Rect)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(req Request, rects []geometry.Rect)

func (f CapturerFunc) Capture(req Request, rects []geometry.Rect) { f(req, rects) }

// LogCapturer logs every resolved frame. It stands in for the native capturer
// when the daemon runs outside a recording pipeline.
type LogCapturer struct {
	Logger *slog.Logger
}

func (c LogCapturer) Capture(req Request, rects []geometry.Rect) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("frame resolved",
		"request", req.ID,
		"start", req.Start,
		"end", req.End,
		"rects", len(rects))
}

type discardCapturer struct{}

func (discardCapturer) Capture(Request, []geometry.Rect) {}

// Discard drops every result.
var Discard Capturer = discardCapturer{}
