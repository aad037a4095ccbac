package mcp

import "github.com/1broseidon/occlude/internal/geometry"

// StatusInput is the input for the occlusion_status tool.
type StatusInput struct{}

// StatusOutput is the output for the occlusion_status tool.
type StatusOutput struct {
	Frames         int    `json:"frames"`
	OldestFrame    int64  `json:"oldest_frame"`
	NewestFrame    int64  `json:"newest_frame"`
	TrackedKeys    int    `json:"tracked_keys"`
	PendingManual  int    `json:"pending_manual"`
	QueueDepth     int    `json:"queue_depth"`
	DroppedBatches uint64 `json:"dropped_batches"`
	Overruns       uint64 `json:"overruns"`
	LeftPadding    int    `json:"left_padding"`
	Orientation    string `json:"orientation"`
	InsetsSource   string `json:"insets_source"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// ResolveInput is the input for the occlusion_resolve tool.
type ResolveInput struct {
	Start int64 `json:"start" jsonschema:"Capture start, in the UI layer's monotonic milliseconds"`
	End   int64 `json:"end" jsonschema:"Capture end, in the UI layer's monotonic milliseconds; must not be before start"`
}

// ResolveOutput is the output for the occlusion_resolve tool.
type ResolveOutput struct {
	HasWindow   bool            `json:"has_window"`
	WindowStart int64           `json:"window_start,omitempty"`
	WindowEnd   int64           `json:"window_end,omitempty"`
	Rects       []geometry.Rect `json:"rects"`
	Evicted     int             `json:"evicted"`
}

// ResetInput is the input for the occlusion_reset tool.
type ResetInput struct{}

// ResetOutput is the output for the occlusion_reset tool.
type ResetOutput struct {
	Reset bool `json:"reset"`
}

// MaskInput is the input for the occlusion_mask_next_frame tool.
type MaskInput struct {
	Rects []geometry.Rect `json:"rects" jsonschema:"Rects in native screen pixels, each with left, top, right and bottom"`
}

// MaskOutput is the output for the occlusion_mask_next_frame tool.
type MaskOutput struct {
	Queued int `json:"queued"`
}

// SetInsetsInput is the input for the occlusion_set_insets tool.
type SetInsetsInput struct {
	Left        int    `json:"left" jsonschema:"Left inset in native pixels, used as the horizontal offset of every rect"`
	Orientation string `json:"orientation,omitempty" jsonschema:"One of portrait, landscape-left, portrait-upside-down, landscape-right (default: portrait)"`
}

// SetInsetsOutput is the output for the occlusion_set_insets tool.
type SetInsetsOutput struct {
	Left        int    `json:"left"`
	Orientation string `json:"orientation"`
}
