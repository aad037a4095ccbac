package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/occlude/internal/capture"
	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/occlusion"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload           CommandType = "RELOAD"
	CommandGetStatus        CommandType = "GET_STATUS"
	CommandResolve          CommandType = "RESOLVE"
	CommandResetSession     CommandType = "RESET_SESSION"
	CommandOccludeNextFrame CommandType = "OCCLUDE_NEXT_FRAME"
	CommandSetInsets        CommandType = "SET_INSETS"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	capture.Status
	Orientation   string `json:"orientation"`
	InsetsSource  string `json:"insets_source"`
	BridgeBatches uint64 `json:"bridge_batches"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	DaemonRunning bool   `json:"daemon_running"`
}

// ResolvePayload is the capture interval for RESOLVE.
type ResolvePayload struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ResolveData is the outcome of one RESOLVE.
type ResolveData struct {
	Window    occlusion.Window `json:"window"`
	HasWindow bool             `json:"has_window"`
	Rects     []geometry.Rect  `json:"rects"`
	Evicted   int              `json:"evicted"`
}

// OccludeNextFramePayload carries native-coordinate rects for the next frame.
type OccludeNextFramePayload struct {
	Rects []geometry.Rect `json:"rects"`
}

type SetInsetsPayload struct {
	Left        int    `json:"left"`
	Top         int    `json:"top,omitempty"`
	Right       int    `json:"right,omitempty"`
	Bottom      int    `json:"bottom,omitempty"`
	Orientation string `json:"orientation,omitempty"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
