// Package mcp exposes the running occlude daemon to MCP clients.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/ipc"
)

const (
	ServerName    = "occlude"
	ServerVersion = "0.1.0"
)

// DaemonClient is the subset of ipc.Client the tools use.
type DaemonClient interface {
	GetStatus() (*ipc.StatusData, error)
	Resolve(start, end int64) (*ipc.ResolveData, error)
	ResetSession() error
	OccludeNextFrame(rects ...geometry.Rect) error
	SetInsets(p ipc.SetInsetsPayload) error
}

// Server is the MCP server for occlude.
type Server struct {
	mcpServer *mcpsdk.Server
	client    DaemonClient
}

// NewServer creates a new MCP server that forwards to the daemon.
func NewServer(client DaemonClient) *Server {
	s := &Server{client: client}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "occlusion_status",
		Description: "Report the occlude daemon's state: stored frames and their time range, tracked widget keys, queued work, dropped batches, deadline overruns and the current horizontal inset.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "occlusion_resolve",
		Description: "Resolve the rects to mask for a frame captured between start and end. Returns the frame window used and the padded, offset rects in native screen pixels. Frames older than the window are evicted afterwards.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "occlusion_reset",
		Description: "Start a new recording session: discard all stored frames, visibility counters and pending manual masks.",
	}, s.handleReset)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "occlusion_mask_next_frame",
		Description: "Mask extra rects, given in native screen pixels, on the next captured frame only. They are not padded or offset.",
	}, s.handleMaskNextFrame)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "occlusion_set_insets",
		Description: "Set the display's left inset and orientation when the daemon uses static insets. Fails when insets are tracked from the display server.",
	}, s.handleSetInsets)
}
