package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/occlude/internal/capture"
	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/occlusion"
	"github.com/1broseidon/occlude/internal/runtimepath"
)

// Controller is the daemon surface the IPC server drives.
type Controller interface {
	Status(ctx context.Context) (capture.Status, error)
	ResolveFunc(req capture.Request, fn func(occlusion.Result)) error
	ResetSession() error
	OccludeNextFrame(rects ...geometry.Rect) error
	// SetInsets overrides the device metrics; it fails when insets are
	// tracked from the display server.
	SetInsets(m insets.Metrics) error
	Insets() (metrics insets.Metrics, source string)
	BridgeBatches() uint64
}

// Server handles IPC requests from clients
type Server struct {
	socketPath     string
	listener       net.Listener
	ctrl           Controller
	startTime      time.Time
	reloadChan     chan struct{}
	requestTimeout time.Duration
	nextID         uint64
	idMu           sync.Mutex
	shuttingDown   bool
	shutdownMu     sync.Mutex
}

// NewServer creates a new IPC server. An empty socketPath uses the runtime
// directory default.
func NewServer(socketPath string, ctrl Controller, reloadChan chan struct{}) (*Server, error) {
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath:     socketPath,
		ctrl:           ctrl,
		startTime:      time.Now(),
		reloadChan:     reloadChan,
		requestTimeout: 4 * time.Second,
	}, nil
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("IPC server listening on %s", s.socketPath)

	// Accept connections
	go s.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			log.Printf("IPC accept error: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		log.Printf("IPC read error: %v", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		log.Printf("Failed to marshal response: %v", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandResolve:
		return s.handleResolve(req.Payload)
	case CommandResetSession:
		return s.handleResetSession()
	case CommandOccludeNextFrame:
		return s.handleOccludeNextFrame(req.Payload)
	case CommandSetInsets:
		return s.handleSetInsets(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

// handleReload asks the daemon to re-read its config file
func (s *Server) handleReload() *Response {
	log.Println("IPC: Received RELOAD command")

	select {
	case s.reloadChan <- struct{}{}:
	default:
	}

	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleGetStatus() *Response {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	st, err := s.ctrl.Status(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to get status: %v", err))
	}
	metrics, source := s.ctrl.Insets()

	status := StatusData{
		Status:        st,
		Orientation:   metrics.Orientation.String(),
		InsetsSource:  source,
		BridgeBatches: s.ctrl.BridgeBatches(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
	}

	resp, _ := NewOKResponse(status)
	return resp
}

func (s *Server) handleResolve(payload json.RawMessage) *Response {
	var req ResolvePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid resolve payload: %v", err))
	}
	if req.End < req.Start {
		return NewErrorResponse("end must not be before start")
	}

	done := make(chan occlusion.Result, 1)
	err := s.ctrl.ResolveFunc(capture.Request{
		ID:    s.requestID(),
		Start: req.Start,
		End:   req.End,
	}, func(res occlusion.Result) {
		done <- res
	})
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to resolve: %v", err))
	}

	select {
	case res := <-done:
		resp, _ := NewOKResponse(ResolveData{
			Window:    res.Window,
			HasWindow: res.HasWindow,
			Rects:     res.Rects,
			Evicted:   res.Evicted,
		})
		return resp
	case <-time.After(s.requestTimeout):
		return NewErrorResponse("timed out waiting for resolution")
	}
}

func (s *Server) requestID() uint64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Server) handleResetSession() *Response {
	log.Println("IPC: Resetting occlusion session")

	if err := s.ctrl.ResetSession(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reset session: %v", err))
	}

	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleOccludeNextFrame(payload json.RawMessage) *Response {
	var req OccludeNextFramePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid mask payload: %v", err))
	}
	if len(req.Rects) == 0 {
		return NewErrorResponse("at least one rect is required")
	}
	for _, r := range req.Rects {
		if !r.Valid() {
			return NewErrorResponse(fmt.Sprintf("Invalid rect %s", r))
		}
	}

	if err := s.ctrl.OccludeNextFrame(req.Rects...); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to queue rects: %v", err))
	}

	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSetInsets(payload json.RawMessage) *Response {
	var req SetInsetsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid insets payload: %v", err))
	}
	orientation, err := insets.ParseOrientation(req.Orientation)
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	m := insets.Metrics{
		Insets: insets.Insets{
			Left:   req.Left,
			Top:    req.Top,
			Right:  req.Right,
			Bottom: req.Bottom,
		},
		Orientation: orientation,
	}
	if err := s.ctrl.SetInsets(m); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set insets: %v", err))
	}

	log.Printf("IPC: Insets set to left=%d (%s)", req.Left, orientation)
	resp, _ := NewOKResponse(nil)
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}
