package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for an explicit socket path.
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Check for error response
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

func (c *Client) send(cmd CommandType, payload interface{}) (*Response, error) {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}
	return c.sendRequest(req)
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	_, err := c.send(CommandReload, nil)
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	resp, err := c.send(CommandGetStatus, nil)
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}

	return &status, nil
}

// Resolve runs one capture resolution for [start, end] and returns the rects
// the capturer was given.
func (c *Client) Resolve(start, end int64) (*ResolveData, error) {
	resp, err := c.send(CommandResolve, ResolvePayload{Start: start, End: end})
	if err != nil {
		return nil, err
	}

	var data ResolveData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse resolve data: %w", err)
	}
	return &data, nil
}

// ResetSession discards every stored frame and visibility counter.
func (c *Client) ResetSession() error {
	_, err := c.send(CommandResetSession, nil)
	return err
}

// OccludeNextFrame masks rects, in native screen coordinates, on the next
// captured frame only.
func (c *Client) OccludeNextFrame(rects ...geometry.Rect) error {
	_, err := c.send(CommandOccludeNextFrame, OccludeNextFramePayload{Rects: rects})
	return err
}

func (c *Client) SetInsets(p SetInsetsPayload) error {
	_, err := c.send(CommandSetInsets, p)
	return err
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
