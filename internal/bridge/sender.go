package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/1broseidon/occlude/internal/occlusion"
)

// Sender streams batches to a Listener. It is safe for concurrent use.
type Sender struct {
	mu      sync.Mutex
	conn    net.Conn
	enc     *cbor.Encoder
	timeout time.Duration
}

// Dial connects to the bridge socket.
func Dial(socketPath string, timeout time.Duration) (*Sender, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to report bridge: %w (is the daemon running?)", err)
	}
	s := NewSender(conn)
	s.timeout = timeout
	return s, nil
}

// NewSender wraps an established connection.
func NewSender(conn net.Conn) *Sender {
	return &Sender{conn: conn, enc: NewEncoder(conn)}
}

func (s *Sender) Send(batch occlusion.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if err := s.enc.Encode(batch); err != nil {
		return fmt.Errorf("failed to send batch at %d: %w", batch.Timestamp, err)
	}
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
