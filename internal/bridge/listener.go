package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/1broseidon/occlude/internal/occlusion"
)

// Sink receives decoded batches. capture.Synchronizer satisfies it.
type Sink interface {
	Ingest(batch occlusion.Batch)
}

// Listener accepts reporter connections and forwards every decoded batch to
// its Sink in stream order.
type Listener struct {
	socketPath string
	sink       Sink
	logger     *slog.Logger

	listener     net.Listener
	shuttingDown atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	batches atomic.Uint64
}

func NewListener(socketPath string, sink Sink, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		socketPath: socketPath,
		sink:       sink,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket path and accepts in the background.
func (l *Listener) Start() error {
	// Remove a stale socket left by a previous run
	os.Remove(l.socketPath)

	ln, err := net.Listen("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create bridge socket: %w", err)
	}
	if err := os.Chmod(l.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to set bridge socket permissions: %w", err)
	}

	l.logger.Info("report bridge listening", "socket", l.socketPath)
	l.listener = ln
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Serve(ln)
	}()
	return nil
}

// Serve accepts connections on ln until it is closed.
func (l *Listener) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.shuttingDown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("bridge accept error", "error", err)
			continue
		}

		if !l.track(conn) {
			conn.Close()
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.ServeConn(conn)
		}()
	}
}

// ServeConn decodes batches from conn until EOF or a decode error. A
// malformed item ends the connection since the stream cannot resynchronize.
func (l *Listener) ServeConn(conn net.Conn) {
	defer conn.Close()

	dec := NewDecoder(conn)
	var n uint64
	for {
		var batch occlusion.Batch
		if err := dec.Decode(&batch); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				l.logger.Debug("reporter disconnected", "batches", n)
				return
			}
			l.logger.Warn("dropping reporter connection after decode error",
				"error", err,
				"batches", n)
			return
		}
		n++
		l.batches.Add(1)
		l.sink.Ingest(batch)
	}
}

// track registers conn for Stop. It returns false once Stop has begun.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shuttingDown.Load() {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

// Batches is the number of batches decoded since start.
func (l *Listener) Batches() uint64 {
	return l.batches.Load()
}

// Stop closes the listener and every open reporter connection, then waits for
// the handlers to return.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.shuttingDown.Store(true)
	l.mu.Unlock()
	if l.listener != nil {
		l.listener.Close()
	}

	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	if l.listener != nil {
		os.Remove(l.socketPath)
	}
}
