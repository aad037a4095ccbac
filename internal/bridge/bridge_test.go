package bridge

import (
	"bytes"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/occlusion"
)

type chanSink chan occlusion.Batch

func (c chanSink) Ingest(b occlusion.Batch) { c <- b }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func sampleBatch(ts int64) occlusion.Batch {
	return occlusion.Batch{
		Timestamp: ts,
		Reports: []occlusion.BoundReport{
			{Key: "card", Rect: &geometry.Rect{Left: 1, Top: 2, Right: 30, Bottom: 40}, Visible: true},
			{Key: "pending"},
		},
	}
}

func receive(t *testing.T, sink chanSink) occlusion.Batch {
	t.Helper()
	select {
	case b := <-sink:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return occlusion.Batch{}
	}
}

func TestCodec_DeterministicAndDecodable(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, NewEncoder(&a).Encode(sampleBatch(7)))
	require.NoError(t, NewEncoder(&b).Encode(sampleBatch(7)))
	assert.Equal(t, a.Bytes(), b.Bytes())

	var got occlusion.Batch
	require.NoError(t, NewDecoder(&a).Decode(&got))
	assert.Equal(t, sampleBatch(7), got)
}

func TestServeConn_PreservesStreamOrder(t *testing.T) {
	server, client := net.Pipe()
	sink := make(chanSink, 8)
	l := NewListener("", sink, quietLogger())

	done := make(chan struct{})
	go func() {
		l.ServeConn(server)
		close(done)
	}()

	s := NewSender(client)
	go func() {
		for ts := int64(1); ts <= 3; ts++ {
			_ = s.Send(sampleBatch(ts * 10))
		}
		_ = s.Close()
	}()

	for _, want := range []int64{10, 20, 30} {
		assert.Equal(t, want, receive(t, sink).Timestamp)
	}
	<-done
	assert.Equal(t, uint64(3), l.Batches())
}

func TestServeConn_DropsConnectionOnGarbage(t *testing.T) {
	server, client := net.Pipe()
	sink := make(chanSink, 1)
	l := NewListener("", sink, quietLogger())

	done := make(chan struct{})
	go func() {
		l.ServeConn(server)
		close(done)
	}()

	go func() {
		// 0xff is a CBOR "break" outside an indefinite-length item.
		_, _ = client.Write([]byte{0xff})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after malformed input")
	}
	client.Close()
	assert.Empty(t, sink)
}

func TestListener_UnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")
	sink := make(chanSink, 8)
	l := NewListener(path, sink, quietLogger())
	require.NoError(t, l.Start())
	defer l.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			s, err := Dial(path, time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer s.Close()
			assert.NoError(t, s.Send(sampleBatch(ts)))
		}(int64(i + 1))
	}
	wg.Wait()

	seen := map[int64]bool{}
	seen[receive(t, sink).Timestamp] = true
	seen[receive(t, sink).Timestamp] = true
	assert.Equal(t, map[int64]bool{1: true, 2: true}, seen)
}

func TestDial_NoDaemon(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is the daemon running?")
}
