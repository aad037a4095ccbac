package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/1broseidon/occlude/internal/capture"
	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/occlusion"
)

type fakeController struct {
	mu       sync.Mutex
	resets   int
	manual   []geometry.Rect
	metrics  insets.Metrics
	lastReq  capture.Request
	readonly bool
}

func (f *fakeController) Status(context.Context) (capture.Status, error) {
	return capture.Status{
		Snapshot:   occlusion.Snapshot{Frames: 3, TrackedKeys: 2},
		QueueDepth: 1,
	}, nil
}

func (f *fakeController) ResolveFunc(req capture.Request, fn func(occlusion.Result)) error {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	fn(occlusion.Result{
		Window:    occlusion.Window{Start: req.Start, End: req.End},
		HasWindow: true,
		Rects:     []geometry.Rect{{Left: 1, Top: 2, Right: 3, Bottom: 4}},
	})
	return nil
}

func (f *fakeController) ResetSession() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeController) OccludeNextFrame(rects ...geometry.Rect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, rects...)
	return nil
}

func (f *fakeController) SetInsets(m insets.Metrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readonly {
		return errors.New("insets are tracked from x11")
	}
	f.metrics = m
	return nil
}

func (f *fakeController) Insets() (insets.Metrics, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics, "static"
}

func (f *fakeController) BridgeBatches() uint64 { return 9 }

func (f *fakeController) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func startServer(t *testing.T, ctrl Controller, reload chan struct{}) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "o.sock")
	srv, err := NewServer(path, ctrl, reload)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return NewClientAt(path)
}

func TestServer_GetStatus(t *testing.T) {
	client := startServer(t, &fakeController{metrics: insets.Metrics{Orientation: insets.LandscapeRight}}, nil)

	st, err := client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !st.DaemonRunning || st.Frames != 3 || st.TrackedKeys != 2 || st.QueueDepth != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Orientation != "landscape-right" || st.InsetsSource != "static" || st.BridgeBatches != 9 {
		t.Fatalf("unexpected insets fields %+v", st)
	}
}

func TestServer_Resolve(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl, nil)

	data, err := client.Resolve(100, 120)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !data.HasWindow || data.Window.Start != 100 || data.Window.End != 120 {
		t.Fatalf("unexpected window %+v", data)
	}
	if len(data.Rects) != 1 || data.Rects[0] != (geometry.Rect{Left: 1, Top: 2, Right: 3, Bottom: 4}) {
		t.Fatalf("unexpected rects %v", data.Rects)
	}
	ctrl.locked(func() {
		if ctrl.lastReq.ID == 0 {
			t.Errorf("request ID not assigned")
		}
	})

	if _, err := client.Resolve(10, 5); err == nil || !strings.Contains(err.Error(), "end must not be before start") {
		t.Fatalf("expected inverted interval error, got %v", err)
	}
}

func TestServer_ResetAndMask(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl, nil)

	if err := client.ResetSession(); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	ctrl.locked(func() {
		if ctrl.resets != 1 {
			t.Errorf("resets = %d, want 1", ctrl.resets)
		}
	})

	mask := geometry.Rect{Left: 0, Top: 0, Right: 100, Bottom: 40}
	if err := client.OccludeNextFrame(mask); err != nil {
		t.Fatalf("OccludeNextFrame: %v", err)
	}
	ctrl.locked(func() {
		if len(ctrl.manual) != 1 || ctrl.manual[0] != mask {
			t.Errorf("manual rects = %v", ctrl.manual)
		}
	})

	tests := []struct {
		name  string
		rects []geometry.Rect
		want  string
	}{
		{"empty", nil, "at least one rect"},
		{"inverted", []geometry.Rect{{Left: 10, Top: 0, Right: 0, Bottom: 5}}, "Invalid rect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.OccludeNextFrame(tt.rects...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestServer_SetInsets(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl, nil)

	if err := client.SetInsets(SetInsetsPayload{Left: 44, Orientation: "landscape-left"}); err != nil {
		t.Fatalf("SetInsets: %v", err)
	}
	if m, _ := ctrl.Insets(); m.LeftPadding() != 44 || m.Orientation != insets.LandscapeLeft {
		t.Fatalf("metrics = %+v", m)
	}

	if err := client.SetInsets(SetInsetsPayload{Orientation: "diagonal"}); err == nil {
		t.Fatal("expected error for unknown orientation")
	}

	ctrl.locked(func() { ctrl.readonly = true })
	if err := client.SetInsets(SetInsetsPayload{Left: 1}); err == nil {
		t.Fatal("expected error when insets are read-only")
	}
}

func TestServer_ReloadSignalsDaemon(t *testing.T) {
	reload := make(chan struct{}, 1)
	client := startServer(t, &fakeController{}, reload)

	if err := client.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	select {
	case <-reload:
	default:
		t.Fatal("reload channel not signalled")
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	client := startServer(t, &fakeController{}, nil)

	_, err := client.send(CommandType("BOGUS"), nil)
	if err == nil || !strings.Contains(err.Error(), "Unknown command: BOGUS") {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_NoDaemon(t *testing.T) {
	client := NewClientAt(filepath.Join(t.TempDir(), "none.sock"))
	err := client.Ping()
	if err == nil || !strings.Contains(err.Error(), "is the daemon running?") {
		t.Fatalf("err = %v", err)
	}
}
