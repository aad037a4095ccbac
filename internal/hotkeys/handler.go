// Package hotkeys binds global X11 key sequences to privacy actions on the
// occlusion pipeline.
package hotkeys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/x11"
)

// Actions is the part of the daemon the hotkeys drive.
type Actions interface {
	ResetSession() error
	OccludeNextFrame(rects ...geometry.Rect) error
}

// Bindings maps key sequences in xgbutil keybind syntax to actions.
type Bindings struct {
	MaskScreen   string
	ResetSession string
}

// Handler manages global keyboard shortcuts. It needs a connection of its
// own: xevent.Main consumes every event on the connection it runs on.
type Handler struct {
	conn    *x11.Connection
	actions Actions
	logger  *slog.Logger
	screen  func() (geometry.Rect, error)
}

var ignoreModsOnce sync.Once

// NewHandler creates a new hotkey handler on conn.
func NewHandler(conn *x11.Connection, actions Actions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	keybind.Initialize(conn.XUtil)
	ignoreModsOnce.Do(func() {
		configureIgnoreMods(conn.XUtil)
	})

	return &Handler{
		conn:    conn,
		actions: actions,
		logger:  logger,
		screen:  func() (geometry.Rect, error) { return primaryRect(conn) },
	}
}

func primaryRect(conn *x11.Connection) (geometry.Rect, error) {
	m, err := conn.PrimaryMonitor()
	if err != nil {
		return geometry.Rect{}, err
	}
	return m.Rect(), nil
}

// Register grabs every non-empty binding.
func (h *Handler) Register(b Bindings) error {
	if b.MaskScreen != "" {
		if err := h.RegisterFunc(b.MaskScreen, h.maskScreen); err != nil {
			return fmt.Errorf("failed to register mask hotkey %q: %w", b.MaskScreen, err)
		}
		h.logger.Info("hotkey registered", "action", "mask_screen", "keys", b.MaskScreen)
	}
	if b.ResetSession != "" {
		if err := h.RegisterFunc(b.ResetSession, h.resetSession); err != nil {
			return fmt.Errorf("failed to register reset hotkey %q: %w", b.ResetSession, err)
		}
		h.logger.Info("hotkey registered", "action", "reset_session", "keys", b.ResetSession)
	}
	return nil
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.conn.XUtil, h.conn.Root, keySequence, true)
}

// Run dispatches key events until ctx is done, then closes the connection.
func (h *Handler) Run(ctx context.Context) {
	xu := h.conn.XUtil
	done := make(chan struct{})
	go func() {
		defer close(done)
		xevent.Main(xu)
	}()

	select {
	case <-ctx.Done():
		xevent.Quit(xu)
	case <-done:
		h.logger.Warn("hotkey event loop exited")
	}
	keybind.Detach(xu, h.conn.Root)
	h.Close()
}

// Close releases the connection without running the event loop.
func (h *Handler) Close() {
	h.conn.Close()
}

// maskScreen covers the whole primary monitor on the next captured frame.
func (h *Handler) maskScreen() {
	r, err := h.screen()
	if err != nil {
		h.logger.Warn("mask hotkey: primary monitor unavailable", "error", err)
		return
	}
	if err := h.actions.OccludeNextFrame(r); err != nil {
		h.logger.Warn("mask hotkey failed", "error", err)
		return
	}
	h.logger.Info("next frame masked by hotkey", "rect", r.String())
}

func (h *Handler) resetSession() {
	if err := h.actions.ResetSession(); err != nil {
		h.logger.Warn("reset hotkey failed", "error", err)
		return
	}
	h.logger.Info("session reset by hotkey")
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}
	xevent.IgnoreMods = ignoreMasks(base)
}

// ignoreMasks returns every combination of the lock modifiers in base,
// including none.
func ignoreMasks(base []uint16) []uint16 {
	unique := map[uint16]struct{}{0: {}}
	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		unique[mask] = struct{}{}
	}

	ignore := make([]uint16, 0, len(unique))
	for mask := range unique {
		ignore = append(ignore, mask)
	}
	return ignore
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
