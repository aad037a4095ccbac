package x11

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/1broseidon/occlude/internal/insets"
)

// InsetsWatcher keeps an insets.Tracker in sync with the X server. It
// re-reads metrics whenever the screen configuration or the EWMH client list
// changes.
type InsetsWatcher struct {
	conn    *Connection
	tracker *insets.Tracker
	logger  *slog.Logger
}

func NewInsetsWatcher(conn *Connection, tracker *insets.Tracker, logger *slog.Logger) *InsetsWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsetsWatcher{conn: conn, tracker: tracker, logger: logger}
}

// Refresh reads the current metrics into the tracker.
func (w *InsetsWatcher) Refresh() error {
	m, err := w.conn.Metrics()
	if err != nil {
		return err
	}
	prev := w.tracker.Metrics()
	w.tracker.Update(m)
	if prev != m {
		w.logger.Info("display metrics changed",
			"left", m.Insets.Left,
			"top", m.Insets.Top,
			"right", m.Insets.Right,
			"bottom", m.Insets.Bottom,
			"orientation", m.Orientation.String())
	}
	return nil
}

// Run subscribes to change notifications and refreshes until ctx is done.
// The connection is closed on return.
func (w *InsetsWatcher) Run(ctx context.Context) error {
	xc := w.conn.XUtil.Conn()
	if err := randr.Init(xc); err != nil {
		return fmt.Errorf("randr init failed: %w", err)
	}
	if err := randr.SelectInputChecked(xc, w.conn.Root,
		randr.NotifyMaskScreenChange|randr.NotifyMaskCrtcChange).Check(); err != nil {
		return fmt.Errorf("failed to select randr events: %w", err)
	}
	if err := xproto.ChangeWindowAttributesChecked(xc, w.conn.Root,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check(); err != nil {
		return fmt.Errorf("failed to select root property events: %w", err)
	}

	watched := make(map[xproto.Atom]bool)
	for _, name := range []string{"_NET_CLIENT_LIST", "_NET_WORKAREA"} {
		if atom, err := xprop.Atm(w.conn.XUtil, name); err == nil {
			watched[atom] = true
		}
	}

	if err := w.Refresh(); err != nil {
		w.logger.Warn("initial display metrics unavailable", "error", err)
	}

	events := make(chan xgb.Event)
	go func() {
		defer close(events)
		for {
			ev, err := xc.WaitForEvent()
			if ev == nil && err == nil {
				return // connection closed
			}
			if err != nil {
				w.logger.Debug("x11 event error", "error", err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer w.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("x11 connection closed")
			}
			if !relevant(ev, watched) {
				continue
			}
			if err := w.Refresh(); err != nil {
				w.logger.Warn("failed to refresh display metrics", "error", err)
			}
		}
	}
}

func relevant(ev xgb.Event, watched map[xproto.Atom]bool) bool {
	switch e := ev.(type) {
	case randr.ScreenChangeNotifyEvent, randr.NotifyEvent:
		return true
	case xproto.PropertyNotifyEvent:
		return watched[e.Atom]
	default:
		return false
	}
}
