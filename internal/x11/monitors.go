package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/insets"
)

// Monitor represents a physical display
type Monitor struct {
	ID       int
	Name     string
	X        int
	Y        int
	Width    int
	Height   int
	Rotation uint16
	Primary  bool
}

// Rect returns the monitor's area in root window coordinates.
func (m Monitor) Rect() geometry.Rect {
	return geometry.FromXYWH(m.X, m.Y, m.Width, m.Height)
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		primary = reply.Output
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		isPrimary := false
		for _, out := range crtcInfo.Outputs {
			if primary != 0 && out == primary {
				isPrimary = true
			}
		}

		monitors = append(monitors, Monitor{
			ID:       i,
			Name:     outputName,
			X:        int(crtcInfo.X),
			Y:        int(crtcInfo.Y),
			Width:    int(crtcInfo.Width),
			Height:   int(crtcInfo.Height),
			Rotation: crtcInfo.Rotation,
			Primary:  isPrimary,
		})
	}

	return monitors, nil
}

// PrimaryMonitor returns the RandR primary output's monitor, or the first
// active one when no primary is set.
func (c *Connection) PrimaryMonitor() (*Monitor, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return nil, err
	}
	return pickPrimary(monitors)
}

func pickPrimary(monitors []Monitor) (*Monitor, error) {
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors found")
	}
	for i := range monitors {
		if monitors[i].Primary {
			return &monitors[i], nil
		}
	}
	return &monitors[0], nil
}

// Metrics reads insets and orientation for the primary monitor.
func (c *Connection) Metrics() (insets.Metrics, error) {
	mon, err := c.PrimaryMonitor()
	if err != nil {
		return insets.Metrics{}, err
	}
	in, err := c.dockInsets(mon)
	if err != nil {
		return insets.Metrics{}, err
	}
	return insets.Metrics{
		Insets:      in,
		Orientation: orientationFromRotation(mon.Rotation),
	}, nil
}

// orientationFromRotation treats the monitor's unrotated mode as Portrait.
func orientationFromRotation(rotation uint16) insets.Orientation {
	switch {
	case rotation&randr.RotationRotate90 != 0:
		return insets.LandscapeLeft
	case rotation&randr.RotationRotate180 != 0:
		return insets.PortraitUpsideDown
	case rotation&randr.RotationRotate270 != 0:
		return insets.LandscapeRight
	default:
		return insets.Portrait
	}
}

func (c *Connection) dockInsets(monitor *Monitor) (insets.Insets, error) {
	rootGeom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.Root)).Reply()
	if err != nil {
		return insets.Insets{}, fmt.Errorf("failed to get root geometry: %w", err)
	}
	rootWidth := int(rootGeom.Width)
	rootHeight := int(rootGeom.Height)

	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		// No EWMH window manager; nothing reserves screen edges.
		return insets.Insets{}, nil
	}

	var acc insets.Insets
	for _, windowID := range clients {
		types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
		if err != nil || !isDock(types) {
			continue
		}

		if sp, err := ewmh.WmStrutPartialGet(c.XUtil, windowID); err == nil {
			updateStrutsForMonitor(monitor, rootWidth, rootHeight, sp, &acc)
			continue
		}

		// Some docks only set _NET_WM_STRUT (no partial ranges).
		if s, err := ewmh.WmStrutGet(c.XUtil, windowID); err == nil {
			updateStrutsForMonitor(monitor, rootWidth, rootHeight, fullStrut(s, rootWidth, rootHeight), &acc)
		}
	}
	return acc, nil
}

func isDock(types []string) bool {
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_DOCK" {
			return true
		}
	}
	return false
}

func fullStrut(s *ewmh.WmStrut, rootWidth, rootHeight int) *ewmh.WmStrutPartial {
	return &ewmh.WmStrutPartial{
		Left:         s.Left,
		Right:        s.Right,
		Top:          s.Top,
		Bottom:       s.Bottom,
		LeftStartY:   0,
		LeftEndY:     uint(rootHeight - 1),
		RightStartY:  0,
		RightEndY:    uint(rootHeight - 1),
		TopStartX:    0,
		TopEndX:      uint(rootWidth - 1),
		BottomStartX: 0,
		BottomEndX:   uint(rootWidth - 1),
	}
}

// updateStrutsForMonitor widens acc by the part of each reserved edge strip
// that overlaps monitor.
func updateStrutsForMonitor(monitor *Monitor, rootWidth, rootHeight int, sp *ewmh.WmStrutPartial, acc *insets.Insets) {
	mon := monitor.Rect()

	// Top strut: y=[0,Top), x=[TopStartX,TopEndX]
	if sp.Top > 0 {
		strip := geometry.Rect{Left: int(sp.TopStartX), Top: 0, Right: int(sp.TopEndX) + 1, Bottom: int(sp.Top)}
		if isect, ok := mon.Intersect(strip); ok {
			acc.Top = max(acc.Top, isect.Height())
		}
	}

	// Bottom strut: y=[rootHeight-Bottom,rootHeight), x=[BottomStartX,BottomEndX]
	if sp.Bottom > 0 {
		strip := geometry.Rect{Left: int(sp.BottomStartX), Top: rootHeight - int(sp.Bottom), Right: int(sp.BottomEndX) + 1, Bottom: rootHeight}
		if isect, ok := mon.Intersect(strip); ok {
			acc.Bottom = max(acc.Bottom, isect.Height())
		}
	}

	// Left strut: x=[0,Left), y=[LeftStartY,LeftEndY]
	if sp.Left > 0 {
		strip := geometry.Rect{Left: 0, Top: int(sp.LeftStartY), Right: int(sp.Left), Bottom: int(sp.LeftEndY) + 1}
		if isect, ok := mon.Intersect(strip); ok {
			acc.Left = max(acc.Left, isect.Width())
		}
	}

	// Right strut: x=[rootWidth-Right,rootWidth), y=[RightStartY,RightEndY]
	if sp.Right > 0 {
		strip := geometry.Rect{Left: rootWidth - int(sp.Right), Top: int(sp.RightStartY), Right: rootWidth, Bottom: int(sp.RightEndY) + 1}
		if isect, ok := mon.Intersect(strip); ok {
			acc.Right = max(acc.Right, isect.Width())
		}
	}
}
