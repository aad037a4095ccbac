package x11

import (
	"testing"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/insets"
)

func TestUpdateStrutsForMonitor(t *testing.T) {
	// Two 1920x1080 monitors side by side.
	left := &Monitor{X: 0, Y: 0, Width: 1920, Height: 1080}
	right := &Monitor{X: 1920, Y: 0, Width: 1920, Height: 1080}
	rootW, rootH := 3840, 1080

	tests := []struct {
		name    string
		monitor *Monitor
		strut   *ewmh.WmStrutPartial
		want    insets.Insets
	}{
		{
			name:    "left dock on left monitor",
			monitor: left,
			strut:   &ewmh.WmStrutPartial{Left: 48, LeftStartY: 0, LeftEndY: 1079},
			want:    insets.Insets{Left: 48},
		},
		{
			name:    "left dock does not reach right monitor",
			monitor: right,
			strut:   &ewmh.WmStrutPartial{Left: 48, LeftStartY: 0, LeftEndY: 1079},
			want:    insets.Insets{},
		},
		{
			name:    "top panel limited to right monitor",
			monitor: right,
			strut:   &ewmh.WmStrutPartial{Top: 30, TopStartX: 1920, TopEndX: 3839},
			want:    insets.Insets{Top: 30},
		},
		{
			name:    "top panel straddling both monitors",
			monitor: left,
			strut:   &ewmh.WmStrutPartial{Top: 30, TopStartX: 1800, TopEndX: 2099},
			want:    insets.Insets{Top: 30},
		},
		{
			name:    "bottom and right struts",
			monitor: right,
			strut: &ewmh.WmStrutPartial{
				Bottom: 24, BottomStartX: 0, BottomEndX: 3839,
				Right: 10, RightStartY: 0, RightEndY: 1079,
			},
			want: insets.Insets{Bottom: 24, Right: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got insets.Insets
			updateStrutsForMonitor(tt.monitor, rootW, rootH, tt.strut, &got)
			if got != tt.want {
				t.Fatalf("insets = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUpdateStrutsForMonitor_KeepsWidest(t *testing.T) {
	mon := &Monitor{Width: 1920, Height: 1080}
	var acc insets.Insets
	updateStrutsForMonitor(mon, 1920, 1080, &ewmh.WmStrutPartial{Left: 60, LeftEndY: 1079}, &acc)
	updateStrutsForMonitor(mon, 1920, 1080, &ewmh.WmStrutPartial{Left: 20, LeftEndY: 1079}, &acc)
	if acc.Left != 60 {
		t.Fatalf("Left = %d, want 60", acc.Left)
	}
}

func TestFullStrutCoversRoot(t *testing.T) {
	sp := fullStrut(&ewmh.WmStrut{Left: 32}, 1920, 1080)
	mon := &Monitor{Width: 1920, Height: 1080}
	var acc insets.Insets
	updateStrutsForMonitor(mon, 1920, 1080, sp, &acc)
	if acc.Left != 32 {
		t.Fatalf("Left = %d, want 32", acc.Left)
	}
}

func TestOrientationFromRotation(t *testing.T) {
	tests := []struct {
		rotation uint16
		want     insets.Orientation
	}{
		{randr.RotationRotate0, insets.Portrait},
		{randr.RotationRotate90, insets.LandscapeLeft},
		{randr.RotationRotate180, insets.PortraitUpsideDown},
		{randr.RotationRotate270, insets.LandscapeRight},
		{randr.RotationRotate90 | randr.RotationReflectX, insets.LandscapeLeft},
	}
	for _, tt := range tests {
		if got := orientationFromRotation(tt.rotation); got != tt.want {
			t.Errorf("orientationFromRotation(%d) = %v, want %v", tt.rotation, got, tt.want)
		}
	}
}

func TestPickPrimary(t *testing.T) {
	if _, err := pickPrimary(nil); err == nil {
		t.Fatal("expected error for no monitors")
	}

	mons := []Monitor{{ID: 0, Name: "DP-1"}, {ID: 1, Name: "HDMI-1", Primary: true}}
	got, err := pickPrimary(mons)
	if err != nil || got.Name != "HDMI-1" {
		t.Fatalf("pickPrimary = %+v, %v", got, err)
	}

	got, err = pickPrimary(mons[:1])
	if err != nil || got.Name != "DP-1" {
		t.Fatalf("fallback pickPrimary = %+v, %v", got, err)
	}
}

func TestIsDock(t *testing.T) {
	if !isDock([]string{"_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DOCK"}) {
		t.Fatal("expected dock")
	}
	if isDock([]string{"_NET_WM_WINDOW_TYPE_NORMAL"}) {
		t.Fatal("unexpected dock")
	}
}

func TestMonitorRect(t *testing.T) {
	m := Monitor{X: 1920, Y: 120, Width: 2560, Height: 1440}
	want := geometry.Rect{Left: 1920, Top: 120, Right: 4480, Bottom: 1560}
	if got := m.Rect(); got != want {
		t.Fatalf("Rect = %v, want %v", got, want)
	}
}
