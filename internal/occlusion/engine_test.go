package occlusion

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/occlude/internal/framestore"
	"github.com/1broseidon/occlude/internal/geometry"
)

func rect(l, t, r, b int) *geometry.Rect {
	return &geometry.Rect{Left: l, Top: t, Right: r, Bottom: b}
}

func testEngine(t *testing.T, slack int64) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SlackOffset = slack
	cfg.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewEngine(cfg)
}

func TestEngine_ScenarioA_FallsBackToFirstFrame(t *testing.T) {
	e := testEngine(t, 50)
	e.Ingest(Batch{Timestamp: 100, Reports: []BoundReport{
		{Key: "K1", Rect: rect(10, 10, 50, 50), Visible: true},
	}})

	res := e.Resolve(90, 110, 0)

	require.True(t, res.HasWindow)
	assert.Equal(t, Window{Start: 100, End: 100}, res.Window)
	assert.Equal(t, []geometry.Rect{{Left: 5, Top: 5, Right: 55, Bottom: 55}}, res.Rects)
}

func TestEngine_ScenarioB_UnionAcrossWindow(t *testing.T) {
	e := testEngine(t, 50)
	e.Ingest(Batch{Timestamp: 100, Reports: []BoundReport{
		{Key: "K2", Rect: rect(0, 0, 10, 10), Visible: true},
	}})
	e.Ingest(Batch{Timestamp: 105, Reports: []BoundReport{
		{Key: "K2", Rect: rect(20, 20, 30, 30), Visible: true},
	}})

	res := e.Resolve(100, 105, 0)

	assert.Equal(t, Window{Start: 100, End: 105}, res.Window)
	assert.Equal(t, []geometry.Rect{{Left: -5, Top: -5, Right: 35, Bottom: 35}}, res.Rects)
}

func TestEngine_ScenarioC_HysteresisDropsAfterTwoMisses(t *testing.T) {
	e := testEngine(t, 0)
	e.Ingest(Batch{Timestamp: 100, Reports: []BoundReport{
		{Key: "K3", Rect: rect(0, 0, 10, 10), Visible: true},
	}})
	res := e.Resolve(100, 100, 0)
	require.Len(t, res.Rects, 1)

	e.Ingest(Batch{Timestamp: 105})
	res = e.Resolve(105, 105, 0)
	assert.Equal(t, Window{Start: 105, End: 105}, res.Window)
	require.Len(t, res.Rects, 1, "first miss keeps the mask")
	entry, _ := e.Visibility().Lookup("K3")
	assert.Equal(t, 1, entry.InvisibleCycles)

	e.Ingest(Batch{Timestamp: 110})
	res = e.Resolve(110, 110, 0)
	assert.Empty(t, res.Rects, "second miss drops the mask")
	entry, _ = e.Visibility().Lookup("K3")
	assert.Equal(t, 2, entry.InvisibleCycles)

	e.Ingest(Batch{Timestamp: 115, Reports: []BoundReport{
		{Key: "K3", Rect: rect(2, 2, 12, 12), Visible: true},
	}})
	res = e.Resolve(115, 115, 0)
	assert.Equal(t, []geometry.Rect{{Left: -3, Top: -3, Right: 17, Bottom: 17}}, res.Rects)
	entry, _ = e.Visibility().Lookup("K3")
	assert.Equal(t, 0, entry.InvisibleCycles)
}

func TestEngine_ScenarioD_EmptyStore(t *testing.T) {
	e := testEngine(t, 50)

	res := e.Resolve(0, 100, 0)

	assert.False(t, res.HasWindow)
	require.NotNil(t, res.Rects)
	assert.Empty(t, res.Rects)
}

func TestEngine_InvisibleReportsCountOncePerCycle(t *testing.T) {
	e := testEngine(t, 0)
	for ts := int64(100); ts <= 120; ts += 5 {
		e.Ingest(Batch{Timestamp: ts, Reports: []BoundReport{
			{Key: "K", Rect: rect(0, 0, 10, 10), Visible: false},
		}})
	}

	res := e.Resolve(100, 120, 0)

	require.Len(t, res.Aggregated, 1)
	assert.Equal(t, 1, res.Aggregated[0].InvisibleCycles)
	assert.True(t, res.Aggregated[0].Emitted)
}

func TestEngine_LeftPaddingShiftsHorizontalEdgesOnly(t *testing.T) {
	e := testEngine(t, 0)
	e.Ingest(Batch{Timestamp: 1, Reports: []BoundReport{
		{Key: "K", Rect: rect(10, 20, 30, 40), Visible: true},
	}})

	res := e.Resolve(1, 1, 24)

	assert.Equal(t, []geometry.Rect{{Left: 29, Top: 15, Right: 59, Bottom: 45}}, res.Rects)
}

func TestEngine_UnmeasuredReportContributesNoGeometry(t *testing.T) {
	e := testEngine(t, 0)
	e.Ingest(Batch{Timestamp: 1, Reports: []BoundReport{
		{Key: "pending", Visible: true},
		{Key: "K", Rect: rect(100, 100, 110, 110), Visible: true},
	}})

	res := e.Resolve(1, 1, 0)

	assert.Equal(t, []geometry.Rect{{Left: 95, Top: 95, Right: 115, Bottom: 115}}, res.Rects)
	_, tracked := e.Visibility().Lookup("pending")
	assert.True(t, tracked)
}

func TestEngine_UnmeasuredReportsDropPreviousRect(t *testing.T) {
	e := testEngine(t, 0)
	e.Ingest(Batch{Timestamp: 100, Reports: []BoundReport{
		{Key: "K", Rect: rect(0, 0, 10, 10), Visible: true},
	}})
	res := e.Resolve(100, 100, 0)
	require.Equal(t, []geometry.Rect{{Left: -5, Top: -5, Right: 15, Bottom: 15}}, res.Rects)

	for ts := int64(105); ts <= 130; ts += 5 {
		e.Ingest(Batch{Timestamp: ts, Reports: []BoundReport{{Key: "K", Visible: true}}})
		res = e.Resolve(ts, ts, 0)
		assert.Empty(t, res.Rects, "unmeasured at %d", ts)
	}
	entry, _ := e.Visibility().Lookup("K")
	assert.Equal(t, 0, entry.InvisibleCycles)
	assert.Nil(t, entry.LastRect)

	// Once the widget vanishes from the window entirely, nothing stale is
	// resurrected either.
	e.Ingest(Batch{Timestamp: 135})
	assert.Empty(t, e.Resolve(135, 135, 0).Rects)

	e.Ingest(Batch{Timestamp: 140, Reports: []BoundReport{
		{Key: "K", Rect: rect(20, 20, 30, 30), Visible: true},
	}})
	assert.Equal(t, []geometry.Rect{{Left: 15, Top: 15, Right: 35, Bottom: 35}}, e.Resolve(140, 140, 0).Rects)
}

func TestEngine_OccludeNextFrameIsOneShot(t *testing.T) {
	e := testEngine(t, 0)
	manual := geometry.Rect{Left: 1, Top: 2, Right: 3, Bottom: 4}
	e.OccludeNextFrame(manual)

	res := e.Resolve(0, 0, 100)
	assert.Equal(t, []geometry.Rect{manual}, res.Rects)

	res = e.Resolve(0, 0, 100)
	assert.Empty(t, res.Rects)
}

func TestEngine_ResetClearsSession(t *testing.T) {
	e := testEngine(t, 0)
	e.Ingest(Batch{Timestamp: 1, Reports: []BoundReport{
		{Key: "K", Rect: rect(0, 0, 1, 1), Visible: true},
	}})
	e.Resolve(1, 1, 0)
	e.OccludeNextFrame(geometry.Rect{})

	e.Reset()

	snap := e.Snapshot()
	assert.Equal(t, Snapshot{}, snap)
	res := e.Resolve(0, 10, 0)
	assert.Empty(t, res.Rects)
}

func TestEngine_PruneAfterCycles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlackOffset = 0
	cfg.PruneAfterCycles = 3
	e := NewEngine(cfg)

	e.Ingest(Batch{Timestamp: 1, Reports: []BoundReport{{Key: "gone", Rect: rect(0, 0, 1, 1), Visible: true}}})
	e.Resolve(1, 1, 0)
	for ts := int64(2); ts <= 4; ts++ {
		e.Ingest(Batch{Timestamp: ts})
		e.Resolve(ts, ts, 0)
	}

	_, ok := e.Visibility().Lookup("gone")
	assert.False(t, ok)
}

func TestEngine_EvictionNeverDropsUncoveredFrames(t *testing.T) {
	e := testEngine(t, 0)

	ingested := map[int64]bool{}
	covered := map[int64]bool{}

	resolveAt := map[int64]int64{
		130: 125,
		170: 165,
		260: 100, // request far in the past
		300: 290,
		420: 415,
	}

	for ts := int64(100); ts <= 450; ts += 10 {
		e.Ingest(Batch{Timestamp: ts, Reports: []BoundReport{
			{Key: WidgetKey("w"), Rect: rect(0, 0, 1, 1), Visible: true},
		}})
		ingested[ts] = true

		start, ok := resolveAt[ts]
		if !ok {
			continue
		}
		before := keysOf(e.store)
		res := e.Resolve(start, ts, 0)
		require.True(t, res.HasWindow)
		for _, k := range before {
			if k >= res.Window.Start && k <= res.Window.End {
				covered[k] = true
			}
		}

		remaining := map[int64]bool{}
		for _, k := range keysOf(e.store) {
			remaining[k] = true
		}
		for k := range ingested {
			if !remaining[k] {
				assert.True(t, covered[k], "frame %d evicted before any window covered it", k)
			}
		}
		assert.LessOrEqual(t, e.evictor.Cutoff(res.Window), res.Window.Start)
	}
}

func keysOf(s *framestore.Store[Frame]) []int64 {
	var keys []int64
	s.Range(-1<<62, 1<<62, func(e framestore.Entry[Frame]) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}
