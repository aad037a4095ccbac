package occlusion

import (
	"fmt"
	"log/slog"

	"github.com/1broseidon/occlude/internal/framestore"
	"github.com/1broseidon/occlude/internal/geometry"
)

const (
	DefaultPadding           = 5
	DefaultDebounceThreshold = 2
)

// AggregatedRect is the per-key result of one aggregation, before it is
// flattened into the rect list handed to the capturer.
type AggregatedRect struct {
	Key     WidgetKey     `json:"key"`
	Rect    geometry.Rect `json:"rect"`
	Emitted bool          `json:"emitted"`
	// InvisibleCycles is the counter after this cycle was applied.
	InvisibleCycles int `json:"invisible_cycles"`
}

// Aggregator unions per-widget rects over a window and applies hysteresis,
// padding and the horizontal coordinate offset.
type Aggregator struct {
	Padding   int
	Threshold int
	logger    *slog.Logger
}

func NewAggregator(padding, threshold int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{Padding: padding, Threshold: threshold, logger: logger}
}

type observation struct {
	rect    *geometry.Rect
	visible bool
}

// Aggregate runs one resolution cycle over win. Every key known to table takes
// exactly one hit or miss. leftPadding translates UI-layer coordinates into
// native screen coordinates.
func (a *Aggregator) Aggregate(store *framestore.Store[Frame], table *VisibilityTable, win Window, leftPadding int) []AggregatedRect {
	observed := make(map[WidgetKey]*observation)
	store.Range(win.Start, win.End, func(e framestore.Entry[Frame]) bool {
		for _, r := range e.Value.Reports {
			obs, ok := observed[r.Key]
			if !ok {
				obs = &observation{}
				observed[r.Key] = obs
				table.Entry(r.Key)
			}
			if r.Visible {
				obs.visible = true
			}
			if r.Rect != nil {
				if obs.rect == nil {
					rect := *r.Rect
					obs.rect = &rect
				} else {
					u := obs.rect.Union(*r.Rect)
					obs.rect = &u
				}
			}
		}
		return true
	})

	keys := table.Keys()
	out := make([]AggregatedRect, 0, len(keys))
	for _, key := range keys {
		agg, ok, err := a.aggregateKey(table, key, observed[key], leftPadding)
		if err != nil {
			a.logger.Error("aggregating widget failed, skipping it", "key", key, "error", err)
			continue
		}
		if ok {
			out = append(out, agg)
		}
	}
	return out
}

func (a *Aggregator) aggregateKey(table *VisibilityTable, key WidgetKey, obs *observation, leftPadding int) (agg AggregatedRect, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var cycles int
	if obs != nil && obs.visible {
		cycles = table.Hit(key)
	} else {
		cycles = table.Miss(key)
	}

	entry := table.Entry(key)
	if obs != nil {
		// A key reported only unmeasured in this window has no geometry.
		entry.LastRect = nil
		if obs.rect != nil {
			rect := *obs.rect
			entry.LastRect = &rect
		}
	}
	if entry.LastRect == nil {
		return AggregatedRect{}, false, nil
	}

	return AggregatedRect{
		Key:             key,
		Rect:            entry.LastRect.Pad(a.Padding).OffsetX(leftPadding),
		Emitted:         cycles < a.Threshold,
		InvisibleCycles: cycles,
	}, true, nil
}

// Emitted flattens aggregation results into the rects to mask.
func Emitted(aggs []AggregatedRect) []geometry.Rect {
	out := make([]geometry.Rect, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Emitted {
			out = append(out, agg.Rect)
		}
	}
	return out
}
