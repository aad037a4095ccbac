package occlusion

import "github.com/1broseidon/occlude/internal/framestore"

// Evictor purges frame history that a resolution has consumed.
type Evictor struct {
	// Margin keeps frames slightly older than the window start, protecting a
	// report that was enqueued out of order right before the resolution.
	Margin int64
}

// Cutoff returns the eviction cutoff for win. It never exceeds win.Start.
func (e Evictor) Cutoff(win Window) int64 {
	if e.Margin <= 0 {
		return win.Start
	}
	return win.Start - e.Margin
}

// Evict removes every frame older than the cutoff for win.
func (e Evictor) Evict(store *framestore.Store[Frame], win Window) int {
	return store.EvictBefore(e.Cutoff(win))
}
