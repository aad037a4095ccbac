package occlusion

import "github.com/1broseidon/occlude/internal/geometry"

// VisibilityEntry is the hysteresis state kept per widget across resolutions.
type VisibilityEntry struct {
	// InvisibleCycles counts consecutive resolutions without a visible report.
	InvisibleCycles int
	// LastRect is the most recent unioned rect seen for the key, re-emitted
	// while the key is missing from a window but still under the threshold.
	LastRect *geometry.Rect
}

// VisibilityTable tracks VisibilityEntry per widget key in first-seen order.
// Keys are never removed implicitly; Prune is opt-in.
type VisibilityTable struct {
	entries map[WidgetKey]*VisibilityEntry
	order   []WidgetKey
}

func NewVisibilityTable() *VisibilityTable {
	return &VisibilityTable{entries: make(map[WidgetKey]*VisibilityEntry)}
}

// Entry returns the entry for key, creating a zero entry for unseen keys.
func (t *VisibilityTable) Entry(key WidgetKey) *VisibilityEntry {
	if e, ok := t.entries[key]; ok {
		return e
	}
	e := &VisibilityEntry{}
	t.entries[key] = e
	t.order = append(t.order, key)
	return e
}

// Lookup returns the entry for key without creating it.
func (t *VisibilityTable) Lookup(key WidgetKey) (VisibilityEntry, bool) {
	e, ok := t.entries[key]
	if !ok {
		return VisibilityEntry{}, false
	}
	return *e, true
}

// Hit resets the counter for key.
func (t *VisibilityTable) Hit(key WidgetKey) int {
	e := t.Entry(key)
	e.InvisibleCycles = 0
	return 0
}

// Miss increments the counter for key by one.
func (t *VisibilityTable) Miss(key WidgetKey) int {
	e := t.Entry(key)
	e.InvisibleCycles++
	return e.InvisibleCycles
}

// Keys returns the known keys in first-seen order.
func (t *VisibilityTable) Keys() []WidgetKey {
	out := make([]WidgetKey, len(t.order))
	copy(out, t.order)
	return out
}

func (t *VisibilityTable) Len() int {
	return len(t.order)
}

// Prune removes every key whose counter reached cycles. It returns the number
// of removed keys. cycles <= 0 is a no-op.
func (t *VisibilityTable) Prune(cycles int) int {
	if cycles <= 0 {
		return 0
	}
	kept := t.order[:0]
	removed := 0
	for _, key := range t.order {
		if t.entries[key].InvisibleCycles >= cycles {
			delete(t.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	t.order = kept
	return removed
}

// Reset clears the table.
func (t *VisibilityTable) Reset() {
	t.entries = make(map[WidgetKey]*VisibilityEntry)
	t.order = nil
}
