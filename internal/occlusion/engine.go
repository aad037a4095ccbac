package occlusion

import (
	"log/slog"

	"github.com/1broseidon/occlude/internal/framestore"
	"github.com/1broseidon/occlude/internal/geometry"
)

const (
	DefaultSlackOffset = 50
	DefaultMaxFrames   = 4096
)

// Config holds the aggregator tunables. Durations are in the same monotonic
// milliseconds the UI layer stamps its batches with.
type Config struct {
	SlackOffset       int64
	Padding           int
	DebounceThreshold int
	EvictionMargin    int64
	MaxFrames         int
	PruneAfterCycles  int
	Logger            *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		SlackOffset:       DefaultSlackOffset,
		Padding:           DefaultPadding,
		DebounceThreshold: DefaultDebounceThreshold,
		MaxFrames:         DefaultMaxFrames,
	}
}

// Result is the outcome of one resolution.
type Result struct {
	Window     Window           `json:"window"`
	HasWindow  bool             `json:"has_window"`
	Aggregated []AggregatedRect `json:"aggregated,omitempty"`
	Rects      []geometry.Rect  `json:"rects"`
	Evicted    int              `json:"evicted"`
	Pruned     int              `json:"pruned"`
}

// Snapshot describes engine state for status reporting.
type Snapshot struct {
	Frames        int   `json:"frames"`
	OldestFrame   int64 `json:"oldest_frame,omitempty"`
	NewestFrame   int64 `json:"newest_frame,omitempty"`
	TrackedKeys   int   `json:"tracked_keys"`
	PendingManual int   `json:"pending_manual"`
}

// Engine composes the frame store, ingestor, window resolver, aggregator,
// visibility table and evictor for one recording session.
type Engine struct {
	store      *framestore.Store[Frame]
	table      *VisibilityTable
	ingestor   *Ingestor
	resolver   WindowResolver
	aggregator *Aggregator
	evictor    Evictor
	prune      int
	pending    []geometry.Rect
	logger     *slog.Logger
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := framestore.New[Frame]()
	return &Engine{
		store:      store,
		table:      NewVisibilityTable(),
		ingestor:   NewIngestor(store, cfg.MaxFrames, logger),
		resolver:   WindowResolver{Slack: cfg.SlackOffset},
		aggregator: NewAggregator(cfg.Padding, cfg.DebounceThreshold, logger),
		evictor:    Evictor{Margin: cfg.EvictionMargin},
		prune:      cfg.PruneAfterCycles,
		logger:     logger,
	}
}

// Configure applies new tunables without touching session state.
func (e *Engine) Configure(cfg Config) {
	e.ingestor.maxFrames = cfg.MaxFrames
	e.resolver.Slack = cfg.SlackOffset
	e.aggregator.Padding = cfg.Padding
	e.aggregator.Threshold = cfg.DebounceThreshold
	e.evictor.Margin = cfg.EvictionMargin
	e.prune = cfg.PruneAfterCycles
}

func (e *Engine) Ingest(batch Batch) IngestStats {
	return e.ingestor.Ingest(batch)
}

// OccludeNextFrame queues rects, already in native screen coordinates, to be
// appended verbatim to the next resolution's output.
func (e *Engine) OccludeNextFrame(rects ...geometry.Rect) {
	e.pending = append(e.pending, rects...)
}

// Resolve produces the rects to mask for a capture of [start, end].
func (e *Engine) Resolve(start, end int64, leftPadding int) Result {
	var res Result

	win, ok := e.resolver.Resolve(e.store, start, end)
	if ok {
		res.Window = win
		res.HasWindow = true
		res.Aggregated = e.aggregator.Aggregate(e.store, e.table, win, leftPadding)
		res.Rects = Emitted(res.Aggregated)
		e.resolver.MarkCovered(win)
		res.Evicted = e.evictor.Evict(e.store, win)
		res.Pruned = e.table.Prune(e.prune)
	} else {
		e.logger.Debug("no frames to resolve against", "start", start, "end", end)
	}

	if res.Rects == nil {
		res.Rects = []geometry.Rect{}
	}
	if len(e.pending) > 0 {
		res.Rects = append(res.Rects, e.pending...)
		e.pending = nil
	}
	return res
}

// Reset clears all session state.
func (e *Engine) Reset() {
	e.store.Clear()
	e.table.Reset()
	e.resolver.Reset()
	e.pending = nil
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Frames:        e.store.Len(),
		TrackedKeys:   e.table.Len(),
		PendingManual: len(e.pending),
	}
	if first, ok := e.store.First(); ok {
		s.OldestFrame = first.Key
	}
	if last, ok := e.store.Last(); ok {
		s.NewestFrame = last.Key
	}
	return s
}

// Visibility exposes the visibility table for inspection.
func (e *Engine) Visibility() *VisibilityTable {
	return e.table
}
