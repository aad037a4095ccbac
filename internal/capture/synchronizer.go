// Package capture serializes bound-report ingestion and capture resolution
// onto a single worker goroutine that exclusively owns the occlusion engine.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/occlusion"
)

const (
	DefaultQueueCapacity   = 1024
	DefaultResolveDeadline = 16 * time.Millisecond
)

// ErrClosed is returned once the worker has stopped.
var ErrClosed = errors.New("capture synchronizer closed")

// Config holds synchronizer configuration.
type Config struct {
	Engine          occlusion.Config
	QueueCapacity   int
	ResolveDeadline time.Duration
	Logger          *slog.Logger
	// Now overrides the clock used for resolve deadlines.
	Now func() time.Time
}

// Status is a consistent view of the worker and engine state.
type Status struct {
	occlusion.Snapshot
	QueueDepth     int    `json:"queue_depth"`
	Batches        uint64 `json:"batches"`
	DroppedBatches uint64 `json:"dropped_batches"`
	DroppedReports uint64 `json:"dropped_reports"`
	Resolved       uint64 `json:"resolved"`
	Overruns       uint64 `json:"overruns"`
	LeftPadding    int    `json:"left_padding"`
}

// Synchronizer accepts ingestion and resolution from any goroutine and runs
// them in arrival order on one worker.
type Synchronizer struct {
	engine   *occlusion.Engine
	queue    *taskQueue
	capturer Capturer
	offsets  insets.Source
	deadline time.Duration
	now      func() time.Time
	logger   *slog.Logger

	running atomic.Bool
	done    chan struct{}

	batches        atomic.Uint64
	droppedBatches atomic.Uint64
	droppedReports atomic.Uint64
	resolved       atomic.Uint64
	overruns       atomic.Uint64
}

// New creates a synchronizer. Results of Resolve go to capturer; offsets is
// read on every resolution. Call Run to start the worker.
func New(cfg Config, capturer Capturer, offsets insets.Source) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if capturer == nil {
		capturer = Discard
	}
	if offsets == nil {
		offsets = insets.Static(0)
	}

	return &Synchronizer{
		engine:   occlusion.NewEngine(cfg.Engine),
		queue:    newTaskQueue(capacity),
		capturer: capturer,
		offsets:  offsets,
		deadline: cfg.ResolveDeadline,
		now:      now,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run processes tasks until ctx is done. Resolutions still queued at that
// point are answered with an empty rect list.
func (s *Synchronizer) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("capture synchronizer already running")
		return
	}
	defer close(s.done)

	s.logger.Info("capture synchronizer started")
	for {
		t, ok := s.queue.pop(ctx)
		if !ok {
			break
		}
		s.runTask(t.run)
	}

	for _, t := range s.queue.close() {
		if t.cancel != nil {
			s.runTask(t.cancel)
		}
	}
	s.logger.Info("capture synchronizer stopped")
}

// Done is closed when Run returns.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

func (s *Synchronizer) runTask(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("capture task panic recovered", "error", err)
		}
	}()
	fn()
}

// Ingest enqueues a report batch. It never blocks; when the ingest backlog is
// full the oldest pending batch is dropped.
func (s *Synchronizer) Ingest(batch occlusion.Batch) {
	accepted, dropped := s.queue.push(task{
		kind: kindIngest,
		run: func() {
			stats := s.engine.Ingest(batch)
			s.batches.Add(1)
			s.droppedReports.Add(uint64(stats.Dropped))
		},
	})
	if !accepted {
		s.logger.Debug("ingest after close ignored", "timestamp", batch.Timestamp)
		return
	}
	if dropped {
		n := s.droppedBatches.Add(1)
		if n == 1 || n%100 == 0 {
			s.logger.Warn("ingest backlog full, dropped oldest batch", "dropped_total", n)
		}
	}
}

// Resolve enqueues a capture request whose rects go to the Capturer.
func (s *Synchronizer) Resolve(req Request) error {
	return s.ResolveFunc(req, func(res occlusion.Result) {
		s.capturer.Capture(req, res.Rects)
	})
}

// ResolveFunc enqueues a capture request whose full result goes to fn. fn runs
// on the worker goroutine.
func (s *Synchronizer) ResolveFunc(req Request, fn func(occlusion.Result)) error {
	enqueued := s.now()
	accepted, _ := s.queue.push(task{
		kind: kindResolve,
		run: func() {
			if s.deadline > 0 {
				if waited := s.now().Sub(enqueued); waited > s.deadline {
					s.overruns.Add(1)
					s.logger.Warn("resolve deadline overrun, delivering no rects",
						"request", req.ID,
						"waited", waited,
						"deadline", s.deadline)
					fn(emptyResult())
					return
				}
			}

			res := s.engine.Resolve(req.Start, req.End, s.offsets.LeftPadding())
			s.resolved.Add(1)
			if res.HasWindow {
				s.logger.Debug("resolved capture window",
					"request", req.ID,
					"window_start", res.Window.Start,
					"window_end", res.Window.End,
					"rects", len(res.Rects),
					"evicted", res.Evicted)
			}
			fn(res)
		},
		cancel: func() { fn(emptyResult()) },
	})
	if !accepted {
		return ErrClosed
	}
	return nil
}

func emptyResult() occlusion.Result {
	return occlusion.Result{Rects: []geometry.Rect{}}
}

// ResetSession clears the frame store, visibility table and pending manual
// rects. Tasks enqueued before the reset still run against the old session.
func (s *Synchronizer) ResetSession() error {
	return s.control(func() {
		s.engine.Reset()
		s.logger.Info("occlusion session reset")
	})
}

// OccludeNextFrame adds native-coordinate rects to the next resolution only.
func (s *Synchronizer) OccludeNextFrame(rects ...geometry.Rect) error {
	valid := make([]geometry.Rect, 0, len(rects))
	for _, r := range rects {
		if !r.Valid() {
			s.logger.Warn("ignoring inverted manual rect", "rect", r.String())
			continue
		}
		valid = append(valid, r)
	}
	return s.control(func() {
		s.engine.OccludeNextFrame(valid...)
	})
}

// Configure swaps aggregator tunables and the resolve deadline.
func (s *Synchronizer) Configure(engine occlusion.Config, deadline time.Duration) error {
	return s.control(func() {
		s.engine.Configure(engine)
		s.deadline = deadline
		s.logger.Info("occlusion settings updated",
			"slack_offset", engine.SlackOffset,
			"padding", engine.Padding,
			"debounce_threshold", engine.DebounceThreshold,
			"deadline", deadline)
	})
}

// Status returns a snapshot taken on the worker, so it reflects every task
// enqueued before the call.
func (s *Synchronizer) Status(ctx context.Context) (Status, error) {
	ch := make(chan occlusion.Snapshot, 1)
	if err := s.control(func() { ch <- s.engine.Snapshot() }); err != nil {
		return Status{}, err
	}

	select {
	case snap := <-ch:
		return Status{
			Snapshot:       snap,
			QueueDepth:     s.queue.len(),
			Batches:        s.batches.Load(),
			DroppedBatches: s.droppedBatches.Load(),
			DroppedReports: s.droppedReports.Load(),
			Resolved:       s.resolved.Load(),
			Overruns:       s.overruns.Load(),
			LeftPadding:    s.offsets.LeftPadding(),
		}, nil
	case <-s.done:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Synchronizer) control(fn func()) error {
	accepted, _ := s.queue.push(task{kind: kindControl, run: fn})
	if !accepted {
		return ErrClosed
	}
	return nil
}
