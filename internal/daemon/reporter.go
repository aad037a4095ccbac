package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/1broseidon/occlude/internal/capture"
)

// StatusSource is satisfied by capture.Synchronizer.
type StatusSource interface {
	Status(ctx context.Context) (capture.Status, error)
}

// ReporterConfig holds configuration for the reporter.
type ReporterConfig struct {
	Interval time.Duration // 0 disables periodic reports
	Logger   *slog.Logger
}

// Reporter periodically logs pipeline health: frame store size, tracked keys
// and what was dropped or overrun since the previous report.
type Reporter struct {
	interval atomic.Int64
	source   StatusSource
	logger   *slog.Logger
	last     capture.Status
	reset    chan struct{}
}

// NewReporter creates a new reporter with the given configuration.
func NewReporter(cfg ReporterConfig, source StatusSource) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		source: source,
		logger: logger,
		reset:  make(chan struct{}, 1),
	}
	r.interval.Store(int64(cfg.Interval))
	return r
}

// SetInterval changes the report period of a running reporter. A
// non-positive interval pauses reports.
func (r *Reporter) SetInterval(d time.Duration) {
	if r.interval.Swap(int64(d)) == int64(d) {
		return
	}
	select {
	case r.reset <- struct{}{}:
	default:
	}
}

// Run starts the reporting loop. Blocks until context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.logger.Info("status reporter started", "interval", time.Duration(r.interval.Load()))

	var ticker *time.Ticker
	var tick <-chan time.Time
	arm := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d := time.Duration(r.interval.Load()); d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	arm()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("status reporter stopped")
			return
		case <-r.reset:
			arm()
		case <-tick:
			r.ReportNow(ctx)
		}
	}
}

// ReportNow logs one report immediately.
func (r *Reporter) ReportNow(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reporter panic recovered", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := r.source.Status(ctx)
	if err != nil {
		r.logger.Warn("reporter: failed to get status", "error", err)
		return
	}

	prev := r.last
	r.last = st

	attrs := []any{
		"frames", st.Frames,
		"tracked_keys", st.TrackedKeys,
		"queue_depth", st.QueueDepth,
		"batches", st.Batches - prev.Batches,
		"resolved", st.Resolved - prev.Resolved,
	}
	dropped := st.DroppedBatches - prev.DroppedBatches
	overruns := st.Overruns - prev.Overruns
	malformed := st.DroppedReports - prev.DroppedReports
	if dropped > 0 || overruns > 0 || malformed > 0 {
		attrs = append(attrs,
			"dropped_batches", dropped,
			"overruns", overruns,
			"malformed_reports", malformed)
		r.logger.Warn("occlusion pipeline degraded", attrs...)
		return
	}
	r.logger.Info("occlusion pipeline status", attrs...)
}
