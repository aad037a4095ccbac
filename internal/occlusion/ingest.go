package occlusion

import (
	"log/slog"

	"github.com/1broseidon/occlude/internal/framestore"
)

// IngestStats reports what one Ingest call did with its batch.
type IngestStats struct {
	Accepted int
	Dropped  int
	Trimmed  int
}

// Ingestor validates report batches and upserts them into a frame store.
type Ingestor struct {
	store     *framestore.Store[Frame]
	maxFrames int
	logger    *slog.Logger
}

// NewIngestor creates an ingestor writing to store. maxFrames bounds the store
// size when no resolution has evicted history for a while; 0 disables it.
func NewIngestor(store *framestore.Store[Frame], maxFrames int, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:     store,
		maxFrames: maxFrames,
		logger:    logger,
	}
}

// Ingest stores the valid reports of batch as the frame at batch.Timestamp.
// Malformed reports are logged and skipped; the frame is written even when
// nothing in it survived validation.
func (in *Ingestor) Ingest(batch Batch) IngestStats {
	var stats IngestStats

	reports := make([]BoundReport, 0, len(batch.Reports))
	for _, r := range batch.Reports {
		if err := r.Validate(); err != nil {
			stats.Dropped++
			in.logger.Warn("dropping malformed bound report",
				"timestamp", batch.Timestamp,
				"key", r.Key,
				"error", err)
			continue
		}
		reports = append(reports, r)
	}
	stats.Accepted = len(reports)

	in.store.Put(batch.Timestamp, Frame{Timestamp: batch.Timestamp, Reports: reports})

	if trimmed := in.store.TrimTo(in.maxFrames); trimmed > 0 {
		stats.Trimmed = trimmed
		in.logger.Warn("frame store over capacity, oldest frames dropped",
			"trimmed", trimmed,
			"max_frames", in.maxFrames)
	}

	return stats
}
