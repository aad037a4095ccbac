package occlusion

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/occlude/internal/framestore"
)

func TestIngestor_DropsMalformedReportsOnly(t *testing.T) {
	var logs bytes.Buffer
	store := framestore.New[Frame]()
	in := NewIngestor(store, 0, slog.New(slog.NewTextHandler(&logs, nil)))

	stats := in.Ingest(Batch{Timestamp: 42, Reports: []BoundReport{
		{Key: "", Rect: rect(0, 0, 1, 1), Visible: true},
		{Key: "ok", Rect: rect(0, 0, 1, 1), Visible: true},
		{Key: "inverted", Rect: rect(10, 0, 0, 10), Visible: true},
		{Key: "unmeasured", Visible: false},
	}})

	assert.Equal(t, IngestStats{Accepted: 2, Dropped: 2}, stats)

	frame, ok := store.Get(42)
	require.True(t, ok)
	require.Len(t, frame.Reports, 2)
	assert.Equal(t, WidgetKey("ok"), frame.Reports[0].Key)
	assert.Equal(t, WidgetKey("unmeasured"), frame.Reports[1].Key)
	assert.Equal(t, 2, strings.Count(logs.String(), "dropping malformed bound report"))
}

func TestIngestor_EmptyBatchStillUpserts(t *testing.T) {
	store := framestore.New[Frame]()
	in := NewIngestor(store, 0, nil)

	in.Ingest(Batch{Timestamp: 7})

	_, ok := store.Get(7)
	assert.True(t, ok)
}

func TestIngestor_SameTimestampLastWriteWins(t *testing.T) {
	store := framestore.New[Frame]()
	in := NewIngestor(store, 0, nil)

	in.Ingest(Batch{Timestamp: 10, Reports: []BoundReport{{Key: "a", Visible: true}}})
	in.Ingest(Batch{Timestamp: 10, Reports: []BoundReport{{Key: "b", Visible: true}}})

	frame, ok := store.Get(10)
	require.True(t, ok)
	require.Len(t, frame.Reports, 1)
	assert.Equal(t, WidgetKey("b"), frame.Reports[0].Key)
}

func TestIngestor_MaxFramesTrimsOldest(t *testing.T) {
	store := framestore.New[Frame]()
	in := NewIngestor(store, 3, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	for ts := int64(1); ts <= 5; ts++ {
		in.Ingest(Batch{Timestamp: ts})
	}

	assert.Equal(t, 3, store.Len())
	first, _ := store.First()
	assert.Equal(t, int64(3), first.Key)
}

func TestBoundReport_Validate(t *testing.T) {
	assert.ErrorIs(t, BoundReport{}.Validate(), ErrEmptyKey)
	assert.ErrorIs(t, BoundReport{Key: "k", Rect: rect(5, 5, 4, 6)}.Validate(), ErrInvertedRect)
	assert.NoError(t, BoundReport{Key: "k"}.Validate())
	assert.NoError(t, BoundReport{Key: "k", Rect: rect(5, 5, 5, 5)}.Validate())
}
