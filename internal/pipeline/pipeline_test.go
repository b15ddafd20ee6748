package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	"github.com/couchcryptid/park-waits-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	err    error
	calls  int
	loaded []domain.HoursUpdate
}

func (m *mockLoader) LoadBatch(_ context.Context, updates []domain.HoursUpdate) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, updates...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func makeRawMessage(t *testing.T, park, date, opening, closing string) domain.RawMessage {
	t.Helper()
	d, err := domain.ParseDate(date)
	require.NoError(t, err)
	data, err := domain.EncodeHoursMessage(domain.HoursUpdate{
		Hours: domain.OfficialHours{ParkDate: d, ParkCode: park, OpeningTime: opening, ClosingTime: closing},
	})
	require.NoError(t, err)
	return domain.RawMessage{
		Key:       []byte(park + "/" + date),
		Value:     data,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawMessage(t, "MK", "2026-06-01", "09:00", "22:00")

	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, pipeline.NewTransformer(), ldr, discardLogger(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, "MK", ldr.loaded[0].Hours.ParkCode)
	assert.Equal(t, domain.SourceKafka, ldr.loaded[0].Hours.Source)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MessagesConsumed), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, pipeline.NewTransformer(), ldr, discardLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_UnparseableMessageIsCommittedAndSkipped(t *testing.T) {
	committed := false
	bad := domain.RawMessage{
		Value:  []byte("not json"),
		Commit: func(context.Context) error { committed = true; return nil },
	}

	ext := &mockExtractor{batches: [][]domain.RawMessage{{bad}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, pipeline.NewTransformer(), ldr, discardLogger(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.True(t, committed)
	assert.Zero(t, ldr.calls)
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ParseErrors), 1e-9)
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var order []string
	ldr := &orderedLoader{order: &order}

	raw := makeRawMessage(t, "MK", "2026-06-01", "09:00", "22:00")
	raw.Commit = func(context.Context) error {
		order = append(order, "commit")
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	p := pipeline.New(ext, pipeline.NewTransformer(), ldr, discardLogger(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	if diff := cmp.Diff([]string{"load", "commit"}, order); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
}

type orderedLoader struct {
	order *[]string
}

func (l *orderedLoader) LoadBatch(context.Context, []domain.HoursUpdate) error {
	*l.order = append(*l.order, "load")
	return nil
}

func TestPipeline_Run_LoadFailureSkipsCommit(t *testing.T) {
	committed := false
	raw := makeRawMessage(t, "MK", "2026-06-01", "09:00", "22:00")
	raw.Commit = func(context.Context) error { committed = true; return nil }

	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	ldr := &mockLoader{err: errors.New("disk full")}

	p := pipeline.New(ext, pipeline.NewTransformer(), ldr, discardLogger(), newTestMetrics(), 10)
	runFor(t, p, 500*time.Millisecond)

	assert.Equal(t, 1, ldr.calls)
	assert.False(t, committed)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestHoursTransformer_Transform(t *testing.T) {
	raw := makeRawMessage(t, "EP", "2026-07-04", "9:00 AM", "11:00 PM")

	u, err := pipeline.NewTransformer().Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "EP", u.Hours.ParkCode)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), u.Hours.ParkDate)
	assert.Equal(t, "9:00 AM", u.Hours.OpeningTime)
	assert.Equal(t, raw.Timestamp, u.PublishedAt)
}
