package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	err    error
	events []domain.ChangeEvent
}

func (p *recordingPublisher) PublishChanges(_ context.Context, events []domain.ChangeEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func freezeClock(t *testing.T, at time.Time) *clockwork.FakeClock {
	t.Helper()
	c := clockwork.NewFakeClockAt(at)
	domain.SetClock(c)
	t.Cleanup(func() { domain.SetClock(nil) })
	return c
}

func update(park string, date time.Time, opening, closing string, published time.Time) domain.HoursUpdate {
	return domain.HoursUpdate{
		Hours:       domain.OfficialHours{ParkDate: date, ParkCode: park, OpeningTime: opening, ClosingTime: closing},
		PublishedAt: published,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHoursSync_CreateUnchangedChanged(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	repo := hours.NewRepository(filepath.Join(t.TempDir(), "hours.csv"), discardLogger())
	pub := &recordingPublisher{}
	metrics := newTestMetrics()
	sync := pipeline.NewHoursSync(repo, pub, metrics, discardLogger())
	ctx := context.Background()

	june1 := day(2026, time.June, 1)
	first := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	res, err := sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", first)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	res, err = sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", first.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Empty(t, pub.events)

	changedAt := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	res, err = sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "08:00", "22:00", changedAt)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "MK", ev.ParkCode)
	assert.Equal(t, "09:00", ev.Previous.OpeningTime)
	require.NotNil(t, ev.Previous.ValidUntil)
	assert.True(t, ev.Previous.ValidUntil.Equal(changedAt))
	assert.Equal(t, "08:00", ev.Current.OpeningTime)

	table, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	before, ok := sync.GetHours(june1, "MK", changedAt.Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, "09:00", before.OpeningTime)
	after, ok := sync.GetHours(june1, "MK", changedAt.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, "08:00", after.OpeningTime)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HoursVersions.WithLabelValues("created")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HoursVersions.WithLabelValues("unchanged")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HoursVersions.WithLabelValues("changed")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ChangesPublished), 1e-9)
}

func TestHoursSync_BadRowDoesNotAbortBatch(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	repo := hours.NewRepository(filepath.Join(t.TempDir(), "hours.csv"), discardLogger())
	metrics := newTestMetrics()
	sync := pipeline.NewHoursSync(repo, nil, metrics, discardLogger())

	res, err := sync.Apply(context.Background(), []domain.HoursUpdate{
		update("MK", day(2026, time.June, 1), "25:99", "22:00", time.Time{}),
		update("MK", day(2026, time.June, 2), "09:00", "22:00", time.Time{}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Created)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HoursVersions.WithLabelValues("failed")), 1e-9)

	v, ok := sync.GetHours(day(2026, time.June, 2), "MK", time.Time{})
	require.True(t, ok)
	assert.True(t, v.CreatedAt.Equal(time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)))
}

func TestHoursSync_PublishFailureKeepsSave(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "hours.csv")
	repo := hours.NewRepository(path, discardLogger())
	pub := &recordingPublisher{err: errors.New("broker down")}
	sync := pipeline.NewHoursSync(repo, pub, newTestMetrics(), discardLogger())
	ctx := context.Background()

	june1 := day(2026, time.June, 1)
	_, err := sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", time.Time{})})
	require.NoError(t, err)

	freezeClock(t, time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC))
	err = sync.LoadBatch(ctx, []domain.HoursUpdate{update("MK", june1, "10:00", "22:00", time.Time{})})
	require.Error(t, err)

	reloaded := pipeline.NewHoursSync(hours.NewRepository(path, discardLogger()), nil, newTestMetrics(), discardLogger())
	v, ok := reloaded.GetHours(june1, "MK", time.Time{})
	require.True(t, ok)
	assert.Equal(t, "10:00", v.OpeningTime)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "hours_outbox.jsonl"))
}

func TestHoursSync_ReplayRedeliversAfterPublishFailure(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "hours.csv")
	pub := &recordingPublisher{}
	metrics := newTestMetrics()
	sync := pipeline.NewHoursSync(hours.NewRepository(path, discardLogger()), pub, metrics, discardLogger())
	ctx := context.Background()

	june1 := day(2026, time.June, 1)
	_, err := sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", time.Time{})})
	require.NoError(t, err)

	batch := []domain.HoursUpdate{update("MK", june1, "10:00", "22:00", time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC))}
	pub.err = errors.New("broker down")
	require.Error(t, sync.LoadBatch(ctx, batch))
	require.Empty(t, pub.events)

	// The replayed batch changes nothing in the table but still delivers the
	// staged event, exactly once.
	pub.err = nil
	require.NoError(t, sync.LoadBatch(ctx, batch))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "09:00", pub.events[0].Previous.OpeningTime)
	assert.Equal(t, "10:00", pub.events[0].Current.OpeningTime)

	require.NoError(t, sync.LoadBatch(ctx, batch))
	assert.Len(t, pub.events, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ChangesPublished), 1e-9)
}

func TestHoursSync_FlushChangesAfterRestart(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "hours.csv")
	ctx := context.Background()
	june1 := day(2026, time.June, 1)

	down := &recordingPublisher{err: errors.New("broker down")}
	sync := pipeline.NewHoursSync(hours.NewRepository(path, discardLogger()), down, newTestMetrics(), discardLogger())
	_, err := sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", time.Time{})})
	require.NoError(t, err)
	freezeClock(t, time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC))
	_, err = sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "10:00", "22:00", time.Time{})})
	require.Error(t, err)

	up := &recordingPublisher{}
	restarted := pipeline.NewHoursSync(hours.NewRepository(path, discardLogger()), up, newTestMetrics(), discardLogger())
	require.NoError(t, restarted.FlushChanges(ctx))
	require.Len(t, up.events, 1)
	assert.Equal(t, "10:00", up.events[0].Current.OpeningTime)

	require.NoError(t, restarted.FlushChanges(ctx))
	assert.Len(t, up.events, 1)
}

func TestHoursSync_DiscardsChangesThatWereNeverSaved(t *testing.T) {
	freezeClock(t, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "hours.csv")
	pub := &recordingPublisher{}
	sync := pipeline.NewHoursSync(hours.NewRepository(path, discardLogger()), pub, newTestMetrics(), discardLogger())
	june1 := day(2026, time.June, 1)

	_, err := sync.Apply(context.Background(), []domain.HoursUpdate{update("MK", june1, "09:00", "22:00", time.Time{})})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sync.Apply(ctx, []domain.HoursUpdate{update("MK", june1, "10:00", "22:00", time.Time{})})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, sync.FlushChanges(context.Background()))
	assert.Empty(t, pub.events)
}

func TestHoursSync_CancelledBeforeSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hours.csv")
	repo := hours.NewRepository(path, discardLogger())
	sync := pipeline.NewHoursSync(repo, nil, newTestMetrics(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sync.Apply(ctx, []domain.HoursUpdate{update("MK", day(2026, time.June, 1), "09:00", "22:00", time.Time{})})
	require.ErrorIs(t, err, context.Canceled)

	table, err := repo.Load()
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}
