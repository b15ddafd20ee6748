package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
)

// ChangePublisher announces official hours changes downstream.
type ChangePublisher interface {
	PublishChanges(ctx context.Context, events []domain.ChangeEvent) error
}

// SyncResult counts the outcome of one Apply call.
type SyncResult struct {
	Created   int
	Unchanged int
	Changed   int
	Failed    int
	Changes   []domain.ChangeEvent
}

// HoursSync applies official hours to the versioned table. It implements
// BatchLoader for the streaming pipeline and keeps the last saved table as a
// read snapshot for lookups.
type HoursSync struct {
	repo      *hours.Repository
	publisher ChangePublisher
	outbox    *changeOutbox
	metrics   *observability.Metrics
	logger    *slog.Logger
	snapshot  atomic.Pointer[hours.Table]
}

// NewHoursSync creates an HoursSync. publisher may be nil, in which case no
// change events are staged.
func NewHoursSync(repo *hours.Repository, publisher ChangePublisher, metrics *observability.Metrics, logger *slog.Logger) *HoursSync {
	s := &HoursSync{repo: repo, publisher: publisher, metrics: metrics, logger: logger}
	if publisher != nil {
		s.outbox = &changeOutbox{path: outboxPath(repo.Path())}
	}
	return s
}

// Apply records every update in one load-mutate-save cycle. Rows that fail
// validation are logged and counted; they never abort the batch. Change
// events are staged in the outbox before the save and published after it;
// events left over from an earlier failed publish go out with them.
func (s *HoursSync) Apply(ctx context.Context, updates []domain.HoursUpdate) (SyncResult, error) {
	var (
		res   SyncResult
		saved *hours.Table
	)
	err := s.repo.Update(ctx, func(t *hours.Table) error {
		res = SyncResult{}
		for _, u := range updates {
			out, err := t.CreateOfficialVersion(u.Hours, u.PublishedAt)
			switch {
			case err != nil:
				res.Failed++
				s.logger.Warn("official hours rejected",
					"park_code", u.Hours.ParkCode,
					"park_date", u.Hours.ParkDate.Format(domain.DateLayout),
					"error", err,
				)
			case out.Changed:
				res.Changed++
				res.Changes = append(res.Changes, domain.ChangeEvent{
					ParkDate:   out.Version.ParkDate,
					ParkCode:   out.Version.ParkCode,
					Previous:   *out.Previous,
					Current:    out.Version,
					DetectedAt: domain.Now(),
				})
			case out.Appended:
				res.Created++
			default:
				res.Unchanged++
			}
		}
		if s.outbox != nil && len(res.Changes) > 0 {
			if err := s.outbox.stage(res.Changes); err != nil {
				return fmt.Errorf("stage hours changes: %w", err)
			}
		}
		saved = t
		return nil
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("apply official hours: %w", err)
	}
	s.snapshot.Store(saved)
	s.record(res)

	s.logger.Info("official hours applied",
		"rows", len(updates),
		"created", res.Created,
		"changed", res.Changed,
		"unchanged", res.Unchanged,
		"failed", res.Failed,
	)

	if err := s.publishPending(ctx, saved); err != nil {
		return res, err
	}
	return res, nil
}

// FlushChanges publishes change events left in the outbox by an earlier
// failed publish.
func (s *HoursSync) FlushChanges(ctx context.Context) error {
	t, err := s.repo.Load()
	if err != nil {
		return err
	}
	return s.publishPending(ctx, t)
}

// publishPending drains the outbox against table. Staged events whose
// version never reached the saved table, because the save failed after
// staging, are discarded.
func (s *HoursSync) publishPending(ctx context.Context, table *hours.Table) error {
	if s.outbox == nil {
		return nil
	}
	persisted := func(ev domain.ChangeEvent) bool {
		for _, v := range table.Versions(ev.ParkDate, ev.ParkCode) {
			if v.VersionID == ev.Current.VersionID && v.CreatedAt.Equal(ev.Current.CreatedAt) {
				return true
			}
		}
		return false
	}
	sent, dropped, err := s.outbox.drain(persisted, func(events []domain.ChangeEvent) error {
		return s.publisher.PublishChanges(ctx, events)
	})
	if dropped > 0 {
		s.logger.Warn("discarded staged hours changes that were never saved", "count", dropped)
	}
	if err != nil {
		return fmt.Errorf("publish hours changes: %w", err)
	}
	if sent > 0 {
		s.metrics.ChangesPublished.Add(float64(sent))
	}
	return nil
}

// LoadBatch implements BatchLoader.
func (s *HoursSync) LoadBatch(ctx context.Context, updates []domain.HoursUpdate) error {
	_, err := s.Apply(ctx, updates)
	return err
}

func (s *HoursSync) record(res SyncResult) {
	s.metrics.HoursVersions.WithLabelValues("created").Add(float64(res.Created))
	s.metrics.HoursVersions.WithLabelValues("changed").Add(float64(res.Changed))
	s.metrics.HoursVersions.WithLabelValues("unchanged").Add(float64(res.Unchanged))
	s.metrics.HoursVersions.WithLabelValues("failed").Add(float64(res.Failed))
}

// Refresh reloads the read snapshot from disk.
func (s *HoursSync) Refresh() error {
	t, err := s.repo.Load()
	if err != nil {
		return err
	}
	s.snapshot.Store(t)
	return nil
}

// GetHours resolves hours from the read snapshot, loading it on first use.
func (s *HoursSync) GetHours(parkDate time.Time, parkCode string, asOf time.Time) (domain.ParkHoursVersion, bool) {
	t := s.snapshot.Load()
	if t == nil {
		if err := s.Refresh(); err != nil {
			s.logger.Error("load hours snapshot failed", "error", err)
			return domain.ParkHoursVersion{}, false
		}
		t = s.snapshot.Load()
	}
	return t.GetHours(parkDate, parkCode, asOf)
}
