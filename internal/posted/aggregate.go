// Package posted builds the historical POSTED wait lookup keyed by
// (entity_code, dategroupid, hour) and answers predictions through a strict
// five-level fallback cascade.
package posted

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// ParkLocator maps entities to parks and parks to local time.
type ParkLocator interface {
	ParkForEntity(entityCode string) (string, bool)
	Location(parkCode string) *time.Location
}

// ObservationSource streams fact rows. fn is called once per row; returning an
// error stops the stream.
type ObservationSource interface {
	Stream(ctx context.Context, fn func(domain.Observation) error) error
}

// Options configures an aggregate build.
type Options struct {
	MinDate    time.Time // inclusive park day
	MaxDate    time.Time // inclusive park day
	AsOf       time.Time // reference for days_ago; zero means now
	Classifier cohort.Classifier
	Parks      ParkLocator
}

// BuildStats counts what a build consumed.
type BuildStats struct {
	Seen         int
	Posted       int
	OutOfRange   int
	UnknownParks int
	Groups       int
}

type groupKey struct {
	entity string
	cohort string
	hour   int
}

type group struct {
	values  []float64
	weights []float64
	minDate time.Time
	maxDate time.Time
}

func (g *group) add(value, weight float64, parkDate time.Time) {
	if len(g.values) == 0 || parkDate.Before(g.minDate) {
		g.minDate = parkDate
	}
	if len(g.values) == 0 || parkDate.After(g.maxDate) {
		g.maxDate = parkDate
	}
	g.values = append(g.values, value)
	g.weights = append(g.weights, weight)
}

// Builder accumulates POSTED observations group by group. Only per-group
// value/weight pairs are retained, never the raw rows. Each observation also
// lands in the four pooled fallback groups it belongs to, so coarser levels
// are medians of observations rather than medians of group medians.
type Builder struct {
	opts   Options
	asOf   time.Time
	groups map[groupKey]*group
	pools  map[fallbackKey]*group
	stats  BuildStats
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = domain.Now()
	}
	return &Builder{
		opts:   opts,
		asOf:   domain.DateOf(asOf),
		groups: make(map[groupKey]*group),
		pools:  make(map[fallbackKey]*group),
	}
}

// Add folds one observation into its group. Non-POSTED rows, rows outside the
// date range and rows of unknown entities are skipped.
func (b *Builder) Add(obs domain.Observation) {
	b.stats.Seen++
	if obs.WaitType != domain.WaitPosted {
		return
	}
	b.stats.Posted++

	entity := strings.ToUpper(obs.EntityCode)
	park, ok := b.opts.Parks.ParkForEntity(entity)
	if !ok {
		b.stats.UnknownParks++
		return
	}
	loc := b.opts.Parks.Location(park)
	parkDate := domain.ParkDay(obs.ObservedAt, loc)
	if (!b.opts.MinDate.IsZero() && parkDate.Before(domain.DateOf(b.opts.MinDate))) ||
		(!b.opts.MaxDate.IsZero() && parkDate.After(domain.DateOf(b.opts.MaxDate))) {
		b.stats.OutOfRange++
		return
	}

	k := groupKey{
		entity: entity,
		cohort: cohort.KeyFor(b.opts.Classifier, parkDate),
		hour:   domain.LocalHour(obs.ObservedAt, loc),
	}
	w := domain.RecencyWeight(domain.DaysBetween(parkDate, b.asOf))
	g, ok := b.groups[k]
	if !ok {
		g = &group{}
		b.groups[k] = g
	}
	g.add(obs.WaitMinutes, w, parkDate)

	for _, fk := range []fallbackKey{
		{level: LevelEntityCohort, key: entity, cohort: k.cohort, hour: AnyHour},
		{level: LevelEntityHour, key: entity, cohort: AnyCohort, hour: k.hour},
		{level: LevelEntity, key: entity, cohort: AnyCohort, hour: AnyHour},
		{level: LevelParkHour, key: park, cohort: AnyCohort, hour: k.hour},
	} {
		p, ok := b.pools[fk]
		if !ok {
			p = &group{}
			b.pools[fk] = p
		}
		p.add(obs.WaitMinutes, w, parkDate)
	}
}

// Stats returns the counters so far.
func (b *Builder) Stats() BuildStats {
	s := b.stats
	s.Groups = len(b.groups)
	return s
}

// Rows computes one aggregate row per group, sorted by entity, cohort, hour.
func (b *Builder) Rows() []domain.PostedAggregateRow {
	rows := make([]domain.PostedAggregateRow, 0, len(b.groups))
	for k, g := range b.groups {
		wMedian, ok := WeightedMedian(g.values, g.weights)
		if !ok {
			continue
		}
		median, _ := WeightedMedian(g.values, nil)
		rows = append(rows, domain.PostedAggregateRow{
			EntityCode:             k.entity,
			DateGroupID:            k.cohort,
			Hour:                   k.hour,
			PostedMedianWeighted:   wMedian,
			PostedMeanWeighted:     WeightedMean(g.values, g.weights),
			PostedMedianUnweighted: median,
			PostedMeanUnweighted:   WeightedMean(g.values, nil),
			PostedCount:            len(g.values),
			AvgRecencyWeight:       WeightedMean(g.weights, nil),
			MinParkDate:            g.minDate,
			MaxParkDate:            g.maxDate,
		})
	}
	SortRows(rows)
	return rows
}

// SortRows orders rows by entity, cohort, hour.
func SortRows(rows []domain.PostedAggregateRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.EntityCode != b.EntityCode {
			return a.EntityCode < b.EntityCode
		}
		if a.DateGroupID != b.DateGroupID {
			return a.DateGroupID < b.DateGroupID
		}
		return a.Hour < b.Hour
	})
}

// Snapshot is the persisted output of a build: the exact aggregate rows and
// the pooled rows behind fallback levels 2 to 5.
type Snapshot struct {
	Rows      []domain.PostedAggregateRow
	Fallbacks []FallbackRow
}

// Snapshot returns the exact and pooled rows built so far.
func (b *Builder) Snapshot() Snapshot {
	return Snapshot{Rows: b.Rows(), Fallbacks: b.Fallbacks()}
}

// BuildPostedAggregates streams every observation from src through a Builder
// and returns the snapshot. An empty result is not an error; it is logged as
// ErrEmptyAggregateInput and callers see "no prediction" downstream.
func BuildPostedAggregates(ctx context.Context, src ObservationSource, opts Options, logger *slog.Logger) (Snapshot, BuildStats, error) {
	if opts.Parks == nil {
		return Snapshot{}, BuildStats{}, fmt.Errorf("build posted aggregates: park locator is required")
	}
	b := NewBuilder(opts)
	err := src.Stream(ctx, func(obs domain.Observation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.Add(obs)
		return nil
	})
	if err != nil {
		return Snapshot{}, b.Stats(), fmt.Errorf("stream observations: %w", err)
	}

	snap := b.Snapshot()
	stats := b.Stats()
	if len(snap.Rows) == 0 {
		logger.Warn("posted aggregate build produced no rows",
			"reason", domain.ErrEmptyAggregateInput,
			"seen", stats.Seen,
			"posted", stats.Posted,
		)
	}
	if stats.UnknownParks > 0 {
		logger.Warn("posted observations for unknown entities skipped", "count", stats.UnknownParks)
	}
	return snap, stats, nil
}
