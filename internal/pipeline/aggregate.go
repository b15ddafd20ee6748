package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
)

// AggregateRebuild recomputes the posted aggregate snapshot from the full
// observation history.
type AggregateRebuild struct {
	source       posted.ObservationSource
	parks        posted.ParkLocator
	cohortPath   string
	outPath      string
	lookbackDays int
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewAggregateRebuild creates an AggregateRebuild writing to outPath. A
// non-positive lookbackDays reads the whole history.
func NewAggregateRebuild(
	source posted.ObservationSource,
	parks posted.ParkLocator,
	cohortPath, outPath string,
	lookbackDays int,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *AggregateRebuild {
	return &AggregateRebuild{
		source:       source,
		parks:        parks,
		cohortPath:   cohortPath,
		outPath:      outPath,
		lookbackDays: lookbackDays,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run builds and saves the aggregates. Any failure before the atomic save
// leaves the previous snapshot in place.
func (a *AggregateRebuild) Run(ctx context.Context) (posted.BuildStats, error) {
	start := time.Now()
	asOf := domain.Now()

	var classifier cohort.Classifier
	groups, err := cohort.LoadCSV(a.cohortPath, a.logger)
	switch {
	case errors.Is(err, domain.ErrMissingCohortTable):
		a.logger.Warn("building aggregates without cohort table; every date is "+cohort.Unknown,
			"path", a.cohortPath)
	case err != nil:
		return posted.BuildStats{}, err
	default:
		classifier = groups
	}

	opts := posted.Options{
		MaxDate:    asOf,
		AsOf:       asOf,
		Classifier: classifier,
		Parks:      a.parks,
	}
	if a.lookbackDays > 0 {
		opts.MinDate = asOf.AddDate(0, 0, -a.lookbackDays)
	}

	snap, stats, err := posted.BuildPostedAggregates(ctx, a.source, opts, a.logger)
	if err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("aggregate rebuild cancelled before save: %w", err)
	}
	if err := posted.SaveSnapshot(a.outPath, snap); err != nil {
		return stats, err
	}

	elapsed := time.Since(start)
	a.metrics.AggregateRows.Set(float64(len(snap.Rows)))
	a.metrics.AggregateBuildDuration.Observe(elapsed.Seconds())
	a.logger.Info("posted aggregates rebuilt",
		"path", a.outPath,
		"rows", len(snap.Rows),
		"fallback_rows", len(snap.Fallbacks),
		"observations", stats.Seen,
		"posted", stats.Posted,
		"out_of_range", stats.OutOfRange,
		"duration", elapsed,
	)
	return stats, nil
}
