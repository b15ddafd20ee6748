package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	"golang.org/x/sync/errgroup"
)

// ImputeOptions selects the park days to fill.
type ImputeOptions struct {
	Parks       []string
	From        time.Time // first target date; zero means today
	HorizonDays int
}

// ImputeResult counts the outcome of one imputation run.
type ImputeResult struct {
	Predicted int
	Skipped   int // already had an official or predicted version
	NoDonor   int
	Failed    int
	Degraded  bool // ran without a cohort table
	// UnclassifiedTargets counts target days the cohort table has no row for;
	// their donors are ranked without cohort preference.
	UnclassifiedTargets int
}

// Imputer writes predicted versions for future park days that lack hours.
type Imputer struct {
	repo       *hours.Repository
	cohortPath string
	selector   *hours.Selector
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewImputer creates an Imputer reading cohorts from cohortPath.
func NewImputer(repo *hours.Repository, cohortPath string, metrics *observability.Metrics, logger *slog.Logger) *Imputer {
	return &Imputer{
		repo:       repo,
		cohortPath: cohortPath,
		selector:   hours.NewSelector(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run loads the hours snapshot and the cohort table concurrently, then fills
// each (park, date) in the horizon in one load-mutate-save cycle. Per-day
// failures are logged and counted; they never abort the run. A missing cohort
// table degrades donor selection instead of failing.
func (im *Imputer) Run(ctx context.Context, opts ImputeOptions) (ImputeResult, error) {
	from := opts.From
	if from.IsZero() {
		from = domain.Now()
	}
	from = domain.DateOf(from)

	var (
		source *hours.Table
		groups *cohort.Table
	)
	var g errgroup.Group
	g.Go(func() error {
		t, err := im.repo.Load()
		if err != nil {
			return fmt.Errorf("load hours table: %w", err)
		}
		source = t
		return nil
	})
	g.Go(func() error {
		t, err := cohort.LoadCSV(im.cohortPath, im.logger)
		if errors.Is(err, domain.ErrMissingCohortTable) {
			return nil
		}
		if err != nil {
			return err
		}
		groups = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return ImputeResult{}, err
	}

	// A nil *cohort.Table must stay a nil interface for the selector to degrade.
	var classifier cohort.Classifier
	if groups != nil {
		classifier = groups
	}

	var res ImputeResult
	err := im.repo.Update(ctx, func(t *hours.Table) error {
		res = ImputeResult{Degraded: classifier == nil}
		for _, park := range opts.Parks {
			for d := 0; d < opts.HorizonDays; d++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				im.imputeDay(t, source, classifier, park, from.AddDate(0, 0, d), &res)
			}
		}
		return nil
	})
	if err != nil {
		return ImputeResult{}, fmt.Errorf("impute hours: %w", err)
	}

	if res.Degraded {
		im.logger.Warn("donor selection degraded to recency only",
			"path", im.cohortPath,
			"reason", domain.ErrMissingCohortTable,
		)
	} else if res.UnclassifiedTargets > 0 {
		im.logger.Warn("donor selection without cohort preference for days missing from the cohort table",
			"path", im.cohortPath,
			"days", res.UnclassifiedTargets,
		)
	}
	im.metrics.Imputations.WithLabelValues("predicted").Add(float64(res.Predicted))
	im.metrics.Imputations.WithLabelValues("no_donor").Add(float64(res.NoDonor))
	im.metrics.Imputations.WithLabelValues("failed").Add(float64(res.Failed))
	im.logger.Info("hours imputation finished",
		"parks", len(opts.Parks),
		"horizon_days", opts.HorizonDays,
		"predicted", res.Predicted,
		"skipped", res.Skipped,
		"no_donor", res.NoDonor,
		"failed", res.Failed,
		"degraded", res.Degraded,
		"unclassified_targets", res.UnclassifiedTargets,
	)
	return res, nil
}

func (im *Imputer) imputeDay(t, source *hours.Table, classifier cohort.Classifier, park string, date time.Time, res *ImputeResult) {
	if t.HasOfficial(date, park) || t.HasPredicted(date, park) {
		res.Skipped++
		return
	}
	if classifier != nil && cohort.KeyFor(classifier, date) == cohort.Unknown {
		res.UnclassifiedTargets++
	}
	match, ok := im.selector.FindBestDonorDay(date, park, source, classifier)
	if !ok {
		res.NoDonor++
		im.logger.Debug("no donor day", "park_code", park, "park_date", date.Format(domain.DateLayout))
		return
	}
	_, err := t.CreatePredictedVersionFromDonor(match, park, source, classifier)
	switch {
	case err == nil:
		res.Predicted++
	case errors.Is(err, domain.ErrNoDonorData):
		res.NoDonor++
		im.logger.Debug("donor hours missing", "park_code", park, "error", err)
	case errors.Is(err, domain.ErrOfficialExists), errors.Is(err, domain.ErrVersionExists):
		res.Skipped++
	default:
		res.Failed++
		im.logger.Warn("imputation failed", "park_code", park,
			"park_date", date.Format(domain.DateLayout), "error", err)
	}
}
