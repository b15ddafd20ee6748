package accuracy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
)

// PostedComparison scores one observed POSTED wait against the cascade
// prediction for its entity, park day and hour.
type PostedComparison struct {
	EntityCode       string
	ParkCode         string
	ParkDate         time.Time
	Cohort           string
	Hour             int
	Observed         float64
	Predicted        float64
	AbsError         float64
	PctError         *float64 // nil when the observed wait is zero
	Level            posted.Level
	SampleSize       int
	SampleSizeBucket string
	RecencyWeight    float64
	RecencyBucket    string
}

// PostedStats counts observations that could not be scored.
type PostedStats struct {
	Scored       int
	Unpredicted  int
	UnknownParks int
}

// ComparePosted streams observations from src and scores every POSTED value
// that the aggregate table can predict. classifier labels each comparison
// with the cohort of its park day; nil labels everything UNKNOWN.
func ComparePosted(
	ctx context.Context,
	table *posted.Table,
	src posted.ObservationSource,
	parks posted.ParkLocator,
	classifier cohort.Classifier,
) ([]PostedComparison, PostedStats, error) {
	var (
		out   []PostedComparison
		stats PostedStats
	)
	err := src.Stream(ctx, func(obs domain.Observation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if obs.WaitType != domain.WaitPosted {
			return nil
		}
		entity := strings.ToUpper(obs.EntityCode)
		park, ok := parks.ParkForEntity(entity)
		if !ok {
			stats.UnknownParks++
			return nil
		}
		loc := parks.Location(park)
		parkDate := domain.ParkDay(obs.ObservedAt, loc)
		hour := domain.LocalHour(obs.ObservedAt, loc)

		p, ok := table.PredictedPosted(entity, parkDate, hour)
		if !ok {
			stats.Unpredicted++
			return nil
		}
		stats.Scored++
		c := comparePosted(entity, park, parkDate, hour, obs.WaitMinutes, p)
		c.Cohort = cohort.KeyFor(classifier, parkDate)
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("compare posted: %w", err)
	}
	return out, stats, nil
}

func comparePosted(entity, park string, parkDate time.Time, hour int, observed float64, p posted.Prediction) PostedComparison {
	c := PostedComparison{
		EntityCode:       entity,
		ParkCode:         park,
		ParkDate:         parkDate,
		Hour:             hour,
		Observed:         observed,
		Predicted:        p.Value,
		AbsError:         math.Abs(p.Value - observed),
		Level:            p.Level,
		SampleSize:       p.SampleSize,
		SampleSizeBucket: SampleSizeBins.Of(float64(p.SampleSize)),
		RecencyWeight:    p.RecencyWeight,
		RecencyBucket:    RecencyBins.Of(p.RecencyWeight),
	}
	if observed != 0 {
		pct := c.AbsError / math.Abs(observed) * 100
		c.PctError = &pct
	}
	return c
}
