package accuracy

import (
	"math"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
)

// HoursComparison scores one predicted row against the official hours that
// later arrived for the same park day.
type HoursComparison struct {
	ParkCode         string
	ParkDate         time.Time
	Cohort           string
	PredictedID      int64
	OfficialID       int64
	PredictedAt      time.Time
	DaysAhead        int
	Confidence       *float64
	OpeningError     int      // absolute minutes
	ClosingError     int      // absolute minutes
	PctError         *float64 // summed error as a share of the official operating day
	ExactMatch       bool
	ConfidenceBucket string
	DaysAheadBucket  string
}

// MeanError is the mean of the opening and closing errors in minutes.
func (c HoursComparison) MeanError() float64 {
	return float64(c.OpeningError+c.ClosingError) / 2
}

// CompareHours pairs every predicted row with the first official row recorded
// for its park day. Predictions still awaiting official hours are skipped, as
// are rows whose clock values cannot be compared.
func CompareHours(table *hours.Table, classifier cohort.Classifier) []HoursComparison {
	var out []HoursComparison
	for _, k := range table.Keys() {
		versions := table.Versions(k.ParkDate, k.ParkCode)
		truth, ok := firstOfficial(versions)
		if !ok {
			continue
		}
		for _, v := range versions {
			if v.VersionType != domain.VersionPredicted {
				continue
			}
			c, ok := compareHours(v, truth)
			if !ok {
				continue
			}
			c.Cohort = cohort.KeyFor(classifier, k.ParkDate)
			out = append(out, c)
		}
	}
	return out
}

func firstOfficial(versions []domain.ParkHoursVersion) (domain.ParkHoursVersion, bool) {
	var best domain.ParkHoursVersion
	found := false
	for _, v := range versions {
		if v.VersionType != domain.VersionOfficial {
			continue
		}
		if !found || v.CreatedAt.Before(best.CreatedAt) ||
			(v.CreatedAt.Equal(best.CreatedAt) && v.VersionID < best.VersionID) {
			best, found = v, true
		}
	}
	return best, found
}

func compareHours(pred, truth domain.ParkHoursVersion) (HoursComparison, bool) {
	openErr, ok := clockError(pred.OpeningTime, truth.OpeningTime)
	if !ok {
		return HoursComparison{}, false
	}
	closeErr, ok := clockError(pred.ClosingTime, truth.ClosingTime)
	if !ok {
		return HoursComparison{}, false
	}

	daysAhead := domain.DaysBetween(pred.CreatedAt, pred.ParkDate)
	if daysAhead < 0 {
		daysAhead = 0
	}
	confBucket := "none"
	if pred.Confidence != nil {
		confBucket = ConfidenceBins.Of(*pred.Confidence)
	}

	c := HoursComparison{
		ParkCode:         pred.ParkCode,
		ParkDate:         pred.ParkDate,
		PredictedID:      pred.VersionID,
		OfficialID:       truth.VersionID,
		PredictedAt:      pred.CreatedAt,
		DaysAhead:        daysAhead,
		Confidence:       pred.Confidence,
		OpeningError:     openErr,
		ClosingError:     closeErr,
		ExactMatch:       pred.SameHours(truth),
		ConfidenceBucket: confBucket,
		DaysAheadBucket:  DaysAheadBins.Of(float64(daysAhead)),
	}
	if minutes, ok := truth.OperatingMinutes(); ok && minutes > 0 {
		pct := float64(openErr+closeErr) * 100 / float64(minutes)
		c.PctError = &pct
	}
	return c, true
}

func clockError(predicted, actual string) (int, bool) {
	p, err := domain.ClockMinutes(predicted)
	if err != nil {
		return 0, false
	}
	a, err := domain.ClockMinutes(actual)
	if err != nil {
		return 0, false
	}
	return int(math.Abs(float64(p - a))), true
}
