package hours

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// Score weights. Cohort agreement dominates so that any same-cohort donor
// outranks every mismatched one.
const (
	cohortWeight    = 0.5
	proximityWeight = 0.4
	weekdayWeight   = 0.1

	// Without cohorts the proximity and weekday terms are rescaled and the
	// total halved, so a degraded score never exceeds 0.5.
	degradedProximityWeight = 0.8
	degradedWeekdayWeight   = 0.2
	degradedScale           = 0.5

	// maxDayOfYearDistance is the largest circular distance in a 365-day year.
	maxDayOfYearDistance = 182
)

// referenceYear is a non-leap year used to place month/day on a fixed
// day-of-year scale; Feb 29 normalizes to Mar 1.
const referenceYear = 2001

// Selector finds donor days for park days that lack official hours.
type Selector struct {
	logger *slog.Logger
}

// NewSelector creates a Selector.
func NewSelector(logger *slog.Logger) *Selector {
	return &Selector{logger: logger}
}

type candidate struct {
	date         time.Time
	cohortMatch  bool
	doyDistance  int
	weekdayMatch bool
}

// FindBestDonorDay searches the park's historical official days for the best
// donor for targetDate. Ordering is total:
//
//  1. same cohort as the target before any other cohort
//  2. smaller circular day-of-year distance (year ignored)
//  3. same weekday before different weekday
//  4. more recent donor date
//
// A nil classifier degrades to proximity-only ranking, as does a target date
// the classifier has no cohort for. Both are logged at debug level; batch
// callers report degradation once per run. Returns false when the park has no
// official day before targetDate.
func (s *Selector) FindBestDonorDay(
	targetDate time.Time,
	targetPark string,
	table *Table,
	classifier cohort.Classifier,
) (domain.DonorMatch, bool) {
	targetDate = domain.DateOf(targetDate)
	targetPark = strings.ToUpper(targetPark)

	degraded := classifier == nil
	targetCohort := cohort.KeyFor(classifier, targetDate)
	switch {
	case degraded:
		s.logger.Debug("donor selection degraded to recency only",
			"park_code", targetPark,
			"park_date", targetDate.Format(domain.DateLayout),
			"reason", domain.ErrMissingCohortTable,
		)
	case targetCohort == cohort.Unknown:
		s.logger.Debug("donor selection without cohort preference",
			"park_code", targetPark,
			"park_date", targetDate.Format(domain.DateLayout),
			"reason", "target date not in cohort table",
		)
	}

	var cands []candidate
	for k := range table.byKey {
		if k.ParkCode != targetPark || !k.ParkDate.Before(targetDate) {
			continue
		}
		if table.currentOfficial(k) < 0 {
			continue
		}
		c := candidate{
			date:         k.ParkDate,
			doyDistance:  dayOfYearDistance(k.ParkDate, targetDate),
			weekdayMatch: k.ParkDate.Weekday() == targetDate.Weekday(),
		}
		if !degraded && targetCohort != cohort.Unknown {
			c.cohortMatch = cohort.KeyFor(classifier, k.ParkDate) == targetCohort
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return domain.DonorMatch{}, false
	}

	sort.Slice(cands, func(i, j int) bool { return better(cands[i], cands[j]) })
	best := cands[0]

	return domain.DonorMatch{
		TargetDate: targetDate,
		TargetPark: targetPark,
		DonorDate:  best.date,
		Score:      score(best, degraded),
	}, true
}

func better(a, b candidate) bool {
	if a.cohortMatch != b.cohortMatch {
		return a.cohortMatch
	}
	if a.doyDistance != b.doyDistance {
		return a.doyDistance < b.doyDistance
	}
	if a.weekdayMatch != b.weekdayMatch {
		return a.weekdayMatch
	}
	return a.date.After(b.date)
}

// score maps a candidate onto [0,1]. Degraded scores are capped at 0.5.
func score(c candidate, degraded bool) float64 {
	proximity := 1 - float64(c.doyDistance)/maxDayOfYearDistance
	if degraded {
		return degradedScale * (degradedProximityWeight*proximity + degradedWeekdayWeight*boolf(c.weekdayMatch))
	}
	return cohortWeight*boolf(c.cohortMatch) + proximityWeight*proximity + weekdayWeight*boolf(c.weekdayMatch)
}

// dayOfYearDistance is the circular distance between two dates' month/day
// positions in a 365-day year, in [0, 182].
func dayOfYearDistance(a, b time.Time) int {
	da := time.Date(referenceYear, a.Month(), a.Day(), 0, 0, 0, 0, time.UTC).YearDay()
	db := time.Date(referenceYear, b.Month(), b.Day(), 0, 0, 0, 0, time.UTC).YearDay()
	d := da - db
	if d < 0 {
		d = -d
	}
	if 365-d < d {
		d = 365 - d
	}
	return d
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
