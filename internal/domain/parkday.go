package domain

import (
	"math"
	"time"
)

// ParkDayCutoverHour is the local hour at which a new park day begins.
const ParkDayCutoverHour = 6

const (
	// AggregateHalfLifeDays scales recency weights for posted aggregates.
	AggregateHalfLifeDays = 365.0
	// FeatureHalfLifeDays scales recency weights for model training features.
	FeatureHalfLifeDays = 730.0
)

// DateLayout is the canonical park_date format.
const DateLayout = "2006-01-02"

// DateOf truncates t to a calendar date at UTC midnight, keeping t's wall-clock
// year, month and day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParkDay returns the park day an instant belongs to in the given location.
// Readings before 06:00 local time count toward the previous day.
func ParkDay(observedAt time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := observedAt.In(loc)
	if local.Hour() < ParkDayCutoverHour {
		local = local.AddDate(0, 0, -1)
	}
	return DateOf(local)
}

// LocalHour floors an instant to the hour in the given location.
func LocalHour(observedAt time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return observedAt.In(loc).Hour()
}

// DaysBetween returns the whole days from a to b (both truncated to dates).
func DaysBetween(a, b time.Time) int {
	return int(math.Round(DateOf(b).Sub(DateOf(a)).Hours() / 24))
}

// RecencyWeight is the aggregate decay 1/(1+days_ago/365). Future dates get
// weight 1.
func RecencyWeight(daysAgo int) float64 {
	return decay(daysAgo, AggregateHalfLifeDays)
}

// FeatureRecencyWeight is the training-feature decay 1/(1+days_ago/730).
func FeatureRecencyWeight(daysAgo int) float64 {
	return decay(daysAgo, FeatureHalfLifeDays)
}

func decay(daysAgo int, scale float64) float64 {
	if daysAgo < 0 {
		daysAgo = 0
	}
	return 1 / (1 + float64(daysAgo)/scale)
}
