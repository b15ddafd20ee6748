package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/parks"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func TestValidateHoursTable(t *testing.T) {
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	table := hours.NewTable(
		domain.ParkHoursVersion{ParkDate: day(1), ParkCode: "MK", VersionType: domain.VersionOfficial, CreatedAt: created, OpeningTime: "09:00", ClosingTime: "22:00"},
		domain.ParkHoursVersion{ParkDate: day(1), ParkCode: "MK", VersionType: domain.VersionOfficial, CreatedAt: later, OpeningTime: "10:00", ClosingTime: "22:00"},
		domain.ParkHoursVersion{ParkDate: day(2), ParkCode: "MK", VersionType: domain.VersionPredicted, CreatedAt: created, OpeningTime: "09:00", ClosingTime: "22:00"},
	)

	p := validateHoursTable(table, 1)
	require.False(t, p.passed())
	assert.Len(t, p.errors, 2)
	assert.Contains(t, p.errors[0], "dropped")
	assert.Contains(t, p.errors[1], "2 open official versions")

	clean := hours.NewTable()
	_, err := clean.CreateOfficialVersion(domain.OfficialHours{ParkDate: day(1), ParkCode: "MK", OpeningTime: "09:00", ClosingTime: "22:00"}, created)
	require.NoError(t, err)
	_, err = clean.CreateOfficialVersion(domain.OfficialHours{ParkDate: day(1), ParkCode: "MK", OpeningTime: "10:00", ClosingTime: "22:00"}, later)
	require.NoError(t, err)
	assert.True(t, validateHoursTable(clean, 0).passed())
}

func TestValidateAggregates(t *testing.T) {
	row := domain.PostedAggregateRow{EntityCode: "MK1", DateGroupID: "PEAK", Hour: 10, PostedCount: 1, MinParkDate: day(2), MaxParkDate: day(1)}
	p := validateAggregates([]domain.PostedAggregateRow{row, row}, 0)
	assert.Len(t, p.errors, 3)
}

func TestValidateFallbacks(t *testing.T) {
	rows := []domain.PostedAggregateRow{
		{EntityCode: "MK1", DateGroupID: "PEAK", Hour: 10, PostedCount: 3},
		{EntityCode: "MK1", DateGroupID: "PEAK", Hour: 11, PostedCount: 7},
		{EntityCode: "MK2", DateGroupID: "PEAK", Hour: 10, PostedCount: 2},
	}
	fallbacks := []posted.FallbackRow{
		{Level: posted.LevelEntity, Key: "MK1", DateGroupID: posted.AnyCohort, Hour: posted.AnyHour, PostedCount: 10},
		{Level: posted.LevelEntity, Key: "MK3", DateGroupID: posted.AnyCohort, Hour: posted.AnyHour, PostedCount: 4},
		{Level: posted.LevelEntityCohort, Key: "MK2", DateGroupID: "PEAK", Hour: posted.AnyHour, PostedCount: 2},
	}

	p := validateFallbacks(rows, fallbacks, 0)
	assert.Equal(t, []string{
		"entity MK2: 2 exact observations, 0 pooled",
		"entity MK3: 0 exact observations, 4 pooled",
	}, p.errors)

	assert.True(t, validateFallbacks(rows[:2], fallbacks[:1], 0).passed())
}

func TestValidateParkCoverage(t *testing.T) {
	reg, err := parks.New([]parks.Park{{Code: "MK", Timezone: "UTC"}})
	require.NoError(t, err)
	table := hours.NewTable(
		domain.ParkHoursVersion{ParkDate: day(1), ParkCode: "EP", VersionType: domain.VersionOfficial, OpeningTime: "09:00", ClosingTime: "21:00"},
	)
	rows := []domain.PostedAggregateRow{{EntityCode: "MK1"}, {EntityCode: "XX9"}}

	p := validateParkCoverage(table, rows, reg)
	assert.Equal(t, []string{
		"entity XX9 has no registered park prefix",
		"park EP in hours table is not registered",
	}, p.errors)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	ok := report(&buf, []*phase{{name: "a"}, {name: "b", errors: []string{"boom"}}})
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "FAIL (1 errors)")
	assert.Contains(t, buf.String(), "[1] boom")
	assert.Contains(t, buf.String(), "Validation FAILED.")
}
