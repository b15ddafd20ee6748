package hours

import (
	"testing"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPark = "MK"

var (
	june1 = date(2025, time.June, 1)
	t0    = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func official(d time.Time, open, close string) domain.OfficialHours {
	return domain.OfficialHours{ParkDate: d, ParkCode: testPark, OpeningTime: open, ClosingTime: close}
}

func freezeClock(t *testing.T, at time.Time) *clockwork.FakeClock {
	t.Helper()
	c := clockwork.NewFakeClockAt(at)
	domain.SetClock(c)
	t.Cleanup(func() { domain.SetClock(nil) })
	return c
}

func TestCreateOfficialVersion_First(t *testing.T) {
	table := NewTable()

	res, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)
	assert.True(t, res.Appended)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Previous)
	assert.Equal(t, int64(1), res.Version.VersionID)
	assert.Equal(t, domain.VersionOfficial, res.Version.VersionType)
	assert.Equal(t, domain.SourceSync, res.Version.Source)
	require.NotNil(t, res.Version.ValidFrom)
	assert.Equal(t, t0, *res.Version.ValidFrom)
	assert.Nil(t, res.Version.ValidUntil)
	assert.Equal(t, 1, table.Len())
}

func TestCreateOfficialVersion_Idempotent(t *testing.T) {
	table := NewTable()

	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)

	// Equivalent spelling of the same hours must not create a second row.
	res, err := table.CreateOfficialVersion(official(june1, "9:00 AM", "10:00 PM"), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Appended)
	assert.Equal(t, 1, table.Len())
	assert.Nil(t, table.Rows()[0].ValidUntil)
}

func TestCreateOfficialVersion_ChangeDetection(t *testing.T) {
	table := NewTable()
	t1 := t0.Add(48 * time.Hour)

	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)

	res, err := table.CreateOfficialVersion(official(june1, "08:00", "22:00"), t1)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Appended)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "09:00", res.Previous.OpeningTime)

	rows := table.Rows()
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ValidUntil)
	assert.Equal(t, t1, *rows[0].ValidUntil)
	assert.Nil(t, rows[1].ValidUntil)
	assert.Equal(t, "08:00", rows[1].OpeningTime)
	assert.Equal(t, int64(2), rows[1].VersionID)
}

func TestCreateOfficialVersion_EMHChangeIsChange(t *testing.T) {
	table := NewTable()
	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)

	in := official(june1, "09:00", "22:00")
	in.EMHMorning = true
	res, err := table.CreateOfficialVersion(in, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestCreateOfficialVersion_OutOfOrderDoesNotInvertWindow(t *testing.T) {
	table := NewTable()
	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)

	res, err := table.CreateOfficialVersion(official(june1, "10:00", "22:00"), t0.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, res.Previous.ValidUntil)
	assert.False(t, res.Previous.ValidUntil.Before(*res.Previous.ValidFrom))
}

func TestCreateOfficialVersion_InvalidInput(t *testing.T) {
	table := NewTable()

	_, err := table.CreateOfficialVersion(official(june1, "soon", "22:00"), t0)
	require.ErrorIs(t, err, domain.ErrUnparseable)

	in := official(june1, "09:00", "22:00")
	in.ParkCode = " "
	_, err = table.CreateOfficialVersion(in, t0)
	require.Error(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestTable_NeverShrinks(t *testing.T) {
	freezeClock(t, t0)
	table := NewTable()
	sel := NewSelector(discardLogger())

	steps := []func(){
		func() { _, _ = table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0) },
		func() { _, _ = table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0.Add(time.Hour)) },
		func() { _, _ = table.CreateOfficialVersion(official(june1, "09:00", "23:00"), t0.Add(2*time.Hour)) },
		func() {
			m, ok := sel.FindBestDonorDay(date(2026, time.June, 1), testPark, table, nil)
			if ok {
				_, _ = table.CreatePredictedVersionFromDonor(m, testPark, table, nil)
			}
		},
		func() {
			_, _ = table.CreateOfficialVersion(official(date(2026, time.June, 1), "09:30", "22:00"), t0.Add(3*time.Hour))
		},
	}

	prev := table.Len()
	for i, step := range steps {
		step()
		assert.GreaterOrEqual(t, table.Len(), prev, "step %d shrank the table", i)
		prev = table.Len()
	}
	assert.Equal(t, 4, table.Len())
}

func TestGetHours_AsOf(t *testing.T) {
	table := NewTable()
	t1 := t0.Add(24 * time.Hour)

	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)
	_, err = table.CreateOfficialVersion(official(june1, "08:00", "23:00"), t1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		asOf  time.Time
		open  string
		found bool
	}{
		{"before any version", t0.Add(-time.Minute), "", false},
		{"at first version", t0, "09:00", true},
		{"between versions", t1.Add(-time.Second), "09:00", true},
		{"at change instant", t1, "08:00", true},
		{"after change", t1.Add(72 * time.Hour), "08:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := table.GetHours(june1, "mk", tt.asOf)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.open, v.OpeningTime)
			if ok && v.ValidUntil != nil {
				assert.True(t, v.ValidUntil.After(tt.asOf), "returned a closed version")
			}
		})
	}
}

func TestGetHours_DefaultsToNow(t *testing.T) {
	freezeClock(t, t0.Add(time.Hour))
	table := NewTable()
	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	require.NoError(t, err)

	v, ok := table.GetHours(june1, testPark, time.Time{})
	require.True(t, ok)
	assert.Equal(t, "09:00", v.OpeningTime)
}

func TestGetHours_PredictedUntilOfficialArrives(t *testing.T) {
	clk := freezeClock(t, t0)
	target := date(2026, time.June, 1)

	table := NewTable()
	_, err := table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0.Add(-time.Hour))
	require.NoError(t, err)

	m := domain.DonorMatch{TargetDate: target, TargetPark: testPark, DonorDate: june1, Score: 0.9}
	pred, err := table.CreatePredictedVersionFromDonor(m, testPark, table, nil)
	require.NoError(t, err)

	v, ok := table.GetHours(target, testPark, t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, domain.VersionPredicted, v.VersionType)
	assert.False(t, table.IsSuperseded(pred))

	clk.Advance(24 * time.Hour)
	arrival := t0.Add(24 * time.Hour)
	_, err = table.CreateOfficialVersion(official(target, "09:30", "22:00"), arrival)
	require.NoError(t, err)

	v, ok = table.GetHours(target, testPark, arrival.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, domain.VersionOfficial, v.VersionType)
	assert.True(t, table.IsSuperseded(pred))

	// History is preserved: before the arrival the prediction was in force.
	v, ok = table.GetHours(target, testPark, arrival.Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, domain.VersionPredicted, v.VersionType)
}

func TestGetHours_TieBrokenByLatestCreatedAt(t *testing.T) {
	a := t0
	b := t0.Add(time.Minute)
	table := NewTable(
		domain.ParkHoursVersion{ParkDate: june1, ParkCode: testPark, VersionType: domain.VersionPredicted,
			CreatedAt: a, OpeningTime: "09:00", ClosingTime: "21:00"},
		domain.ParkHoursVersion{ParkDate: june1, ParkCode: testPark, VersionType: domain.VersionPredicted,
			CreatedAt: b, OpeningTime: "10:00", ClosingTime: "21:00"},
	)

	v, ok := table.GetHours(june1, testPark, b.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, "10:00", v.OpeningTime)
}

func TestCreatePredictedVersionFromDonor(t *testing.T) {
	freezeClock(t, t0)
	target := date(2026, time.June, 1)

	source := NewTable()
	in := official(june1, "09:00", "22:00")
	in.EMHEvening = true
	_, err := source.CreateOfficialVersion(in, t0.Add(-time.Hour))
	require.NoError(t, err)

	t.Run("copies donor hours", func(t *testing.T) {
		table := NewTable()
		m := domain.DonorMatch{TargetDate: target, TargetPark: testPark, DonorDate: june1, Score: 0.95}
		v, err := table.CreatePredictedVersionFromDonor(m, testPark, source, nil)
		require.NoError(t, err)

		assert.Equal(t, domain.VersionPredicted, v.VersionType)
		assert.Equal(t, domain.SourceDonorImputation, v.Source)
		assert.Equal(t, "09:00", v.OpeningTime)
		assert.Equal(t, "22:00", v.ClosingTime)
		assert.True(t, v.EMHEvening)
		require.NotNil(t, v.Confidence)
		assert.InDelta(t, 0.95, *v.Confidence, 1e-9)
		require.NotNil(t, v.ChangeProbability)
		assert.Contains(t, v.Notes, "donor=MK/2025-06-01")
		assert.Equal(t, t0, v.CreatedAt)
	})

	t.Run("missing donor hours", func(t *testing.T) {
		table := NewTable()
		m := domain.DonorMatch{TargetDate: target, TargetPark: testPark, DonorDate: june1.AddDate(0, 0, 1), Score: 1}
		_, err := table.CreatePredictedVersionFromDonor(m, testPark, source, nil)
		require.ErrorIs(t, err, domain.ErrNoDonorData)
		assert.Equal(t, 0, table.Len())
	})

	t.Run("never overwrites", func(t *testing.T) {
		table := NewTable()
		m := domain.DonorMatch{TargetDate: target, TargetPark: testPark, DonorDate: june1, Score: 0.5}
		_, err := table.CreatePredictedVersionFromDonor(m, testPark, source, nil)
		require.NoError(t, err)

		_, err = table.CreatePredictedVersionFromDonor(m, testPark, source, nil)
		require.ErrorIs(t, err, domain.ErrVersionExists)
		assert.Equal(t, 1, table.Len())
	})

	t.Run("refuses when official exists", func(t *testing.T) {
		table := NewTable()
		_, err := table.CreateOfficialVersion(official(target, "10:00", "20:00"), t0)
		require.NoError(t, err)

		m := domain.DonorMatch{TargetDate: target, TargetPark: testPark, DonorDate: june1, Score: 0.5}
		_, err = table.CreatePredictedVersionFromDonor(m, testPark, source, nil)
		require.ErrorIs(t, err, domain.ErrOfficialExists)
	})
}

func TestChangeRate(t *testing.T) {
	table := NewTable()
	_, _ = table.CreateOfficialVersion(official(june1, "09:00", "22:00"), t0)
	_, _ = table.CreateOfficialVersion(official(june1, "09:00", "23:00"), t0.Add(time.Hour))
	_, _ = table.CreateOfficialVersion(official(june1.AddDate(0, 0, 1), "09:00", "22:00"), t0)

	assert.InDelta(t, 0.5, table.ChangeRate(testPark), 1e-9)
	assert.Zero(t, table.ChangeRate("EP"))
}
