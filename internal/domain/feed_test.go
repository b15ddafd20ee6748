package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHoursMessage(t *testing.T) {
	msgTime := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	t.Run("published_at from payload", func(t *testing.T) {
		u, err := ParseHoursMessage(RawMessage{
			Value:     []byte(`{"park_date":"2026-06-01","park_code":"MK","opening_time":"09:00","closing_time":"23:00","emh_morning":true,"published_at":"2026-05-01T12:00:00-04:00"}`),
			Timestamp: msgTime,
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), u.Hours.ParkDate)
		assert.Equal(t, "MK", u.Hours.ParkCode)
		assert.Equal(t, "23:00", u.Hours.ClosingTime)
		assert.True(t, u.Hours.EMHMorning)
		assert.False(t, u.Hours.EMHEvening)
		assert.Equal(t, SourceKafka, u.Hours.Source)
		assert.Equal(t, time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC), u.PublishedAt)
	})

	t.Run("falls back to message time", func(t *testing.T) {
		u, err := ParseHoursMessage(RawMessage{
			Value:     []byte(`{"park_date":"2026-06-01","park_code":"EP","opening_time":"09:00","closing_time":"21:00"}`),
			Timestamp: msgTime,
		})
		require.NoError(t, err)
		assert.Equal(t, msgTime, u.PublishedAt)
	})

	for name, payload := range map[string]string{
		"invalid json":     `not-json{{{`,
		"bad date":         `{"park_date":"someday","park_code":"MK"}`,
		"empty park":       `{"park_date":"2026-06-01","park_code":""}`,
		"bad published_at": `{"park_date":"2026-06-01","park_code":"MK","published_at":"soon"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHoursMessage(RawMessage{Value: []byte(payload), Timestamp: msgTime})
			assert.Error(t, err)
		})
	}
}

func TestEncodeHoursMessage_RoundTrip(t *testing.T) {
	in := HoursUpdate{
		Hours: OfficialHours{
			ParkDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			ParkCode:    "HS",
			OpeningTime: "08:30",
			ClosingTime: "21:00",
			EMHEvening:  true,
		},
		PublishedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := EncodeHoursMessage(in)
	require.NoError(t, err)

	out, err := ParseHoursMessage(RawMessage{Value: data})
	require.NoError(t, err)
	in.Hours.Source = SourceKafka
	assert.Equal(t, in, out)
}
