package domain

import (
	"strings"
	"time"
)

// Accepted layouts, tried in order; the first successful parse wins.
var (
	dateLayouts = []string{
		DateLayout,
		"2006/01/02",
		"01/02/2006",
		"20060102",
		time.RFC3339,
	}

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}

	clockLayouts = []string{
		"15:04",
		"15:04:05",
		"3:04 PM",
		"3:04PM",
		"3 PM",
		"3PM",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
)

// ClockLayout is the canonical opening/closing time format.
const ClockLayout = "15:04"

// ParseDate parses a park date and returns it at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, &ParseError{Kind: "date", Value: s}
}

// ParseTimestamp parses an instant. Layouts without an offset are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Kind: "timestamp", Value: s}
}

// ParseClock normalizes a wall-clock value to "HH:MM". Full timestamps keep
// only their wall-clock part.
func ParseClock(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	return "", &ParseError{Kind: "clock", Value: s}
}

// ClockMinutes converts a canonical "HH:MM" value into minutes after midnight.
// Closing times before the 6 AM cutover belong to the same park day and are
// shifted past midnight (01:00 -> 25:00).
func ClockMinutes(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, &ParseError{Kind: "clock", Value: s}
	}
	m := t.Hour()*60 + t.Minute()
	if t.Hour() < ParkDayCutoverHour {
		m += 24 * 60
	}
	return m, nil
}

// ParseBool accepts the boolean spellings seen in hours feeds.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "", "0", "false", "f", "no", "n":
		return false, nil
	default:
		return false, &ParseError{Kind: "bool", Value: s}
	}
}
