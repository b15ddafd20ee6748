package domain

import (
	"fmt"
	"strings"
)

// ColumnAliases maps legacy column names to canonical names. Canonical names
// map to themselves implicitly.
type ColumnAliases map[string]string

// HoursColumnAliases covers every historical spelling of the hours table and
// hours feed columns.
var HoursColumnAliases = ColumnAliases{
	"date":              "park_date",
	"operating_date":    "park_date",
	"park":              "park_code",
	"park_id":           "park_code",
	"park_abbreviation": "park_code",
	"open":              "opening_time",
	"open_time":         "opening_time",
	"opening":           "opening_time",
	"close":             "closing_time",
	"close_time":        "closing_time",
	"closing":           "closing_time",
	"emh_am":            "emh_morning",
	"early_entry":       "emh_morning",
	"emh_pm":            "emh_evening",
	"extended_evening":  "emh_evening",
	"type":              "version_type",
	"id":                "version_id",
}

// ObservationColumnAliases covers the fact feed column spellings.
var ObservationColumnAliases = ColumnAliases{
	"entity":          "entity_code",
	"code":            "entity_code",
	"attraction_code": "entity_code",
	"observed":        "observed_at",
	"timestamp":       "observed_at",
	"time":            "observed_at",
	"wait_type":       "wait_time_type",
	"type":            "wait_time_type",
	"wait":            "wait_time_minutes",
	"wait_minutes":    "wait_time_minutes",
	"minutes":         "wait_time_minutes",
}

// CohortColumnAliases covers the date-group table column spellings.
var CohortColumnAliases = ColumnAliases{
	"date":          "park_date",
	"date_group":    "dategroupid",
	"dategroup_id":  "dategroupid",
	"date_group_id": "dategroupid",
}

// CanonicalHeader maps a CSV header to canonical column positions. Names are
// compared case-insensitively after trimming. Missing required columns are an
// error; duplicate canonical names keep the first position.
func CanonicalHeader(header []string, aliases ColumnAliases, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	for _, r := range required {
		if _, ok := idx[r]; !ok {
			return nil, fmt.Errorf("missing required column %q", r)
		}
	}
	return idx, nil
}

// Field returns the value of a canonical column in a record, or "" when the
// column is absent or the record is short.
func Field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
