package hours

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/go-playground/validator/v10"
)

// columns is the canonical on-disk column order.
var columns = []string{
	"version_id",
	"park_date",
	"park_code",
	"version_type",
	"source",
	"created_at",
	"valid_from",
	"valid_until",
	"opening_time",
	"closing_time",
	"emh_morning",
	"emh_evening",
	"confidence",
	"change_probability",
	"notes",
}

var rowValidate = validator.New()

// LoadStats summarizes a tolerant load.
type LoadStats struct {
	Loaded  int
	Dropped int
}

// Load reads the versioned hours table at path. A missing file is an empty
// table. Rows that fail validation are dropped and logged; the rest load.
func Load(path string, logger *slog.Logger) (*Table, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewTable(), LoadStats{}, nil
		}
		return nil, LoadStats{}, fmt.Errorf("open hours table: %w", err)
	}
	defer f.Close()
	return Read(f, logger)
}

// Read parses a versioned hours table from r.
func Read(r io.Reader, logger *slog.Logger) (*Table, LoadStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return NewTable(), LoadStats{}, nil
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read hours header: %w", err)
	}
	idx, err := domain.CanonicalHeader(header, domain.HoursColumnAliases,
		"park_date", "park_code", "opening_time", "closing_time")
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("hours header: %w", err)
	}

	var (
		rows  []domain.ParkHoursVersion
		stats LoadStats
		seen  = make(map[int64]bool)
		line  = 1
	)
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Dropped++
				logger.Warn("dropping unreadable hours row", "line", line, "error", err)
				continue
			}
			return nil, stats, fmt.Errorf("read hours row: %w", err)
		}

		v, err := parseRow(rec, idx)
		if err == nil && v.VersionID != 0 && seen[v.VersionID] {
			err = fmt.Errorf("duplicate version_id %d: %w", v.VersionID, domain.ErrMalformedRow)
		}
		if err != nil {
			stats.Dropped++
			logger.Warn("dropping malformed hours row", "line", line, "error", err)
			continue
		}
		if v.VersionID != 0 {
			seen[v.VersionID] = true
		}
		rows = append(rows, v)
	}

	t := NewTable(rows...)
	stats.Loaded = t.Len()
	return t, stats, nil
}

func parseRow(rec []string, idx map[string]int) (domain.ParkHoursVersion, error) {
	get := func(name string) string { return domain.Field(rec, idx, name) }
	malformed := func(field string, err error) (domain.ParkHoursVersion, error) {
		return domain.ParkHoursVersion{}, fmt.Errorf("%s: %w: %w", field, domain.ErrMalformedRow, err)
	}

	var v domain.ParkHoursVersion
	var err error

	if s := get("version_id"); s != "" {
		if v.VersionID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return malformed("version_id", err)
		}
	}
	if v.ParkDate, err = domain.ParseDate(get("park_date")); err != nil {
		return malformed("park_date", err)
	}
	v.ParkCode = strings.ToUpper(get("park_code"))

	// Legacy tables predate version types; every row there was official.
	v.VersionType = domain.VersionOfficial
	if s := get("version_type"); s != "" {
		v.VersionType = domain.VersionType(strings.ToLower(s))
	}
	v.Source = get("source")

	if s := get("created_at"); s != "" {
		if v.CreatedAt, err = domain.ParseTimestamp(s, time.UTC); err != nil {
			return malformed("created_at", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
	}
	if v.ValidFrom, err = optionalTime(get("valid_from")); err != nil {
		return malformed("valid_from", err)
	}
	if v.ValidUntil, err = optionalTime(get("valid_until")); err != nil {
		return malformed("valid_until", err)
	}
	// Legacy rows without timestamps are dated to their park day.
	if v.CreatedAt.IsZero() {
		if v.ValidFrom != nil {
			v.CreatedAt = *v.ValidFrom
		} else {
			v.CreatedAt = v.ParkDate
		}
	}

	if v.OpeningTime, err = domain.ParseClock(get("opening_time")); err != nil {
		return malformed("opening_time", err)
	}
	if v.ClosingTime, err = domain.ParseClock(get("closing_time")); err != nil {
		return malformed("closing_time", err)
	}
	if v.EMHMorning, err = domain.ParseBool(get("emh_morning")); err != nil {
		return malformed("emh_morning", err)
	}
	if v.EMHEvening, err = domain.ParseBool(get("emh_evening")); err != nil {
		return malformed("emh_evening", err)
	}
	if v.Confidence, err = optionalFloat(get("confidence")); err != nil {
		return malformed("confidence", err)
	}
	if v.ChangeProbability, err = optionalFloat(get("change_probability")); err != nil {
		return malformed("change_probability", err)
	}
	v.Notes = get("notes")

	// IDs are assigned later for legacy rows; validate with a placeholder.
	check := v
	if check.VersionID == 0 {
		check.VersionID = 1
	}
	if err := rowValidate.Struct(check); err != nil {
		return malformed("row", err)
	}
	return v, nil
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(s, time.UTC)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Save writes the table to path atomically.
func Save(path string, t *Table) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		return Write(w, t)
	})
}

// Write serializes the table as CSV in append order.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, v := range t.rows {
		if err := cw.Write(formatRow(v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRow(v domain.ParkHoursVersion) []string {
	return []string{
		strconv.FormatInt(v.VersionID, 10),
		v.ParkDate.Format(domain.DateLayout),
		v.ParkCode,
		string(v.VersionType),
		v.Source,
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
		formatOptionalTime(v.ValidFrom),
		formatOptionalTime(v.ValidUntil),
		v.OpeningTime,
		v.ClosingTime,
		strconv.FormatBool(v.EMHMorning),
		strconv.FormatBool(v.EMHEvening),
		formatOptionalFloat(v.Confidence),
		formatOptionalFloat(v.ChangeProbability),
		v.Notes,
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
