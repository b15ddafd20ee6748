package posted

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

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/go-playground/validator/v10"
)

var columns = []string{
	"entity_code",
	"dategroupid",
	"hour",
	"posted_median_weighted",
	"posted_mean_weighted",
	"posted_median_unweighted",
	"posted_mean_unweighted",
	"posted_count",
	"avg_recency_weight",
	"min_park_date",
	"max_park_date",
}

var rowValidate = validator.New()

// LoadStats summarizes a tolerant load.
type LoadStats struct {
	Loaded  int
	Dropped int
}

// Load reads an aggregate snapshot. A missing file yields no rows, which
// callers surface as "no prediction".
func Load(path string, logger *slog.Logger) ([]domain.PostedAggregateRow, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, LoadStats{}, nil
		}
		return nil, LoadStats{}, fmt.Errorf("open aggregates: %w", err)
	}
	defer f.Close()
	return Read(f, logger)
}

// Read parses aggregate rows from r. Invalid rows are dropped and logged.
func Read(r io.Reader, logger *slog.Logger) ([]domain.PostedAggregateRow, LoadStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, LoadStats{}, nil
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read aggregates header: %w", err)
	}
	idx, err := domain.CanonicalHeader(header, nil, columns...)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("aggregates header: %w", err)
	}

	var (
		rows  []domain.PostedAggregateRow
		stats LoadStats
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
				logger.Warn("dropping unreadable aggregate row", "line", line, "error", err)
				continue
			}
			return nil, stats, fmt.Errorf("read aggregate row: %w", err)
		}
		row, err := parseRow(rec, idx)
		if err != nil {
			stats.Dropped++
			logger.Warn("dropping malformed aggregate row", "line", line, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	stats.Loaded = len(rows)
	return rows, stats, nil
}

func parseRow(rec []string, idx map[string]int) (domain.PostedAggregateRow, error) {
	get := func(name string) string { return domain.Field(rec, idx, name) }
	malformed := func(field string, err error) (domain.PostedAggregateRow, error) {
		return domain.PostedAggregateRow{}, fmt.Errorf("%s: %w: %w", field, domain.ErrMalformedRow, err)
	}

	var r domain.PostedAggregateRow
	var err error
	r.EntityCode = strings.ToUpper(get("entity_code"))
	r.DateGroupID = get("dategroupid")
	if r.Hour, err = strconv.Atoi(get("hour")); err != nil {
		return malformed("hour", err)
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"posted_median_weighted", &r.PostedMedianWeighted},
		{"posted_mean_weighted", &r.PostedMeanWeighted},
		{"posted_median_unweighted", &r.PostedMedianUnweighted},
		{"posted_mean_unweighted", &r.PostedMeanUnweighted},
		{"avg_recency_weight", &r.AvgRecencyWeight},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(get(f.name), 64); err != nil {
			return malformed(f.name, err)
		}
	}
	if r.PostedCount, err = strconv.Atoi(get("posted_count")); err != nil {
		return malformed("posted_count", err)
	}
	if r.MinParkDate, err = domain.ParseDate(get("min_park_date")); err != nil {
		return malformed("min_park_date", err)
	}
	if r.MaxParkDate, err = domain.ParseDate(get("max_park_date")); err != nil {
		return malformed("max_park_date", err)
	}
	if err := rowValidate.Struct(r); err != nil {
		return malformed("row", err)
	}
	return r, nil
}

// Save writes rows to path atomically. A failed save leaves the previous
// snapshot in place.
func Save(path string, rows []domain.PostedAggregateRow) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		return Write(w, rows)
	})
}

// Write serializes rows as CSV.
func Write(w io.Writer, rows []domain.PostedAggregateRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(formatRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRow(r domain.PostedAggregateRow) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		r.EntityCode,
		r.DateGroupID,
		strconv.Itoa(r.Hour),
		f(r.PostedMedianWeighted),
		f(r.PostedMeanWeighted),
		f(r.PostedMedianUnweighted),
		f(r.PostedMeanUnweighted),
		strconv.Itoa(r.PostedCount),
		f(r.AvgRecencyWeight),
		r.MinParkDate.Format(domain.DateLayout),
		r.MaxParkDate.Format(domain.DateLayout),
	}
}
