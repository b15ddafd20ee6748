package posted

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// Wildcards for the dimensions a fallback row pools over.
const (
	AnyCohort = "*"
	AnyHour   = -1
)

// FallbackRow holds the weighted POSTED statistics of every observation under
// a coarser key than the exact group. Key is the entity code, or the park code
// for LevelParkHour.
type FallbackRow struct {
	Level                Level   `validate:"min=2,max=5"`
	Key                  string  `validate:"required"`
	DateGroupID          string  `validate:"required"`
	Hour                 int     `validate:"gte=-1,lte=23"`
	PostedMedianWeighted float64 `validate:"gte=0"`
	PostedMeanWeighted   float64 `validate:"gte=0"`
	PostedCount          int     `validate:"gt=0"`
	AvgRecencyWeight     float64 `validate:"gt=0,lte=1"`
}

type fallbackKey struct {
	level  Level
	key    string
	cohort string
	hour   int
}

func (r FallbackRow) key() fallbackKey {
	return fallbackKey{level: r.Level, key: r.Key, cohort: r.DateGroupID, hour: r.Hour}
}

// scoped reports whether the wildcards match the level: only the pooled
// dimensions may be wildcards.
func (r FallbackRow) scoped() bool {
	anyCohort, anyHour := r.DateGroupID == AnyCohort, r.Hour == AnyHour
	switch r.Level {
	case LevelEntityCohort:
		return !anyCohort && anyHour
	case LevelEntityHour, LevelParkHour:
		return anyCohort && !anyHour
	case LevelEntity:
		return anyCohort && anyHour
	}
	return false
}

// ParseLevel is the inverse of Level.String.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return LevelNone, false
}

// Fallbacks computes one pooled row per fallback key, sorted by level, key,
// cohort, hour.
func (b *Builder) Fallbacks() []FallbackRow {
	rows := make([]FallbackRow, 0, len(b.pools))
	for k, g := range b.pools {
		wMedian, ok := WeightedMedian(g.values, g.weights)
		if !ok {
			continue
		}
		rows = append(rows, FallbackRow{
			Level:                k.level,
			Key:                  k.key,
			DateGroupID:          k.cohort,
			Hour:                 k.hour,
			PostedMedianWeighted: wMedian,
			PostedMeanWeighted:   WeightedMean(g.values, g.weights),
			PostedCount:          len(g.values),
			AvgRecencyWeight:     WeightedMean(g.weights, nil),
		})
	}
	SortFallbacks(rows)
	return rows
}

// SortFallbacks orders rows by level, key, cohort, hour.
func SortFallbacks(rows []FallbackRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.DateGroupID != b.DateGroupID {
			return a.DateGroupID < b.DateGroupID
		}
		return a.Hour < b.Hour
	})
}

var fallbackColumns = []string{
	"level",
	"key",
	"dategroupid",
	"hour",
	"posted_median_weighted",
	"posted_mean_weighted",
	"posted_count",
	"avg_recency_weight",
}

// FallbackPath is where the pooled rows live next to an aggregate snapshot:
// posted_aggregates.csv pairs with posted_aggregates_fallbacks.csv.
func FallbackPath(aggregatesPath string) string {
	ext := filepath.Ext(aggregatesPath)
	return strings.TrimSuffix(aggregatesPath, ext) + "_fallbacks" + ext
}

// SaveSnapshot writes the pooled rows and then the exact rows, each
// atomically. The exact file is the commit point of a rebuild.
func SaveSnapshot(aggregatesPath string, snap Snapshot) error {
	err := atomicfile.WriteFile(FallbackPath(aggregatesPath), func(w io.Writer) error {
		return WriteFallbacks(w, snap.Fallbacks)
	})
	if err != nil {
		return fmt.Errorf("save fallbacks: %w", err)
	}
	return Save(aggregatesPath, snap.Rows)
}

// LoadSnapshot reads both files of a snapshot. A missing fallback file yields
// a table whose cascade stops at the exact level.
func LoadSnapshot(aggregatesPath string, logger *slog.Logger) (Snapshot, LoadStats, error) {
	rows, stats, err := Load(aggregatesPath, logger)
	if err != nil {
		return Snapshot{}, stats, err
	}
	fallbacks, fstats, err := LoadFallbacks(FallbackPath(aggregatesPath), logger)
	if err != nil {
		return Snapshot{}, stats, err
	}
	if len(rows) > 0 && len(fallbacks) == 0 {
		logger.Warn("aggregate snapshot has no pooled fallback rows; rebuild to restore levels 2 to 5",
			"path", FallbackPath(aggregatesPath))
	}
	stats.Loaded += fstats.Loaded
	stats.Dropped += fstats.Dropped
	return Snapshot{Rows: rows, Fallbacks: fallbacks}, stats, nil
}

// LoadFallbacks reads a pooled-row file. A missing file yields no rows.
func LoadFallbacks(path string, logger *slog.Logger) ([]FallbackRow, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, LoadStats{}, nil
		}
		return nil, LoadStats{}, fmt.Errorf("open fallbacks: %w", err)
	}
	defer f.Close()
	return ReadFallbacks(f, logger)
}

// ReadFallbacks parses pooled rows from r. Invalid rows are dropped and
// logged.
func ReadFallbacks(r io.Reader, logger *slog.Logger) ([]FallbackRow, LoadStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, LoadStats{}, nil
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read fallbacks header: %w", err)
	}
	idx, err := domain.CanonicalHeader(header, nil, fallbackColumns...)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("fallbacks header: %w", err)
	}

	var (
		rows  []FallbackRow
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
				logger.Warn("dropping unreadable fallback row", "line", line, "error", err)
				continue
			}
			return nil, stats, fmt.Errorf("read fallback row: %w", err)
		}
		row, err := parseFallback(rec, idx)
		if err != nil {
			stats.Dropped++
			logger.Warn("dropping malformed fallback row", "line", line, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	stats.Loaded = len(rows)
	return rows, stats, nil
}

func parseFallback(rec []string, idx map[string]int) (FallbackRow, error) {
	get := func(name string) string { return domain.Field(rec, idx, name) }
	malformed := func(field string, err error) (FallbackRow, error) {
		return FallbackRow{}, fmt.Errorf("%s: %w: %w", field, domain.ErrMalformedRow, err)
	}

	var r FallbackRow
	var err error
	level, ok := ParseLevel(get("level"))
	if !ok {
		return malformed("level", fmt.Errorf("unknown level %q", get("level")))
	}
	r.Level = level
	r.Key = strings.ToUpper(get("key"))
	r.DateGroupID = get("dategroupid")
	if h := get("hour"); h == AnyCohort {
		r.Hour = AnyHour
	} else if r.Hour, err = strconv.Atoi(h); err != nil {
		return malformed("hour", err)
	}
	if r.PostedMedianWeighted, err = strconv.ParseFloat(get("posted_median_weighted"), 64); err != nil {
		return malformed("posted_median_weighted", err)
	}
	if r.PostedMeanWeighted, err = strconv.ParseFloat(get("posted_mean_weighted"), 64); err != nil {
		return malformed("posted_mean_weighted", err)
	}
	if r.PostedCount, err = strconv.Atoi(get("posted_count")); err != nil {
		return malformed("posted_count", err)
	}
	if r.AvgRecencyWeight, err = strconv.ParseFloat(get("avg_recency_weight"), 64); err != nil {
		return malformed("avg_recency_weight", err)
	}
	if err := rowValidate.Struct(r); err != nil {
		return malformed("row", err)
	}
	if !r.scoped() {
		return malformed("row", fmt.Errorf("%s row with dategroupid %q and hour %d", r.Level, r.DateGroupID, r.Hour))
	}
	return r, nil
}

// WriteFallbacks serializes pooled rows as CSV. Pooled dimensions are
// written as "*".
func WriteFallbacks(w io.Writer, rows []FallbackRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fallbackColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, r := range rows {
		hour := AnyCohort
		if r.Hour != AnyHour {
			hour = strconv.Itoa(r.Hour)
		}
		rec := []string{
			r.Level.String(),
			r.Key,
			r.DateGroupID,
			hour,
			f(r.PostedMedianWeighted),
			f(r.PostedMeanWeighted),
			strconv.Itoa(r.PostedCount),
			f(r.AvgRecencyWeight),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
