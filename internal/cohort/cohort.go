// Package cohort resolves the dategroupid cohort label for a park date.
package cohort

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// Unknown is the cohort key used when a date has no classification.
const Unknown = "UNKNOWN"

// Classifier maps a park date to its cohort. Implementations must be
// deterministic functions of the calendar date.
type Classifier interface {
	DateGroupID(parkDate time.Time) (string, bool)
}

// Table is a precomputed date -> dategroupid lookup.
type Table struct {
	groups map[time.Time]string
}

// NewTable builds a table from a date -> cohort map.
func NewTable(groups map[time.Time]string) *Table {
	t := &Table{groups: make(map[time.Time]string, len(groups))}
	for d, g := range groups {
		t.groups[domain.DateOf(d)] = g
	}
	return t
}

// DateGroupID implements Classifier.
func (t *Table) DateGroupID(parkDate time.Time) (string, bool) {
	g, ok := t.groups[domain.DateOf(parkDate)]
	return g, ok
}

// Len returns the number of classified dates.
func (t *Table) Len() int { return len(t.groups) }

// KeyFor returns the cohort of a date through c, or Unknown.
func KeyFor(c Classifier, parkDate time.Time) string {
	if c == nil {
		return Unknown
	}
	if g, ok := c.DateGroupID(parkDate); ok && g != "" {
		return g
	}
	return Unknown
}

// LoadCSV reads a cohort table. A missing file yields ErrMissingCohortTable so
// callers can degrade instead of failing. Unparseable rows are skipped.
func LoadCSV(path string, logger *slog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, domain.ErrMissingCohortTable)
		}
		return nil, fmt.Errorf("open cohort table: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, logger)
}

// ReadCSV reads a cohort table from r.
func ReadCSV(r io.Reader, logger *slog.Logger) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read cohort header: %w", err)
	}
	idx, err := domain.CanonicalHeader(header, domain.CohortColumnAliases, "park_date", "dategroupid")
	if err != nil {
		return nil, fmt.Errorf("cohort header: %w", err)
	}

	groups := make(map[time.Time]string)
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read cohort row: %w", err)
		}
		d, err := domain.ParseDate(domain.Field(rec, idx, "park_date"))
		group := domain.Field(rec, idx, "dategroupid")
		if err != nil || group == "" {
			skipped++
			continue
		}
		groups[d] = group
	}
	if skipped > 0 {
		logger.Warn("skipped unparseable cohort rows", "count", skipped)
	}
	return &Table{groups: groups}, nil
}
