// Package csvfeed reads the file-based feeds: hours feed exports and wait-time
// observation files.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
)

// ObservationStats counts what a Stream call read.
type ObservationStats struct {
	Files   int
	Rows    int
	Skipped int
}

// Observations streams wait-time observations from every .csv file under a
// directory, or from a single file. It implements posted.ObservationSource.
type Observations struct {
	root   string
	parks  posted.ParkLocator
	logger *slog.Logger
	stats  ObservationStats
}

// NewObservations creates a source rooted at path. Timestamps without an
// offset are read in the entity's park timezone; parks may be nil, in which
// case they are read as UTC.
func NewObservations(path string, parks posted.ParkLocator, logger *slog.Logger) *Observations {
	return &Observations{root: path, parks: parks, logger: logger}
}

// Stats returns the counts from the last Stream call.
func (o *Observations) Stats() ObservationStats { return o.stats }

// Stream calls fn for each readable observation in lexical file order. Rows
// that fail to parse are skipped and counted. An error from fn stops the walk.
func (o *Observations) Stream(ctx context.Context, fn func(domain.Observation) error) error {
	o.stats = ObservationStats{}
	err := filepath.WalkDir(o.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o.stats.Files++
		return o.streamFile(ctx, path, fn)
	})
	if err != nil {
		return fmt.Errorf("stream observations from %s: %w", o.root, err)
	}
	if o.stats.Skipped > 0 {
		o.logger.Warn("skipped unparseable observation rows",
			"root", o.root, "skipped", o.stats.Skipped, "rows", o.stats.Rows)
	}
	return nil
}

func (o *Observations) streamFile(ctx context.Context, path string, fn func(domain.Observation) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open observations: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read observations header %s: %w", path, err)
	}
	idx, err := domain.CanonicalHeader(header, domain.ObservationColumnAliases,
		"entity_code", "observed_at", "wait_time_type", "wait_time_minutes")
	if err != nil {
		return fmt.Errorf("observations header %s: %w", path, err)
	}

	for n := 0; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				o.stats.Skipped++
				continue
			}
			return fmt.Errorf("read observations %s: %w", path, err)
		}
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		o.stats.Rows++

		obs, err := o.parseRow(rec, idx)
		if err != nil {
			o.stats.Skipped++
			o.logger.Debug("skipping observation row", "file", path, "error", err)
			continue
		}
		if err := fn(obs); err != nil {
			return err
		}
	}
}

func (o *Observations) parseRow(rec []string, idx map[string]int) (domain.Observation, error) {
	code := strings.ToUpper(domain.Field(rec, idx, "entity_code"))
	if code == "" {
		return domain.Observation{}, fmt.Errorf("empty entity_code: %w", domain.ErrMalformedRow)
	}
	observedAt, err := domain.ParseTimestamp(domain.Field(rec, idx, "observed_at"), o.location(code))
	if err != nil {
		return domain.Observation{}, err
	}
	minutes, err := strconv.ParseFloat(domain.Field(rec, idx, "wait_time_minutes"), 64)
	if err != nil {
		return domain.Observation{}, &domain.ParseError{Kind: "wait minutes", Value: domain.Field(rec, idx, "wait_time_minutes")}
	}
	return domain.Observation{
		EntityCode:  code,
		ObservedAt:  observedAt,
		WaitType:    domain.WaitType(strings.ToUpper(domain.Field(rec, idx, "wait_time_type"))),
		WaitMinutes: minutes,
	}, nil
}

func (o *Observations) location(entityCode string) *time.Location {
	if o.parks == nil {
		return time.UTC
	}
	park, ok := o.parks.ParkForEntity(entityCode)
	if !ok {
		return time.UTC
	}
	return o.parks.Location(park)
}
