package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// ReadHoursFile reads an official hours feed export. Rows that fail to parse
// are dropped and logged; a missing published_at column leaves PublishedAt
// zero so the version is stamped at apply time.
func ReadHoursFile(path string, logger *slog.Logger) ([]domain.HoursUpdate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hours feed: %w", err)
	}
	defer f.Close()
	return ReadHours(f, logger)
}

// ReadHours reads an hours feed from r.
func ReadHours(r io.Reader, logger *slog.Logger) ([]domain.HoursUpdate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hours feed header: %w", err)
	}
	idx, err := domain.CanonicalHeader(header, domain.HoursColumnAliases,
		"park_date", "park_code", "opening_time", "closing_time")
	if err != nil {
		return nil, fmt.Errorf("hours feed header: %w", err)
	}

	var (
		out     []domain.HoursUpdate
		dropped int
		line    = 1
	)
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read hours feed row: %w", err)
		}
		u, err := parseHoursRow(rec, idx)
		if err != nil {
			dropped++
			logger.Warn("dropping hours feed row", "line", line, "error", err)
			continue
		}
		out = append(out, u)
	}
	if dropped > 0 {
		logger.Warn("hours feed read with dropped rows", "kept", len(out), "dropped", dropped)
	}
	return out, nil
}

func parseHoursRow(rec []string, idx map[string]int) (domain.HoursUpdate, error) {
	date, err := domain.ParseDate(domain.Field(rec, idx, "park_date"))
	if err != nil {
		return domain.HoursUpdate{}, err
	}
	park := domain.Field(rec, idx, "park_code")
	if park == "" {
		return domain.HoursUpdate{}, fmt.Errorf("empty park_code: %w", domain.ErrMalformedRow)
	}
	emhMorning, err := domain.ParseBool(domain.Field(rec, idx, "emh_morning"))
	if err != nil {
		return domain.HoursUpdate{}, err
	}
	emhEvening, err := domain.ParseBool(domain.Field(rec, idx, "emh_evening"))
	if err != nil {
		return domain.HoursUpdate{}, err
	}

	var published time.Time
	if s := domain.Field(rec, idx, "published_at"); s != "" {
		if published, err = domain.ParseTimestamp(s, time.UTC); err != nil {
			return domain.HoursUpdate{}, err
		}
	}

	return domain.HoursUpdate{
		Hours: domain.OfficialHours{
			ParkDate:    date,
			ParkCode:    park,
			OpeningTime: domain.Field(rec, idx, "opening_time"),
			ClosingTime: domain.Field(rec, idx, "closing_time"),
			EMHMorning:  emhMorning,
			EMHEvening:  emhEvening,
			Source:      domain.SourceSync,
		},
		PublishedAt: published.UTC(),
	}, nil
}
