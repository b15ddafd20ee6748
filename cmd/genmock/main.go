// Command genmock writes a deterministic fixture data set: a park registry,
// an hours feed export, a cohort table, an entity index and posted wait
// observations. The same seed and base date always produce the same files.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 180 -seed 7
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/entity"
	"github.com/couchcryptid/park-waits-etl/internal/parks"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

var mockParks = []parks.Park{
	{Code: "MK", Name: "Magic Kingdom", Timezone: "America/New_York"},
	{Code: "EP", Name: "Epcot", Timezone: "America/New_York"},
	{Code: "HS", Name: "Hollywood Studios", Timezone: "America/New_York"},
	{Code: "AK", Name: "Animal Kingdom", Timezone: "America/New_York"},
}

type options struct {
	out       string
	base      time.Time
	days      int
	horizon   int
	entities  int
	seed      uint64
	revisions float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	base := flag.String("base", "2026-01-01", "last park date with observations")
	days := flag.Int("days", 180, "days of history before -base")
	horizon := flag.Int("horizon", 120, "days of published hours after -base")
	entities := flag.Int("entities", 6, "entities per park")
	seed := flag.Uint64("seed", 7, "random seed")
	revisions := flag.Float64("revisions", 0.1, "share of park days whose hours are revised")
	flag.Parse()

	baseDate, err := domain.ParseDate(*base)
	if err != nil {
		return fmt.Errorf("parse -base: %w", err)
	}
	if *days <= 0 || *entities <= 0 || *horizon < 0 {
		flag.Usage()
		return fmt.Errorf("-days and -entities must be positive, -horizon non-negative")
	}
	opts := options{
		out:       *out,
		base:      baseDate,
		days:      *days,
		horizon:   *horizon,
		entities:  *entities,
		seed:      *seed,
		revisions: *revisions,
	}

	// Fixed clock so published_at stamps are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.Add(6 * time.Hour)))
	defer domain.SetClock(nil)

	g := &generator{opts: opts, rng: rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"park registry", g.writeRegistry},
		{"cohort table", g.writeCohorts},
		{"hours feed", g.writeHoursFeed},
		{"entity index", g.writeEntityIndex},
		{"observations", g.writeObservations},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("write %s: %w", s.name, err)
		}
	}
	log.Printf("wrote fixtures to %s: %d hours rows, %d observations", opts.out, g.hoursRows, g.observations)
	return nil
}

type generator struct {
	opts         options
	rng          *rand.Rand
	hoursRows    int
	observations int
}

func (g *generator) path(parts ...string) string {
	return filepath.Join(append([]string{g.opts.out}, parts...)...)
}

func (g *generator) first() time.Time {
	return g.opts.base.AddDate(0, 0, -g.opts.days)
}

func (g *generator) writeRegistry() error {
	data, err := yaml.Marshal(struct {
		Parks []parks.Park `yaml:"parks"`
	}{mockParks})
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(g.path("config", "parks.yaml"), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// cohortFor buckets a day by season and weekend, which is the shape the
// production date-group table has.
func cohortFor(d time.Time) string {
	season := "VALUE"
	switch d.Month() {
	case time.June, time.July, time.August:
		season = "SUMMER"
	case time.December:
		season = "HOLIDAY"
	case time.March, time.April:
		season = "SPRING"
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return season + "_WKND"
	}
	return season + "_WKDY"
}

func (g *generator) writeCohorts() error {
	return writeCSV(g.path("dimensions", "dategroupid.csv"), []string{"park_date", "dategroupid"}, func(cw *csv.Writer) error {
		// Cover a year past the horizon so imputation finds cohorts.
		last := g.opts.base.AddDate(0, 0, g.opts.horizon+365)
		for d := g.first(); !d.After(last); d = d.AddDate(0, 0, 1) {
			if err := cw.Write([]string{d.Format(domain.DateLayout), cohortFor(d)}); err != nil {
				return err
			}
		}
		return nil
	})
}

// scheduledHours returns a park's nominal hours for a day.
func scheduledHours(park string, d time.Time) (open, closing int, emhAM, emhPM bool) {
	open, closing = 9, 21
	switch park {
	case "MK":
		closing = 22
	case "AK":
		open, closing = 8, 19
	}
	switch d.Month() {
	case time.June, time.July, time.August, time.December:
		closing++
	}
	if wd := d.Weekday(); wd == time.Friday || wd == time.Saturday {
		closing++
	}
	emhAM = d.Weekday() == time.Tuesday || d.Weekday() == time.Thursday
	emhPM = park == "MK" && d.Weekday() == time.Saturday
	return open, closing, emhAM, emhPM
}

func clock(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

func (g *generator) writeHoursFeed() error {
	header := []string{"park_date", "park_code", "opening_time", "closing_time", "emh_morning", "emh_evening", "published_at"}
	now := domain.Now()
	last := g.opts.base.AddDate(0, 0, g.opts.horizon)
	return writeCSV(g.path("feeds", "park_hours.csv"), header, func(cw *csv.Writer) error {
		for d := g.first(); !d.After(last); d = d.AddDate(0, 0, 1) {
			for _, p := range mockParks {
				open, closing, am, pm := scheduledHours(p.Code, d)
				published := d.AddDate(0, 0, -60).Add(12 * time.Hour)
				if published.After(now) {
					published = now
				}
				row := []string{d.Format(domain.DateLayout), p.Code, clock(open), clock(closing),
					strconv.FormatBool(am), strconv.FormatBool(pm), published.Format(time.RFC3339)}
				if err := cw.Write(row); err != nil {
					return err
				}
				g.hoursRows++

				// A later revision extends closing by an hour.
				if g.rng.Float64() >= g.opts.revisions {
					continue
				}
				revised := d.AddDate(0, 0, -10).Add(12 * time.Hour)
				if revised.After(now) || !revised.After(published) {
					continue
				}
				row[3] = clock(closing + 1)
				row[6] = revised.Format(time.RFC3339)
				if err := cw.Write(row); err != nil {
					return err
				}
				g.hoursRows++
			}
		}
		return nil
	})
}

func entityCode(park string, i int) string {
	return fmt.Sprintf("%s%02d", park, i+1)
}

func (g *generator) writeEntityIndex() error {
	path := g.path("dimensions", "entities.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	ctx := context.Background()
	ix, err := entity.Open(ctx, path)
	if err != nil {
		return err
	}
	defer ix.Close()
	for _, p := range mockParks {
		for i := range g.opts.entities {
			e := entity.Entity{Code: entityCode(p.Code, i), ParkCode: p.Code, Name: fmt.Sprintf("%s attraction %d", p.Name, i+1)}
			if err := ix.Put(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeObservations writes one file per park with hourly posted waits and an
// occasional actual wait. Timestamps are park-local without an offset.
func (g *generator) writeObservations() error {
	header := []string{"entity_code", "observed_at", "wait_time_type", "wait_time_minutes"}
	for _, p := range mockParks {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return err
		}
		path := g.path("facts", p.Code, "observations.csv")
		err = writeCSV(path, header, func(cw *csv.Writer) error {
			for d := g.first(); d.Before(g.opts.base); d = d.AddDate(0, 0, 1) {
				open, closing, _, _ := scheduledHours(p.Code, d)
				busy := 1.0
				if c := cohortFor(d); c[len(c)-4:] == "WKND" {
					busy = 1.4
				}
				for i := range g.opts.entities {
					popularity := 10 + 8*float64(i)
					for h := open; h < closing; h++ {
						// Waits peak early afternoon.
						shape := 1 - float64((h-14)*(h-14))/40
						if shape < 0.2 {
							shape = 0.2
						}
						wait := popularity*busy*shape + g.rng.NormFloat64()*5
						posted := 5 * int(wait/5+0.5)
						if posted < 0 {
							posted = 0
						}
						minute := g.rng.IntN(60)
						at := time.Date(d.Year(), d.Month(), d.Day(), h, minute, 0, 0, loc)
						if err := g.writeObservation(cw, entityCode(p.Code, i), at, domain.WaitPosted, posted); err != nil {
							return err
						}
						if g.rng.IntN(10) == 0 {
							actual := int(float64(posted) * (0.6 + 0.3*g.rng.Float64()))
							if err := g.writeObservation(cw, entityCode(p.Code, i), at.Add(time.Minute), domain.WaitActual, actual); err != nil {
								return err
							}
						}
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) writeObservation(cw *csv.Writer, code string, at time.Time, wt domain.WaitType, minutes int) error {
	g.observations++
	return cw.Write([]string{code, at.Format("2006-01-02 15:04:05"), string(wt), strconv.Itoa(minutes)})
}

func writeCSV(path string, header []string, rows func(*csv.Writer) error) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := rows(cw); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}
