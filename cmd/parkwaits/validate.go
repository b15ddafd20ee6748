package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/hours"
	"github.com/couchcryptid/park-waits-etl/internal/parks"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
	"github.com/spf13/cobra"
)

// errValidation marks a run where at least one phase failed.
var errValidation = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the persisted artifacts for integrity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, hstats, err := hours.Load(a.cfg.HoursTablePath, a.logger)
			if err != nil {
				return a.fail("load hours table", err)
			}
			rows, pstats, err := posted.Load(a.cfg.AggregatesPath, a.logger)
			if err != nil {
				return a.fail("load posted aggregates", err)
			}
			fallbacks, fstats, err := posted.LoadFallbacks(posted.FallbackPath(a.cfg.AggregatesPath), a.logger)
			if err != nil {
				return a.fail("load posted fallbacks", err)
			}
			reg, err := a.registry()
			if err != nil {
				return a.fail("load park registry", err)
			}

			phases := []*phase{
				validateHoursTable(table, hstats.Dropped),
				validateAggregates(rows, pstats.Dropped),
				validateFallbacks(rows, fallbacks, fstats.Dropped),
				validateParkCoverage(table, rows, reg),
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rows: %d hours versions, %d posted aggregates\n", table.Len(), len(rows))
			if !report(out, phases) {
				return a.fail("validate artifacts", errValidation)
			}
			return nil
		},
	}
}

// report prints the phase table and details; it returns true when all passed.
func report(w io.Writer, phases []*phase) bool {
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}

// validateHoursTable checks the append-only invariants per park day: at most
// one open official row, at most one predicted row, and no inverted windows.
func validateHoursTable(table *hours.Table, dropped int) *phase {
	p := &phase{name: "Hours table integrity"}
	if dropped > 0 {
		p.errorf("%d malformed rows dropped on load", dropped)
	}
	for _, k := range table.Keys() {
		open, predicted := 0, 0
		for _, v := range table.Versions(k.ParkDate, k.ParkCode) {
			switch v.VersionType {
			case domain.VersionOfficial:
				if v.ValidUntil == nil {
					open++
				} else if v.ValidUntil.Before(v.CreatedAt) {
					p.errorf("%s: version %d closes before it was created", k, v.VersionID)
				}
			case domain.VersionPredicted:
				predicted++
			}
			if v.ValidFrom != nil && v.ValidUntil != nil && v.ValidUntil.Before(*v.ValidFrom) {
				p.errorf("%s: version %d has an inverted validity window", k, v.VersionID)
			}
		}
		if open > 1 {
			p.errorf("%s: %d open official versions", k, open)
		}
		if predicted > 1 {
			p.errorf("%s: %d predicted versions", k, predicted)
		}
	}
	return p
}

// validateAggregates checks group-key uniqueness and date ranges.
func validateAggregates(rows []domain.PostedAggregateRow, dropped int) *phase {
	p := &phase{name: "Posted aggregate integrity"}
	if dropped > 0 {
		p.errorf("%d malformed rows dropped on load", dropped)
	}
	type key struct {
		entity, group string
		hour          int
	}
	seen := make(map[key]bool, len(rows))
	for _, r := range rows {
		k := key{r.EntityCode, r.DateGroupID, r.Hour}
		if seen[k] {
			p.errorf("duplicate group %s/%s/%02d", r.EntityCode, r.DateGroupID, r.Hour)
		}
		seen[k] = true
		if r.MaxParkDate.Before(r.MinParkDate) {
			p.errorf("%s/%s/%02d: max_park_date before min_park_date", r.EntityCode, r.DateGroupID, r.Hour)
		}
	}
	return p
}

// validateFallbacks checks that the pooled rows were built from the same
// observations as the exact rows: every entity's entity-level count equals the
// sum of its exact counts.
func validateFallbacks(rows []domain.PostedAggregateRow, fallbacks []posted.FallbackRow, dropped int) *phase {
	p := &phase{name: "Posted fallback consistency"}
	if dropped > 0 {
		p.errorf("%d malformed rows dropped on load", dropped)
	}
	exact := make(map[string]int)
	for _, r := range rows {
		exact[r.EntityCode] += r.PostedCount
	}
	pooled := make(map[string]int)
	for _, f := range fallbacks {
		if f.Level == posted.LevelEntity {
			pooled[f.Key] = f.PostedCount
		}
	}
	entities := make([]string, 0, len(exact))
	for e := range exact {
		entities = append(entities, e)
	}
	for e := range pooled {
		if _, ok := exact[e]; !ok {
			entities = append(entities, e)
		}
	}
	sort.Strings(entities)
	for _, e := range entities {
		if exact[e] != pooled[e] {
			p.errorf("entity %s: %d exact observations, %d pooled", e, exact[e], pooled[e])
		}
	}
	return p
}

// validateParkCoverage checks that every park and entity in the artifacts is
// known to the registry.
func validateParkCoverage(table *hours.Table, rows []domain.PostedAggregateRow, reg *parks.Registry) *phase {
	p := &phase{name: "Park registry coverage"}
	missing := make(map[string]bool)
	for _, k := range table.Keys() {
		if _, ok := reg.Park(k.ParkCode); !ok {
			missing[k.ParkCode] = true
		}
	}
	for park := range missing {
		p.errorf("park %s in hours table is not registered", park)
	}

	orphans := make(map[string]bool)
	for _, r := range rows {
		if _, ok := reg.ParkForEntity(r.EntityCode); !ok {
			orphans[r.EntityCode] = true
		}
	}
	codes := make([]string, 0, len(orphans))
	for c := range orphans {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		p.errorf("entity %s has no registered park prefix", c)
	}
	sort.Strings(p.errors)
	return p
}
