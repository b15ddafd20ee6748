package accuracy

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Group is the error summary for one bucket of one dimension.
type Group struct {
	Key       string
	Count     int
	MAE       float64
	ExactRate float64 // hours only
	MAPE      float64 // over rows with a defined percentage error
}

// Dimension is an ordered list of groups for one breakdown.
type Dimension struct {
	Name   string
	Groups []Group
}

// Summary is the grouped view of a report.
type Summary struct {
	GeneratedAt time.Time
	Hours       []Dimension
	Posted      []Dimension
	Unpredicted int
}

// Summarize groups hours and posted comparisons by every reporting dimension.
// Bucketed dimensions list every bucket in boundary order, empty or not.
func Summarize(hrs []HoursComparison, pst []PostedComparison, ps PostedStats) Summary {
	s := Summary{GeneratedAt: domain.Now(), Unpredicted: ps.Unpredicted}

	hoursDims := []struct {
		name  string
		order []string
		key   func(HoursComparison) string
	}{
		{"confidence", append(ConfidenceBins.Labels(), "none"), func(c HoursComparison) string { return c.ConfidenceBucket }},
		{"days_ahead", DaysAheadBins.Labels(), func(c HoursComparison) string { return c.DaysAheadBucket }},
		{"park", nil, func(c HoursComparison) string { return c.ParkCode }},
		{"cohort", nil, func(c HoursComparison) string { return c.Cohort }},
	}
	for _, d := range hoursDims {
		buckets := make(map[string][]HoursComparison)
		for _, c := range hrs {
			k := d.key(c)
			buckets[k] = append(buckets[k], c)
		}
		dim := Dimension{Name: d.name}
		for _, k := range orderedKeys(d.order, buckets) {
			dim.Groups = append(dim.Groups, hoursGroup(k, buckets[k]))
		}
		s.Hours = append(s.Hours, dim)
	}

	postedDims := []struct {
		name  string
		order []string
		key   func(PostedComparison) string
	}{
		{"level", nil, func(c PostedComparison) string { return strconv.Itoa(int(c.Level)) + "_" + c.Level.String() }},
		{"sample_size", SampleSizeBins.Labels(), func(c PostedComparison) string { return c.SampleSizeBucket }},
		{"recency", RecencyBins.Labels(), func(c PostedComparison) string { return c.RecencyBucket }},
		{"cohort", nil, func(c PostedComparison) string { return c.Cohort }},
		{"park", nil, func(c PostedComparison) string { return c.ParkCode }},
		{"hour", nil, func(c PostedComparison) string { return fmt.Sprintf("%02d", c.Hour) }},
	}
	for _, d := range postedDims {
		buckets := make(map[string][]PostedComparison)
		for _, c := range pst {
			k := d.key(c)
			buckets[k] = append(buckets[k], c)
		}
		dim := Dimension{Name: d.name}
		for _, k := range orderedKeys(d.order, buckets) {
			dim.Groups = append(dim.Groups, postedGroup(k, buckets[k]))
		}
		s.Posted = append(s.Posted, dim)
	}
	return s
}

// orderedKeys returns the fixed order followed by any other keys of m, sorted.
func orderedKeys[T any](order []string, m map[string][]T) []string {
	fixed := make(map[string]bool, len(order))
	for _, k := range order {
		fixed[k] = true
	}
	var extra []string
	for k := range m {
		if !fixed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(append([]string(nil), order...), extra...)
}

func hoursGroup(key string, rows []HoursComparison) Group {
	g := Group{Key: key, Count: len(rows)}
	if len(rows) == 0 {
		return g
	}
	errs := make([]float64, len(rows))
	var pcts []float64
	exact := 0
	for i, r := range rows {
		errs[i] = r.MeanError()
		if r.ExactMatch {
			exact++
		}
		if r.PctError != nil {
			pcts = append(pcts, *r.PctError)
		}
	}
	g.MAE = stat.Mean(errs, nil)
	g.ExactRate = float64(exact) / float64(len(rows))
	if len(pcts) > 0 {
		g.MAPE = stat.Mean(pcts, nil)
	}
	return g
}

func postedGroup(key string, rows []PostedComparison) Group {
	g := Group{Key: key, Count: len(rows)}
	if len(rows) == 0 {
		return g
	}
	errs := make([]float64, len(rows))
	var pcts []float64
	for i, r := range rows {
		errs[i] = r.AbsError
		if r.PctError != nil {
			pcts = append(pcts, *r.PctError)
		}
	}
	g.MAE = stat.Mean(errs, nil)
	if len(pcts) > 0 {
		g.MAPE = stat.Mean(pcts, nil)
	}
	return g
}

// WriteSummary renders s as aligned text tables.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "accuracy report generated %s\n", s.GeneratedAt.Format(time.RFC3339))

	for _, d := range s.Hours {
		fmt.Fprintf(tw, "\nhours by %s\n", d.Name)
		fmt.Fprintln(tw, "bucket\tn\tmae_minutes\tmape_pct\texact_rate\t")
		for _, g := range d.Groups {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.3f\t\n", g.Key, g.Count, g.MAE, g.MAPE, g.ExactRate)
		}
	}
	for _, d := range s.Posted {
		fmt.Fprintf(tw, "\nposted by %s\n", d.Name)
		fmt.Fprintln(tw, "bucket\tn\tmae_minutes\tmape_pct\t")
		for _, g := range d.Groups {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t\n", g.Key, g.Count, g.MAE, g.MAPE)
		}
	}
	fmt.Fprintf(tw, "\nposted observations without prediction: %d\n", s.Unpredicted)
	return tw.Flush()
}

var hoursColumns = []string{
	"park_code", "park_date", "cohort", "predicted_version_id", "official_version_id",
	"predicted_at", "days_ahead", "days_ahead_bucket", "confidence", "confidence_bucket",
	"opening_error_minutes", "closing_error_minutes", "exact_match", "pct_error",
}

var postedColumns = []string{
	"entity_code", "park_code", "park_date", "hour", "observed", "predicted",
	"abs_error", "pct_error", "level", "sample_size", "sample_size_bucket",
	"cohort", "recency_weight", "recency_bucket",
}

// WriteHoursRows writes the flat hours comparison table to path atomically.
func WriteHoursRows(path string, rows []HoursComparison) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(hoursColumns); err != nil {
			return err
		}
		for _, r := range rows {
			conf := ""
			if r.Confidence != nil {
				conf = formatFloat(*r.Confidence)
			}
			pct := ""
			if r.PctError != nil {
				pct = formatFloat(*r.PctError)
			}
			if err := cw.Write([]string{
				r.ParkCode,
				r.ParkDate.Format(domain.DateLayout),
				r.Cohort,
				strconv.FormatInt(r.PredictedID, 10),
				strconv.FormatInt(r.OfficialID, 10),
				r.PredictedAt.UTC().Format(time.RFC3339),
				strconv.Itoa(r.DaysAhead),
				r.DaysAheadBucket,
				conf,
				r.ConfidenceBucket,
				strconv.Itoa(r.OpeningError),
				strconv.Itoa(r.ClosingError),
				strconv.FormatBool(r.ExactMatch),
				pct,
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WritePostedRows writes the flat posted comparison table to path atomically.
func WritePostedRows(path string, rows []PostedComparison) error {
	return atomicfile.WriteFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(postedColumns); err != nil {
			return err
		}
		for _, r := range rows {
			pct := ""
			if r.PctError != nil {
				pct = formatFloat(*r.PctError)
			}
			if err := cw.Write([]string{
				r.EntityCode,
				r.ParkCode,
				r.ParkDate.Format(domain.DateLayout),
				strconv.Itoa(r.Hour),
				formatFloat(r.Observed),
				formatFloat(r.Predicted),
				formatFloat(r.AbsError),
				pct,
				r.Level.String(),
				strconv.Itoa(r.SampleSize),
				r.SampleSizeBucket,
				r.Cohort,
				formatFloat(r.RecencyWeight),
				r.RecencyBucket,
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
