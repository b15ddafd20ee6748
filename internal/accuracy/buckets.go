// Package accuracy compares predictions against the truth that eventually
// arrived and reports error by bucket. The bucket boundaries are fixed so that
// reports stay comparable across runs.
package accuracy

import (
	"math"
	"strconv"
)

// Bins is an ordered set of bucket edges. Buckets are left-closed and
// right-open, except that a finite top edge is included in the last bucket.
type Bins struct {
	Name  string
	Edges []float64
}

var (
	// ConfidenceBins buckets predicted-hours confidence.
	ConfidenceBins = Bins{Name: "confidence", Edges: []float64{0, 0.5, 0.7, 0.9, 1.0}}
	// DaysAheadBins buckets how far ahead of the park day a prediction was made.
	DaysAheadBins = Bins{Name: "days_ahead", Edges: []float64{0, 30, 60, 90, 180, 365, math.Inf(1)}}
	// SampleSizeBins buckets the observation count behind a posted prediction.
	SampleSizeBins = Bins{Name: "sample_size", Edges: []float64{0, 10, 50, 100, 500, math.Inf(1)}}
	// RecencyBins buckets the mean recency weight of the observations behind a
	// posted prediction. 0.5 is data a year old on average.
	RecencyBins = Bins{Name: "recency", Edges: []float64{0, 0.5, 0.7, 0.9, 1.0}}
)

// Index returns the bucket holding v, or -1 when v is outside every bucket.
func (b Bins) Index(v float64) int {
	n := len(b.Edges) - 1
	if n < 1 || math.IsNaN(v) || v < b.Edges[0] {
		return -1
	}
	for i := 0; i < n; i++ {
		if v < b.Edges[i+1] {
			return i
		}
	}
	if v == b.Edges[n] && !math.IsInf(v, 1) {
		return n - 1
	}
	return -1
}

// Label formats bucket i, e.g. "[0.5,0.7)" or "[365,inf)".
func (b Bins) Label(i int) string {
	if i < 0 || i >= len(b.Edges)-1 {
		return "out_of_range"
	}
	lo, hi := b.Edges[i], b.Edges[i+1]
	closing := ")"
	if i == len(b.Edges)-2 && !math.IsInf(hi, 1) {
		closing = "]"
	}
	return "[" + formatEdge(lo) + "," + formatEdge(hi) + closing
}

// Labels returns every bucket label in order.
func (b Bins) Labels() []string {
	out := make([]string, 0, len(b.Edges)-1)
	for i := 0; i < len(b.Edges)-1; i++ {
		out = append(out, b.Label(i))
	}
	return out
}

// Of returns the label of the bucket holding v.
func (b Bins) Of(v float64) string {
	return b.Label(b.Index(v))
}

func formatEdge(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
