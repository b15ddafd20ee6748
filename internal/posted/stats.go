package posted

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WeightedMedian returns the weighted median of values using midpoint
// interpolation: each value sits at the centre of its weight on the
// cumulative scale, and the 0.5 point is interpolated linearly between
// neighbours. Non-positive weights are ignored. A nil weights slice means
// equal weights, which yields the ordinary median. Returns false when no
// value carries weight.
func WeightedMedian(values, weights []float64) (float64, bool) {
	type pair struct{ v, w float64 }
	pairs := make([]pair, 0, len(values))
	total := 0.0
	for i, v := range values {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		pairs = append(pairs, pair{v, w})
		total += w
	}
	if len(pairs) == 0 {
		return 0, false
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	cum := 0.0
	prevPos, prevVal := 0.0, pairs[0].v
	for i, p := range pairs {
		pos := (cum + p.w/2) / total
		cum += p.w
		if pos >= 0.5 {
			if i == 0 || pos == prevPos {
				return p.v, true
			}
			frac := (0.5 - prevPos) / (pos - prevPos)
			return prevVal + frac*(p.v-prevVal), true
		}
		prevPos, prevVal = pos, p.v
	}
	return pairs[len(pairs)-1].v, true
}

// WeightedMean returns the weighted arithmetic mean; nil weights means equal
// weights.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, weights)
}
