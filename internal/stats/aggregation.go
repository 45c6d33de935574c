package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Median calculates the median value
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	// Create a copy to avoid modifying the original slice
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Min returns the minimum value
func Min(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Min(values)
}

// Max returns the maximum value
func Max(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Max(values)
}

// Quantile calculates the q-th quantile (0 <= q <= 1) by linear
// interpolation between closest ranks, index = q*(n-1).
// gonum's stat.Quantile offers Empirical and LinInterp (p = k/n) only,
// which disagree with this definition on small samples.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	index := q * (n - 1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// MissingRate returns the fraction of NaN entries
func MissingRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	missing := 0
	for _, v := range values {
		if math.IsNaN(v) {
			missing++
		}
	}
	return float64(missing) / float64(len(values))
}

// DropNaN returns the non-NaN entries
func DropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// ModeString returns the most frequent label; ties go to the
// alphabetically smallest label.
func ModeString(labels []string) string {
	freq := make(map[string]int, len(labels))
	for _, l := range labels {
		freq[l]++
	}

	var mode string
	maxFreq := 0
	for l, f := range freq {
		if f > maxFreq || (f == maxFreq && l < mode) {
			mode, maxFreq = l, f
		}
	}
	return mode
}
