package frame

import (
	"sort"
)

// MaskIndex converts a boolean mask to the indices of its true entries
func MaskIndex(mask []bool) []int {
	idx := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return idx
}

// DistinctValues returns the sorted distinct values of x
func DistinctValues(x []float64) []float64 {
	seen := make(map[float64]bool, len(x))
	out := make([]float64, 0)
	for _, v := range x {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// Indicator maps each value to 1 when pred holds, else 0
func Indicator(x []float64, pred func(float64) bool) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if pred(v) {
			out[i] = 1
		}
	}
	return out
}
