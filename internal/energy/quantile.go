package energy

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DefaultQuantiles is the number of reference quantiles used by
// QuantileTransformer when none is configured
const DefaultQuantiles = 200

// QuantileTransformer maps every column onto [0,1] through its empirical
// quantiles, making distances insensitive to per-feature scale
type QuantileTransformer struct {
	NQuantiles int
}

// FitTransform fits per-column quantiles on m and returns the transformed copy
func (q QuantileTransformer) FitTransform(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	nq := q.NQuantiles
	if nq <= 0 {
		nq = DefaultQuantiles
	}
	if nq > r {
		nq = r
	}

	refs := make([]float64, nq)
	for k := range refs {
		if nq > 1 {
			refs[k] = float64(k) / float64(nq-1)
		}
	}

	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)

		quantiles := make([]float64, nq)
		for k, p := range refs {
			quantiles[k] = linearQuantile(sorted, p)
		}
		for i, v := range col {
			out.Set(i, j, interpolate(v, quantiles, refs))
		}
	}
	return out
}

// interpolate maps v through the piecewise-linear curve quantiles → refs.
// Values equal to a run of repeated quantiles land on the middle of the run.
func interpolate(v float64, quantiles, refs []float64) float64 {
	n := len(quantiles)
	if v < quantiles[0] {
		return refs[0]
	}
	if v > quantiles[n-1] {
		return refs[n-1]
	}

	lo := sort.SearchFloat64s(quantiles, v) // first index with quantiles[lo] >= v
	if quantiles[lo] == v {
		hi := lo
		for hi+1 < n && quantiles[hi+1] == v {
			hi++
		}
		return 0.5 * (refs[lo] + refs[hi])
	}
	left := lo - 1
	t := (v - quantiles[left]) / (quantiles[lo] - quantiles[left])
	return refs[left] + t*(refs[lo]-refs[left])
}

// linearQuantile interpolates between order statistics at position p·(n−1),
// so the 0, 1/(n−1), ... quantiles of n points are the points themselves.
func linearQuantile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := int(h)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
