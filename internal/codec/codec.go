// Package codec estimates the conditional dependence coefficient (CODEC) of
// Azadkia and Chatterjee: how much a response Y depends on predictors Z given
// conditioning predictors X, from nearest-neighbour graphs and ranks of Y.
package codec

import (
	"math"
	"math/rand/v2"
	"sort"

	"causalscore/domain/core"
	"causalscore/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// DefaultSeed seeds the tie-breaking source when no generator is supplied
const DefaultSeed = 42

type options struct {
	rng           *rand.Rand
	dropNonFinite bool
}

// Option configures Coefficient
type Option func(*options)

// WithRand sets the random source used to break nearest-neighbour ties
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithDropNonFinite controls whether rows holding NaN or ±Inf are removed
// before estimation (default true)
func WithDropNonFinite(drop bool) Option {
	return func(o *options) { o.dropNonFinite = drop }
}

// Coefficient estimates T(Y, Z | X). x may be nil for the unconditional
// coefficient T(Y, Z). The result is near 0 when Y is independent of Z given
// X and near 1 when Y is a measurable function of Z given X.
func Coefficient(y []float64, z, x *mat.Dense, opts ...Option) (float64, error) {
	o := options{dropNonFinite: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(DefaultSeed, DefaultSeed))
	}

	if z == nil {
		return 0, errors.SetupError("codec needs at least one predictor column in Z", core.ErrInsufficientData)
	}
	if r, _ := z.Dims(); r != len(y) {
		return 0, errors.SetupError("codec input rows differ", core.NewRowMismatchError("Z", len(y), r))
	}
	if x != nil {
		if r, _ := x.Dims(); r != len(y) {
			return 0, errors.SetupError("codec input rows differ", core.NewRowMismatchError("X", len(y), r))
		}
	}

	if o.dropNonFinite {
		y, z, x = finiteRows(y, z, x)
	}
	if len(y) < 2 {
		return 0, errors.SetupError("codec needs at least two complete rows", core.ErrInsufficientData)
	}

	if x == nil {
		return unconditional(y, z, o.rng), nil
	}
	return conditional(y, z, x, o.rng), nil
}

// conditional is T = Q / S with
//
//	Q = Σ [min(R_i, R_M(i)) − min(R_i, R_N(i))] / n²
//	S = Σ [R_i − min(R_i, R_N(i))] / n²
//
// where N(i) is the nearest neighbour of i in X and M(i) in (X, Z).
func conditional(y []float64, z, x *mat.Dense, rng *rand.Rand) float64 {
	n := len(y)
	var w mat.Dense
	w.Augment(x, z)

	nnX := nearestNeighbours(x, rng)
	nnW := nearestNeighbours(&w, rng)
	r := maxRanks(y)

	var q, s float64
	for i := 0; i < n; i++ {
		minX := math.Min(r[i], r[nnX[i]])
		q += math.Min(r[i], r[nnW[i]]) - minX
		s += r[i] - minX
	}
	nn := float64(n) * float64(n)
	q /= nn
	s /= nn

	if s == 0 {
		// Y is a function of X alone, so dependence is vacuously total
		return 1
	}
	return q / s
}

// unconditional is T = Σ [n·min(R_i, R_M(i)) − L_i²] / Σ L_i(n − L_i)
// with M(i) the nearest neighbour of i in Z and L_i = #{j : Y_j ≥ Y_i}.
func unconditional(y []float64, z *mat.Dense, rng *rand.Rand) float64 {
	n := float64(len(y))
	nnZ := nearestNeighbours(z, rng)
	r := maxRanks(y)
	l := upperCounts(y)

	var num, den float64
	for i := range y {
		num += n*math.Min(r[i], r[nnZ[i]]) - l[i]*l[i]
		den += l[i] * (n - l[i])
	}
	if den == 0 {
		return 1
	}
	return num / den
}

// maxRanks returns R_i = #{j : Y_j ≤ Y_i}
func maxRanks(y []float64) []float64 {
	order := argsort(y)
	ranks := make([]float64, len(y))
	for start := 0; start < len(order); {
		end := start
		for end+1 < len(order) && y[order[end+1]] == y[order[start]] {
			end++
		}
		for k := start; k <= end; k++ {
			ranks[order[k]] = float64(end + 1)
		}
		start = end + 1
	}
	return ranks
}

// upperCounts returns L_i = #{j : Y_j ≥ Y_i}
func upperCounts(y []float64) []float64 {
	order := argsort(y)
	counts := make([]float64, len(y))
	for start := 0; start < len(order); {
		end := start
		for end+1 < len(order) && y[order[end+1]] == y[order[start]] {
			end++
		}
		for k := start; k <= end; k++ {
			counts[order[k]] = float64(len(y) - start)
		}
		start = end + 1
	}
	return counts
}

func argsort(y []float64) []int {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return y[idx[a]] < y[idx[b]] })
	return idx
}

func finiteRows(y []float64, z, x *mat.Dense) ([]float64, *mat.Dense, *mat.Dense) {
	keep := make([]int, 0, len(y))
	for i, v := range y {
		if !finite(v) || !finiteRow(z, i) || (x != nil && !finiteRow(x, i)) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == len(y) {
		return y, z, x
	}

	outY := make([]float64, len(keep))
	for k, i := range keep {
		outY[k] = y[i]
	}
	return outY, selectRows(z, keep), selectRows(x, keep)
}

func selectRows(m *mat.Dense, keep []int) *mat.Dense {
	if m == nil || len(keep) == 0 {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(keep), c, nil)
	for k, i := range keep {
		out.SetRow(k, m.RawRowView(i))
	}
	return out
}

func finiteRow(m *mat.Dense, i int) bool {
	for _, v := range m.RawRowView(i) {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
