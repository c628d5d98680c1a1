// Package uplift computes Qini and cumulative-gain curves for ranking rows by
// predicted treatment benefit, and the area scores derived from them.
package uplift

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"causalscore/internal/errors"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultSeed seeds the random-targeting baseline
	DefaultSeed = 42

	// randomOrderings is how many random rankings make up the baseline
	randomOrderings = 10
)

// Curves holds a model curve and its random-targeting baseline. Index k is
// the value after targeting the top k rows; index 0 is always 0.
type Curves struct {
	Model  []float64
	Random []float64
}

type options struct {
	seed      uint64
	normalize bool
}

// Option configures curve construction
type Option func(*options)

// WithSeed seeds the random baseline orderings
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithNormalize divides each curve by the absolute value of its last point
func WithNormalize(normalize bool) Option {
	return func(o *options) { o.normalize = normalize }
}

type curveKind int

const (
	qiniCurve curveKind = iota
	liftCurve
)

// Qini returns the Qini curves: treated outcome gained over what the control
// rate predicts for the same number of treated rows
func Qini(y, w, score []float64, opts ...Option) (Curves, error) {
	o := options{seed: DefaultSeed}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := build(qiniCurve, y, w, score, o.seed)
	if err != nil {
		return Curves{}, err
	}
	if o.normalize {
		c = c.normalized()
	}
	return c, nil
}

// CumGain returns the cumulative gain curves: uplift among the top k rows
// multiplied by k
func CumGain(y, w, score []float64, opts ...Option) (Curves, error) {
	o := options{seed: DefaultSeed}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := build(liftCurve, y, w, score, o.seed)
	if err != nil {
		return Curves{}, err
	}
	for k := range c.Model {
		c.Model[k] *= float64(k)
		c.Random[k] *= float64(k)
	}
	if o.normalize {
		c = c.normalized()
	}
	return c, nil
}

// QiniScore is the mean gap between the normalised model Qini curve and the
// random baseline
func QiniScore(y, w, score []float64, opts ...Option) (float64, error) {
	c, err := Qini(y, w, score, append([]Option{WithNormalize(true)}, opts...)...)
	if err != nil {
		return 0, err
	}
	return (floats.Sum(c.Model) - floats.Sum(c.Random)) / float64(len(c.Model)), nil
}

// AUUCScore is the mean of the normalised cumulative gain curve
func AUUCScore(y, w, score []float64, opts ...Option) (float64, error) {
	c, err := CumGain(y, w, score, append([]Option{WithNormalize(true)}, opts...)...)
	if err != nil {
		return 0, err
	}
	return floats.Sum(c.Model) / float64(len(c.Model)), nil
}

func build(kind curveKind, y, w, score []float64, seed uint64) (Curves, error) {
	n := len(y)
	if len(w) != n || len(score) != n {
		return Curves{}, errors.InvalidInput(fmt.Sprintf("uplift inputs differ in length: y=%d w=%d score=%d", n, len(w), len(score)))
	}
	if n == 0 {
		return Curves{}, errors.DegenerateInput("uplift curves need at least one row")
	}

	model := curve(kind, y, w, descendingOrder(score))

	rng := rand.New(rand.NewPCG(seed, seed))
	random := make([]float64, n+1)
	noise := make([]float64, n)
	for r := 0; r < randomOrderings; r++ {
		for i := range noise {
			noise[i] = rng.Float64()
		}
		floats.Add(random, curve(kind, y, w, descendingOrder(noise)))
	}
	floats.Scale(1/float64(randomOrderings), random)

	return Curves{Model: model, Random: random}, nil
}

// curve accumulates outcomes in the given row order. Points where one arm has
// no rows yet are undefined and filled by linear interpolation.
func curve(kind curveKind, y, w []float64, order []int) []float64 {
	out := make([]float64, len(order)+1)
	var cumTr, cumYTr, cumYCt float64
	for k, i := range order {
		cumTr += w[i]
		cumYTr += y[i] * w[i]
		cumYCt += y[i] * (1 - w[i])
		cumCt := float64(k+1) - cumTr

		switch kind {
		case qiniCurve:
			out[k+1] = cumYTr - cumYCt*cumTr/cumCt
		case liftCurve:
			out[k+1] = cumYTr/cumTr - cumYCt/cumCt
		}
	}
	interpolateNaN(out)
	return out
}

// interpolateNaN fills NaN gaps linearly between their neighbours and carries
// the last defined value forward over a trailing gap. out[0] is defined.
func interpolateNaN(out []float64) {
	last := 0
	for k := 1; k < len(out); k++ {
		if math.IsNaN(out[k]) {
			continue
		}
		if k-last > 1 {
			step := (out[k] - out[last]) / float64(k-last)
			for g := last + 1; g < k; g++ {
				out[g] = out[last] + step*float64(g-last)
			}
		}
		last = k
	}
	for g := last + 1; g < len(out); g++ {
		out[g] = out[last]
	}
}

func descendingOrder(score []float64) []int {
	idx := make([]int, len(score))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] > score[idx[b]] })
	return idx
}

func (c Curves) normalized() Curves {
	scale := func(v []float64) []float64 {
		out := append([]float64(nil), v...)
		floats.Scale(1/math.Abs(v[len(v)-1]), out)
		return out
	}
	return Curves{Model: scale(c.Model), Random: scale(c.Random)}
}
