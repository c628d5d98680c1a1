// Package energy implements energy-distance two-sample statistics over the
// rows of dense matrices.
package energy

import (
	"fmt"

	"causalscore/domain/core"
	"causalscore/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PairwiseDistances returns the len(a)×len(b) matrix of Euclidean distances
// between the rows of a and b
func PairwiseDistances(a, b mat.Matrix) *mat.Dense {
	ra, ca := a.Dims()
	rb, _ := b.Dims()
	rowsB := make([][]float64, rb)
	for j := range rowsB {
		rowsB[j] = mat.Row(nil, j, b)
	}

	out := mat.NewDense(ra, rb, nil)
	rowA := make([]float64, ca)
	for i := 0; i < ra; i++ {
		mat.Row(rowA, i, a)
		for j := 0; j < rb; j++ {
			out.Set(i, j, floats.Distance(rowA, rowsB[j], 2))
		}
	}
	return out
}

// Distance is the V-statistic energy distance
//
//	2·E|X−Y| − E|X−X'| − E|Y−Y'|
//
// between the rows of x and y. It is zero when the samples are identical.
func Distance(x, y *mat.Dense) (float64, error) {
	if err := checkSamples(x, y); err != nil {
		return 0, err
	}
	return 2*meanOf(PairwiseDistances(x, y)) -
		meanOf(PairwiseDistances(x, x)) -
		meanOf(PairwiseDistances(y, y)), nil
}

// WeightedDistance is the energy distance with row weights. Each block of
// pairwise distances is weighted by the outer product of its row weights and
// normalised by the mean of those joint weights.
func WeightedDistance(x, y *mat.Dense, wx, wy []float64) (float64, error) {
	if err := checkSamples(x, y); err != nil {
		return 0, err
	}
	rx, _ := x.Dims()
	ry, _ := y.Dims()
	if len(wx) != rx {
		return 0, core.NewRowMismatchError("treated weights", rx, len(wx))
	}
	if len(wy) != ry {
		return 0, core.NewRowMismatchError("control weights", ry, len(wy))
	}

	vx := mat.NewVecDense(rx, append([]float64(nil), wx...))
	vy := mat.NewVecDense(ry, append([]float64(nil), wy...))
	sx, sy := floats.Sum(wx), floats.Sum(wy)
	if sx == 0 || sy == 0 {
		return 0, errors.DegenerateInput(fmt.Sprintf("group weights sum to zero (treated %g, control %g)", sx, sy))
	}

	xy := mat.Inner(vx, PairwiseDistances(x, y), vy) / (sx * sy)
	xx := mat.Inner(vx, PairwiseDistances(x, x), vx) / (sx * sx)
	yy := mat.Inner(vy, PairwiseDistances(y, y), vy) / (sy * sy)
	return 2*xy - xx - yy, nil
}

func checkSamples(x, y *mat.Dense) error {
	if x == nil || y == nil {
		return errors.DegenerateInput("energy distance needs two non-empty samples")
	}
	_, cx := x.Dims()
	_, cy := y.Dims()
	if cx != cy {
		return errors.InvalidInput(fmt.Sprintf("samples have %d and %d columns", cx, cy))
	}
	return nil
}

func meanOf(m *mat.Dense) float64 {
	r, c := m.Dims()
	return mat.Sum(m) / float64(r*c)
}
