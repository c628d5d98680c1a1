package testkit

import (
	"fmt"

	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/mat"
)

// ConstantFitter fits a propensity model that predicts the same class
// probabilities for every row. Probabilities follow the sorted treatment
// levels seen at fit time.
type ConstantFitter struct {
	Probabilities []float64
}

var _ ports.PropensityFitter = ConstantFitter{}

// Fit ignores x and records the treatment levels
func (f ConstantFitter) Fit(x *mat.Dense, treatment []float64) (ports.PropensityModel, error) {
	classes := frame.DistinctValues(treatment)
	if len(classes) != len(f.Probabilities) {
		return nil, fmt.Errorf("constant fitter has %d probabilities for %d treatment levels", len(f.Probabilities), len(classes))
	}
	return &ConstantModel{classes: classes, probs: append([]float64(nil), f.Probabilities...)}, nil
}

// ConstantModel is the model returned by ConstantFitter
type ConstantModel struct {
	classes []float64
	probs   []float64
}

func (m *ConstantModel) Classes() []float64 {
	return append([]float64(nil), m.classes...)
}

func (m *ConstantModel) PredictProba(x *mat.Dense) (*mat.Dense, error) {
	if x == nil {
		return nil, fmt.Errorf("constant model needs at least one row")
	}
	n, _ := x.Dims()
	out := mat.NewDense(n, len(m.classes), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, m.probs)
	}
	return out, nil
}

// NilFitter reports success without producing a model
type NilFitter struct{}

func (NilFitter) Fit(*mat.Dense, []float64) (ports.PropensityModel, error) { return nil, nil }
