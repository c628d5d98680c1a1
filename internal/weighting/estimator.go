// Package weighting implements the inverse-propensity weighting estimator the
// scorer fits once per causal problem.
package weighting

import (
	"fmt"
	"math"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/mat"
)

// ControlValue is the treatment level every other level is compared against
const ControlValue = 0.0

// Estimator holds a fitted propensity model and the column roles it was fit
// with. It is read-only after Fit and safe to share between goroutines.
type Estimator struct {
	treatment       string
	outcome         string
	features        []string
	controlValue    float64
	treatmentValues []float64
	model           ports.PropensityModel
}

// Fit fits the propensity model on df. Treatment values are the distinct
// observed levels other than ControlValue.
func Fit(problem causal.Problem, df *frame.Frame, fitter ports.PropensityFitter) (*Estimator, error) {
	levels, err := df.Distinct(problem.Treatment)
	if err != nil {
		return nil, errors.SetupError("weighting estimator", err)
	}

	e := &Estimator{
		treatment:    problem.Treatment,
		outcome:      problem.Outcome,
		features:     problem.PropensityFeatures(),
		controlValue: ControlValue,
	}
	hasControl := false
	for _, v := range levels {
		if v == e.controlValue {
			hasControl = true
			continue
		}
		e.treatmentValues = append(e.treatmentValues, v)
	}
	if !hasControl || len(e.treatmentValues) == 0 {
		return nil, errors.SetupError(
			fmt.Sprintf("treatment %q needs control level %g and at least one other level, got %v", e.treatment, e.controlValue, levels),
			core.ErrPropensityNotFitted)
	}

	x, err := e.Design(df)
	if err != nil {
		return nil, errors.SetupError("weighting estimator features", err)
	}
	t, err := df.Column(e.treatment)
	if err != nil {
		return nil, errors.SetupError("weighting estimator", err)
	}
	model, err := fitter.Fit(x, t)
	if err != nil {
		return nil, errors.SetupError("fitting propensity model", err)
	}
	e.model = model
	return e, nil
}

// PropensityModel returns the fitted model, or nil if fitting produced none
func (e *Estimator) PropensityModel() ports.PropensityModel { return e.model }

func (e *Estimator) Treatment() string     { return e.treatment }
func (e *Estimator) Outcome() string       { return e.outcome }
func (e *Estimator) ControlValue() float64 { return e.controlValue }

// Features lists the columns the propensity model was fit on
func (e *Estimator) Features() []string {
	return append([]string(nil), e.features...)
}

// TreatmentValues lists the non-control levels in ascending order
func (e *Estimator) TreatmentValues() []float64 {
	return append([]float64(nil), e.treatmentValues...)
}

// Design builds the propensity feature matrix for df. Problems without
// features get a single constant column so the model is intercept-only.
func (e *Estimator) Design(df *frame.Frame) (*mat.Dense, error) {
	if len(e.features) == 0 {
		if df.Len() == 0 {
			return nil, core.ErrInsufficientData
		}
		return mat.NewDense(df.Len(), 1, nil), nil
	}
	x, err := df.Matrix(e.features)
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, core.ErrInsufficientData
	}
	return x, nil
}

// PredictProba predicts per-level probabilities for the rows of df
func (e *Estimator) PredictProba(df *frame.Frame) (*mat.Dense, error) {
	x, err := e.Design(df)
	if err != nil {
		return nil, err
	}
	return e.model.PredictProba(x)
}

// LevelColumn returns the PredictProba column holding level's probability
func (e *Estimator) LevelColumn(level float64) (int, error) {
	for k, c := range e.model.Classes() {
		if c == level {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %g", core.ErrUnsupportedLevel, level)
}

// LevelProbability extracts the probability of one level for every row
func (e *Estimator) LevelProbability(proba *mat.Dense, level float64) ([]float64, error) {
	k, err := e.LevelColumn(level)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, k, proba), nil
}

// RealizedProbability picks, for every row, the probability of the level the
// row actually received
func (e *Estimator) RealizedProbability(proba *mat.Dense, treatment []float64) ([]float64, error) {
	r, _ := proba.Dims()
	if r != len(treatment) {
		return nil, core.NewRowMismatchError("propensity", len(treatment), r)
	}
	cols := make(map[float64]int)
	for k, c := range e.model.Classes() {
		cols[c] = k
	}
	out := make([]float64, r)
	for i, t := range treatment {
		k, ok := cols[t]
		if !ok {
			return nil, fmt.Errorf("%w: %g", core.ErrUnsupportedLevel, t)
		}
		out[i] = proba.At(i, k)
	}
	return out, nil
}

// Effect estimates the average effect of every treatment level against
// control by normalised inverse-propensity weighting, repeated for each row
// of df. proba may be nil, in which case it is predicted from df.
func (e *Estimator) Effect(df *frame.Frame, proba *mat.Dense) (*mat.Dense, error) {
	n := df.Len()
	if n == 0 {
		return nil, core.ErrInsufficientData
	}
	if proba == nil {
		var err error
		if proba, err = e.PredictProba(df); err != nil {
			return nil, err
		}
	}
	t, err := df.Column(e.treatment)
	if err != nil {
		return nil, err
	}
	y, err := df.Column(e.outcome)
	if err != nil {
		return nil, err
	}

	p0, err := e.LevelProbability(proba, e.controlValue)
	if err != nil {
		return nil, err
	}
	control := weightedMean(y, t, p0, e.controlValue)

	out := mat.NewDense(n, len(e.treatmentValues), nil)
	for k, level := range e.treatmentValues {
		pk, err := e.LevelProbability(proba, level)
		if err != nil {
			return nil, err
		}
		ate := weightedMean(y, t, pk, level) - control
		for i := 0; i < n; i++ {
			out.Set(i, k, ate)
		}
	}
	return out, nil
}

// weightedMean is Σ y/p over rows at level divided by Σ 1/p over those rows.
// It is NaN when no row has the level.
func weightedMean(y, t, p []float64, level float64) float64 {
	var num, den float64
	for i := range y {
		if t[i] != level || p[i] <= 0 {
			continue
		}
		w := 1 / p[i]
		num += w * y[i]
		den += w
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
