package scoring

import (
	"math"

	"causalscore/internal/energy"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/internal/weighting"
	"causalscore/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// ENERGY DISTANCE
// ============================================================================

// EnergyDistanceScore is the energy distance between the treated and control
// rows over the effect modifiers and yhat. Lower is better; an empty group
// gives +Inf.
func EnergyDistanceScore(est ports.Estimate, df *frame.Frame) (float64, error) {
	r, err := reconstruct(est, df)
	if err != nil {
		return 0, err
	}
	return energyDistance(r)
}

func energyDistance(r *reconstruction) (float64, error) {
	x1, x0, _, _, err := r.matrices(r.selectColumns())
	if err != nil {
		return 0, err
	}
	if x1 == nil || x0 == nil {
		return math.Inf(1), nil
	}
	return energy.Distance(x1, x0)
}

// PSWEnergyDistance is the energy distance with every pairwise distance
// weighted by the propensities of the two rows: the realised level for
// treated rows, the control level for control rows. normaliseFeatures maps
// the effect modifiers through their empirical quantiles first.
func (s *Scorer) PSWEnergyDistance(est ports.Estimate, df *frame.Frame, normaliseFeatures bool) (float64, error) {
	r, err := reconstruct(est, df)
	if err != nil {
		return 0, err
	}
	return s.pswEnergyDistance(r, normaliseFeatures)
}

func (s *Scorer) pswEnergyDistance(r *reconstruction, normaliseFeatures bool) (float64, error) {
	treated, control, err := r.groups()
	if err != nil {
		return 0, err
	}
	if len(treated) == 0 || len(control) == 0 {
		return math.Inf(1), nil
	}
	p1, p0, err := s.groupPropensities(r, treated, control)
	if err != nil {
		return 0, err
	}

	work := r.frame
	if normaliseFeatures && len(r.modifiers) > 0 {
		if work, err = s.quantileNormalised(r); err != nil {
			return 0, err
		}
	}
	cols := r.selectColumns()
	x1, err := work.Rows(treated).Matrix(cols)
	if err != nil {
		return 0, err
	}
	x0, err := work.Rows(control).Matrix(cols)
	if err != nil {
		return 0, err
	}
	return energy.WeightedDistance(x1, x0, p1, p0)
}

// quantileNormalised returns a copy of the reconstructed frame with every
// effect modifier replaced by its quantile transform over all rows
func (s *Scorer) quantileNormalised(r *reconstruction) (*frame.Frame, error) {
	m, err := r.frame.Matrix(r.modifiers)
	if err != nil {
		return nil, err
	}
	work := r.frame.Copy()
	if m == nil {
		return work, nil
	}
	qt := energy.QuantileTransformer{NQuantiles: s.settings.Quantiles}.FitTransform(m)
	for j, name := range r.modifiers {
		if err := work.Set(name, mat.Col(nil, j, qt)); err != nil {
			return nil, err
		}
	}
	return work, nil
}

// groupPropensities returns the realised-level propensity of every treated
// row and the control-level propensity of every control row
func (s *Scorer) groupPropensities(r *reconstruction, treated, control []int) (p1, p0 []float64, err error) {
	proba, err := s.predictProba(r.frame)
	if err != nil {
		return nil, nil, err
	}
	t, err := r.frame.Column(r.treatment)
	if err != nil {
		return nil, nil, err
	}
	realised, err := s.weighting.RealizedProbability(proba, t)
	if err != nil {
		return nil, nil, err
	}
	base, err := s.weighting.LevelProbability(proba, weighting.ControlValue)
	if err != nil {
		return nil, nil, err
	}
	return pick(realised, treated), pick(base, control), nil
}

// ============================================================================
// FROBENIUS NORM
// ============================================================================

// FrobeniusNormScore compares the leading min(n1, n0) treated and control
// rows pairwise. Row i of the difference matrix is scaled by √(p1ᵢ·p0ᵢ) and
// the result is ‖D‖_F / √(rows·cols). Near-constant CATE, an empty group or
// a non-finite result give +Inf.
func (s *Scorer) FrobeniusNormScore(est ports.Estimate, df *frame.Frame) (float64, error) {
	r, err := reconstruct(est, df)
	if err != nil {
		return 0, err
	}
	cate, err := est.Effect(r.frame)
	if err != nil {
		return 0, errors.Wrap(err, "effect")
	}
	return s.frobeniusNorm(r, cate)
}

func (s *Scorer) frobeniusNorm(r *reconstruction, cate *mat.Dense) (float64, error) {
	if popStd(cate) <= s.settings.SDThreshold {
		return math.Inf(1), nil
	}
	x1, x0, treated, control, err := r.matrices(r.selectColumns())
	if err != nil {
		return 0, err
	}
	if x1 == nil || x0 == nil {
		return math.Inf(1), nil
	}

	rows := min(len(treated), len(control))
	_, cols := x1.Dims()
	w1, w0 := ones(len(treated)), ones(len(control))
	if s.weighting != nil {
		if w1, w0, err = s.groupPropensities(r, treated, control); err != nil {
			return 0, err
		}
	}

	var d mat.Dense
	d.Sub(x1.Slice(0, rows, 0, cols), x0.Slice(0, rows, 0, cols))
	for i := 0; i < rows; i++ {
		scale := math.Sqrt(w1[i] * w0[i])
		row := d.RawRowView(i)
		for j := range row {
			row[j] *= scale
		}
	}

	score := mat.Norm(&d, 2) / math.Sqrt(float64(rows*cols))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return math.Inf(1), nil
	}
	return score, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// popStd is the population standard deviation of every entry of m
func popStd(m *mat.Dense) float64 {
	_, std := stat.PopMeanStdDev(flatten(m), nil)
	return std
}

// flatten lists the entries of m row by row
func flatten(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	values := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		values = append(values, m.RawRowView(i)...)
	}
	return values
}

func pick(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
