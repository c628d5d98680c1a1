package scoring

import (
	"fmt"
	"math"

	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/internal/uplift"
	"causalscore/internal/weighting"
	"causalscore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// POLICY RISK
// ============================================================================

// PolicyFunc turns CATE estimates into a 0/1 treatment policy
type PolicyFunc func(cate []float64) []float64

// DefaultPolicy treats every row with a positive CATE
func DefaultPolicy(cate []float64) []float64 {
	return frame.Indicator(cate, func(v float64) bool { return v > 0 })
}

type policyRiskOptions struct {
	policy      PolicyFunc
	rows        []int
	sdThreshold float64
	clip        float64
}

// PolicyRiskOption configures PolicyRiskScore
type PolicyRiskOption func(*policyRiskOptions)

// WithPolicy replaces DefaultPolicy
func WithPolicy(p PolicyFunc) PolicyRiskOption {
	return func(o *policyRiskOptions) { o.policy = p }
}

// WithEvaluationRows restricts the policy value to the given rows, e.g. the
// randomised subset of an experiment
func WithEvaluationRows(rows []int) PolicyRiskOption {
	return func(o *policyRiskOptions) { o.rows = rows }
}

// WithSDThreshold sets the CATE spread below which the risk is 0
func WithSDThreshold(v float64) PolicyRiskOption {
	return func(o *policyRiskOptions) { o.sdThreshold = v }
}

// WithClip bounds the treated propensity to [clip, 1−clip]
func WithClip(v float64) PolicyRiskOption {
	return func(o *policyRiskOptions) { o.clip = v }
}

// PolicyRiskScore is 1 minus the inverse-propensity-weighted value of the
// policy derived from cate. It is 0 when the CATE estimates are too flat to
// define a policy.
func (s *Scorer) PolicyRiskScore(est ports.Estimate, df *frame.Frame, cate []float64, opts ...PolicyRiskOption) (float64, error) {
	o := policyRiskOptions{
		policy:      DefaultPolicy,
		sdThreshold: s.settings.SDThreshold,
		clip:        s.settings.Clip,
	}
	for _, opt := range opts {
		opt(&o)
	}

	n := df.Len()
	if len(cate) != n {
		return 0, core.NewRowMismatchError("cate", n, len(cate))
	}
	if _, std := stat.PopMeanStdDev(cate, nil); std <= o.sdThreshold {
		return 0, nil
	}
	policy := o.policy(cate)
	if len(policy) != n {
		return 0, core.NewRowMismatchError("policy", n, len(policy))
	}

	proba, err := s.predictProba(df)
	if err != nil {
		return 0, err
	}
	level := s.weighting.TreatmentValues()[0]
	p, err := s.weighting.LevelProbability(proba, level)
	if err != nil {
		return 0, err
	}
	t, err := df.Column(s.weighting.Treatment())
	if err != nil {
		return 0, err
	}
	y, err := df.Column(est.OutcomeName())
	if err != nil {
		return 0, err
	}

	rows := o.rows
	if rows == nil {
		rows = make([]int, n)
		for i := range rows {
			rows[i] = i
		}
	}
	if len(rows) == 0 {
		return 0, errors.DegenerateInput("policy risk needs at least one evaluation row")
	}

	var total, treatedValue, controlValue, treatedShare float64
	for _, i := range rows {
		if i < 0 || i >= n {
			return 0, errors.InvalidInput(fmt.Sprintf("evaluation row %d outside [0, %d)", i, n))
		}
		pi := math.Min(math.Max(p[i], o.clip), 1-o.clip)
		w := 1 / (1 - pi)
		if t[i] == level {
			w = 1 / pi
		}
		total += w
		switch {
		case policy[i] == 1:
			treatedShare++
			if t[i] == level {
				treatedValue += y[i] * w
			}
		case policy[i] == 0 && t[i] == weighting.ControlValue:
			controlValue += y[i] * w
		}
	}
	m := float64(len(rows))
	value := treatedValue/total*(treatedShare/m) + controlValue/total*((m-treatedShare)/m)
	return 1 - value, nil
}

// ============================================================================
// UPLIFT CURVES
// ============================================================================

// QiniScore is the area between the model's Qini curve and random targeting,
// ranking rows by cate
func QiniScore(est ports.Estimate, df *frame.Frame, cate []float64) (float64, error) {
	y, w, err := upliftInputs(est, df, cate)
	if err != nil {
		return 0, err
	}
	return uplift.QiniScore(y, w, cate)
}

// AUCScore is the area under the model's cumulative uplift curve
func AUCScore(est ports.Estimate, df *frame.Frame, cate []float64) (float64, error) {
	y, w, err := upliftInputs(est, df, cate)
	if err != nil {
		return 0, err
	}
	return uplift.AUUCScore(y, w, cate)
}

func upliftInputs(est ports.Estimate, df *frame.Frame, cate []float64) (y, w []float64, err error) {
	if len(cate) != df.Len() {
		return nil, nil, core.NewRowMismatchError("cate", df.Len(), len(cate))
	}
	if y, err = df.Column(est.OutcomeName()); err != nil {
		return nil, nil, err
	}
	names := est.TreatmentNames()
	if len(names) == 0 {
		return nil, nil, errors.InvalidInput("estimate names no treatment")
	}
	if w, err = df.Column(names[0]); err != nil {
		return nil, nil, err
	}
	return y, w, nil
}

// ============================================================================
// ERUPT
// ============================================================================

// EruptScore is the expected outcome when treating rows with positive CATE
func (s *Scorer) EruptScore(est ports.Estimate, df *frame.Frame, cate []float64) (float64, error) {
	y, err := s.policyOutcome(est, df, cate)
	if err != nil {
		return 0, err
	}
	return s.erupt.Score(df, y, DefaultPolicy(cate))
}

// NormEruptScore scores the policy "CATE above the average effect" and
// subtracts the average effect times the share of rows that policy treats
func (s *Scorer) NormEruptScore(est ports.Estimate, df *frame.Frame, cate []float64, ate float64) (float64, error) {
	y, err := s.policyOutcome(est, df, cate)
	if err != nil {
		return 0, err
	}
	policy := frame.Indicator(cate, func(v float64) bool { return v > ate })
	v, err := s.erupt.Score(df, y, policy)
	if err != nil {
		return 0, err
	}
	return v - ate*stat.Mean(policy, nil), nil
}

// ProbEruptScore treats the CATE of every row as normal with the spread of
// all CATE estimates and averages ERUPT over sampled policies
func (s *Scorer) ProbEruptScore(est ports.Estimate, df *frame.Frame, cate []float64) (float64, error) {
	y, err := s.policyOutcome(est, df, cate)
	if err != nil {
		return 0, err
	}
	_, spread := stat.PopMeanStdDev(cate, nil)
	std := make([]float64, len(cate))
	floats.AddConst(spread, std)
	return s.erupt.ProbabilisticScore(df, y, cate, std)
}

func (s *Scorer) policyOutcome(est ports.Estimate, df *frame.Frame, cate []float64) ([]float64, error) {
	if s.erupt == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("erupt needs a backdoor problem, scorer is %s", s.problem.Type))
	}
	if len(cate) != df.Len() {
		return nil, core.NewRowMismatchError("cate", df.Len(), len(cate))
	}
	return df.Column(est.OutcomeName())
}

// cateVector flattens a single-level CATE matrix
func cateVector(cate *mat.Dense) ([]float64, error) {
	if cate == nil {
		return nil, core.ErrInsufficientData
	}
	_, c := cate.Dims()
	if c != 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("metric needs a single treatment level, CATE has %d columns", c))
	}
	return mat.Col(nil, 0, cate), nil
}
