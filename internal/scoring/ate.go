package scoring

import (
	"fmt"
	"math"
	"strconv"

	"causalscore/domain/core"
	"causalscore/domain/score"
	"causalscore/internal/errors"
	"causalscore/internal/frame"

	"github.com/montanaflynn/stats"
)

// NaiveATE is the difference in mean outcome between rows with treatment 1
// and rows with treatment 0. std combines the per-group standard errors and
// n is the number of rows.
func NaiveATE(treatment, outcome []float64) (mean, std float64, n int, err error) {
	if len(treatment) != len(outcome) {
		return 0, 0, 0, core.NewRowMismatchError("outcome", len(treatment), len(outcome))
	}
	var treated, control stats.Float64Data
	for i, t := range treatment {
		switch t {
		case 1:
			treated = append(treated, outcome[i])
		case 0:
			control = append(control, outcome[i])
		}
	}
	if len(treated) == 0 || len(control) == 0 {
		return 0, 0, 0, core.ErrEmptyGroup
	}

	m1, _ := stats.Mean(treated)
	m0, _ := stats.Mean(control)
	s1, _ := stats.StandardDeviationSample(treated)
	s0, _ := stats.StandardDeviationSample(control)
	se1 := s1 / (math.Sqrt(float64(len(treated))) + 1e-3)
	se0 := s0 / (math.Sqrt(float64(len(control))) + 1e-3)
	return m1 - m0, math.Sqrt(se1*se1 + se0*se0), len(treatment), nil
}

// ATEEstimate is the weighting estimator's average effect on a frame
type ATEEstimate struct {
	ByLevel []float64 // one entry per non-control treatment level
	Std     float64   // naive standard error; NaN with several levels
	N       int       // rows; 0 with several levels
}

// ATE averages the weighting estimator's effect over the rows of df. A single
// treatment level also gets the naive standard error and row count.
func (s *Scorer) ATE(df *frame.Frame) (ATEEstimate, error) {
	if s.weighting == nil {
		return ATEEstimate{}, errors.InvalidInput(fmt.Sprintf("ate needs a backdoor problem, scorer is %s", s.problem.Type))
	}
	p, err := s.predictProba(df)
	if err != nil {
		return ATEEstimate{}, err
	}
	effect, err := s.weighting.Effect(df, p)
	if err != nil {
		return ATEEstimate{}, err
	}
	_, k := effect.Dims()
	out := ATEEstimate{ByLevel: make([]float64, k), Std: math.NaN()}
	copy(out.ByLevel, effect.RawRowView(0))
	if k != 1 {
		return out, nil
	}

	t, err := df.Column(s.weighting.Treatment())
	if err != nil {
		return ATEEstimate{}, err
	}
	y, err := df.Column(s.weighting.Outcome())
	if err != nil {
		return ATEEstimate{}, err
	}
	_, std, n, err := NaiveATE(t, y)
	if err != nil {
		return ATEEstimate{}, err
	}
	out.Std, out.N = std, n
	return out, nil
}

// GroupATE reports the ATE over all rows and over the rows of each distinct
// policy value. Groups whose effect is undefined, such as a group without
// control rows, are left out.
func (s *Scorer) GroupATE(df *frame.Frame, policy []float64) ([]score.GroupATE, error) {
	if len(policy) != df.Len() {
		return nil, core.NewRowMismatchError("policy", df.Len(), len(policy))
	}
	all, err := s.ATE(df)
	if err != nil {
		return nil, err
	}
	if len(all.ByLevel) != 1 {
		return nil, errors.InvalidInput("group ate needs a single treatment level")
	}

	if !finite(all.ByLevel[0]) || !finite(all.Std) {
		return nil, errors.DegenerateInput("group ate: the overall effect is undefined")
	}

	out := []score.GroupATE{{Policy: "all", ATE: all.ByLevel[0], Std: all.Std, N: all.N}}
	for _, v := range frame.DistinctValues(policy) {
		mask := make([]bool, len(policy))
		for i, p := range policy {
			mask[i] = p == v
		}
		sub := df.Filter(mask)
		est, err := s.ATE(sub)
		if err != nil {
			s.logger.Debug("group ate: policy %g skipped: %v", v, err)
			continue
		}
		if !finite(est.ByLevel[0]) || !finite(est.Std) {
			s.logger.Debug("group ate: policy %g has no defined effect", v)
			continue
		}
		out = append(out, score.GroupATE{
			Policy: strconv.FormatFloat(v, 'g', -1, 64),
			ATE:    est.ByLevel[0],
			Std:    est.Std,
			N:      est.N,
		})
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
