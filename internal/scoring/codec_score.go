package scoring

import (
	"math"

	"causalscore/domain/causal"
	"causalscore/internal/codec"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/mat"
)

// Columns never treated as confounders by CODECScore
var nonConfounders = map[string]bool{
	"random": true,
	"index":  true,
}

// CODECScore is the conditional dependence of yhat on the treatment given
// the confounders. A CATE spread below the threshold gives +Inf.
func (s *Scorer) CODECScore(est ports.Estimate, df *frame.Frame) (float64, error) {
	r, err := reconstruct(est, df)
	if err != nil {
		return 0, err
	}
	cate, err := est.Effect(r.frame)
	if err != nil {
		return 0, errors.Wrap(err, "effect")
	}
	return s.codecScore(est.EstimatorName(), r, cate)
}

func (s *Scorer) codecScore(estimator string, r *reconstruction, cate *mat.Dense) (float64, error) {
	if popStd(cate) < s.settings.SDThreshold {
		return math.Inf(1), nil
	}

	y, err := r.frame.Column(ColumnYHat)
	if err != nil {
		return 0, err
	}
	z, err := r.frame.Matrix([]string{r.treatment})
	if err != nil {
		return 0, err
	}
	x, err := r.frame.Matrix(Confounders(r.frame, r.treatment, r.outcome))
	if err != nil {
		return 0, err
	}

	src, err := s.rng.Stream(estimator, causal.MetricCODEC.String(), s.settings.CODECSeed)
	if err != nil {
		return 0, err
	}
	return codec.Coefficient(y, z, x, codec.WithRand(src))
}

// Confounders lists the columns of df other than the treatment, the outcome,
// the experiment flags and the scorer's working columns
func Confounders(df *frame.Frame, treatment, outcome string) []string {
	var out []string
	for _, name := range df.Columns() {
		switch {
		case name == treatment, name == outcome, name == ColumnDY, name == ColumnYHat:
		case nonConfounders[name]:
		default:
			out = append(out, name)
		}
	}
	return out
}
