package scoring

import (
	"fmt"
	"math"
	"time"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/domain/score"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type metricStep struct {
	name causal.MetricName
	fn   func() (float64, error)
}

// MakeScores computes the requested metrics for one estimate on a private
// copy of df. Backdoor records also carry the per-row Values table.
//
// A metric that fails is recorded as score.NotComputed and the remaining
// metrics still run. Setup errors abort the whole call.
func (s *Scorer) MakeScores(est ports.Estimate, df *frame.Frame, metrics []causal.MetricName) (*score.Record, error) {
	start := time.Now()
	defer func() { s.metrics.ScoringDuration.Observe(time.Since(start).Seconds()) }()

	want := make(map[causal.MetricName]bool, len(metrics))
	for _, m := range metrics {
		want[m] = true
	}

	r, err := reconstruct(est, df)
	if err != nil {
		return nil, errors.Wrapf(err, "reconstructing outcomes for %s", est.EstimatorName())
	}
	cate, err := est.Effect(r.frame)
	if err != nil {
		return nil, errors.Wrapf(err, "effect of %s", est.EstimatorName())
	}
	n := r.frame.Len()
	if rows, _ := cate.Dims(); rows != n {
		return nil, errors.SetupError(fmt.Sprintf("effect of %s", est.EstimatorName()), core.NewRowMismatchError("cate", n, rows))
	}

	record := score.NewRecord(est.EstimatorName(), s.problem.Type)
	record.N = n
	run := func(name causal.MetricName, fn func() (float64, error)) error {
		if !want[name] {
			return nil
		}
		return s.run(record, name, fn)
	}

	if s.problem.Type == causal.ProblemBackdoor {
		if err := s.backdoorScores(record, est, r, cate, run); err != nil {
			return nil, err
		}
	}

	if want[causal.MetricATE] {
		values := flatten(cate)
		record.Metrics[causal.MetricATE] = score.Computed(stat.Mean(values, nil))
		record.Metrics[causal.MetricATEStd] = score.Computed(popStd(cate))
	}

	steps := []metricStep{
		{causal.MetricFrobeniusNorm, func() (float64, error) { return s.frobeniusNorm(r, cate) }},
		{causal.MetricEnergyDistance, func() (float64, error) { return energyDistance(r) }},
		{causal.MetricPSWEnergyDistance, func() (float64, error) { return s.pswEnergyDistance(r, false) }},
		{causal.MetricCODEC, func() (float64, error) { return s.codecScore(est.EstimatorName(), r, cate) }},
	}
	for _, step := range steps {
		if err := run(step.name, step.fn); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// backdoorScores computes the propensity-based metrics and the Values table
func (s *Scorer) backdoorScores(record *score.Record, est ports.Estimate, r *reconstruction,
	cate *mat.Dense, run func(causal.MetricName, func() (float64, error)) error) error {
	n := r.frame.Len()
	t, err := r.frame.Column(s.weighting.Treatment())
	if err != nil {
		return err
	}
	y, err := r.frame.Column(r.outcome)
	if err != nil {
		return err
	}
	values := &score.Values{Treatment: t, Outcome: y}

	simpleATE := math.NaN()
	if ate, err := s.ATE(r.frame); err != nil {
		s.logger.Warn("%s: weighting ate not available: %v", est.EstimatorName(), err)
	} else if !allFinite(ate.ByLevel) {
		s.logger.Warn("%s: weighting ate undefined for some treatment level: %v", est.EstimatorName(), ate.ByLevel)
	} else {
		record.ATE = ate.ByLevel
		if len(ate.ByLevel) == 1 {
			simpleATE = ate.ByLevel[0]
		}
	}

	vec, vecErr := cateVector(cate)
	if vecErr == nil && len(s.weighting.TreatmentValues()) == 1 {
		proba, err := s.predictProba(r.frame)
		if err != nil {
			return errors.Wrap(err, "propensity for values table")
		}
		if values.P, err = s.weighting.LevelProbability(proba, s.weighting.TreatmentValues()[0]); err != nil {
			return errors.Wrap(err, "propensity for values table")
		}
		values.Policy = DefaultPolicy(vec)
		values.NormPolicy = frame.Indicator(vec, func(v float64) bool { return v > simpleATE })
		values.Weights, err = s.erupt.Weights(r.frame, values.Policy)
		if err != nil {
			s.logger.Warn("%s: erupt weights set to zero: %v", est.EstimatorName(), err)
			values.Weights = make([]float64, n)
		}
	}

	withVector := func(fn func(cate []float64) (float64, error)) func() (float64, error) {
		return func() (float64, error) {
			if vecErr != nil {
				return 0, vecErr
			}
			return fn(vec)
		}
	}
	steps := []metricStep{
		{causal.MetricERUPT, withVector(func(c []float64) (float64, error) { return s.EruptScore(est, r.frame, c) })},
		{causal.MetricNormERUPT, withVector(func(c []float64) (float64, error) {
			if math.IsNaN(simpleATE) {
				return 0, errors.DegenerateInput("norm_erupt needs the weighting ate")
			}
			return s.NormEruptScore(est, r.frame, c, simpleATE)
		})},
		{causal.MetricProbERUPT, withVector(func(c []float64) (float64, error) { return s.ProbEruptScore(est, r.frame, c) })},
		{causal.MetricPolicyRisk, withVector(func(c []float64) (float64, error) { return s.PolicyRiskScore(est, r.frame, c) })},
		{causal.MetricQini, withVector(func(c []float64) (float64, error) { return QiniScore(est, r.frame, c) })},
		{causal.MetricAUC, withVector(func(c []float64) (float64, error) { return AUCScore(est, r.frame, c) })},
	}
	for _, step := range steps {
		if err := run(step.name, step.fn); err != nil {
			return err
		}
	}

	if !values.Consistent(n) {
		return errors.InternalError(fmt.Sprintf("values table of %s does not have %d rows", est.EstimatorName(), n))
	}
	record.Values = values
	return nil
}

// run stores the outcome of one metric. Only setup errors are returned.
func (s *Scorer) run(record *score.Record, name causal.MetricName, fn func() (float64, error)) error {
	v, err := fn()
	if err != nil {
		if errors.GetCode(err) == errors.CodeSetupError {
			return errors.Wrapf(err, "metric %s of %s", name, record.EstimatorName)
		}
		s.logger.Warn("%s: metric %s not computed: %v", record.EstimatorName, name, err)
		record.Metrics[name] = score.NotComputed(err)
		s.metrics.Computations.WithLabelValues(name.String(), string(score.StatusNotComputed)).Inc()
		return nil
	}
	res := score.Computed(v)
	record.Metrics[name] = res
	s.metrics.Computations.WithLabelValues(name.String(), string(res.Status)).Inc()
	return nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if !finite(v) {
			return false
		}
	}
	return true
}
