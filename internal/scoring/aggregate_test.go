package scoring

import (
	"bytes"
	"math"
	"testing"

	"causalscore/adapters/estimate"
	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/domain/score"
	"causalscore/internal/errors"
	"causalscore/internal/frame"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// shortEstimate returns fewer effect rows than the frame has
type shortEstimate struct {
	*estimate.Precomputed
}

func (e shortEstimate) Effect(df *frame.Frame) (*mat.Dense, error) {
	return mat.NewDense(1, 1, []float64{1}), nil
}

func TestMakeScores_Backdoor(t *testing.T) {
	data := newCausalData(t, 1)
	s, err := NewScorer(data.Problem, data.Frame, WithLogger(quietLogger()))
	require.NoError(t, err)
	est, err := data.Estimate("truth", data.CATE)
	require.NoError(t, err)
	columns := data.Frame.Columns()

	metrics := SupportedMetrics(causal.ProblemBackdoor, false, false)
	record, err := s.MakeScores(est, data.Frame, metrics)
	require.NoError(t, err)

	assert.Equal(t, "truth", record.EstimatorName)
	assert.Equal(t, data.Frame.Len(), record.N)
	assert.Empty(t, record.Failed())
	for _, m := range append(metrics, causal.MetricATEStd) {
		assert.Contains(t, record.Metrics, m)
	}

	truth := mustVector(t, data.CATE)
	ate, _ := record.Get(causal.MetricATE)
	assert.InDelta(t, mean(truth), ate, 1e-12)
	require.Len(t, record.ATE, 1)
	assert.InDelta(t, mean(truth), record.ATE[0], 0.5)

	require.NotNil(t, record.Values)
	n := data.Frame.Len()
	assert.True(t, record.Values.Consistent(n))
	assert.Len(t, record.Values.P, n)
	assert.Len(t, record.Values.Weights, n)
	assert.Equal(t, DefaultPolicy(truth), record.Values.Policy)

	// scoring works on a private copy
	assert.Equal(t, columns, data.Frame.Columns())
	assert.False(t, data.Frame.Has(ColumnDY))

	computed := testutil.ToFloat64(s.Metrics().Computations.WithLabelValues("erupt", string(score.StatusComputed)))
	assert.Equal(t, 1.0, computed)
}

func TestMakeScores_OnlyRequestedMetrics(t *testing.T) {
	data := newCausalData(t, 1)
	s, err := NewScorer(data.Problem, data.Frame, WithLogger(quietLogger()))
	require.NoError(t, err)
	est, err := data.Estimate("truth", data.CATE)
	require.NoError(t, err)

	record, err := s.MakeScores(est, data.Frame, []causal.MetricName{causal.MetricEnergyDistance})
	require.NoError(t, err)
	assert.Len(t, record.Metrics, 1)
	assert.Contains(t, record.Metrics, causal.MetricEnergyDistance)
	assert.NotNil(t, record.Values)
}

func TestMakeScores_TruthBeatsNoise(t *testing.T) {
	data := newCausalData(t, 1)
	s, err := NewScorer(data.Problem, data.Frame, WithLogger(quietLogger()))
	require.NoError(t, err)
	truth, err := data.Estimate("truth", data.CATE)
	require.NoError(t, err)
	noisy, err := data.Estimate("noisy", data.NoisyCATE(3, 11))
	require.NoError(t, err)

	metrics := []causal.MetricName{causal.MetricERUPT, causal.MetricQini}
	good, err := s.MakeScores(truth, data.Frame, metrics)
	require.NoError(t, err)
	bad, err := s.MakeScores(noisy, data.Frame, metrics)
	require.NoError(t, err)

	g, _ := good.Get(causal.MetricQini)
	b, _ := bad.Get(causal.MetricQini)
	assert.Greater(t, g, b)
}

func TestMakeScores_MultiLevelSkipsSingleLevelMetrics(t *testing.T) {
	data := newCausalData(t, 2)
	var buf bytes.Buffer
	s, err := NewScorer(data.Problem, data.Frame, WithLogger(bufferLogger(&buf)))
	require.NoError(t, err)
	est, err := data.Estimate("truth", data.CATE)
	require.NoError(t, err)

	record, err := s.MakeScores(est, data.Frame, []causal.MetricName{
		causal.MetricERUPT, causal.MetricEnergyDistance, causal.MetricPSWEnergyDistance, causal.MetricATE,
	})
	require.NoError(t, err)

	assert.Equal(t, []causal.MetricName{causal.MetricERUPT}, record.Failed())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(record.Metrics[causal.MetricERUPT].Err))
	assert.Contains(t, buf.String(), "metric erupt not computed")

	_, ok := record.Get(causal.MetricEnergyDistance)
	assert.True(t, ok)
	assert.Len(t, record.ATE, 2)
	require.NotNil(t, record.Values)
	assert.Nil(t, record.Values.P)
	assert.Nil(t, record.Values.Policy)
}

func TestMakeScores_IV(t *testing.T) {
	data := newCausalData(t, 1)
	df := data.Frame.Copy()
	tr, err := df.Column("t")
	require.NoError(t, err)
	require.NoError(t, df.Set("z", tr))
	problem := data.Problem
	problem.Type = causal.ProblemIV
	problem.Instruments = []string{"z"}

	s, err := NewScorer(problem, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	est := fixedEstimate(t, "DMLIV", problem, mustVector(t, data.CATE), nil)

	record, err := s.MakeScores(est, df, SupportedMetrics(causal.ProblemIV, false, false))
	require.NoError(t, err)
	assert.Empty(t, record.Failed())
	assert.Nil(t, record.Values)
	assert.Nil(t, record.ATE)
	for _, m := range []causal.MetricName{
		causal.MetricEnergyDistance, causal.MetricFrobeniusNorm, causal.MetricCODEC, causal.MetricATE, causal.MetricATEStd,
	} {
		_, ok := record.Get(m)
		assert.True(t, ok, "metric %s", m)
	}
	assert.NotContains(t, record.Metrics, causal.MetricERUPT)
}

func TestMakeScores_EffectRowMismatch(t *testing.T) {
	df := policyFrame()
	problem := backdoorProblem("x")
	s := newConstantScorer(t, problem, df, 0.5, 0.5)
	est := shortEstimate{fixedEstimate(t, "short", problem, []float64{1, -1, 2, -3}, nil)}

	_, err := s.MakeScores(est, df, []causal.MetricName{causal.MetricERUPT})
	assert.Equal(t, errors.CodeSetupError, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrRowMismatch)
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	if len(x) == 0 {
		return math.NaN()
	}
	return sum / float64(len(x))
}
