package scoring

import (
	"errors"
	"math"
	"testing"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/domain/score"
	apperrors "causalscore/internal/errors"
	"causalscore/internal/uplift"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(name string, metrics map[causal.MetricName]float64) *score.Record {
	rec := score.NewRecord(name, causal.ProblemBackdoor)
	for m, v := range metrics {
		rec.Metrics[m] = score.Computed(v)
	}
	return rec
}

func TestBestScoreByEstimator_LowerIsBetter(t *testing.T) {
	records := map[string]*score.Record{
		"ldml_a": record("LinearDML", map[causal.MetricName]float64{causal.MetricEnergyDistance: 0.3}),
		"ldml_b": record("LinearDML", map[causal.MetricName]float64{causal.MetricEnergyDistance: 0.7}),
		"cf_a":   record("CausalForestDML", map[causal.MetricName]float64{causal.MetricEnergyDistance: 0.1}),
		"cf_b":   record("CausalForestDML", map[causal.MetricName]float64{causal.MetricEnergyDistance: 0.9}),
	}

	best, err := BestScoreByEstimator(records, causal.MetricEnergyDistance)
	require.NoError(t, err)
	require.Len(t, best, 2)

	v, _ := best["LinearDML"].Get(causal.MetricEnergyDistance)
	assert.Equal(t, 0.3, v)
	v, _ = best["CausalForestDML"].Get(causal.MetricEnergyDistance)
	assert.Equal(t, 0.1, v)
	assert.Same(t, records["cf_a"], best["CausalForestDML"])
}

func TestBestScoreByEstimator_HigherIsBetter(t *testing.T) {
	records := map[string]*score.Record{
		"a": record("LinearDML", map[causal.MetricName]float64{causal.MetricERUPT: 1.2}),
		"b": record("LinearDML", map[causal.MetricName]float64{causal.MetricERUPT: 2.5}),
	}

	best, err := BestScoreByEstimator(records, causal.MetricERUPT)
	require.NoError(t, err)
	assert.Same(t, records["b"], best["LinearDML"])
}

func TestBestScoreByEstimator_SkipsMissingValues(t *testing.T) {
	failed := record("XLearner", nil)
	failed.Metrics[causal.MetricQini] = score.NotComputed(errors.New("boom"))
	records := map[string]*score.Record{
		"failed":  failed,
		"missing": record("SLearner", map[causal.MetricName]float64{causal.MetricAUC: 1}),
		"ok":      record("XLearner", map[causal.MetricName]float64{causal.MetricQini: 0.4}),
	}

	best, err := BestScoreByEstimator(records, causal.MetricQini)
	require.NoError(t, err)
	assert.Len(t, best, 1)
	assert.Same(t, records["ok"], best["XLearner"])
}

func TestBestScoreByEstimator_UndefinedRanksLast(t *testing.T) {
	// equal treated and control outcome sums leave the Qini curve without a
	// normalising end point
	qini, err := uplift.QiniScore([]float64{1, 0, 1, 0}, []float64{1, 1, 0, 0}, []float64{0.4, 0.3, 0.2, 0.1})
	require.NoError(t, err)
	require.True(t, math.IsNaN(qini))

	degenerate := record("XLearner", map[causal.MetricName]float64{causal.MetricQini: qini})
	require.Equal(t, score.StatusUndefined, degenerate.Metrics[causal.MetricQini].Status)

	tests := []struct {
		name   string
		metric causal.MetricName
		value  float64
	}{
		{"higher is better", causal.MetricQini, 0.4},
		{"lower is better", causal.MetricFrobeniusNorm, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			undefined := score.NewRecord("XLearner", causal.ProblemBackdoor)
			undefined.Metrics[tt.metric] = score.Undefined()
			records := map[string]*score.Record{
				"a_undefined": undefined,
				"b_computed":  record("XLearner", map[causal.MetricName]float64{tt.metric: tt.value}),
			}

			best, err := BestScoreByEstimator(records, tt.metric)
			require.NoError(t, err)
			assert.Same(t, records["b_computed"], best["XLearner"])
		})
	}

	best, err := BestScoreByEstimator(map[string]*score.Record{"only": degenerate}, causal.MetricQini)
	require.NoError(t, err)
	assert.Same(t, degenerate, best["XLearner"], "a family with only undefined scores keeps its record")
}

func TestRankValue(t *testing.T) {
	assert.True(t, math.IsInf(RankValue(score.Undefined(), causal.MetricERUPT), -1))
	assert.True(t, math.IsInf(RankValue(score.Undefined(), causal.MetricEnergyDistance), 1))
	assert.Equal(t, 0.5, RankValue(score.Computed(0.5), causal.MetricAUC))
	assert.True(t, Better(1, 2, true))
	assert.True(t, Better(2, 1, false))
	assert.False(t, Better(1, 1, false))
}

func TestBestScoreByEstimator_Malformed(t *testing.T) {
	tests := map[string]*score.Record{
		"nil record":   nil,
		"no estimator": record("", map[causal.MetricName]float64{causal.MetricQini: 1}),
	}
	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := BestScoreByEstimator(map[string]*score.Record{
				"good": record("LinearDML", map[causal.MetricName]float64{causal.MetricQini: 1}),
				"bad":  rec,
			}, causal.MetricQini)
			assert.Equal(t, apperrors.CodeMalformedInput, apperrors.GetCode(err))
			assert.ErrorIs(t, err, core.ErrMissingEstimator)
		})
	}
}
