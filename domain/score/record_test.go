package score

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"causalscore/domain/causal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputed_NonFiniteIsUndefined(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		status Status
	}{
		{"finite", 0.25, StatusComputed},
		{"positive infinity", math.Inf(1), StatusUndefined},
		{"negative infinity", math.Inf(-1), StatusUndefined},
		{"nan", math.NaN(), StatusUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Computed(tt.value).Status)
		})
	}

	assert.True(t, math.IsInf(Computed(math.Inf(-1)).Value, -1))
	assert.True(t, math.IsInf(Computed(math.NaN()).Value, 1))
}

func TestRecord_ScalarsSkipFailures(t *testing.T) {
	r := NewRecord("LinearDML", causal.ProblemBackdoor)
	r.Metrics[causal.MetricEnergyDistance] = Computed(0.3)
	r.Metrics[causal.MetricFrobeniusNorm] = Undefined()
	r.Metrics[causal.MetricPolicyRisk] = NotComputed(errors.New("boom"))

	scalars := r.Scalars()
	assert.Len(t, scalars, 2)
	assert.Equal(t, 0.3, scalars["energy_distance"])
	assert.True(t, math.IsInf(scalars["frobenius_norm"], 1))
	assert.Equal(t, []causal.MetricName{causal.MetricPolicyRisk}, r.Failed())

	_, ok := r.Get(causal.MetricPolicyRisk)
	assert.False(t, ok)
}

func TestResult_JSONKeepsStatus(t *testing.T) {
	in := map[string]Result{
		"a": Computed(1.5),
		"b": Undefined(),
		"c": NotComputed(errors.New("propensity failed")),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]Result
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, 1.5, out["a"].Value)
	assert.True(t, math.IsInf(out["b"].Value, 1))
	assert.Equal(t, StatusNotComputed, out["c"].Status)
	assert.EqualError(t, out["c"].Err, "propensity failed")
}
