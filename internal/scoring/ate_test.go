package scoring

import (
	"math"
	"testing"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaiveATE(t *testing.T) {
	mean, std, n, err := NaiveATE([]float64{1, 1, 0, 0, 0}, []float64{3, 5, 1, 2, 3})
	require.NoError(t, err)

	se1 := math.Sqrt2 / (math.Sqrt2 + 1e-3)
	se0 := 1 / (math.Sqrt(3) + 1e-3)
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(se1*se1+se0*se0), std, 1e-12)
	assert.Equal(t, 5, n)
}

func TestNaiveATE_Errors(t *testing.T) {
	_, _, _, err := NaiveATE([]float64{1, 1}, []float64{3, 5})
	assert.ErrorIs(t, err, core.ErrEmptyGroup)

	_, _, _, err = NaiveATE([]float64{1, 0}, []float64{3})
	assert.ErrorIs(t, err, core.ErrRowMismatch)
}

func TestScorer_ATE(t *testing.T) {
	df := policyFrame()
	s := newConstantScorer(t, backdoorProblem("x"), df, 0.5, 0.5)

	ate, err := s.ATE(df)
	require.NoError(t, err)
	require.Len(t, ate.ByLevel, 1)
	assert.InDelta(t, 4.0-1.5, ate.ByLevel[0], 1e-12)

	_, std, n, err := NaiveATE([]float64{1, 0, 1, 0}, []float64{3, 1, 5, 2})
	require.NoError(t, err)
	assert.InDelta(t, std, ate.Std, 1e-12)
	assert.Equal(t, n, ate.N)
}

func TestScorer_ATE_MultiLevel(t *testing.T) {
	df := frame.MustNew([]string{"t", "y"}, [][]float64{
		{0, 1, 2, 0, 1, 2},
		{1, 3, 6, 1, 3, 6},
	})
	problem := backdoorProblem()
	problem.Multivalue = true
	s := newConstantScorer(t, problem, df, 0.4, 0.3, 0.3)

	ate, err := s.ATE(df)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 5}, ate.ByLevel, 1e-12)
	assert.True(t, math.IsNaN(ate.Std))
	assert.Zero(t, ate.N)
}

func TestScorer_ATE_IV(t *testing.T) {
	s, err := NewScorer(causal.Problem{
		Type:        causal.ProblemIV,
		Treatment:   "t",
		Outcome:     "y",
		Instruments: []string{"z"},
	}, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = s.ATE(policyFrame())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestScorer_GroupATE(t *testing.T) {
	df := frame.MustNew([]string{"t", "y", "x"}, [][]float64{
		{1, 0, 1, 0, 1, 0, 1, 0},
		{3, 1, 5, 2, 4, 0, 6, 2},
		{0, 0, 0, 0, 1, 1, 1, 1},
	})
	s := newConstantScorer(t, backdoorProblem("x"), df, 0.5, 0.5)

	groups, err := s.GroupATE(df, []float64{1, 1, 1, 1, 0, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, "all", groups[0].Policy)
	assert.InDelta(t, 4.5-1.25, groups[0].ATE, 1e-12)
	assert.Equal(t, 8, groups[0].N)

	assert.Equal(t, "0", groups[1].Policy)
	assert.InDelta(t, 5.0-1.0, groups[1].ATE, 1e-12)
	assert.Equal(t, 4, groups[1].N)

	assert.Equal(t, "1", groups[2].Policy)
	assert.InDelta(t, 4.0-1.5, groups[2].ATE, 1e-12)
}

func TestScorer_GroupATE_SkipsGroupsWithoutControl(t *testing.T) {
	df := policyFrame()
	s := newConstantScorer(t, backdoorProblem("x"), df, 0.5, 0.5)

	// policy 1 holds only treated rows
	groups, err := s.GroupATE(df, []float64{1, 0, 1, 0})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "all", groups[0].Policy)

	_, err = s.GroupATE(df, []float64{1})
	assert.ErrorIs(t, err, core.ErrRowMismatch)
}
