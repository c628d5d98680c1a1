package scoring

import (
	"bytes"
	"io"
	"testing"

	"causalscore/adapters/estimate"
	"causalscore/domain/causal"
	"causalscore/internal"
	"causalscore/internal/frame"
	"causalscore/internal/testkit"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(internal.LogLevelError, io.Discard)
}

func bufferLogger(buf *bytes.Buffer) *internal.Logger {
	return internal.NewLoggerTo(internal.LogLevelWarn, buf)
}

func backdoorProblem(modifiers ...string) causal.Problem {
	return causal.Problem{
		Type:            causal.ProblemBackdoor,
		Treatment:       "t",
		Outcome:         "y",
		EffectModifiers: modifiers,
	}
}

// newConstantScorer fits a scorer whose propensity model predicts probs for
// every row
func newConstantScorer(t *testing.T, problem causal.Problem, train *frame.Frame, probs ...float64) *Scorer {
	t.Helper()
	s, err := NewScorer(problem, train,
		WithFitter(testkit.ConstantFitter{Probabilities: probs}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return s
}

// fixedEstimate wraps a single-level CATE vector. effectTT defaults to zero.
func fixedEstimate(t *testing.T, name string, problem causal.Problem, cate, effectTT []float64) *estimate.Precomputed {
	t.Helper()
	if effectTT == nil {
		effectTT = make([]float64, len(cate))
	}
	est, err := estimate.New(estimate.Spec{
		Name:          name,
		Method:        problem.Type,
		Treatment:     problem.Treatment,
		Outcome:       problem.Outcome,
		Modifiers:     problem.EffectModifiers,
		Instruments:   problem.Instruments,
		EffectColumns: []string{"cate"},
	}, mat.NewDense(len(cate), 1, append([]float64(nil), cate...)), effectTT)
	require.NoError(t, err)
	return est
}

// policyFrame is four rows, two treated, with outcome 3, 1, 5, 2
func policyFrame() *frame.Frame {
	return frame.MustNew([]string{"t", "y", "x"}, [][]float64{
		{1, 0, 1, 0},
		{3, 1, 5, 2},
		{0.1, 0.2, 0.3, 0.4},
	})
}

func newCausalData(t *testing.T, levels int) *testkit.Dataset {
	t.Helper()
	config := testkit.DefaultCausalConfig()
	config.Levels = levels
	return testkit.NewCausalDataGenerator(config).Generate()
}

func mustVector(t *testing.T, m *mat.Dense) []float64 {
	t.Helper()
	v, err := cateVector(m)
	require.NoError(t, err)
	return v
}
