package weighting

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	apperrors "causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/internal/propensity"
	"causalscore/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// constantModel predicts the same class probabilities for every row
type constantModel struct {
	classes []float64
	probs   []float64
}

func (m constantModel) Classes() []float64 { return m.classes }

func (m constantModel) PredictProba(x *mat.Dense) (*mat.Dense, error) {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(m.classes), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, m.probs)
	}
	return out, nil
}

type mockFitter struct {
	mock.Mock
}

func (f *mockFitter) Fit(x *mat.Dense, treatment []float64) (ports.PropensityModel, error) {
	args := f.Called(x, treatment)
	model, _ := args.Get(0).(ports.PropensityModel)
	return model, args.Error(1)
}

func binaryProblem() causal.Problem {
	return causal.Problem{
		Type:            causal.ProblemBackdoor,
		Treatment:       "t",
		Outcome:         "y",
		EffectModifiers: []string{"x"},
	}
}

func TestFit_UsesPropensityFeatures(t *testing.T) {
	df := frame.MustNew([]string{"t", "y", "x"}, [][]float64{
		{0, 1, 0, 1},
		{1, 4, 2, 6},
		{0.1, 0.2, 0.3, 0.4},
	})
	fitter := &mockFitter{}
	fitter.On("Fit", mock.AnythingOfType("*mat.Dense"), []float64{0, 1, 0, 1}).
		Return(constantModel{classes: []float64{0, 1}, probs: []float64{0.5, 0.5}}, nil).Once()

	est, err := Fit(binaryProblem(), df, fitter)
	require.NoError(t, err)
	fitter.AssertExpectations(t)

	assert.Equal(t, []string{"x"}, est.Features())
	assert.Equal(t, []float64{1}, est.TreatmentValues())
	assert.NotNil(t, est.PropensityModel())

	// equal propensities reduce the weighted effect to a difference in means
	effect, err := est.Effect(df, nil)
	require.NoError(t, err)
	r, c := effect.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 1, c)
	assert.InDelta(t, 5.0-1.5, effect.At(0, 0), 1e-12)
	assert.Equal(t, effect.At(0, 0), effect.At(3, 0))
}

func TestFit_SetupErrors(t *testing.T) {
	noControl := frame.MustNew([]string{"t", "y", "x"}, [][]float64{{1, 2}, {0, 1}, {0, 1}})
	_, err := Fit(binaryProblem(), noControl, &mockFitter{})
	assert.ErrorIs(t, err, core.ErrPropensityNotFitted)
	assert.Equal(t, apperrors.CodeSetupError, apperrors.GetCode(err))

	df := frame.MustNew([]string{"t", "y", "x"}, [][]float64{{0, 1}, {0, 1}, {0, 1}})
	fitter := &mockFitter{}
	fitter.On("Fit", mock.Anything, mock.Anything).Return(nil, errors.New("solver exploded"))
	_, err = Fit(binaryProblem(), df, fitter)
	assert.Equal(t, apperrors.CodeSetupError, apperrors.GetCode(err))

	missing := binaryProblem()
	missing.EffectModifiers = []string{"nope"}
	_, err = Fit(missing, df, &mockFitter{})
	assert.True(t, core.IsNotFoundError(err))
}

func TestRealizedProbability(t *testing.T) {
	est := &Estimator{
		treatment:       "t",
		treatmentValues: []float64{1, 2},
		model:           constantModel{classes: []float64{0, 1, 2}, probs: []float64{0.2, 0.3, 0.5}},
	}
	proba := mat.NewDense(3, 3, []float64{
		0.2, 0.3, 0.5,
		0.6, 0.3, 0.1,
		0.1, 0.1, 0.8,
	})

	got, err := est.RealizedProbability(proba, []float64{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6, 0.1}, got)

	_, err = est.RealizedProbability(proba, []float64{0, 0, 7})
	assert.ErrorIs(t, err, core.ErrUnsupportedLevel)

	k, err := est.LevelColumn(2)
	require.NoError(t, err)
	assert.Equal(t, 2, k)
}

func TestEffect_ConfoundedAssignmentWithLogisticModel(t *testing.T) {
	const n = 2000
	rng := rand.New(rand.NewPCG(5, 5))
	tr := make([]float64, n)
	y := make([]float64, n)
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
		if rng.Float64() < 1/(1+math.Exp(-1.5*x[i])) {
			tr[i] = 1
		}
		y[i] = 3*x[i] + 2*tr[i] + 0.1*rng.NormFloat64()
	}
	df := frame.MustNew([]string{"t", "y", "x"}, [][]float64{tr, y, x})

	est, err := Fit(binaryProblem(), df, propensity.NewLogisticFitter(0, 0))
	require.NoError(t, err)

	effect, err := est.Effect(df, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, effect.At(0, 0), 0.6)
}
