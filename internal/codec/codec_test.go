package codec

import (
	"math"
	"math/rand/v2"
	"testing"

	"causalscore/domain/core"
	"causalscore/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func column(v []float64) *mat.Dense {
	return mat.NewDense(len(v), 1, append([]float64(nil), v...))
}

func normals(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * scale
	}
	return out
}

func TestMaxRanks(t *testing.T) {
	assert.Equal(t, []float64{2, 4, 2, 5, 4}, maxRanks([]float64{1, 3, 1, 7, 3}))
	assert.Equal(t, []float64{5, 3, 5, 1, 3}, upperCounts([]float64{1, 3, 1, 7, 3}))
}

func TestNearestNeighbours_Simple(t *testing.T) {
	x := column([]float64{0, 1, 10, 11.5, 30})
	nn := nearestNeighbours(x, seeded(1))
	assert.Equal(t, []int{1, 0, 3, 2, 3}, nn)
}

func TestNearestNeighbours_TieDrawsFromAllClosest(t *testing.T) {
	x := column([]float64{0, 1, 2})
	seen := map[int]bool{}
	for seed := uint64(0); seed < 64; seed++ {
		nn := nearestNeighbours(x, seeded(seed))
		assert.Equal(t, 1, nn[0])
		assert.Equal(t, 1, nn[2])
		require.Contains(t, []int{0, 2}, nn[1])
		seen[nn[1]] = true
	}
	assert.Len(t, seen, 2, "tie should be broken both ways across seeds")
}

func TestNearestNeighbours_DuplicatesStayInGroup(t *testing.T) {
	x := column([]float64{5, 5, 5, 9, 9.5})
	seen := map[int]bool{}
	for seed := uint64(0); seed < 64; seed++ {
		nn := nearestNeighbours(x, seeded(seed))
		for i := 0; i < 3; i++ {
			assert.NotEqual(t, i, nn[i], "neighbour must not be the point itself")
			assert.Less(t, nn[i], 3, "duplicate must pick from its own group")
		}
		seen[nn[0]] = true
		assert.Equal(t, 4, nn[3])
		assert.Equal(t, 3, nn[4])
	}
	assert.Len(t, seen, 2)
}

func TestNearestNeighbours_MultiDimensional(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		5, 5,
		5, 7,
	})
	nn := nearestNeighbours(x, seeded(3))
	assert.Equal(t, []int{1, 0, 3, 2}, nn)
}

func TestCoefficient_FunctionOfXIsOne(t *testing.T) {
	// Every Y value repeats, so each row's X-neighbour is a duplicate with the
	// same rank and S is exactly 0.
	y := make([]float64, 60)
	for i := range y {
		y[i] = float64(i % 6)
	}
	z := column(normals(seeded(9), len(y), 1))

	got, err := Coefficient(y, z, column(y), WithRand(seeded(4)))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestCoefficient_ConstantY(t *testing.T) {
	y := make([]float64, 20)
	z := column(normals(seeded(2), 20, 1))
	x := column(normals(seeded(3), 20, 1))

	got, err := Coefficient(y, z, x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = Coefficient(y, z, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestCoefficient_DependenceExtremes(t *testing.T) {
	const n = 400
	rng := seeded(11)
	y := normals(rng, n, 1)
	x := column(normals(rng, n, 1))

	noisyCopy := make([]float64, n)
	for i := range y {
		noisyCopy[i] = y[i] + 0.01*rng.NormFloat64()
	}
	unrelated := normals(rng, n, 1)

	tests := []struct {
		name   string
		z      []float64
		x      *mat.Dense
		lo, hi float64
	}{
		{"z tracks y given x", noisyCopy, x, 0.7, 1 + 1e-9},
		{"z tracks y unconditionally", noisyCopy, nil, 0.8, 1 + 1e-9},
		{"z independent given x", unrelated, x, -0.25, 0.25},
		{"z independent unconditionally", unrelated, nil, -0.25, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coefficient(y, column(tt.z), tt.x, WithRand(seeded(5)))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, tt.lo)
			assert.LessOrEqual(t, got, tt.hi)
		})
	}
}

func TestCoefficient_InvariantUnderMonotoneTransform(t *testing.T) {
	const n = 120
	rng := seeded(21)
	y := normals(rng, n, 1)
	z := make([]float64, n)
	for i := range y {
		z[i] = y[i]*y[i] + 0.3*rng.NormFloat64()
	}
	x := column(normals(rng, n, 1))

	transformed := make([]float64, n)
	for i, v := range y {
		transformed[i] = math.Exp(3*v) + 7
	}

	base, err := Coefficient(y, column(z), x, WithRand(seeded(8)))
	require.NoError(t, err)
	moved, err := Coefficient(transformed, column(z), x, WithRand(seeded(8)))
	require.NoError(t, err)

	assert.Equal(t, base, moved)
}

func TestCoefficient_SetupErrors(t *testing.T) {
	y := []float64{1, 2, 3}

	_, err := Coefficient(y, column([]float64{1, 2}), nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSetupError, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrRowMismatch)

	_, err = Coefficient(y, column(y), column([]float64{1}))
	assert.ErrorIs(t, err, core.ErrRowMismatch)

	_, err = Coefficient([]float64{1}, column([]float64{1}), nil)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = Coefficient(y, nil, nil)
	assert.Equal(t, errors.CodeSetupError, errors.GetCode(err))
}

func TestCoefficient_DropsNonFiniteRows(t *testing.T) {
	y := []float64{1, 2, math.NaN(), 4, 5, 6}
	z := column([]float64{1, 2, 3, math.Inf(1), 5, 6})

	got, err := Coefficient(y, z, nil, WithRand(seeded(1)))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(got))

	clean, err := Coefficient([]float64{1, 2, 5, 6}, column([]float64{1, 2, 5, 6}), nil, WithRand(seeded(1)))
	require.NoError(t, err)
	assert.Equal(t, clean, got)
}
