package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCausalDataGenerator_Basic(t *testing.T) {
	data := NewCausalDataGenerator(DefaultCausalConfig()).Generate()

	assert.Equal(t, 400, data.Frame.Len())
	assert.Equal(t, []string{"t", "y", "x0", "x1", "x2"}, data.Frame.Columns())
	assert.Equal(t, []string{"x1", "x2"}, data.Problem.EffectModifiers)
	assert.False(t, data.Problem.Multivalue)

	levels, err := data.Frame.Distinct("t")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, levels)
}

func TestCausalDataGenerator_Deterministic(t *testing.T) {
	a := NewCausalDataGenerator(DefaultCausalConfig()).Generate()
	b := NewCausalDataGenerator(DefaultCausalConfig()).Generate()

	ya, _ := a.Frame.Column("y")
	yb, _ := b.Frame.Column("y")
	assert.Equal(t, ya, yb)
	assert.True(t, mat.Equal(a.CATE, b.CATE))
}

func TestCausalDataGenerator_MultiLevel(t *testing.T) {
	config := DefaultCausalConfig()
	config.Levels = 2
	config.RandomFlag = true
	data := NewCausalDataGenerator(config).Generate()

	levels, err := data.Frame.Distinct("t")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, levels)
	assert.True(t, data.Problem.Multivalue)
	assert.True(t, data.Frame.Has("random"))

	est, err := data.Estimate("truth", data.CATE)
	require.NoError(t, err)
	tt, err := est.EffectTT(data.Frame)
	require.NoError(t, err)
	tr, _ := data.Frame.Column("t")
	for i, v := range tr {
		if v == 2 {
			assert.Equal(t, data.CATE.At(i, 1), tt[i])
		}
		if v == 0 {
			assert.Equal(t, 0.0, tt[i])
		}
	}
}
