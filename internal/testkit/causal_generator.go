package testkit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"causalscore/adapters/estimate"
	"causalscore/domain/causal"
	"causalscore/internal/frame"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CausalGeneratorConfig configures the synthetic causal data generator
type CausalGeneratorConfig struct {
	Rows        int     `json:"rows"`
	Features    int     `json:"features"`     // Columns x0, x1, ...
	Levels      int     `json:"levels"`       // Non-control treatment levels
	Confounding float64 `json:"confounding"`  // Slope of the assignment logit on x0
	EffectBase  float64 `json:"effect_base"`  // Effect at x0 = 0
	EffectSlope float64 `json:"effect_slope"` // Effect heterogeneity along x1
	Noise       float64 `json:"noise"`
	RandomFlag  bool    `json:"random_flag"` // Adds a "random" experiment flag column
	Seed        uint64  `json:"seed"`
}

// DefaultCausalConfig returns a binary-treatment problem with confounding on
// x0 and an effect that grows along x1
func DefaultCausalConfig() CausalGeneratorConfig {
	return CausalGeneratorConfig{
		Rows:        400,
		Features:    3,
		Levels:      1,
		Confounding: 0.8,
		EffectBase:  1,
		EffectSlope: 1.5,
		Noise:       0.5,
		Seed:        42,
	}
}

// Dataset is one generated sample together with its ground truth
type Dataset struct {
	Frame   *frame.Frame
	CATE    *mat.Dense // Rows × Levels true effects against control
	Problem causal.Problem
}

// CausalDataGenerator generates confounded observational data
type CausalDataGenerator struct {
	config CausalGeneratorConfig
	rng    *rand.Rand
}

// NewCausalDataGenerator creates a generator
func NewCausalDataGenerator(config CausalGeneratorConfig) *CausalDataGenerator {
	return &CausalDataGenerator{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}
}

// Generate draws config.Rows rows. Treatment t is 0 for control and 1..Levels
// otherwise; outcome y is linear in the features plus the level's effect.
func (g *CausalDataGenerator) Generate() *Dataset {
	c := g.config
	if c.Features < 2 {
		c.Features = 2
	}
	if c.Levels < 1 {
		c.Levels = 1
	}

	names := make([]string, c.Features)
	x := make([][]float64, c.Features)
	for j := range x {
		names[j] = fmt.Sprintf("x%d", j)
		x[j] = make([]float64, c.Rows)
	}
	t := make([]float64, c.Rows)
	y := make([]float64, c.Rows)
	random := make([]float64, c.Rows)
	cate := mat.NewDense(c.Rows, c.Levels, nil)

	logits := make([]float64, c.Levels+1)
	for i := 0; i < c.Rows; i++ {
		for j := range x {
			x[j][i] = g.rng.NormFloat64()
		}
		for k := 1; k <= c.Levels; k++ {
			logits[k] = c.Confounding * x[0][i] / float64(k)
		}
		t[i] = float64(g.draw(logits))

		tau := c.EffectBase + c.EffectSlope*x[1][i]
		for k := 1; k <= c.Levels; k++ {
			cate.Set(i, k-1, tau*float64(k))
		}
		y[i] = 0.5*x[0][i] - 0.25*x[1][i] + g.config.Noise*g.rng.NormFloat64()
		if t[i] != 0 {
			y[i] += cate.At(i, int(t[i])-1)
		}
		if g.rng.Float64() < 0.5 {
			random[i] = 1
		}
	}

	cols := append([][]float64{t, y}, x...)
	colNames := append([]string{"t", "y"}, names...)
	if c.RandomFlag {
		cols = append(cols, random)
		colNames = append(colNames, "random")
	}
	return &Dataset{
		Frame: frame.MustNew(colNames, cols),
		CATE:  cate,
		Problem: causal.Problem{
			Type:            causal.ProblemBackdoor,
			Treatment:       "t",
			Outcome:         "y",
			EffectModifiers: names[1:],
			CommonCauses:    names[:1],
			Multivalue:      c.Levels > 1,
		},
	}
}

// draw samples a category from softmax(logits)
func (g *CausalDataGenerator) draw(logits []float64) int {
	lse := floats.LogSumExp(logits)
	u := g.rng.Float64()
	var acc float64
	for k, l := range logits {
		acc += math.Exp(l - lse)
		if u < acc {
			return k
		}
	}
	return len(logits) - 1
}

// Estimate wraps a CATE matrix for d's rows as a precomputed estimate. The
// realised-treatment effect is read from the matrix at each row's level.
func (d *Dataset) Estimate(name string, cate *mat.Dense) (*estimate.Precomputed, error) {
	t, err := d.Frame.Column(d.Problem.Treatment)
	if err != nil {
		return nil, err
	}
	_, k := cate.Dims()
	tt := make([]float64, len(t))
	for i, v := range t {
		if v != 0 {
			tt[i] = cate.At(i, int(v)-1)
		}
	}
	columns := make([]string, k)
	for j := range columns {
		columns[j] = fmt.Sprintf("cate_%d", j+1)
	}
	return estimate.New(estimate.Spec{
		Name:          name,
		Method:        d.Problem.Type,
		Treatment:     d.Problem.Treatment,
		Outcome:       d.Problem.Outcome,
		Modifiers:     d.Problem.EffectModifiers,
		EffectColumns: columns,
	}, cate, tt)
}

// NoisyCATE returns the true CATE plus Gaussian noise of the given scale
func (d *Dataset) NoisyCATE(scale float64, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	r, c := d.CATE.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 { return v + scale*rng.NormFloat64() }, d.CATE)
	return out
}
