// Package erupt evaluates treatment policies by ERUPT (expected response
// under proposed treatments): outcomes of rows whose realised treatment
// agrees with the policy, reweighted by inverse propensity.
package erupt

import (
	"fmt"

	"causalscore/adapters/rng"
	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultClip       = 0.05
	DefaultIterations = 100
	DefaultSeed       = 42
)

// Propensities predicts per-level treatment probabilities for the rows of a
// frame, one column per entry of the evaluator's classes
type Propensities func(df *frame.Frame) (*mat.Dense, error)

// Evaluator implements ports.PolicyEvaluator. It holds no mutable state and
// is safe for concurrent use.
type Evaluator struct {
	treatment    string
	columns      map[float64]int
	propensities Propensities
	clip         float64
	removeTiny   bool
	iterations   int
	seed         uint64
	rng          ports.RNGPort
}

var _ ports.PolicyEvaluator = (*Evaluator)(nil)

// Option configures an Evaluator
type Option func(*Evaluator)

// WithClip sets the propensity below which rows are dropped (default 0.05)
func WithClip(clip float64) Option {
	return func(e *Evaluator) { e.clip = clip }
}

// WithRemoveTiny toggles dropping rows with propensity below the clip
func WithRemoveTiny(remove bool) Option {
	return func(e *Evaluator) { e.removeTiny = remove }
}

// WithIterations sets the Monte Carlo draws of ProbabilisticScore
func WithIterations(n int) Option {
	return func(e *Evaluator) { e.iterations = n }
}

// WithRNG sets the random source of ProbabilisticScore
func WithRNG(port ports.RNGPort, seed uint64) Option {
	return func(e *Evaluator) {
		e.rng = port
		e.seed = seed
	}
}

// New creates an evaluator for the given treatment column. classes names the
// treatment level of each column returned by propensities.
func New(treatment string, classes []float64, propensities Propensities, opts ...Option) *Evaluator {
	e := &Evaluator{
		treatment:    treatment,
		columns:      make(map[float64]int, len(classes)),
		propensities: propensities,
		clip:         DefaultClip,
		removeTiny:   true,
		iterations:   DefaultIterations,
		seed:         DefaultSeed,
		rng:          rng.Seeded{},
	}
	for k, c := range classes {
		e.columns[c] = k
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns 1/p(realised level) for rows where the policy agrees with
// the realised treatment, zero elsewhere, scaled to sum to the row count
func (e *Evaluator) Weights(df *frame.Frame, policy []float64) ([]float64, error) {
	t, proba, err := e.inputs(df)
	if err != nil {
		return nil, err
	}
	return e.weights(t, proba, policy)
}

// Score returns mean(weights · outcome) for the policy
func (e *Evaluator) Score(df *frame.Frame, outcome, policy []float64) (float64, error) {
	if len(outcome) != df.Len() {
		return 0, core.NewRowMismatchError("outcome", df.Len(), len(outcome))
	}
	w, err := e.Weights(df, policy)
	if err != nil {
		return 0, err
	}
	return floats.Dot(w, outcome) / float64(len(w)), nil
}

// ProbabilisticScore draws per-row effects from N(mean, std), treats rows
// whose draw is positive and averages the policy score over the draws. Draws
// that no row follows are skipped.
func (e *Evaluator) ProbabilisticScore(df *frame.Frame, outcome, mean, std []float64) (float64, error) {
	n := df.Len()
	if len(outcome) != n {
		return 0, core.NewRowMismatchError("outcome", n, len(outcome))
	}
	if len(mean) != n || len(std) != n {
		return 0, core.NewRowMismatchError("effect moments", n, min(len(mean), len(std)))
	}
	t, proba, err := e.inputs(df)
	if err != nil {
		return 0, err
	}
	src, err := e.rng.SeededStream("prob_erupt", e.seed)
	if err != nil {
		return 0, err
	}

	policy := make([]float64, n)
	var total float64
	var used int
	for it := 0; it < e.iterations; it++ {
		for i := range policy {
			draw := distuv.Normal{Mu: mean[i], Sigma: std[i], Src: src}.Rand()
			policy[i] = 0
			if draw > 0 {
				policy[i] = 1
			}
		}
		w, err := e.weights(t, proba, policy)
		if err != nil {
			if errors.GetCode(err) == errors.CodeDegenerateInput {
				continue
			}
			return 0, err
		}
		total += floats.Dot(w, outcome) / float64(n)
		used++
	}
	if used == 0 {
		return 0, errors.DegenerateInput("no sampled policy was followed by any row")
	}
	return total / float64(used), nil
}

func (e *Evaluator) inputs(df *frame.Frame) ([]float64, *mat.Dense, error) {
	t, err := df.Column(e.treatment)
	if err != nil {
		return nil, nil, err
	}
	proba, err := e.propensities(df)
	if err != nil {
		return nil, nil, errors.Wrap(err, "erupt propensities")
	}
	if r, _ := proba.Dims(); r != len(t) {
		return nil, nil, core.NewRowMismatchError("erupt propensities", len(t), r)
	}
	return t, proba, nil
}

func (e *Evaluator) weights(t []float64, proba *mat.Dense, policy []float64) ([]float64, error) {
	n := len(t)
	if len(policy) != n {
		return nil, core.NewRowMismatchError("policy", n, len(policy))
	}

	w := make([]float64, n)
	for i := range w {
		k, ok := e.columns[t[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %g", core.ErrUnsupportedLevel, t[i])
		}
		if policy[i] != t[i] {
			continue
		}
		p := proba.At(i, k)
		if p <= 0 || (e.removeTiny && p < e.clip) {
			continue
		}
		w[i] = 1 / p
	}

	sum := floats.Sum(w)
	if sum == 0 {
		return nil, errors.DegenerateInput("no row follows the proposed policy")
	}
	floats.Scale(float64(n)/sum, w)
	return w, nil
}
