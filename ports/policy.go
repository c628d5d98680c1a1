package ports

import (
	"causalscore/internal/frame"
)

// PolicyEvaluator scores treatment policies from observational data by
// propensity reweighting (ERUPT)
type PolicyEvaluator interface {
	// Weights returns per-row weights for rows whose treatment matches policy,
	// zero elsewhere
	Weights(df *frame.Frame, policy []float64) ([]float64, error)

	// Score returns the expected outcome under the policy
	Score(df *frame.Frame, outcome, policy []float64) (float64, error)

	// ProbabilisticScore averages Score over policies sampled from per-row
	// effect means and standard deviations
	ProbabilisticScore(df *frame.Frame, outcome, mean, std []float64) (float64, error)
}
