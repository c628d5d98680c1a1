package ports

import (
	"causalscore/domain/causal"
	"causalscore/internal/frame"

	"gonum.org/v1/gonum/mat"
)

// Estimate is a fitted causal-effect model under evaluation. The scorer only
// reads it; fitting happens in the model search that produced it.
type Estimate interface {
	// EstimatorName is the family name used to group records when ranking
	EstimatorName() string

	// IdentifierMethod reports how the effect was identified
	IdentifierMethod() causal.ProblemType

	TreatmentNames() []string
	OutcomeName() string
	EffectModifierNames() []string

	// InstrumentNames is empty for backdoor problems
	InstrumentNames() []string

	// Effect predicts the CATE for every row, one column per non-control
	// treatment level
	Effect(df *frame.Frame) (*mat.Dense, error)

	// EffectTT predicts the per-row effect of the realized treatment
	EffectTT(df *frame.Frame) ([]float64, error)
}
