package ports

import (
	"gonum.org/v1/gonum/mat"
)

// PropensityModel maps feature rows to per-level treatment probabilities
type PropensityModel interface {
	// Classes lists the treatment levels in PredictProba column order
	Classes() []float64

	// PredictProba returns an n×len(Classes()) matrix of probabilities
	PredictProba(x *mat.Dense) (*mat.Dense, error)
}

// PropensityFitter fits a propensity model from features and treatment levels
type PropensityFitter interface {
	Fit(x *mat.Dense, treatment []float64) (PropensityModel, error)
}
