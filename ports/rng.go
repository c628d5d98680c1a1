package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(name string, seed uint64) (*rand.Rand, error)

	// Stream creates a deterministic RNG stream for one metric of one estimator,
	// so repeated scoring of the same candidate gives identical results
	Stream(estimatorName, metric string, baseSeed uint64) (*rand.Rand, error)
}
