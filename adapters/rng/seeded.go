package rng

import (
	"math/rand/v2"

	"causalscore/ports"
)

// Seeded implements ports.RNGPort with PCG streams derived from string keys
type Seeded struct{}

var _ ports.RNGPort = Seeded{}

// SeededStream creates a deterministic random number generator for a named operation
func (Seeded) SeededStream(name string, seed uint64) (*rand.Rand, error) {
	return rand.New(rand.NewPCG(seed, uint64(hashString(name)))), nil
}

// Stream derives a generator from the estimator and metric names so each
// (estimator, metric) pair sees its own reproducible sequence
func (Seeded) Stream(estimatorName, metric string, baseSeed uint64) (*rand.Rand, error) {
	seed := baseSeed
	if estimatorName != "" {
		seed += uint64(hashString(estimatorName))
	}
	if metric != "" {
		seed += uint64(hashString(metric))
	}
	return rand.New(rand.NewPCG(seed, baseSeed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
