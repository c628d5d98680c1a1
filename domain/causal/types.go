package causal

import (
	"fmt"
)

// ============================================================================
// PROBLEM TYPES
// ============================================================================

// ProblemType identifies how the causal effect was identified
type ProblemType string

const (
	ProblemBackdoor ProblemType = "backdoor"
	ProblemIV       ProblemType = "iv"
)

// Validate checks the problem type is one the scorer understands
func (p ProblemType) Validate() error {
	switch p {
	case ProblemBackdoor, ProblemIV:
		return nil
	default:
		return fmt.Errorf("unknown problem type %q", string(p))
	}
}

// ============================================================================
// METRIC NAMES
// ============================================================================

// MetricName is a key in a score record
type MetricName string

const (
	MetricEnergyDistance    MetricName = "energy_distance"
	MetricPSWEnergyDistance MetricName = "psw_energy_distance"
	MetricFrobeniusNorm     MetricName = "frobenius_norm"
	MetricCODEC             MetricName = "codec"
	MetricPolicyRisk        MetricName = "policy_risk"
	MetricERUPT             MetricName = "erupt"
	MetricNormERUPT         MetricName = "norm_erupt"
	MetricProbERUPT         MetricName = "prob_erupt"
	MetricQini              MetricName = "qini"
	MetricAUC               MetricName = "auc"
	MetricATE               MetricName = "ate"
	MetricATEStd            MetricName = "ate_std"
)

// lowerIsBetter is the fixed lookup used at ranking time. Every metric not
// listed here is ranked higher-is-better.
var lowerIsBetter = map[MetricName]bool{
	MetricEnergyDistance:    true,
	MetricPSWEnergyDistance: true,
	MetricFrobeniusNorm:     true,
	MetricCODEC:             true,
	MetricPolicyRisk:        true,
}

// LowerIsBetter reports whether smaller values of m indicate a better estimator
func LowerIsBetter(m MetricName) bool {
	return lowerIsBetter[m]
}

// String returns the metric key
func (m MetricName) String() string {
	return string(m)
}

// ============================================================================
// CAUSAL PROBLEM DESCRIPTION
// ============================================================================

// Problem describes the identified causal problem the scorer is built for.
// It carries column roles only; the training rows travel separately.
type Problem struct {
	Type            ProblemType `json:"type" yaml:"type"`
	Treatment       string      `json:"treatment" yaml:"treatment"`
	Outcome         string      `json:"outcome" yaml:"outcome"`
	EffectModifiers []string    `json:"effect_modifiers" yaml:"effect_modifiers"`
	CommonCauses    []string    `json:"common_causes,omitempty" yaml:"common_causes"`
	Instruments     []string    `json:"instruments,omitempty" yaml:"instruments"`
	Multivalue      bool        `json:"multivalue" yaml:"multivalue"` // More than one non-control treatment level
}

// PropensityFeatures returns effect modifiers followed by common causes,
// without duplicates
func (p Problem) PropensityFeatures() []string {
	seen := make(map[string]bool, len(p.EffectModifiers)+len(p.CommonCauses))
	out := make([]string, 0, len(p.EffectModifiers)+len(p.CommonCauses))
	for _, group := range [][]string{p.EffectModifiers, p.CommonCauses} {
		for _, name := range group {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Validate checks the problem has the columns every metric relies on
func (p Problem) Validate() error {
	if err := p.Type.Validate(); err != nil {
		return err
	}
	if p.Treatment == "" {
		return fmt.Errorf("treatment column is required")
	}
	if p.Outcome == "" {
		return fmt.Errorf("outcome column is required")
	}
	if p.Type == ProblemIV && len(p.Instruments) != 1 {
		return fmt.Errorf("iv problems need exactly one instrument, got %d", len(p.Instruments))
	}
	return nil
}
