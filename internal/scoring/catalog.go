package scoring

import (
	"sort"

	"causalscore/domain/causal"
	"causalscore/internal"
)

// SupportedMetrics lists the metrics valid for a problem. scoresOnly leaves
// out the ate report, which cannot be used for ranking.
func SupportedMetrics(problem causal.ProblemType, multivalue, scoresOnly bool) []causal.MetricName {
	var metrics []causal.MetricName
	switch problem {
	case causal.ProblemIV:
		metrics = []causal.MetricName{
			causal.MetricEnergyDistance,
			causal.MetricFrobeniusNorm,
			causal.MetricCODEC,
		}
	case causal.ProblemBackdoor:
		if multivalue {
			return []causal.MetricName{
				causal.MetricEnergyDistance,
				causal.MetricPSWEnergyDistance,
			}
		}
		metrics = []causal.MetricName{
			causal.MetricERUPT,
			causal.MetricNormERUPT,
			causal.MetricProbERUPT,
			causal.MetricPolicyRisk,
			causal.MetricQini,
			causal.MetricAUC,
			causal.MetricEnergyDistance,
			causal.MetricPSWEnergyDistance,
			causal.MetricFrobeniusNorm,
			causal.MetricCODEC,
		}
	default:
		return nil
	}
	if !scoresOnly {
		metrics = append(metrics, causal.MetricATE)
	}
	return metrics
}

// Catalog validates metric requests for one problem, warning about and
// replacing or dropping unsupported names
type Catalog struct {
	problem    causal.ProblemType
	multivalue bool
	logger     *internal.Logger
}

// NewCatalog creates a catalog; a nil logger selects internal.DefaultLogger
func NewCatalog(problem causal.ProblemType, multivalue bool, logger *internal.Logger) *Catalog {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Catalog{problem: problem, multivalue: multivalue, logger: logger}
}

// Multivalue reports whether the catalog is for several treatment levels
func (c *Catalog) Multivalue() bool { return c.multivalue }

// ResolveMetric returns m when it can rank estimators for this problem and
// energy_distance otherwise
func (c *Catalog) ResolveMetric(m causal.MetricName) causal.MetricName {
	metrics := SupportedMetrics(c.problem, c.multivalue, true)
	if !contains(metrics, m) {
		c.logger.Warn("Using energy_distance metric as %s is not in the list of supported metrics for this usecase (%v)", m, metrics)
		return causal.MetricEnergyDistance
	}
	return m
}

// ResolveReportedMetrics returns every supported metric when requested is
// nil. Otherwise it returns the sorted, de-duplicated union of requested and
// scoring with unsupported names dropped.
func (c *Catalog) ResolveReportedMetrics(requested []causal.MetricName, scoring causal.MetricName) []causal.MetricName {
	metrics := SupportedMetrics(c.problem, c.multivalue, false)
	if requested == nil {
		return metrics
	}

	seen := make(map[causal.MetricName]bool, len(requested)+1)
	var out []causal.MetricName
	for _, m := range append(append([]causal.MetricName(nil), requested...), scoring) {
		if seen[m] {
			continue
		}
		seen[m] = true
		if !contains(metrics, m) {
			c.logger.Warn("Dropping the metric %s for problem %s: must be one of %v", m, c.problem, metrics)
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func contains(metrics []causal.MetricName, m causal.MetricName) bool {
	for _, v := range metrics {
		if v == m {
			return true
		}
	}
	return false
}
