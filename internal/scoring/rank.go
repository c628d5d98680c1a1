package scoring

import (
	"fmt"
	"math"
	"sort"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/domain/score"
	"causalscore/internal/errors"
)

// BestScoreByEstimator picks the best record of every estimator family for
// metric: the minimum for lower-is-better metrics, else the maximum. Records
// without a value for metric are skipped, undefined ones rank last. A record with no estimator name
// makes the input malformed.
func BestScoreByEstimator(records map[string]*score.Record, metric causal.MetricName) (map[string]*score.Record, error) {
	keys := make([]string, 0, len(records))
	for key, rec := range records {
		if rec == nil || rec.EstimatorName == "" {
			return nil, &errors.AppError{
				Code:    errors.CodeMalformedInput,
				Message: fmt.Sprintf("malformed scores, record %q", key),
				Cause:   core.ErrMissingEstimator,
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lower := causal.LowerIsBetter(metric)
	best := make(map[string]*score.Record)
	bestValue := make(map[string]float64)
	for _, key := range keys {
		rec := records[key]
		res, ok := rec.Metrics[metric]
		if !ok || !res.HasValue() {
			continue
		}
		v := RankValue(res, metric)
		name := rec.EstimatorName
		current, seen := bestValue[name]
		if !seen || Better(v, current, lower) {
			best[name] = rec
			bestValue[name] = v
		}
	}
	return best, nil
}

// RankValue is the value res is ranked by. Undefined results are the worst
// possible value in the metric's direction.
func RankValue(res score.Result, metric causal.MetricName) float64 {
	if res.Status != score.StatusUndefined {
		return res.Value
	}
	if causal.LowerIsBetter(metric) {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// Better reports whether a ranks strictly ahead of b
func Better(a, b float64, lower bool) bool {
	if lower {
		return a < b
	}
	return a > b
}
