package score

import (
	"encoding/json"
	"math"
	"sort"

	"causalscore/domain/causal"

	"github.com/google/uuid"
)

// ============================================================================
// METRIC RESULTS
// ============================================================================

// Status separates "computed but undefined" from "failed to compute"
type Status string

const (
	StatusComputed    Status = "computed"
	StatusUndefined   Status = "undefined"    // degenerate input, value is ±Inf
	StatusNotComputed Status = "not_computed" // the metric failed; Err says why
)

// Result is the outcome of one metric for one estimator
type Result struct {
	Value  float64
	Status Status
	Err    error
}

// Computed wraps a metric value. Non-finite values are reported as undefined;
// -Inf keeps its sign, NaN becomes +Inf.
func Computed(v float64) Result {
	if math.IsInf(v, -1) {
		return Result{Value: v, Status: StatusUndefined}
	}
	if math.IsInf(v, 1) || math.IsNaN(v) {
		return Undefined()
	}
	return Result{Value: v, Status: StatusComputed}
}

// Undefined is the +Inf sentinel for degenerate inputs
func Undefined() Result {
	return Result{Value: math.Inf(1), Status: StatusUndefined}
}

// NotComputed records a metric failure without aborting the record
func NotComputed(err error) Result {
	return Result{Value: math.NaN(), Status: StatusNotComputed, Err: err}
}

// HasValue reports whether the result carries a value usable for ranking
func (r Result) HasValue() bool {
	return r.Status == StatusComputed || r.Status == StatusUndefined
}

type resultJSON struct {
	Value  *float64 `json:"value"` // null when undefined or not computed
	Status Status   `json:"status"`
	Error  string   `json:"error,omitempty"`
}

// MarshalJSON encodes +Inf as a null value with status "undefined"
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.Status}
	if r.Status == StatusComputed {
		v := r.Value
		out.Value = &v
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores sentinels from the status field
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusComputed:
		if in.Value == nil {
			*r = Undefined()
			return nil
		}
		*r = Computed(*in.Value)
	case StatusUndefined:
		*r = Undefined()
	default:
		*r = NotComputed(jsonError(in.Error))
	}
	return nil
}

type jsonError string

func (e jsonError) Error() string { return string(e) }

// ============================================================================
// SCORE RECORD
// ============================================================================

// Values is the per-row diagnostic table attached to backdoor records
type Values struct {
	Treatment  []float64 `json:"treatment"`
	Outcome    []float64 `json:"outcome"`
	P          []float64 `json:"p,omitempty"`           // Propensity of treatment level 1
	Policy     []float64 `json:"policy,omitempty"`      // 1 where CATE > 0
	NormPolicy []float64 `json:"norm_policy,omitempty"` // 1 where CATE > simple ATE
	Weights    []float64 `json:"weights,omitempty"`     // ERUPT weights
}

// Len returns the row count shared by all columns
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Treatment)
}

// Consistent reports whether the treatment and outcome columns have n rows
// and every diagnostic column present has n rows too. Diagnostic columns are
// absent for multi-level treatments.
func (v *Values) Consistent(n int) bool {
	if len(v.Treatment) != n || len(v.Outcome) != n {
		return false
	}
	for _, col := range [][]float64{v.P, v.Policy, v.NormPolicy, v.Weights} {
		if col != nil && len(col) != n {
			return false
		}
	}
	return true
}

// GroupATE is one row of a per-policy ATE breakdown
type GroupATE struct {
	Policy string  `json:"policy"`
	ATE    float64 `json:"ate"`
	Std    float64 `json:"std"`
	N      int     `json:"n"`
}

// Record is the scoring outcome for one (estimate, dataset) pair. It is not
// modified after MakeScores returns it.
type Record struct {
	ID            uuid.UUID                    `json:"id"`
	EstimatorName string                       `json:"estimator_name"`
	Problem       causal.ProblemType           `json:"problem"`
	Metrics       map[causal.MetricName]Result `json:"metrics"`
	ATE           []float64                    `json:"ate_by_level,omitempty"` // Weighting-estimator ATE per treatment level
	N             int                          `json:"n"`
	Values        *Values                      `json:"values,omitempty"`
	GroupATE      []GroupATE                   `json:"group_ate,omitempty"`
}

// NewRecord starts an empty record for an estimator
func NewRecord(estimatorName string, problem causal.ProblemType) *Record {
	return &Record{
		ID:            uuid.New(),
		EstimatorName: estimatorName,
		Problem:       problem,
		Metrics:       make(map[causal.MetricName]Result),
	}
}

// Get returns the value of a metric that was computed or is undefined
func (r *Record) Get(m causal.MetricName) (float64, bool) {
	res, ok := r.Metrics[m]
	if !ok || !res.HasValue() {
		return 0, false
	}
	return res.Value, true
}

// Scalars flattens the record to name → value, leaving out failed metrics
func (r *Record) Scalars() map[string]float64 {
	out := make(map[string]float64, len(r.Metrics))
	for name, res := range r.Metrics {
		if res.HasValue() {
			out[string(name)] = res.Value
		}
	}
	return out
}

// Failed lists metrics that could not be computed, sorted by name
func (r *Record) Failed() []causal.MetricName {
	var out []causal.MetricName
	for name, res := range r.Metrics {
		if res.Status == StatusNotComputed {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
