// Package propensity fits treatment-assignment models: the probability of
// each treatment level given a row's features.
package propensity

import (
	"fmt"
	"math"

	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultL2            = 1e-3
	DefaultMaxIterations = 500
)

// LogisticFitter fits a multinomial logistic regression with an L2 penalty.
// Features are standardised internally; the first class is the reference.
type LogisticFitter struct {
	L2            float64
	MaxIterations int
}

// NewLogisticFitter creates a fitter with the given penalty and iteration cap.
// Non-positive values select the defaults.
func NewLogisticFitter(l2 float64, maxIterations int) *LogisticFitter {
	if l2 <= 0 {
		l2 = DefaultL2
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &LogisticFitter{L2: l2, MaxIterations: maxIterations}
}

// LogisticModel is a fitted LogisticFitter. It is read-only and safe for
// concurrent use.
type LogisticModel struct {
	classes []float64
	mean    []float64
	scale   []float64
	coef    *mat.Dense // (K−1)×(p+1), intercept in column 0
}

var _ ports.PropensityFitter = (*LogisticFitter)(nil)
var _ ports.PropensityModel = (*LogisticModel)(nil)

// Fit learns P(treatment = level | x)
func (f *LogisticFitter) Fit(x *mat.Dense, treatment []float64) (ports.PropensityModel, error) {
	n := len(treatment)
	if n == 0 || x == nil {
		return nil, errors.SetupError("propensity fit needs rows and at least one feature column", core.ErrInsufficientData)
	}
	r, p := x.Dims()
	if r != n {
		return nil, errors.SetupError("propensity fit", core.NewRowMismatchError("features", n, r))
	}

	classes := frame.DistinctValues(treatment)
	if len(classes) < 2 {
		return nil, errors.SetupError(fmt.Sprintf("propensity fit needs two treatment levels, got %d", len(classes)), core.ErrPropensityNotFitted)
	}
	labels := make([]int, n)
	for i, t := range treatment {
		for k, c := range classes {
			if t == c {
				labels[i] = k
				break
			}
		}
	}

	m := &LogisticModel{classes: classes, mean: make([]float64, p), scale: make([]float64, p)}
	design := mat.NewDense(n, p+1, nil)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.mean[j], m.scale[j] = mean, std
	}
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			design.Set(i, j+1, (x.At(i, j)-m.mean[j])/m.scale[j])
		}
	}

	k := len(classes) - 1
	obj := &objective{design: design, labels: labels, k: k, l2: f.L2}
	problem := optimize.Problem{Func: obj.loss, Grad: obj.grad}
	settings := &optimize.Settings{
		MajorIterations:   f.MaxIterations,
		GradientThreshold: 1e-6,
	}

	result, err := optimize.Minimize(problem, make([]float64, k*(p+1)), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, errors.SetupError("propensity optimisation failed", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.SetupError("propensity optimisation diverged", core.ErrPropensityNotFitted)
		}
	}

	m.coef = mat.NewDense(k, p+1, append([]float64(nil), result.X...))
	return m, nil
}

// Classes lists treatment levels in PredictProba column order
func (m *LogisticModel) Classes() []float64 {
	return append([]float64(nil), m.classes...)
}

// PredictProba returns softmax probabilities, one column per class
func (m *LogisticModel) PredictProba(x *mat.Dense) (*mat.Dense, error) {
	p := len(m.mean)
	if x == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("propensity model expects %d features, got none", p))
	}
	n, c := x.Dims()
	if c != p {
		return nil, errors.InvalidInput(fmt.Sprintf("propensity model expects %d features, got %d", p, c))
	}

	out := mat.NewDense(n, len(m.classes), nil)
	row := make([]float64, p+1)
	logits := make([]float64, len(m.classes))
	for i := 0; i < n; i++ {
		row[0] = 1
		for j := 0; j < p; j++ {
			row[j+1] = (x.At(i, j) - m.mean[j]) / m.scale[j]
		}
		m.softmax(row, logits)
		out.SetRow(i, logits)
	}
	return out, nil
}

// softmax writes class probabilities for one design row into dst
func (m *LogisticModel) softmax(row, dst []float64) {
	dst[0] = 0
	for k := 1; k < len(dst); k++ {
		dst[k] = floats.Dot(m.coef.RawRowView(k-1), row)
	}
	lse := floats.LogSumExp(dst)
	for k := range dst {
		dst[k] = math.Exp(dst[k] - lse)
	}
}

// objective is the mean negative log-likelihood plus L2/2·‖β‖², intercepts
// unpenalised
type objective struct {
	design *mat.Dense
	labels []int
	k      int
	l2     float64
}

func (o *objective) loss(beta []float64) float64 {
	n, q := o.design.Dims()
	logits := make([]float64, o.k+1)
	var nll float64
	for i := 0; i < n; i++ {
		o.logits(beta, o.design.RawRowView(i), logits)
		nll += floats.LogSumExp(logits) - logits[o.labels[i]]
	}
	var pen float64
	for c := 0; c < o.k; c++ {
		for j := 1; j < q; j++ {
			b := beta[c*q+j]
			pen += b * b
		}
	}
	return nll/float64(n) + 0.5*o.l2*pen
}

func (o *objective) grad(dst, beta []float64) {
	n, q := o.design.Dims()
	for i := range dst {
		dst[i] = 0
	}
	logits := make([]float64, o.k+1)
	for i := 0; i < n; i++ {
		row := o.design.RawRowView(i)
		o.logits(beta, row, logits)
		lse := floats.LogSumExp(logits)
		for c := 1; c <= o.k; c++ {
			r := math.Exp(logits[c] - lse)
			if o.labels[i] == c {
				r--
			}
			floats.AddScaled(dst[(c-1)*q:c*q], r/float64(n), row)
		}
	}
	for c := 0; c < o.k; c++ {
		for j := 1; j < q; j++ {
			dst[c*q+j] += o.l2 * beta[c*q+j]
		}
	}
}

func (o *objective) logits(beta, row, dst []float64) {
	q := len(row)
	dst[0] = 0
	for c := 1; c <= o.k; c++ {
		dst[c] = floats.Dot(beta[(c-1)*q:c*q], row)
	}
}
