// Package estimate adapts effects computed outside this module to the
// ports.Estimate interface.
package estimate

import (
	"fmt"
	"math"

	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/gonum/mat"
)

// IndexColumn carries the original row number of every row so derived
// frames can be matched back to the precomputed effects
const IndexColumn = "index"

var validate = validator.New()

// Spec describes a precomputed estimate
type Spec struct {
	Name           string             `validate:"required"`
	Method         causal.ProblemType `validate:"required,oneof=backdoor iv"`
	Treatment      string             `validate:"required"`
	Outcome        string             `validate:"required"`
	Modifiers      []string           `validate:"dive,required"`
	Instruments    []string           `validate:"dive,required"`
	EffectColumns  []string           `validate:"required,min=1,dive,required"` // One per non-control treatment level
	EffectTTColumn string             // Derived from EffectColumns when empty
}

// Precomputed serves effects computed elsewhere for the rows of the frame it
// was built from. Frames carrying IndexColumn are matched row by row through
// it; other frames must have the original row count.
type Precomputed struct {
	spec     Spec
	effect   *mat.Dense
	effectTT []float64
}

var _ ports.Estimate = (*Precomputed)(nil)

// New validates spec and wraps an n×k effect matrix and its per-row
// realised-treatment effect
func New(spec Spec, effect *mat.Dense, effectTT []float64) (*Precomputed, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	if effect == nil {
		return nil, errors.InvalidInput("precomputed estimate needs effect rows")
	}
	r, c := effect.Dims()
	if c != len(spec.EffectColumns) {
		return nil, errors.InvalidInput(fmt.Sprintf("effect has %d columns for %d effect column names", c, len(spec.EffectColumns)))
	}
	if len(effectTT) != r {
		return nil, core.NewRowMismatchError("effect_tt", r, len(effectTT))
	}
	return &Precomputed{spec: spec, effect: mat.DenseCopyOf(effect), effectTT: append([]float64(nil), effectTT...)}, nil
}

// FromColumns takes the effect columns named in spec out of df. It returns
// the estimate and df without those columns, with IndexColumn added when df
// has none. Without an EffectTTColumn the realised-treatment effect of a row
// is the effect column of its treatment level, and 0 for control rows.
func FromColumns(df *frame.Frame, spec Spec) (*Precomputed, *frame.Frame, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, nil, errors.InvalidInput(err.Error())
	}
	effect, err := df.Matrix(spec.EffectColumns)
	if err != nil {
		return nil, nil, err
	}
	if effect == nil {
		return nil, nil, errors.InvalidInput("precomputed estimate needs at least one row")
	}

	var effectTT []float64
	if spec.EffectTTColumn != "" {
		if effectTT, err = df.Column(spec.EffectTTColumn); err != nil {
			return nil, nil, err
		}
	} else if effectTT, err = realisedEffect(df, spec.Treatment, effect); err != nil {
		return nil, nil, err
	}

	est, err := New(spec, effect, effectTT)
	if err != nil {
		return nil, nil, err
	}

	drop := make(map[string]bool, len(spec.EffectColumns)+1)
	for _, name := range spec.EffectColumns {
		drop[name] = true
	}
	drop[spec.EffectTTColumn] = true
	var keep []string
	for _, name := range df.Columns() {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	rest, err := df.Select(keep...)
	if err != nil {
		return nil, nil, err
	}
	if !rest.Has(IndexColumn) {
		index := make([]float64, rest.Len())
		for i := range index {
			index[i] = float64(i)
		}
		if err := rest.Set(IndexColumn, index); err != nil {
			return nil, nil, err
		}
	}
	return est, rest, nil
}

// realisedEffect picks column k for rows at the k-th non-control level
func realisedEffect(df *frame.Frame, treatment string, effect *mat.Dense) ([]float64, error) {
	t, err := df.Column(treatment)
	if err != nil {
		return nil, err
	}
	var levels []float64
	for _, v := range frame.DistinctValues(t) {
		if v != 0 {
			levels = append(levels, v)
		}
	}
	if _, c := effect.Dims(); len(levels) > c {
		return nil, errors.InvalidInput(fmt.Sprintf("treatment has %d non-control levels, effect has %d columns", len(levels), c))
	}
	col := make(map[float64]int, len(levels))
	for k, v := range levels {
		col[v] = k
	}
	out := make([]float64, len(t))
	for i, v := range t {
		if k, ok := col[v]; ok {
			out[i] = effect.At(i, k)
		}
	}
	return out, nil
}

func (p *Precomputed) EstimatorName() string                { return p.spec.Name }
func (p *Precomputed) IdentifierMethod() causal.ProblemType { return p.spec.Method }
func (p *Precomputed) TreatmentNames() []string             { return []string{p.spec.Treatment} }
func (p *Precomputed) OutcomeName() string                  { return p.spec.Outcome }

func (p *Precomputed) EffectModifierNames() []string {
	return append([]string(nil), p.spec.Modifiers...)
}

func (p *Precomputed) InstrumentNames() []string {
	return append([]string(nil), p.spec.Instruments...)
}

// Effect returns the stored effects for the rows of df
func (p *Precomputed) Effect(df *frame.Frame) (*mat.Dense, error) {
	rows, err := p.rows(df)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, core.ErrInsufficientData
	}
	_, c := p.effect.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, p.effect.RawRowView(r))
	}
	return out, nil
}

// EffectTT returns the stored realised-treatment effects for the rows of df
func (p *Precomputed) EffectTT(df *frame.Frame) ([]float64, error) {
	rows, err := p.rows(df)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = p.effectTT[r]
	}
	return out, nil
}

func (p *Precomputed) rows(df *frame.Frame) ([]int, error) {
	n := len(p.effectTT)
	if !df.Has(IndexColumn) {
		if df.Len() != n {
			return nil, core.NewRowMismatchError("frame", n, df.Len())
		}
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows, nil
	}
	index, err := df.Column(IndexColumn)
	if err != nil {
		return nil, err
	}
	rows := make([]int, len(index))
	for i, v := range index {
		r := int(v)
		if float64(r) != v || r < 0 || r >= n || math.IsNaN(v) {
			return nil, errors.InvalidInput(fmt.Sprintf("index %g does not name a precomputed row", v))
		}
		rows[i] = r
	}
	return rows, nil
}
