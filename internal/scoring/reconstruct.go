package scoring

import (
	"fmt"

	"causalscore/domain/causal"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Working columns added to the scorer's private copy of a frame
const (
	ColumnDY   = "dy"
	ColumnYHat = "yhat"
)

// reconstruction is a private copy of a frame with dy and yhat added, plus
// the columns the metrics split and select on
type reconstruction struct {
	frame     *frame.Frame
	treatment string
	outcome   string
	splitBy   string
	modifiers []string
}

// reconstruct adds dy = EffectTT(df) and yhat = outcome − dy to a copy of df.
// splitBy is the sole instrument for iv estimates and the treatment otherwise.
func reconstruct(est ports.Estimate, df *frame.Frame) (*reconstruction, error) {
	names := est.TreatmentNames()
	if len(names) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("estimate %s names no treatment", est.EstimatorName()))
	}
	r := &reconstruction{
		frame:     df.Copy(),
		treatment: names[0],
		outcome:   est.OutcomeName(),
		splitBy:   names[0],
		modifiers: est.EffectModifierNames(),
	}
	if est.IdentifierMethod() == causal.ProblemIV {
		instruments := est.InstrumentNames()
		if len(instruments) == 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("iv estimate %s names no instrument", est.EstimatorName()))
		}
		r.splitBy = instruments[0]
	}

	dy, err := est.EffectTT(r.frame)
	if err != nil {
		return nil, errors.Wrap(err, "effect_tt")
	}
	y, err := r.frame.Column(r.outcome)
	if err != nil {
		return nil, err
	}
	if err := r.frame.Set(ColumnDY, dy); err != nil {
		return nil, err
	}
	floats.Sub(y, dy)
	if err := r.frame.Set(ColumnYHat, y); err != nil {
		return nil, err
	}
	return r, nil
}

// selectColumns lists the effect modifiers followed by yhat
func (r *reconstruction) selectColumns() []string {
	return append(append([]string(nil), r.modifiers...), ColumnYHat)
}

// groups splits the rows by splitBy == 1 and splitBy == 0
func (r *reconstruction) groups() (treated, control []int, err error) {
	split, err := r.frame.Column(r.splitBy)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range split {
		switch v {
		case 1:
			treated = append(treated, i)
		case 0:
			control = append(control, i)
		}
	}
	return treated, control, nil
}

// matrices returns the selected columns of the treated and control rows.
// A matrix is nil when its group is empty.
func (r *reconstruction) matrices(cols []string) (x1, x0 *mat.Dense, treated, control []int, err error) {
	treated, control, err = r.groups()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if x1, err = r.frame.Rows(treated).Matrix(cols); err != nil {
		return nil, nil, nil, nil, err
	}
	if x0, err = r.frame.Rows(control).Matrix(cols); err != nil {
		return nil, nil, nil, nil, err
	}
	return x1, x0, treated, control, nil
}
