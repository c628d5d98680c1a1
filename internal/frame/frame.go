// Package frame provides the columnar table the scorer works on.
//
// A Frame is treated as immutable by everything that receives one from a
// caller. Scoring code takes a Copy and only ever adds working columns to
// the copy.
package frame

import (
	"fmt"

	"causalscore/domain/core"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Frame is an ordered set of equal-length float64 columns
type Frame struct {
	id      uuid.UUID
	columns []string
	data    map[string][]float64
	n       int
}

// New builds a frame from named columns. All columns must share a length.
func New(names []string, cols [][]float64) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(names), len(cols))
	}
	f := &Frame{
		id:   uuid.New(),
		data: make(map[string][]float64, len(names)),
		n:    -1,
	}
	for i, name := range names {
		if _, dup := f.data[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		if f.n >= 0 && len(cols[i]) != f.n {
			return nil, core.NewRowMismatchError(name, f.n, len(cols[i]))
		}
		f.n = len(cols[i])
		f.columns = append(f.columns, name)
		f.data[name] = append([]float64(nil), cols[i]...)
	}
	if f.n < 0 {
		f.n = 0
	}
	return f, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(names []string, cols [][]float64) *Frame {
	f, err := New(names, cols)
	if err != nil {
		panic(err)
	}
	return f
}

// ID identifies the frame contents. Copies share the ID of their source
// until an existing column is overwritten.
func (f *Frame) ID() uuid.UUID { return f.id }

// Len returns the number of rows
func (f *Frame) Len() int { return f.n }

// Columns returns the column names in insertion order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Has reports whether the frame carries the named column
func (f *Frame) Has(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Column returns a copy of the named column
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.data[name]
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	return append([]float64(nil), col...), nil
}

// Value returns a single cell without copying the column
func (f *Frame) Value(name string, row int) (float64, error) {
	col, ok := f.data[name]
	if !ok {
		return 0, core.NewColumnNotFoundError(name)
	}
	return col[row], nil
}

// Set adds or replaces a column on the receiver. Only call this on frames the
// caller owns (usually a Copy).
func (f *Frame) Set(name string, values []float64) error {
	if len(f.columns) > 0 && len(values) != f.n {
		return core.NewRowMismatchError(name, f.n, len(values))
	}
	if len(f.columns) == 0 {
		f.n = len(values)
	}
	if _, exists := f.data[name]; exists {
		// contents changed; cached derivations keyed on the old ID are stale
		f.id = uuid.New()
	} else {
		f.columns = append(f.columns, name)
	}
	f.data[name] = append([]float64(nil), values...)
	return nil
}

// Copy returns a deep copy sharing the receiver's ID
func (f *Frame) Copy() *Frame {
	out := &Frame{
		id:      f.id,
		columns: append([]string(nil), f.columns...),
		data:    make(map[string][]float64, len(f.data)),
		n:       f.n,
	}
	for name, col := range f.data {
		out.data[name] = append([]float64(nil), col...)
	}
	return out
}

// Select returns a new frame with only the named columns
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		col, ok := f.data[name]
		if !ok {
			return nil, core.NewColumnNotFoundError(name)
		}
		cols[i] = col
	}
	out, err := New(names, cols)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		out.n = f.n
	}
	return out, nil
}

// Rows returns a new frame holding the given rows in the given order
func (f *Frame) Rows(idx []int) *Frame {
	out := &Frame{
		id:      uuid.New(),
		columns: append([]string(nil), f.columns...),
		data:    make(map[string][]float64, len(f.data)),
		n:       len(idx),
	}
	for name, col := range f.data {
		sub := make([]float64, len(idx))
		for i, r := range idx {
			sub[i] = col[r]
		}
		out.data[name] = sub
	}
	return out
}

// Filter keeps the rows where mask is true
func (f *Frame) Filter(mask []bool) *Frame {
	return f.Rows(MaskIndex(mask))
}

// Head keeps the leading n rows
func (f *Frame) Head(n int) *Frame {
	if n > f.n {
		n = f.n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return f.Rows(idx)
}

// Equals builds a row mask for column == value
func (f *Frame) Equals(name string, value float64) ([]bool, error) {
	col, ok := f.data[name]
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	mask := make([]bool, len(col))
	for i, v := range col {
		mask[i] = v == value
	}
	return mask, nil
}

// Matrix stacks the named columns into an n×len(names) dense matrix. With no
// names, or no rows, it returns a nil matrix.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	for _, name := range names {
		if _, ok := f.data[name]; !ok {
			return nil, core.NewColumnNotFoundError(name)
		}
	}
	if len(names) == 0 || f.n == 0 {
		return nil, nil
	}
	m := mat.NewDense(f.n, len(names), nil)
	for j, name := range names {
		m.SetCol(j, f.data[name])
	}
	return m, nil
}

// Distinct returns the sorted distinct values of a column
func (f *Frame) Distinct(name string) ([]float64, error) {
	col, ok := f.data[name]
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	return DistinctValues(col), nil
}
