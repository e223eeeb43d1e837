// Package lineage implements the lineage probability matrix: a dense
// cells-by-lineages matrix whose columns carry unique names and colors.
//
// Every transformation (selection, mixing, reduction, copying) returns a new
// Lineage that owns its own buffer, names and colors.
package lineage

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/internal"
	"cellfate/internal/colors"
	apperrors "cellfate/internal/errors"
)

var logger = internal.DefaultLogger.With("lineage")

// Lineage is a matrix of lineage membership probabilities with named, colored columns.
type Lineage struct {
	x      *mat.Dense
	names  []string
	colors []string
	index  map[string]int
}

type options struct {
	colors  []string
	palette colors.Palette
}

// Option configures construction of a Lineage.
type Option func(*options)

// WithColors sets one color per column. Values must be color-like and are
// normalized to lowercase #rrggbb.
func WithColors(c ...string) Option {
	return func(o *options) { o.colors = append([]string(nil), c...) }
}

// WithPalette sets the palette used when no colors are given.
func WithPalette(p colors.Palette) Option {
	return func(o *options) { o.palette = p }
}

// New builds a Lineage from a copy of x.
func New(x mat.Matrix, names []string, opts ...Option) (*Lineage, error) {
	if x == nil {
		return nil, apperrors.Validation(core.ErrInvalidShape, "input matrix is nil")
	}
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "input matrix must be non-empty, found shape (%d, %d)", r, c)
	}
	return build(mat.DenseCopyOf(x), names, opts...)
}

// FromRows builds a Lineage from a row-major 2-D slice. Ragged input is rejected.
func FromRows(rows [][]float64, names []string, opts ...Option) (*Lineage, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "input array must be non-empty")
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, apperrors.Validation(core.ErrInvalidShape,
				"input array must be 2-dimensional, row %d has %d columns instead of %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return build(mat.NewDense(len(rows), c, data), names, opts...)
}

// FromVector promotes a 1-D vector to a single-column Lineage.
func FromVector(v []float64, name string, opts ...Option) (*Lineage, error) {
	if len(v) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "input vector must be non-empty")
	}
	data := append([]float64(nil), v...)
	return build(mat.NewDense(len(v), 1, data), []string{name}, opts...)
}

// build takes ownership of x.
func build(x *mat.Dense, names []string, opts ...Option) (*Lineage, error) {
	o := options{palette: colors.DefaultPalette}
	for _, opt := range opts {
		opt(&o)
	}

	_, c := x.Dims()
	l := &Lineage{x: x}

	if err := l.setNames(names, c); err != nil {
		return nil, err
	}

	cols := o.colors
	if cols == nil {
		cols = o.palette(c)
	}
	if err := l.setColors(cols, c); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lineage) setNames(names []string, n int) error {
	if len(names) != n {
		return apperrors.Validation(core.ErrInvalidShape, "expected names to be of size %d, found %d", n, len(names))
	}
	index := make(map[string]int, n)
	for i, name := range names {
		if _, dup := index[name]; dup {
			return apperrors.Validation(core.ErrDuplicateName, "lineage name %q occurs more than once", name)
		}
		index[name] = i
	}
	l.names = append([]string(nil), names...)
	l.index = index
	return nil
}

func (l *Lineage) setColors(values []string, n int) error {
	if len(values) != n {
		return apperrors.Validation(core.ErrInvalidShape, "expected colors to be of size %d, found %d", n, len(values))
	}
	out := make([]string, n)
	for i, v := range values {
		hex, err := colors.ToHex(v)
		if err != nil {
			return apperrors.Validation(core.ErrInvalidColor, "value %q is not a valid color", v)
		}
		out[i] = hex
	}
	l.colors = out
	return nil
}

// Dims returns the number of cells and lineages.
func (l *Lineage) Dims() (int, int) { return l.x.Dims() }

// NumCells returns the number of rows.
func (l *Lineage) NumCells() int {
	r, _ := l.x.Dims()
	return r
}

// NumLineages returns the number of columns.
func (l *Lineage) NumLineages() int { return len(l.names) }

// Names returns a copy of the lineage names.
func (l *Lineage) Names() []string { return append([]string(nil), l.names...) }

// Colors returns a copy of the lineage colors.
func (l *Lineage) Colors() []string { return append([]string(nil), l.colors...) }

// At returns the probability of cell i for lineage j.
func (l *Lineage) At(i, j int) float64 { return l.x.At(i, j) }

// T returns the transposed probabilities, making a Lineage usable as a mat.Matrix.
func (l *Lineage) T() mat.Matrix { return l.x.T() }

// Data exposes the backing buffer. Mutating it mutates this Lineage only.
func (l *Lineage) Data() *mat.Dense { return l.x }

// X returns a copy of the probabilities without names and colors.
func (l *Lineage) X() *mat.Dense { return mat.DenseCopyOf(l.x) }

// Has reports whether name is a lineage of l.
func (l *Lineage) Has(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Index resolves a lineage name to its column position.
func (l *Lineage) Index(name string) (int, error) {
	ix, ok := l.index[name]
	if !ok {
		return 0, apperrors.NotFound(core.ErrLineageNotFound,
			"invalid lineage name %q, valid names are: %s", name, strings.Join(l.names, ", "))
	}
	return ix, nil
}

// Column returns a copy of the named lineage's probabilities.
func (l *Lineage) Column(name string) ([]float64, error) {
	ix, err := l.Index(name)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, ix, l.x), nil
}

// Copy returns an equal-valued Lineage with independent storage.
func (l *Lineage) Copy() *Lineage {
	index := make(map[string]int, len(l.index))
	for k, v := range l.index {
		index[k] = v
	}
	return &Lineage{
		x:      mat.DenseCopyOf(l.x),
		names:  l.Names(),
		colors: l.Colors(),
		index:  index,
	}
}

// Equal reports whether both lineages have the same values, names and colors.
func (l *Lineage) Equal(o *Lineage) bool {
	if o == nil {
		return false
	}
	if !equalStrings(l.names, o.names) || !equalStrings(l.colors, o.colors) {
		return false
	}
	lr, lc := l.x.Dims()
	or, oc := o.x.Dims()
	if lr != or || lc != oc {
		return false
	}
	return mat.Equal(l.x, o.x)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (l *Lineage) String() string {
	return fmt.Sprintf("%v\n names=[%s]", mat.Formatted(l.x, mat.Squeeze()), strings.Join(l.names, ", "))
}

// sub builds a Lineage from explicit row and column positions.
func (l *Lineage) sub(rows, cols []int) (*Lineage, error) {
	if len(rows) == 0 || len(cols) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "selection is empty: %d rows, %d columns", len(rows), len(cols))
	}
	x := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			x.Set(i, j, l.x.At(r, c))
		}
	}
	names := make([]string, len(cols))
	cs := make([]string, len(cols))
	index := make(map[string]int, len(cols))
	for j, c := range cols {
		names[j] = l.names[c]
		cs[j] = l.colors[c]
		index[names[j]] = j
	}
	return &Lineage{x: x, names: names, colors: cs, index: index}, nil
}
