package lineage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/internal/colors"
	apperrors "cellfate/internal/errors"
)

func mustRows(t *testing.T, rows [][]float64, names []string, opts ...Option) *Lineage {
	t.Helper()
	l, err := FromRows(rows, names, opts...)
	require.NoError(t, err)
	return l
}

func column(l *Lineage, j int) []float64 {
	return mat.Col(nil, j, l.Data())
}

func TestConstruction(t *testing.T) {
	l := mustRows(t, [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}}, []string{"A", "B"})
	r, c := l.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []string{"A", "B"}, l.Names())
	assert.Equal(t, colors.DefaultPalette(2), l.Colors())

	v, err := FromVector([]float64{0.1, 0.9}, "only")
	require.NoError(t, err)
	r, c = v.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)

	withColors := mustRows(t, [][]float64{{1, 0}}, []string{"A", "B"}, WithColors("red", "#00F"))
	assert.Equal(t, []string{"#ff0000", "#0000ff"}, withColors.Colors())
}

func TestConstructionErrors(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]float64
		names    []string
		opts     []Option
		sentinel error
	}{
		{"names too short", [][]float64{{1, 0}}, []string{"A"}, nil, core.ErrInvalidShape},
		{"duplicate names", [][]float64{{1, 0}}, []string{"A", "A"}, nil, core.ErrDuplicateName},
		{"ragged rows", [][]float64{{1, 0}, {1}}, []string{"A", "B"}, nil, core.ErrInvalidShape},
		{"colors length", [][]float64{{1, 0}}, []string{"A", "B"}, []Option{WithColors("red")}, core.ErrInvalidShape},
		{"not a color", [][]float64{{1, 0}}, []string{"A", "B"}, []Option{WithColors("red", "foo")}, core.ErrInvalidColor},
		{"truncated hex", [][]float64{{.5, .5}}, []string{"A", "B"}, []Option{WithColors("#12345", "#1234567g")}, core.ErrInvalidColor},
		{"empty", nil, nil, nil, core.ErrInvalidShape},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := FromRows(test.rows, test.names, test.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.sentinel), "got %v", err)
			assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
		})
	}
}

func TestSelectSingleColumnByName(t *testing.T) {
	l := mustRows(t, [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}}, []string{"A", "B"})

	a, err := l.Col("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, a.Names())
	assert.Equal(t, []float64{1, 0, 0.5}, column(a, 0))
	assert.Equal(t, l.Colors()[:1], a.Colors())
}

func TestSelectNamesPreserveFirstOccurrence(t *testing.T) {
	l := mustRows(t, [][]float64{{0.1, 0.2, 0.7}}, []string{"A", "B", "C"})

	sub, err := l.Cols("C", "A", "C", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, sub.Names())
	all := l.Colors()
	assert.Equal(t, []string{all[2], all[0]}, sub.Colors())
	assert.Equal(t, 0.7, sub.At(0, 0))

	neg, err := l.Cols(-1)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, neg.Names())

	_, err = l.Cols("D")
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "A, B, C")

	_, err = l.Cols(3.5)
	assert.True(t, errors.Is(err, core.ErrInvalidSelector))
}

func TestSelectRows(t *testing.T) {
	l := mustRows(t, [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}}, []string{"A", "B"})

	rows, err := l.Select([]int{2, 0}, "B")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0}, column(rows, 0))

	rng, err := l.RowRange(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, rng.NumCells())
	assert.Equal(t, l.Names(), rng.Names())

	_, err = l.RowRange(2, 2)
	assert.Error(t, err)
	_, err = l.Select([]int{5})
	assert.Error(t, err)
}

func TestMaskKeepsRectangularShape(t *testing.T) {
	l := mustRows(t, [][]float64{
		{0.1, 0.2, 0.7},
		{0.3, 0.3, 0.4},
		{0.5, 0.5, 0.0},
		{0.6, 0.2, 0.2},
	}, []string{"A", "B", "C"})

	m, err := l.Mask([]bool{true, false, true, true}, []bool{true, false, true})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []string{"A", "C"}, m.Names())
	assert.Equal(t, []float64{0.1, 0.5, 0.6}, column(m, 0))

	_, err = l.Mask([]bool{true}, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidShape))

	_, err = l.Mask([]bool{false, false, false, false}, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidShape), "a lineage has at least one cell")
	_, err = l.Mask(nil, []bool{false, false, false})
	assert.True(t, errors.Is(err, core.ErrInvalidShape), "a lineage has at least one column")
	_, err = l.Select([]int{})
	assert.True(t, errors.Is(err, core.ErrInvalidShape))
}

func TestOnlyRestMarkerMixes(t *testing.T) {
	l := mustRows(t, [][]float64{
		{0.1, 0.2, 0.7},
		{0.3, 0.3, 0.4},
	}, []string{"A", "B", "C"})

	_, err := l.Cols("A", Marker("rest"))
	assert.True(t, errors.Is(err, core.ErrInvalidSelector))
	_, err = l.Mix(nil, "A", Marker("OTHERS"))
	assert.True(t, errors.Is(err, core.ErrInvalidSelector))

	m, err := l.Cols("A", Rest)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9, 0.7}, column(m, 1), 1e-12)
}

func TestMaskWithExplicitOrder(t *testing.T) {
	l := mustRows(t, [][]float64{
		{0.1, 0.2, 0.7},
		{0.3, 0.3, 0.4},
		{0.5, 0.5, 0.0},
	}, []string{"A", "B", "C"})

	rows, err := l.MaskOrderedRows([]int{2, 0, 2}, []bool{true, true, false})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1}, column(rows, 0))
	assert.Equal(t, []string{"A", "B"}, rows.Names())

	cols, err := l.MaskOrderedCols([]bool{true, true, false}, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, cols.Names())
	all := l.Colors()
	assert.Equal(t, []string{all[2], all[0]}, cols.Colors())
	assert.Equal(t, []float64{0.7, 0.4}, column(cols, 0))
}

func TestMixSumsGroups(t *testing.T) {
	l := mustRows(t, [][]float64{
		{0.1, 0.2, 0.7},
		{0.3, 0.3, 0.4},
	}, []string{"A", "B", "C"}, WithColors("#ff0000", "#0000ff", "#00ff00"))

	m, err := l.Cols("A,B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A or B"}, m.Names())
	assert.InDeltaSlice(t, []float64{0.3, 0.6}, column(m, 0), 1e-12)
	mean, err := colors.Mean([]string{"#ff0000", "#0000ff"})
	require.NoError(t, err)
	assert.Equal(t, []string{mean}, m.Colors())

	// names inside a group are sorted and trimmed
	m, err = l.Cols(" B , A ,", "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A or B", "C"}, m.Names())
	assert.Equal(t, "#00ff00", m.Colors()[1])
}

func TestMixRest(t *testing.T) {
	l := mustRows(t, [][]float64{
		{0.1, 0.2, 0.3, 0.4},
	}, []string{"A", "B", "C", "D"})

	m, err := l.Cols("A,B", Rest)
	require.NoError(t, err)
	assert.Equal(t, []string{"A or B", "REST"}, m.Names())
	assert.InDeltaSlice(t, []float64{0.3, 0.7}, mat.Row(nil, 0, m.Data()), 1e-12)

	// rest is dropped when every column is already referenced
	m, err = l.Cols("A,B", "C,D", Rest)
	require.NoError(t, err)
	assert.Equal(t, []string{"A or B", "C or D"}, m.Names())

	m, err = l.Mix([]int{0}, Rest)
	require.NoError(t, err)
	assert.Equal(t, []string{"REST"}, m.Names())
	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)

	_, err = l.Cols(Rest, "A,B", Rest)
	assert.True(t, errors.Is(err, core.ErrMultipleRest))
}

func TestMixRejectsOverlap(t *testing.T) {
	l := mustRows(t, [][]float64{{0.2, 0.3, 0.5}}, []string{"A", "B", "C"})

	_, err := l.Cols("A,B", "B,C")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOverlappingGroups))
	assert.Contains(t, err.Error(), "B")

	// identical groups collapse instead of overlapping
	m, err := l.Cols("A,B", "B,A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A or B"}, m.Names())
}

func TestCopyIsIndependent(t *testing.T) {
	l := mustRows(t, [][]float64{{0.2, 0.8}, {0.6, 0.4}}, []string{"A", "B"})
	cp := l.Copy()
	require.True(t, l.Equal(cp))

	cp.Data().Set(0, 0, 99)
	assert.Equal(t, 0.2, l.At(0, 0))
	assert.False(t, l.Equal(cp))

	names := cp.Names()
	names[0] = "Z"
	assert.Equal(t, []string{"A", "B"}, cp.Names())
}

func TestNewCopiesInput(t *testing.T) {
	x := mat.NewDense(1, 2, []float64{0.5, 0.5})
	l, err := New(x, []string{"A", "B"})
	require.NoError(t, err)
	x.Set(0, 0, 7)
	assert.Equal(t, 0.5, l.At(0, 0))

	raw := l.X()
	raw.Set(0, 1, 3)
	assert.Equal(t, 0.5, l.At(0, 1))
}

func TestColumnAndString(t *testing.T) {
	l := mustRows(t, [][]float64{{0.2, 0.8}}, []string{"A", "B"})
	col, err := l.Column("B")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8}, col)
	assert.Contains(t, l.String(), "names=[A, B]")
}

func TestRestore(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{0.2, 0.3, 0.5, 0.1, 0.1, 0.8})
	palette := colors.NewPalette(3)

	tests := []struct {
		name       string
		names      []string
		colors     []string
		wantNames  []string
		wantColors []string
	}{
		{"valid", []string{"a", "b", "c"}, []string{"red", "blue", "green"}, []string{"a", "b", "c"}, []string{"#ff0000", "#0000ff", "#008000"}},
		{"missing names", nil, []string{"red", "blue", "green"}, DefaultNames(3), []string{"#ff0000", "#0000ff", "#008000"}},
		{"too many names", []string{"a", "b", "c", "foo"}, nil, DefaultNames(3), palette(3)},
		{"duplicate names", []string{"a", "b", "a"}, nil, DefaultNames(3), palette(3)},
		{"too many colors", []string{"a", "b", "c"}, []string{"red", "red", "red", "red"}, []string{"a", "b", "c"}, palette(3)},
		{"not color-like", []string{"a", "b", "c"}, []string{"foo", "red", "red"}, []string{"a", "b", "c"}, palette(3)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l, err := Restore(x, test.names, test.colors, palette)
			require.NoError(t, err)
			assert.Equal(t, test.wantNames, l.Names())
			assert.Equal(t, test.wantColors, l.Colors())
		})
	}
	assert.Equal(t, []string{"Lineage 0", "Lineage 1"}, DefaultNames(2))
}
