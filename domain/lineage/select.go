package lineage

import (
	"strings"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// Marker is a special selector resolved at selection time.
type Marker string

// Rest selects every column not referenced by another selector, merged into one column.
const Rest Marker = "REST"

// isMixture reports whether sels must be resolved by mixing columns.
func isMixture(sels []any) bool {
	for _, s := range sels {
		switch v := s.(type) {
		case Marker:
			if v == Rest {
				return true
			}
		case string:
			if strings.Contains(v, ",") {
				return true
			}
		}
	}
	return false
}

// resolveCols maps names and integer positions to unique column positions,
// keeping the first occurrence of repeats.
func (l *Lineage) resolveCols(sels []any) ([]int, error) {
	n := len(l.names)
	out := make([]int, 0, len(sels))
	seen := make(map[int]struct{}, len(sels))
	for _, s := range sels {
		var ix int
		switch v := s.(type) {
		case string:
			i, err := l.Index(v)
			if err != nil {
				return nil, err
			}
			ix = i
		case int:
			i, err := normalizeIndex(v, n, "column")
			if err != nil {
				return nil, err
			}
			ix = i
		default:
			return nil, apperrors.Validation(core.ErrInvalidSelector, "unsupported column selector of type %T", s)
		}
		if _, dup := seen[ix]; dup {
			continue
		}
		seen[ix] = struct{}{}
		out = append(out, ix)
	}
	return out, nil
}

func normalizeIndex(i, n int, axis string) (int, error) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, apperrors.Validation(core.ErrInvalidSelector, "%s index %d is out of range for size %d", axis, i, n)
	}
	return i, nil
}

func (l *Lineage) resolveRows(rows []int) ([]int, error) {
	n := l.NumCells()
	if rows == nil {
		return seq(n), nil
	}
	out := make([]int, len(rows))
	for k, r := range rows {
		i, err := normalizeIndex(r, n, "row")
		if err != nil {
			return nil, err
		}
		out[k] = i
	}
	return out, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Col selects a single column by name or position.
func (l *Lineage) Col(sel any) (*Lineage, error) {
	return l.Cols(sel)
}

// Cols selects columns by names and/or positions. Comma-joined names or the
// Rest marker merge columns instead, see Mix.
func (l *Lineage) Cols(sels ...any) (*Lineage, error) {
	return l.Select(nil, sels...)
}

// Select picks rows by position (nil selects all rows, repeats and order are
// kept) and columns by name or position (no selectors selects all columns).
func (l *Lineage) Select(rows []int, sels ...any) (*Lineage, error) {
	if isMixture(sels) {
		return l.Mix(rows, sels...)
	}
	rix, err := l.resolveRows(rows)
	if err != nil {
		return nil, err
	}
	cix := seq(len(l.names))
	if len(sels) > 0 {
		if cix, err = l.resolveCols(sels); err != nil {
			return nil, err
		}
	}
	return l.sub(rix, cix)
}

// RowRange selects rows [start, end) and all columns.
func (l *Lineage) RowRange(start, end int) (*Lineage, error) {
	n := l.NumCells()
	if start < 0 || end > n || start >= end {
		return nil, apperrors.Validation(core.ErrInvalidSelector, "row range [%d, %d) is invalid for %d rows", start, end, n)
	}
	rows := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, i)
	}
	return l.sub(rows, seq(len(l.names)))
}

// Mask selects the rectangle of rows where rows is true and columns where cols
// is true. A nil mask selects everything along that axis.
func (l *Lineage) Mask(rows, cols []bool) (*Lineage, error) {
	rix, err := maskIndices(rows, l.NumCells(), "row")
	if err != nil {
		return nil, err
	}
	cix, err := maskIndices(cols, len(l.names), "column")
	if err != nil {
		return nil, err
	}
	return l.sub(rix, cix)
}

// MaskOrderedRows selects rows by position in the given order together with a
// boolean column mask. Repeated row positions are kept once.
func (l *Lineage) MaskOrderedRows(rows []int, cols []bool) (*Lineage, error) {
	rix, err := l.resolveRows(rows)
	if err != nil {
		return nil, err
	}
	cix, err := maskIndices(cols, len(l.names), "column")
	if err != nil {
		return nil, err
	}
	return l.sub(uniqueInts(rix), cix)
}

// MaskOrderedCols selects columns by position in the given order together with
// a boolean row mask. Names and colors follow the requested order.
func (l *Lineage) MaskOrderedCols(rows []bool, cols []int) (*Lineage, error) {
	rix, err := maskIndices(rows, l.NumCells(), "row")
	if err != nil {
		return nil, err
	}
	sels := make([]any, len(cols))
	for i, c := range cols {
		sels[i] = c
	}
	cix, err := l.resolveCols(sels)
	if err != nil {
		return nil, err
	}
	return l.sub(rix, cix)
}

func maskIndices(mask []bool, n int, axis string) ([]int, error) {
	if mask == nil {
		return seq(n), nil
	}
	if len(mask) != n {
		return nil, apperrors.Validation(core.ErrInvalidShape, "%s mask has size %d, expected %d", axis, len(mask), n)
	}
	out := make([]int, 0, n)
	for i, keep := range mask {
		if keep {
			out = append(out, i)
		}
	}
	return out, nil
}

func uniqueInts(xs []int) []int {
	seen := make(map[int]struct{}, len(xs))
	out := make([]int, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
