package dataset

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// NewCSR validates raw CSR arrays and wraps them as a sparse.CSR. Column
// indices within a row must be strictly increasing. The slices are not copied.
func NewCSR(rows, cols int, indptr, indices []int, data []float64) (*sparse.CSR, error) {
	if rows <= 0 || cols <= 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "sparse matrix must be non-empty, found (%d, %d)", rows, cols)
	}
	if len(indptr) != rows+1 || indptr[0] != 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "indptr must have %d entries starting at 0", rows+1)
	}
	if len(indices) != len(data) || indptr[rows] != len(data) {
		return nil, apperrors.Validation(core.ErrInvalidShape,
			"indices (%d) and data (%d) must both have indptr[-1]=%d entries", len(indices), len(data), indptr[rows])
	}
	for i := 0; i < rows; i++ {
		lo, hi := indptr[i], indptr[i+1]
		if lo > hi {
			return nil, apperrors.Validation(core.ErrInvalidShape, "indptr is decreasing at row %d", i)
		}
		for k := lo; k < hi; k++ {
			if indices[k] < 0 || indices[k] >= cols {
				return nil, apperrors.Validation(core.ErrInvalidShape, "column index %d out of range in row %d", indices[k], i)
			}
			if k > lo && indices[k] <= indices[k-1] {
				return nil, apperrors.Validation(core.ErrInvalidShape, "column indices of row %d are not strictly increasing", i)
			}
		}
	}
	return sparse.NewCSR(rows, cols, indptr, indices, data), nil
}

// CSRFromDense stores the non-zero entries of m.
func CSRFromDense(m mat.Matrix) *sparse.CSR {
	r, c := m.Dims()
	dok := sparse.NewDOK(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != 0 {
				dok.Set(i, j, v)
			}
		}
	}
	return dok.ToCSR()
}

// sparseCol scatters column j of s into a dense slice.
func sparseCol(s *sparse.CSR, j int) []float64 {
	raw := s.RawMatrix()
	out := make([]float64, raw.I)
	for i := 0; i < raw.I; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			if raw.Ind[k] == j {
				out[i] = raw.Data[k]
				break
			}
		}
	}
	return out
}
