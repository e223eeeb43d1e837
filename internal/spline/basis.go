package spline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// basis is a uniform B-spline basis of n functions and the given degree
// spanning [lo, hi]. Outside the range the basis is evaluated at the nearest
// boundary.
type basis struct {
	n      int
	degree int
	lo, hi float64
	h      float64
	knots  []float64
}

func newBasis(n, degree int, lo, hi float64) (*basis, error) {
	if !(hi > lo) {
		return nil, apperrors.Numerical(core.ErrInsufficientData, "need at least two distinct x values, found range [%g, %g]", lo, hi)
	}
	b := &basis{n: n, degree: degree, lo: lo, hi: hi, h: (hi - lo) / float64(n-degree)}
	b.knots = make([]float64, n+degree+1)
	for i := range b.knots {
		b.knots[i] = lo + float64(i-degree)*b.h
	}
	return b, nil
}

// span returns k with knots[k] <= x < knots[k+1], restricted to [degree, n-1].
func (b *basis) span(x float64) int {
	if x >= b.hi {
		return b.n - 1
	}
	k := b.degree + int(math.Floor((x-b.lo)/b.h))
	if k < b.degree {
		return b.degree
	}
	if k > b.n-1 {
		return b.n - 1
	}
	return k
}

// eval writes the degree+1 non-zero basis values at x into vals and returns
// the index of the first one.
func (b *basis) eval(x float64, vals []float64) int {
	x = math.Max(b.lo, math.Min(b.hi, x))
	k := b.span(x)
	p := b.degree
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	vals[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = x - b.knots[k+1-j]
		right[j] = b.knots[k+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			tmp := vals[r] / (right[r+1] + left[j-r])
			vals[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		vals[j] = saved
	}
	return k - p
}

// row fills dst (length n) with the full basis row at x.
func (b *basis) row(x float64, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	vals := make([]float64, b.degree+1)
	first := b.eval(x, vals)
	copy(dst[first:], vals)
}

// design returns the len(x) x n basis matrix.
func (b *basis) design(x []float64) *mat.Dense {
	out := mat.NewDense(len(x), b.n, nil)
	for i, xi := range x {
		b.row(xi, out.RawRowView(i))
	}
	return out
}

// differencePenalty returns D'D for the first-difference operator D.
func differencePenalty(n int) *mat.SymDense {
	p := mat.NewSymDense(n, nil)
	for i := 0; i < n-1; i++ {
		p.SetSym(i, i, p.At(i, i)+1)
		p.SetSym(i+1, i+1, p.At(i+1, i+1)+1)
		p.SetSym(i, i+1, p.At(i, i+1)-1)
	}
	return p
}
