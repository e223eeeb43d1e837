// Package numeric holds the small matrix and vector helpers shared by the
// lineage reduction and the trend models.
package numeric

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tolerances used by AllClose, matching the usual relative/absolute defaults.
const (
	RelTol = 1e-5
	AbsTol = 1e-8
)

// Close reports whether a and b are equal within the default tolerances.
func Close(a, b float64) bool {
	return math.Abs(a-b) <= AbsTol+RelTol*math.Abs(b)
}

// AllClose reports whether every value is within tolerance of target.
func AllClose(values []float64, target float64) bool {
	for _, v := range values {
		if !Close(v, target) {
			return false
		}
	}
	return true
}

// RowSums returns the sum of each row of m.
func RowSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		s := 0.0
		for j := 0; j < c; j++ {
			s += m.At(i, j)
		}
		out[i] = s
	}
	return out
}

// RowNormalize divides each row by its sum. Zero rows become NaN, which callers
// detect through their finiteness checks.
func RowNormalize(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	sums := RowSums(m)
	out.Apply(func(i, j int, v float64) float64 {
		return v / sums[i]
	}, m)
	return out
}

// ColNormalize divides each column by its L-ord norm (ord 1 or 2).
func ColNormalize(m mat.Matrix, ord float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.DenseCopyOf(m)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, out)
		n := floats.Norm(col, ord)
		floats.Scale(1/n, col)
		out.SetCol(j, col)
	}
	return out
}

// Softmax applies exp(beta*x) / sum(exp(beta*x)) row-wise.
func Softmax(m mat.Matrix, beta float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = math.Exp(beta * m.At(i, j))
		}
		s := floats.Sum(row)
		for j := 0; j < c; j++ {
			out.Set(i, j, row[j]/s)
		}
	}
	return out
}

// MovingAverage convolves x with a flat kernel of the given size using
// nearest-edge extension. For even sizes the window covers
// [i-size/2+1, i+size/2], the alignment of a centered even-length convolution.
func MovingAverage(x []float64, size int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 || size <= 0 {
		return out
	}
	lo := size / 2
	if size%2 == 0 {
		lo--
	}
	hi := size - 1 - lo
	for i := 0; i < n; i++ {
		s := 0.0
		for k := i - lo; k <= i+hi; k++ {
			s += x[clamp(k, 0, n-1)]
		}
		out[i] = s / float64(size)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UniqueSorted returns the distinct values of x in ascending order together
// with the index of the first occurrence of each value in x.
func UniqueSorted(x []float64) ([]float64, []int) {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })

	vals := make([]float64, 0, len(x))
	ixs := make([]int, 0, len(x))
	for k, i := range order {
		if k > 0 && x[i] == x[order[k-1]] {
			continue
		}
		vals = append(vals, x[i])
		ixs = append(ixs, i)
	}
	return vals, ixs
}

// Take returns x[ixs].
func Take(x []float64, ixs []int) []float64 {
	out := make([]float64, len(ixs))
	for k, i := range ixs {
		out[k] = x[i]
	}
	return out
}

// Filter returns the elements of x where keep is true.
func Filter(x []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(x))
	for i, v := range x {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

// AllFinite reports whether m contains only finite values.
func AllFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Any reports whether pred holds for some element of m.
func Any(m mat.Matrix, pred func(float64) bool) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if pred(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
