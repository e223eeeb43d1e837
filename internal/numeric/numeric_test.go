package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRowNormalize(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 3, 2, 2})
	n := RowNormalize(m)
	assert.InDelta(t, 0.25, n.At(0, 0), 1e-12)
	assert.InDelta(t, 0.75, n.At(0, 1), 1e-12)
	assert.True(t, AllClose(RowSums(n), 1))
}

func TestColNormalize(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{3, 1, 4, 1})

	l2 := ColNormalize(m, 2)
	assert.InDelta(t, 0.6, l2.At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, l2.At(1, 0), 1e-12)

	l1 := ColNormalize(m, 1)
	assert.InDelta(t, 0.5, l1.At(0, 1), 1e-12)
	assert.InDelta(t, 3.0/7, l1.At(0, 0), 1e-12)
}

func TestSoftmax(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{0, 0})
	s := Softmax(m, 1)
	assert.InDelta(t, 0.5, s.At(0, 0), 1e-12)

	m = mat.NewDense(1, 2, []float64{1, 0})
	s = Softmax(m, 2)
	want := math.Exp(2) / (math.Exp(2) + 1)
	assert.InDelta(t, want, s.At(0, 0), 1e-12)
	assert.True(t, AllClose(RowSums(s), 1))
}

func TestMovingAverage(t *testing.T) {
	x := []float64{0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0, 0}
	avg := MovingAverage(x, 10)
	assert.Len(t, avg, len(x))
	// window for index 1 spans [-3, 6] and includes the spike
	assert.InDelta(t, 1.0, avg[1], 1e-12)
	// window for index 10 spans [6, 15] clamped, spike excluded
	assert.InDelta(t, 0.0, avg[10], 1e-12)

	flat := MovingAverage([]float64{2, 2, 2}, 10)
	for _, v := range flat {
		assert.InDelta(t, 2.0, v, 1e-12)
	}
}

func TestUniqueSorted(t *testing.T) {
	vals, ixs := UniqueSorted([]float64{3, 1, 3, 2, 1})
	assert.Equal(t, []float64{1, 2, 3}, vals)
	assert.Equal(t, []int{1, 3, 0}, ixs)
	assert.Equal(t, []float64{30, 10, 20}, Take([]float64{30, 10, 30, 20, 10}, []int{0, 1, 3}))
}

func TestFiniteAndAny(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{1, math.Inf(1)})
	assert.False(t, AllFinite(m))
	assert.True(t, Any(m, func(v float64) bool { return v > 0 }))
	assert.False(t, Any(m, func(v float64) bool { return v < 0 }))
	assert.Equal(t, []float64{1}, Filter([]float64{1, 2}, []bool{true, false}))
}
