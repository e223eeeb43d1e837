package regress

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/core"
	"cellfate/ports"
)

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func TestNewByKind(t *testing.T) {
	for _, kind := range []Kind{KindPolynomial, KindKernel, KindOLS} {
		r, err := New(kind, DefaultParams())
		require.NoError(t, err, kind)
		assert.NotEmpty(t, r.Name())
	}
	_, err := New("forest", DefaultParams())
	assert.True(t, errors.Is(err, core.ErrUnknownOption))

	ols, err := New(KindOLS, DefaultParams())
	require.NoError(t, err)
	assert.False(t, ols.AcceptsWeights())
}

func TestRegressorsRecoverConstant(t *testing.T) {
	x := linspace(0, 1, 50)
	y := make([]float64, len(x))
	w := make([]float64, len(x))
	for i := range y {
		y[i] = 5
		w[i] = 1
	}
	grid := linspace(0, 1, 17)

	for _, kind := range []Kind{KindPolynomial, KindKernel, KindOLS} {
		t.Run(string(kind), func(t *testing.T) {
			r, err := New(kind, DefaultParams())
			require.NoError(t, err)
			require.NoError(t, r.Fit(x, y, w))
			pred, err := r.Predict(grid)
			require.NoError(t, err)
			for _, v := range pred {
				assert.InDelta(t, 5.0, v, 1e-6)
			}
		})
	}
}

func TestPolynomialWeightsSelectRegime(t *testing.T) {
	// two regimes: the weights decide which one the line follows
	x := linspace(0, 1, 40)
	y := make([]float64, len(x))
	w := make([]float64, len(x))
	for i := range x {
		if i%2 == 0 {
			y[i] = 2 * x[i]
			w[i] = 1
		} else {
			y[i] = -3
		}
	}
	p := NewPolynomial(1, 0.95)
	require.NoError(t, p.Fit(x, y, w))
	pred, err := p.Predict([]float64{0, 0.5, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 2}, pred, 1e-8)
}

func TestPolynomialConfidenceInterval(t *testing.T) {
	x := linspace(0, 10, 60)
	y := make([]float64, len(x))
	for i, xi := range x {
		// deterministic wiggle around a line
		y[i] = 1 + 0.5*xi + 0.3*math.Sin(7*xi)
	}
	p := NewPolynomial(1, 0.95)
	require.NoError(t, p.Fit(x, y, nil))

	grid := []float64{0, 5, 10}
	pred, err := p.Predict(grid)
	require.NoError(t, err)
	ci, err := p.ConfidenceInterval(grid)
	require.NoError(t, err)
	for i := range grid {
		assert.Less(t, ci[i][0], pred[i])
		assert.Greater(t, ci[i][1], pred[i])
		assert.InDelta(t, pred[i]-ci[i][0], ci[i][1]-pred[i], 1e-9)
	}
	// the band is narrowest near the mean of x
	assert.Less(t, ci[1][1]-ci[1][0], ci[0][1]-ci[0][0])

	var _ ports.IntervalRegressor = p
}

func TestKernelFollowsLocalMean(t *testing.T) {
	x := linspace(0, 1, 101)
	y := make([]float64, len(x))
	for i, xi := range x {
		if xi > 0.5 {
			y[i] = 10
		}
	}
	k := NewKernel(0.02)
	require.NoError(t, k.Fit(x, y, nil))
	pred, err := k.Predict([]float64{0.1, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 0, pred[0], 1e-6)
	assert.InDelta(t, 10, pred[1], 1e-6)
}

func TestCloneKeepsOrDropsState(t *testing.T) {
	x := linspace(0, 1, 20)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 3 * x[i]
	}

	for _, r := range []ports.Regressor{NewPolynomial(2, 0.95), NewKernel(0), NewOLS(1)} {
		require.NoError(t, r.Fit(x, y, nil), r.Name())
		want, err := r.Predict([]float64{0.25})
		require.NoError(t, err)

		deep := r.Clone(true)
		got, err := deep.Predict([]float64{0.25})
		require.NoError(t, err, r.Name())
		assert.InDelta(t, want[0], got[0], 1e-9, r.Name())

		shallow := r.Clone(false)
		_, err = shallow.Predict([]float64{0.25})
		assert.True(t, errors.Is(err, core.ErrNotFitted), r.Name())
		assert.Equal(t, r.Name(), shallow.Name())
	}
}

func TestFitValidation(t *testing.T) {
	p := NewPolynomial(3, 0.95)
	err := p.Fit([]float64{1, 2}, []float64{1}, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidShape))

	err = p.Fit([]float64{1, 2, 3}, []float64{1, 2, 3}, nil)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))

	err = p.Fit([]float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5}, []float64{1, 0, 0, 0, 1})
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}
