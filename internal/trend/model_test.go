package trend

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/regress"
	"cellfate/internal/spline"
	"cellfate/internal/testkit"
	"cellfate/ports"
)

// zeroRegressor predicts 0 everywhere.
type zeroRegressor struct{ fits int }

func (z *zeroRegressor) Name() string { return "Zero" }

func (z *zeroRegressor) AcceptsWeights() bool { return true }

func (z *zeroRegressor) Fit(_, _, _ []float64) error {
	z.fits++
	return nil
}

func (z *zeroRegressor) Predict(x []float64) ([]float64, error) { return make([]float64, len(x)), nil }

func (z *zeroRegressor) Clone(bool) ports.Regressor { return &zeroRegressor{} }

func TestToyConstantIsRecovered(t *testing.T) {
	d := toy(t)
	kernel, err := regress.New(regress.KindKernel, regress.DefaultParams())
	require.NoError(t, err)
	kernelModel, err := NewRegressorModel(d, kernel)
	require.NoError(t, err)
	splineModel, err := NewSplineModel(d, spline.DefaultConfig())
	require.NoError(t, err)

	for _, m := range []Model{polyModel(t, d), kernelModel, splineModel} {
		t.Run(m.String(), func(t *testing.T) {
			require.NoError(t, m.Prepare(testkit.GeneConstant, ""))
			require.NoError(t, m.Fit())
			pred, err := m.Predict(nil)
			require.NoError(t, err)
			require.Len(t, pred, DefaultNTestPoints)
			for _, v := range pred {
				assert.InDelta(t, 5.0, v, 1e-6)
			}
			assert.Equal(t, StagePredicted, m.State().Stage())
			assert.Equal(t, pred, m.State().YTest)
		})
	}
}

func TestToyConstantWithLineageWeights(t *testing.T) {
	m, err := NewSplineModel(toy(t), spline.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneConstant, testkit.LineageAlpha))
	require.NoError(t, m.Fit())
	pred, err := m.Predict([]float64{0.2, 0.7})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 5}, pred, 1e-6)
	assert.Equal(t, []float64{0.2, 0.7}, m.XTest)
}

func TestLifecycleErrors(t *testing.T) {
	m := polyModel(t, toy(t))
	assert.True(t, errors.Is(m.Fit(), core.ErrNotPrepared))

	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	_, err := m.Predict(nil)
	assert.True(t, errors.Is(err, core.ErrNotFitted))
	_, err = m.ConfidenceInterval(nil)
	assert.True(t, errors.Is(err, core.ErrNotFitted))

	err = m.Fit(WithW([]float64{1, 2, 3}))
	assert.True(t, errors.Is(err, core.ErrInvalidShape))

	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	require.NoError(t, m.Fit())
	require.NoError(t, m.Prepare(testkit.GeneFalling, ""))
	_, err = m.Predict(nil)
	assert.True(t, errors.Is(err, core.ErrNotFitted), "Prepare resets the fit")
}

func TestRegressorModelUnweightedRegressor(t *testing.T) {
	m, err := NewRegressorModel(toy(t), regress.NewOLS(1))
	require.NoError(t, err)

	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	require.NoError(t, m.Fit(), "uniform weights without a lineage")
	pred, err := m.Predict(nil)
	require.NoError(t, err)
	assert.Len(t, pred, len(m.XTest))

	deep := m.DeepCopy()
	again, err := deep.Predict(nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, pred, again, 1e-9)

	require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha, WeightThreshold(0.5)))
	err = m.Fit(WithW(binaryWeights(m.W)))
	assert.NoError(t, err, "0/1 weights only exclude cells")

	require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha))
	err = m.Fit()
	assert.True(t, errors.Is(err, core.ErrWeightsUnsupported))
	assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
}

func binaryWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}

func TestUniformWeights(t *testing.T) {
	assert.True(t, uniformWeights(nil))
	assert.True(t, uniformWeights([]float64{2, 0, 2, 2}))
	assert.False(t, uniformWeights([]float64{1, 0.5, 1}))
}

func TestDefaultConfIntFormula(t *testing.T) {
	reg := &zeroRegressor{}
	m, err := NewRegressorModel(toy(t), reg)
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	require.NoError(t, m.Fit(
		WithX([]float64{0, 1, 2, 3, 4}),
		WithY([]float64{1, -1, 1, -1, 1}),
		WithW([]float64{1, 1, 1, 1, 0}),
	))
	assert.Equal(t, 1, reg.fits)

	ci, err := m.ConfidenceInterval([]float64{2, 4})
	require.NoError(t, err)

	// n=4 points with positive weight, σ² = 4/2, x̄ = 2, Σ(x-x̄)² = 10
	sigma := math.Sqrt(2)
	want0 := math.Sqrt(1+0.25) * sigma / 2
	want1 := math.Sqrt(1+0.25+0.4) * sigma / 2
	assert.InDelta(t, -want0, ci[0][0], 1e-12)
	assert.InDelta(t, want0, ci[0][1], 1e-12)
	assert.InDelta(t, -want1, ci[1][0], 1e-12)
	assert.InDelta(t, want1, ci[1][1], 1e-12)

	assert.Equal(t, []float64{0, 1, 2, 3}, m.XHat)
	assert.Len(t, m.YHat, 4)
	assert.Equal(t, []float64{2, 4}, m.XTest)
	assert.Equal(t, ci, m.ConfInt)
}

func TestDefaultConfIntNeedsThreePoints(t *testing.T) {
	m, err := NewRegressorModel(toy(t), &zeroRegressor{})
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	require.NoError(t, m.Fit(WithX([]float64{0, 1}), WithY([]float64{1, 2}), WithW([]float64{1, 1})))
	_, err = m.DefaultConfInt(nil)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestNativeAndDefaultIntervals(t *testing.T) {
	cfg := testkit.DefaultTrajectoryConfig()
	cfg.Cells, cfg.Noise = 120, 0.1
	d, err := testkit.Trajectory(cfg)
	require.NoError(t, err)

	kernel, err := NewRegressorModel(d, regress.NewKernel(0))
	require.NoError(t, err)
	spl, err := NewSplineModel(d, spline.DefaultConfig())
	require.NoError(t, err)

	for _, m := range []Model{polyModel(t, d), kernel, spl} {
		t.Run(m.String(), func(t *testing.T) {
			require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha, NTestPoints(25)))
			require.NoError(t, m.Fit())
			pred, err := m.Predict(nil)
			require.NoError(t, err)
			ci, err := m.ConfidenceInterval(nil)
			require.NoError(t, err)
			require.Len(t, ci, 25)
			for i := range ci {
				assert.LessOrEqual(t, ci[i][0], pred[i])
				assert.GreaterOrEqual(t, ci[i][1], pred[i])
				assert.Less(t, ci[i][0], ci[i][1])
			}
		})
	}
}

func TestPoissonSplineUsesDefaultInterval(t *testing.T) {
	cfg := spline.DefaultConfig()
	cfg.Distribution, cfg.Link = spline.Poisson, spline.Log
	m, err := NewSplineModel(toy(t), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, ""))
	require.NoError(t, m.Fit())
	ci, err := m.ConfidenceInterval(nil)
	require.NoError(t, err)
	assert.Len(t, ci, DefaultNTestPoints)
	assert.NotEmpty(t, m.XHat, "the default band records the fitted points")
}

func TestExpectileForcesNormalIdentity(t *testing.T) {
	cfg := spline.DefaultConfig()
	cfg.Distribution, cfg.Link, cfg.Expectile = spline.Poisson, spline.Log, 0.3
	m, err := NewSplineModel(toy(t), cfg)
	require.NoError(t, err)
	assert.Contains(t, m.String(), "distribution=normal")
}

func TestSplineGridSearchAndFallback(t *testing.T) {
	d := toy(t)

	m, err := NewSplineModel(d, spline.DefaultConfig(), WithDefaultGrid())
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GenePeak, ""))
	require.NoError(t, m.Fit())
	require.NotNil(t, m.Spline())

	// every grid point is invalid, the default configuration is fitted instead
	broken := spline.Grid{NSplines: []int{2}, Lambda: []float64{1}}
	m, err = NewSplineModel(d, spline.DefaultConfig(), WithGrid(broken))
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GenePeak, ""))
	require.NoError(t, m.Fit())
	assert.Equal(t, 10, m.Spline().Config().NSplines)
}

func TestSplineFitFailureCarriesContext(t *testing.T) {
	m, err := NewSplineModel(toy(t), spline.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha))

	err = m.Fit(WithW(make([]float64, len(m.X))))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFitFailed, apperrors.GetCode(err))
	assert.True(t, strings.Contains(err.Error(), `"rising"`), err.Error())
	assert.True(t, strings.Contains(err.Error(), `"Alpha"`), err.Error())
}

func TestCopyAndDeepCopy(t *testing.T) {
	d := toy(t)
	spl, err := NewSplineModel(d, spline.DefaultConfig(), WithDropoutFilter(0))
	require.NoError(t, err)

	for _, m := range []Model{polyModel(t, d), spl} {
		t.Run(m.String(), func(t *testing.T) {
			require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha))
			require.NoError(t, m.Fit())
			want, err := m.Predict(nil)
			require.NoError(t, err)

			shallow := m.Copy()
			assert.Equal(t, m.String(), shallow.String())
			assert.Equal(t, StageUninitialized, shallow.State().Stage())
			assert.Nil(t, shallow.State().X)

			deep := m.DeepCopy()
			assert.Equal(t, StagePredicted, deep.State().Stage())
			assert.Equal(t, m.State().X, deep.State().X)
			assert.Equal(t, m.State().YTest, deep.State().YTest)

			deep.State().X[0] = -100
			assert.NotEqual(t, -100.0, m.State().X[0])

			got, err := deep.Predict(nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got, 1e-12)
		})
	}
}

func TestDescriptor(t *testing.T) {
	m := polyModel(t, toy(t))
	assert.Equal(t, "RegressorModel[Polynomial[degree=3]]", m.String())

	s, err := NewSplineModel(toy(t), spline.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.String(), "SplineModel[n_splines=10"), s.String())
}
