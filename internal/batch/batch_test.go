package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/core"
	"cellfate/internal/regress"
	"cellfate/internal/spline"
	"cellfate/internal/testkit"
	"cellfate/internal/trend"
)

func seed(t *testing.T) trend.Model {
	t.Helper()
	cfg := testkit.DefaultTrajectoryConfig()
	cfg.Noise = 0.05
	d, err := testkit.Trajectory(cfg)
	require.NoError(t, err)
	m, err := trend.NewSplineModel(d, spline.DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestFitGenesMatchesSequentialFits(t *testing.T) {
	s := seed(t)
	genes := []string{testkit.GeneConstant, testkit.GeneRising, testkit.GeneFalling, testkit.GenePeak}
	f := &Fitter{Seed: s, Parallelism: 3, ConfInt: true}

	run, err := f.FitGenes(context.Background(), genes, testkit.LineageAlpha, trend.NTestPoints(30))
	require.NoError(t, err)
	assert.False(t, run.ID.String() == "")
	assert.Equal(t, 0, run.Failed)
	require.Len(t, run.Results, len(genes))

	for i, gene := range genes {
		r := run.Results[i]
		assert.Equal(t, gene, r.Gene)
		assert.NoError(t, r.Err)
		require.Len(t, r.YTest, 30)
		require.Len(t, r.ConfInt, 30)

		m := s.Copy()
		require.NoError(t, m.Prepare(gene, testkit.LineageAlpha, trend.NTestPoints(30)))
		require.NoError(t, m.Fit())
		want, err := m.Predict(nil)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, r.YTest, 1e-9, gene)
	}

	assert.Equal(t, trend.StageUninitialized, s.State().Stage(), "the seed is never prepared")
}

func TestFitGenesRecordsFailures(t *testing.T) {
	f := &Fitter{Seed: seed(t), Parallelism: 2}
	run, err := f.FitGenes(context.Background(), []string{testkit.GeneRising, "Sox2"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.NoError(t, run.Results[0].Err)
	assert.True(t, errors.Is(run.Results[1].Err, core.ErrGeneNotFound))
	assert.Nil(t, run.Results[1].YTest)
}

func TestFitGenesWithRegressorSeed(t *testing.T) {
	d, err := testkit.Trajectory(testkit.DefaultTrajectoryConfig())
	require.NoError(t, err)
	m, err := trend.NewRegressorModel(d, regress.NewPolynomial(1, 0.95))
	require.NoError(t, err)

	run, err := (&Fitter{Seed: m}).FitGenes(context.Background(), []string{testkit.GeneRising}, "")
	require.NoError(t, err)
	r := run.Results[0]
	require.NoError(t, r.Err)
	assert.Equal(t, "RegressorModel[Polynomial[degree=1]]", r.Model)
	assert.InDelta(t, 2.0, r.YTest[0], 1e-9)
	assert.InDelta(t, 5.0, r.YTest[len(r.YTest)-1], 1e-9)
}

func TestFitGenesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Fitter{Seed: seed(t)}).FitGenes(ctx, []string{testkit.GeneRising}, "")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFitGenesWithoutSeed(t *testing.T) {
	_, err := (&Fitter{}).FitGenes(context.Background(), nil, "")
	assert.True(t, errors.Is(err, core.ErrUnknownOption))
}

type memRecorder struct {
	runs []*Run
	err  error
}

func (m *memRecorder) SaveRun(_ context.Context, run *Run) error {
	m.runs = append(m.runs, run)
	return m.err
}

func TestFitGenesRecordsRun(t *testing.T) {
	rec := &memRecorder{}
	f := &Fitter{Seed: seed(t), Recorder: rec}
	run, err := f.FitGenes(context.Background(), []string{testkit.GeneRising}, testkit.LineageAlpha)
	require.NoError(t, err)
	require.Len(t, rec.runs, 1)
	assert.Same(t, run, rec.runs[0])
	assert.False(t, run.CreatedAt.IsZero())

	rec.err = errors.New("connection refused")
	run, err = f.FitGenes(context.Background(), []string{testkit.GeneRising}, "")
	assert.Error(t, err)
	assert.NotNil(t, run, "the run is returned even when recording fails")
}
