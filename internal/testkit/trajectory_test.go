package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/dataset"
)

func TestTrajectoryShape(t *testing.T) {
	d, err := Trajectory(DefaultTrajectoryConfig())
	require.NoError(t, err)

	assert.Equal(t, 50, d.NumObs())
	assert.Equal(t, []string{GeneConstant, GeneRising, GeneFalling, GenePeak, GeneDropout}, d.VarNames)
	assert.True(t, d.HasDataKey(CountsLayer))

	rising, err := d.Vector(dataset.KeyX, GeneRising)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rising[0], 1e-12)
	assert.InDelta(t, 5.0, rising[49], 1e-12)

	dropout, err := d.Vector(CountsLayer, GeneDropout)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dropout[1])
	assert.Equal(t, rising[2], dropout[2])

	states, err := d.Obs[dataset.StatesKey(dataset.ForwardLineageKey)].Labels()
	require.NoError(t, err)
	assert.Equal(t, LineageBeta, states[0])
	assert.Equal(t, "", states[25])
	assert.Equal(t, LineageAlpha, states[49])

	l, err := d.Lineage(dataset.ForwardLineageKey)
	require.NoError(t, err)
	for i := 0; i < d.NumObs(); i++ {
		assert.InDelta(t, 1.0, l.At(i, 0)+l.At(i, 1), 1e-12)
	}
}

func TestTrajectoryIsDeterministic(t *testing.T) {
	cfg := DefaultTrajectoryConfig()
	cfg.Noise = 0.3

	a, err := Trajectory(cfg)
	require.NoError(t, err)
	b, err := Trajectory(cfg)
	require.NoError(t, err)
	va, _ := a.Vector(dataset.KeyX, GenePeak)
	vb, _ := b.Vector(dataset.KeyX, GenePeak)
	assert.Equal(t, va, vb)

	cfg.Seed++
	c, err := Trajectory(cfg)
	require.NoError(t, err)
	vc, _ := c.Vector(dataset.KeyX, GenePeak)
	assert.NotEqual(t, va, vc)
}
