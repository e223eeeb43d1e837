package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/dataset"
	"cellfate/domain/lineage"
)

// Gene names produced by the trajectory generator.
const (
	GeneConstant = "constant"
	GeneRising   = "rising"
	GeneFalling  = "falling"
	GeneDropout  = "dropout"
	GenePeak     = "peak"
)

// Lineage names produced by the trajectory generator.
const (
	LineageAlpha = "Alpha"
	LineageBeta  = "Beta"
)

// CountsLayer is a CSR copy of X.
const CountsLayer = "counts"

// TrajectoryConfig configures the synthetic trajectory generator
type TrajectoryConfig struct {
	Cells         int     `json:"cells"`
	ConstantLevel float64 `json:"constant_level"`
	Noise         float64 `json:"noise"`
	Seed          int64   `json:"seed"`
}

// DefaultTrajectoryConfig returns 50 cells, a constant gene at 5 and no noise.
func DefaultTrajectoryConfig() TrajectoryConfig {
	return TrajectoryConfig{
		Cells:         50,
		ConstantLevel: 5,
		Noise:         0,
		Seed:          42,
	}
}

// TrajectoryGenerator builds annotated datasets of cells ordered along a
// pseudotime in [0, 1] that split into two lineages.
type TrajectoryGenerator struct {
	config TrajectoryConfig
	rng    *rand.Rand
}

// NewTrajectoryGenerator creates a generator seeded from config.
func NewTrajectoryGenerator(config TrajectoryConfig) *TrajectoryGenerator {
	return &TrajectoryGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Time returns the pseudotime of cell i.
func (g *TrajectoryGenerator) Time(i int) float64 {
	if g.config.Cells < 2 {
		return 0
	}
	return float64(i) / float64(g.config.Cells-1)
}

// Generate returns a dataset with:
//   - obs "latent_time" (numeric) and "final_states" (Alpha near the end,
//     Beta near the start, empty otherwise)
//   - genes constant, rising (2+3t), falling (5-3t), peak (exp(-(t-0.5)²/0.02))
//     and dropout (rising with every other cell at zero)
//   - layer "counts" holding X in CSR form
//   - obsm "to_final_states" with lineages Alpha (weight t) and Beta (1-t)
func (g *TrajectoryGenerator) Generate() (*dataset.Dataset, error) {
	n := g.config.Cells
	genes := []string{GeneConstant, GeneRising, GeneFalling, GenePeak, GeneDropout}
	obs := make([]string, n)
	x := mat.NewDense(n, len(genes), nil)
	times := make([]float64, n)
	states := make([]string, n)
	probs := mat.NewDense(n, 2, nil)

	for i := 0; i < n; i++ {
		t := g.Time(i)
		obs[i] = cellName(i)
		times[i] = t
		switch {
		case t >= 0.8:
			states[i] = LineageAlpha
		case t <= 0.2:
			states[i] = LineageBeta
		}

		rising := 2 + 3*t + g.noise()
		x.Set(i, 0, g.config.ConstantLevel+g.noise())
		x.Set(i, 1, rising)
		x.Set(i, 2, 5-3*t+g.noise())
		x.Set(i, 3, math.Exp(-(t-0.5)*(t-0.5)/0.02)+g.noise())
		if i%2 == 1 {
			x.Set(i, 4, 0)
		} else {
			x.Set(i, 4, rising)
		}

		probs.Set(i, 0, t)
		probs.Set(i, 1, 1-t)
	}

	d, err := dataset.New(obs, genes, x)
	if err != nil {
		return nil, err
	}
	if err := d.AddLayer(CountsLayer, dataset.CSRFromDense(x)); err != nil {
		return nil, err
	}
	if err := d.AddObs("latent_time", dataset.NumericColumn(times)); err != nil {
		return nil, err
	}
	if err := d.AddObs(dataset.StatesKey(dataset.ForwardLineageKey), dataset.CategoricalColumn(states)); err != nil {
		return nil, err
	}
	lin, err := lineage.New(probs, []string{LineageAlpha, LineageBeta})
	if err != nil {
		return nil, err
	}
	if err := d.SetObsm(dataset.ForwardLineageKey, lin); err != nil {
		return nil, err
	}
	return d, nil
}

func (g *TrajectoryGenerator) noise() float64 {
	if g.config.Noise == 0 {
		return 0
	}
	return g.config.Noise * g.rng.NormFloat64()
}

func cellName(i int) string { return fmt.Sprintf("cell_%d", i) }

// Trajectory is a shortcut for NewTrajectoryGenerator(config).Generate().
func Trajectory(config TrajectoryConfig) (*dataset.Dataset, error) {
	return NewTrajectoryGenerator(config).Generate()
}
