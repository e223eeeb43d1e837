package trend

import (
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	"cellfate/domain/lineage"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/numeric"
)

// Defaults used by Prepare.
const (
	DefaultTimeKey         = "latent_time"
	DefaultNTestPoints     = 200
	DefaultWeightThreshold = 0.01
	endWindow              = 10
)

// PrepareOption configures Prepare.
type PrepareOption func(*prepareConfig)

type prepareConfig struct {
	backward      bool
	dataKey       string
	timeKey       string
	lineageKey    string
	startLineage  string
	endLineage    string
	threshold     *float64
	weightThresh  float64
	weightReplace float64
	filterData    bool
	nTestPoints   int
	observedTest  bool
}

func defaultPrepareConfig() prepareConfig {
	return prepareConfig{
		dataKey:       dataset.KeyX,
		timeKey:       DefaultTimeKey,
		weightThresh:  DefaultWeightThreshold,
		weightReplace: DefaultWeightThreshold,
		nTestPoints:   DefaultNTestPoints,
	}
}

// Backward reads lineages from the backward (root states) annotation.
func Backward() PrepareOption { return func(c *prepareConfig) { c.backward = true } }

// DataKey selects X, obs or a layer as the expression source.
func DataKey(key string) PrepareOption { return func(c *prepareConfig) { c.dataKey = key } }

// TimeKey names the pseudotime annotation.
func TimeKey(key string) PrepareOption { return func(c *prepareConfig) { c.timeKey = key } }

// LineageKey overrides the lineage annotation derived from the direction.
func LineageKey(key string) PrepareOption { return func(c *prepareConfig) { c.lineageKey = key } }

// StartLineage starts the test grid at the earliest pseudotime of cells in
// that terminal state.
func StartLineage(name string) PrepareOption {
	return func(c *prepareConfig) { c.startLineage = name }
}

// EndLineage ends the test grid at the latest pseudotime of cells in that
// terminal state.
func EndLineage(name string) PrepareOption { return func(c *prepareConfig) { c.endLineage = name } }

// Threshold sets the weight above which cells are considered when locating
// the end of the trend. The default is the median weight.
func Threshold(t float64) PrepareOption { return func(c *prepareConfig) { c.threshold = &t } }

// WeightThreshold sets weights below t to 0.
func WeightThreshold(t float64) PrepareOption {
	return WeightThresholdPair(t, 0)
}

// WeightThresholdPair sets weights below t to replacement.
func WeightThresholdPair(t, replacement float64) PrepareOption {
	return func(c *prepareConfig) { c.weightThresh, c.weightReplace = t, replacement }
}

// FilterData restricts the fit set to the test window.
func FilterData() PrepareOption { return func(c *prepareConfig) { c.filterData = true } }

// NTestPoints sets the size of the uniform test grid.
func NTestPoints(n int) PrepareOption {
	return func(c *prepareConfig) { c.nTestPoints, c.observedTest = n, false }
}

// ObservedTestPoints uses the observed pseudotimes inside the window as the grid.
func ObservedTestPoints() PrepareOption { return func(c *prepareConfig) { c.observedTest = true } }

// Prepare extracts pseudotime, expression and lineage weights for one gene
// and computes the test grid. An empty lineage weighs every cell by 1.
func (b *Base) Prepare(gene, lin string, opts ...PrepareOption) error {
	cfg := defaultPrepareConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.lineageKey == "" {
		cfg.lineageKey = dataset.LineageKey(cfg.backward)
	}
	if !cfg.observedTest && cfg.nTestPoints < 2 {
		return apperrors.Validation(core.ErrUnknownOption, "need at least 2 test points, found %d", cfg.nTestPoints)
	}

	b.reset()
	d := b.data

	if !d.HasDataKey(cfg.dataKey) {
		return apperrors.NotFound(core.ErrKeyNotFound,
			"data key must be a key of layers: [%s], %q or %q, found %q",
			strings.Join(layerKeys(d), ", "), dataset.KeyObs, dataset.KeyX, cfg.dataKey)
	}
	timeCol, ok := d.Obs[cfg.timeKey]
	if !ok {
		return apperrors.NotFound(core.ErrKeyNotFound, "time key %q not found in obs", cfg.timeKey)
	}
	xAll, err := timeCol.Floats()
	if err != nil {
		return apperrors.Wrapf(err, "time key %q", cfg.timeKey)
	}
	yAll, err := d.Vector(cfg.dataKey, gene)
	if err != nil {
		return err
	}

	var members *lineage.Lineage
	if lin != "" || cfg.startLineage != "" || cfg.endLineage != "" {
		if members, err = d.Lineage(cfg.lineageKey); err != nil {
			return err
		}
		for _, name := range []string{cfg.startLineage, cfg.endLineage} {
			if name != "" && !members.Has(name) {
				return apperrors.NotFound(core.ErrLineageNotFound,
					"lineage %q not found in obsm[%q], valid names are: %s",
					name, cfg.lineageKey, strings.Join(members.Names(), ", "))
			}
		}
	}

	var wAll []float64
	if lin != "" {
		if wAll, err = members.Column(lin); err != nil {
			return err
		}
		for i, v := range wAll {
			if v < cfg.weightThresh {
				wAll[i] = cfg.weightReplace
			}
		}
	} else {
		wAll = make([]float64, len(xAll))
		for i := range wAll {
			wAll[i] = 1
		}
	}
	b.XAll, b.YAll, b.WAll = clone(xAll), clone(yAll), clone(wAll)

	finite := make([]bool, len(xAll))
	for i, v := range xAll {
		finite[i] = !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	x, y, w := numeric.Filter(xAll, finite), numeric.Filter(yAll, finite), numeric.Filter(wAll, finite)
	if len(x) == 0 {
		return apperrors.Validation(core.ErrInsufficientData, "time key %q has no finite values", cfg.timeKey)
	}
	x, ixs := numeric.UniqueSorted(x)
	y, w = numeric.Take(y, ixs), numeric.Take(w, ixs)

	start := x[0]
	if cfg.startLineage != "" && cfg.startLineage != lin {
		if start, err = b.stateTime(xAll, cfg.lineageKey, cfg.startLineage, floats.Min); err != nil {
			return err
		}
	}
	var end float64
	if cfg.endLineage != "" && cfg.endLineage != lin {
		if end, err = b.stateTime(xAll, cfg.lineageKey, cfg.endLineage, floats.Max); err != nil {
			return err
		}
	} else {
		end = peakTime(x, w, cfg.threshold)
	}
	if start > end {
		start, end = end, start
	}

	window := make([]bool, len(x))
	for i, v := range x {
		window[i] = v >= start && v <= end
	}
	if cfg.observedTest {
		b.XTest = numeric.Filter(x, window)
	} else {
		b.XTest = floats.Span(make([]float64, cfg.nTestPoints), start, end)
	}

	if cfg.filterData {
		x, y, w = numeric.Filter(x, window), numeric.Filter(y, window), numeric.Filter(w, window)
	}
	if b.dropouts != nil {
		keep := make([]bool, len(y))
		t := *b.dropouts
		for i, v := range y {
			if t == 0 {
				keep[i] = !numeric.Close(v, 0)
			} else {
				keep[i] = v >= t
			}
		}
		x, y, w = numeric.Filter(x, keep), numeric.Filter(y, keep), numeric.Filter(w, keep)
	}

	b.X, b.Y, b.W = x, y, w
	b.Gene, b.Lineage = gene, lin
	b.stage = StagePrepared
	logger.Debug("prepared gene %q lineage %q: %d training points, grid [%g, %g]", gene, lin, len(x), start, end)
	return nil
}

// stateTime reduces the pseudotimes of cells labelled state in the state
// annotation belonging to lineageKey.
func (b *Base) stateTime(xAll []float64, lineageKey, state string, reduce func([]float64) float64) (float64, error) {
	key := dataset.StatesKey(lineageKey)
	col, ok := b.data.Obs[key]
	if !ok {
		return 0, apperrors.NotFound(core.ErrKeyNotFound, "state annotation %q not found in obs", key)
	}
	labels, err := col.Labels()
	if err != nil {
		return 0, apperrors.Wrapf(err, "state annotation %q", key)
	}
	var times []float64
	for i, label := range labels {
		if label == state && !math.IsNaN(xAll[i]) {
			times = append(times, xAll[i])
		}
	}
	if len(times) == 0 {
		return 0, apperrors.Validation(core.ErrInsufficientData, "no cells with a pseudotime are in state %q", state)
	}
	return reduce(times), nil
}

// peakTime returns the pseudotime at the maximum of the moving average of
// the weights above threshold. It falls back to the last pseudotime when no
// weight exceeds the threshold.
func peakTime(x, w []float64, threshold *float64) float64 {
	var t float64
	if threshold != nil {
		t = *threshold
	} else {
		finite := make(stats.Float64Data, 0, len(w))
		for _, v := range w {
			if !math.IsNaN(v) {
				finite = append(finite, v)
			}
		}
		t, _ = stats.Median(finite)
	}

	var xs, ws []float64
	for i, v := range w {
		if v > t {
			xs = append(xs, x[i])
			ws = append(ws, v)
		}
	}
	if len(ws) == 0 {
		logger.Debug("no weight exceeds %g, ending the trend at the last pseudotime", t)
		return x[len(x)-1]
	}
	return xs[floats.MaxIdx(numeric.MovingAverage(ws, endWindow))]
}

func layerKeys(d *dataset.Dataset) []string {
	keys := make([]string, 0, len(d.Layers))
	for k := range d.Layers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
