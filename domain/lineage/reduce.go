package lineage

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"cellfate/adapters/similarity"
	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/numeric"
)

// Mode selects how query mass is handled by Reduce.
type Mode string

const (
	// ModeDist redistributes query mass using similarity weights.
	ModeDist Mode = "dist"
	// ModeScale discards query mass and rescales the reference rows.
	ModeScale Mode = "scale"
)

// Normalization selects how similarity weights are made row-stochastic.
type Normalization string

const (
	NormalizeScale   Normalization = "scale"
	NormalizeSoftmax Normalization = "softmax"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDist, ModeScale:
		return Mode(s), nil
	}
	return "", apperrors.Validation(core.ErrUnknownOption, "invalid mode %q, valid options are: 'dist', 'scale'", s)
}

// ParseNormalization validates a weight normalization name.
func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(s) {
	case NormalizeScale, NormalizeSoftmax:
		return Normalization(s), nil
	}
	return "", apperrors.Validation(core.ErrUnknownOption,
		"normalization method %q not found, valid options are: 'scale', 'softmax'", s)
}

type reduceConfig struct {
	mode          Mode
	measureName   string
	measure       similarity.Measure
	measureOpts   similarity.Options
	normalization Normalization
	beta          float64
	returnWeights bool
}

// ReduceOption configures Reduce.
type ReduceOption func(*reduceConfig)

// WithMode sets dist (default) or scale.
func WithMode(m Mode) ReduceOption { return func(c *reduceConfig) { c.mode = m } }

// WithMeasure selects a similarity measure by name (default mutual_info).
func WithMeasure(name string) ReduceOption {
	return func(c *reduceConfig) { c.measureName = name }
}

// WithSimilarity injects a measure implementation, overriding WithMeasure.
func WithSimilarity(m similarity.Measure) ReduceOption {
	return func(c *reduceConfig) { c.measure = m }
}

// WithMeasureOptions tunes the built-in measures.
func WithMeasureOptions(o similarity.Options) ReduceOption {
	return func(c *reduceConfig) { c.measureOpts = o }
}

// WithNormalization sets scale or softmax (default).
func WithNormalization(n Normalization) ReduceOption {
	return func(c *reduceConfig) { c.normalization = n }
}

// WithBeta sets the softmax inverse temperature (default 1).
func WithBeta(beta float64) ReduceOption { return func(c *reduceConfig) { c.beta = beta } }

// WithReturnWeights requests the normalized weight table.
func WithReturnWeights() ReduceOption { return func(c *reduceConfig) { c.returnWeights = true } }

// WeightTable holds the normalized projection weights: one row per query
// lineage, one column per reference lineage.
type WeightTable struct {
	Query     []string
	Reference []string
	Values    *mat.Dense
}

// At returns the weight of query lineage q for reference lineage r.
func (w *WeightTable) At(q, r string) (float64, error) {
	i, j := indexOf(w.Query, q), indexOf(w.Reference, r)
	if i < 0 || j < 0 {
		return 0, apperrors.NotFound(core.ErrLineageNotFound, "no weight for (%q, %q)", q, r)
	}
	return w.Values.At(i, j), nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

// Reduce restricts the lineage to the reference lineages named by keys and
// redistributes the mass of the remaining (query) lineages onto them, keeping
// every row stochastic. The weight table is non-nil only in dist mode with
// WithReturnWeights.
func (l *Lineage) Reduce(keys []string, opts ...ReduceOption) (*Lineage, *WeightTable, error) {
	cfg := reduceConfig{
		mode:          ModeDist,
		measureName:   similarity.MutualInfo,
		measureOpts:   similarity.DefaultOptions(),
		normalization: NormalizeSoftmax,
		beta:          1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(keys) == 0 {
		return nil, nil, apperrors.Validation(core.ErrInvalidSelector, "no keys specified")
	}
	if sameSet(keys, l.names) {
		return nil, nil, apperrors.Validation(core.ErrInvalidSelector, "all lineage names specified")
	}
	if _, err := ParseMode(string(cfg.mode)); err != nil {
		return nil, nil, err
	}
	if cfg.mode == ModeScale && cfg.returnWeights {
		logger.Warn("If mode is 'scale', no weights are computed, returning nil")
	}

	if !numeric.AllClose(numeric.RowSums(l.x), 1) {
		return nil, nil, apperrors.Numerical(core.ErrNotStochastic, "memberships do not sum to one row-wise")
	}

	var invalid []string
	for _, k := range keys {
		if !l.Has(k) {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return nil, nil, apperrors.NotFound(core.ErrLineageNotFound,
			"invalid lineage names %v, valid names are: %s", invalid, strings.Join(l.names, ", "))
	}

	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	refMask := make([]bool, len(l.names))
	qryMask := make([]bool, len(l.names))
	for j, name := range l.names {
		_, in := keySet[name]
		refMask[j] = in
		qryMask[j] = !in
	}
	reference, err := l.Mask(nil, refMask)
	if err != nil {
		return nil, nil, err
	}
	query, err := l.Mask(nil, qryMask)
	if err != nil {
		return nil, nil, err
	}

	var table *WeightTable
	switch cfg.mode {
	case ModeScale:
		reference.x = numeric.RowNormalize(reference.x)
	case ModeDist:
		weights, err := l.projectionWeights(reference, query, cfg)
		if err != nil {
			return nil, nil, err
		}
		redistribute(reference.x, query.x, weights)
		if cfg.returnWeights {
			table = &WeightTable{Query: query.Names(), Reference: reference.Names(), Values: weights}
		}
	}

	if !numeric.AllClose(numeric.RowSums(reference.x), 1) {
		return nil, nil, apperrors.Numerical(core.ErrNotStochastic, "reduced lineage rows do not sum to 1")
	}
	return reference, table, nil
}

// projectionWeights computes, validates and row-normalizes the query x reference weights.
func (l *Lineage) projectionWeights(reference, query *Lineage, cfg reduceConfig) (*mat.Dense, error) {
	measure := cfg.measure
	if measure == nil {
		m, err := similarity.ByName(cfg.measureName, cfg.measureOpts)
		if err != nil {
			return nil, err
		}
		measure = m
	}
	if _, err := ParseNormalization(string(cfg.normalization)); err != nil {
		return nil, err
	}

	weights, err := measure.Weights(reference.X(), query.X())
	if err != nil {
		return nil, apperrors.Wrapf(err, "computing %s weights", measure.Name())
	}

	nq, nr := query.NumLineages(), reference.NumLineages()
	if r, c := weights.Dims(); r != nq || c != nr {
		return nil, apperrors.Validation(core.ErrInvalidWeights,
			"expected weight matrix to be of shape (%d, %d), found (%d, %d)", nq, nr, r, c)
	}
	if !numeric.AllFinite(weights) {
		return nil, apperrors.Numerical(core.ErrInvalidWeights, "weights matrix contains elements that are not finite")
	}
	if numeric.Any(weights, func(v float64) bool { return v < 0 }) {
		return nil, apperrors.Numerical(core.ErrInvalidWeights, "weights matrix contains negative elements")
	}
	if numeric.Any(weights, func(v float64) bool { return v == 0 }) {
		logger.Warn("Weights matrix contains exact zeros")
	}

	var normalized *mat.Dense
	switch cfg.normalization {
	case NormalizeScale:
		normalized = numeric.RowNormalize(weights)
	case NormalizeSoftmax:
		normalized = numeric.Softmax(numeric.RowNormalize(weights), cfg.beta)
	}

	if !numeric.AllFinite(normalized) || !numeric.AllClose(numeric.RowSums(normalized), 1) {
		return nil, apperrors.Numerical(core.ErrInvalidWeights, "weights do not sum to 1 row-wise")
	}
	return normalized, nil
}

// redistribute adds query[:, i] * weights[i, :] into reference for every query column i.
func redistribute(reference, query, weights *mat.Dense) {
	rows, nr := reference.Dims()
	_, nq := query.Dims()
	for i := 0; i < nq; i++ {
		for c := 0; c < rows; c++ {
			mass := query.At(c, i)
			if mass == 0 {
				continue
			}
			for j := 0; j < nr; j++ {
				reference.Set(c, j, reference.At(c, j)+mass*weights.At(i, j))
			}
		}
	}
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, x := range a {
		as[x] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, x := range b {
		bs[x] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for x := range as {
		if _, ok := bs[x]; !ok {
			return false
		}
	}
	return true
}

// String describes the table for logs.
func (w *WeightTable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query\\reference [%s]\n", strings.Join(w.Reference, ", "))
	for i, q := range w.Query {
		fmt.Fprintf(&b, "%s %v\n", q, mat.Row(nil, i, w.Values))
	}
	return b.String()
}
