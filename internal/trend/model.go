// Package trend fits smooth gene expression trends along pseudotime, weighted
// by the membership of each cell in one lineage.
//
// A model is used as prepare, fit, predict and confidence interval. Prepare
// may be called again at any time and resets every derived array.
package trend

import (
	"gonum.org/v1/gonum/floats"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/numeric"
	"cellfate/internal/spline"
)

var logger = internal.DefaultLogger.With("trend")

// Model is the contract shared by all trend model variants.
type Model interface {
	Prepare(gene, lineage string, opts ...PrepareOption) error
	Fit(opts ...FitOption) error
	// Predict evaluates the fit at xTest, or at the prepared grid when xTest is nil.
	Predict(xTest []float64) ([]float64, error)
	ConfidenceInterval(xTest []float64) ([][2]float64, error)
	DefaultConfInt(xTest []float64) ([][2]float64, error)
	// Copy returns an unprepared model with the same configuration.
	Copy() Model
	// DeepCopy returns a copy that also carries every prepared and fitted array.
	DeepCopy() Model
	String() string
	State() *Base
}

// Stage tracks how far a model has progressed.
type Stage int

const (
	StageUninitialized Stage = iota
	StagePrepared
	StageFitted
	StagePredicted
)

func (s Stage) String() string {
	switch s {
	case StagePrepared:
		return "prepared"
	case StageFitted:
		return "fitted"
	case StagePredicted:
		return "predicted"
	default:
		return "uninitialized"
	}
}

// Base holds the dataset borrow and the per-fit arrays common to all models.
// The exported arrays are read by plotting and reporting code.
type Base struct {
	data     *dataset.Dataset
	dropouts *float64
	stage    Stage

	Gene    string
	Lineage string

	XAll, YAll, WAll []float64
	X, Y, W          []float64
	XTest, YTest     []float64
	XHat, YHat       []float64
	ConfInt          [][2]float64
}

// Option configures a model at construction.
type Option func(*options)

type options struct {
	dropouts        *float64
	grid            *spline.Grid
	level           float64
	skipImportCheck bool
}

func defaultOptions() options {
	return options{level: 0.95}
}

// WithDropoutFilter removes cells whose expression is below threshold from
// the fit set. A threshold of 0 removes cells with expression close to zero.
func WithDropoutFilter(threshold float64) Option {
	return func(o *options) { o.dropouts = &threshold }
}

// WithGrid enables a GCV grid search over the given spline hyperparameters.
func WithGrid(g spline.Grid) Option {
	return func(o *options) { o.grid = &g }
}

// WithDefaultGrid enables the grid search with spline.DefaultGrid.
func WithDefaultGrid() Option {
	return WithGrid(spline.DefaultGrid())
}

// WithLevel sets the coverage of native confidence intervals (default 0.95).
func WithLevel(level float64) Option {
	return func(o *options) { o.level = level }
}

// SkipImportCheck disables the runtime probe of MGCVModel.
func SkipImportCheck() Option {
	return func(o *options) { o.skipImportCheck = true }
}

func newBase(data *dataset.Dataset, dropouts *float64) (Base, error) {
	if data == nil {
		return Base{}, apperrors.Validation(core.ErrInvalidShape, "dataset is nil")
	}
	b := Base{data: data}
	if dropouts != nil {
		t := *dropouts
		b.dropouts = &t
	}
	return b, nil
}

// State returns the shared arrays.
func (b *Base) State() *Base { return b }

// Data returns the borrowed dataset.
func (b *Base) Data() *dataset.Dataset { return b.data }

// Stage returns the lifecycle stage.
func (b *Base) Stage() Stage { return b.stage }

func (b *Base) reset() {
	b.stage = StageUninitialized
	b.Gene, b.Lineage = "", ""
	b.XAll, b.YAll, b.WAll = nil, nil, nil
	b.X, b.Y, b.W = nil, nil, nil
	b.XTest, b.YTest = nil, nil
	b.XHat, b.YHat = nil, nil
	b.ConfInt = nil
}

// configCopy returns a fresh base sharing the dataset and dropout filter.
func (b *Base) configCopy() Base {
	c, _ := newBase(b.data, b.dropouts)
	return c
}

// copyStateTo duplicates every array into dst.
func (b *Base) copyStateTo(dst *Base) {
	dst.stage = b.stage
	dst.Gene, dst.Lineage = b.Gene, b.Lineage
	dst.XAll, dst.YAll, dst.WAll = clone(b.XAll), clone(b.YAll), clone(b.WAll)
	dst.X, dst.Y, dst.W = clone(b.X), clone(b.Y), clone(b.W)
	dst.XTest, dst.YTest = clone(b.XTest), clone(b.YTest)
	dst.XHat, dst.YHat = clone(b.XHat), clone(b.YHat)
	if b.ConfInt != nil {
		dst.ConfInt = append([][2]float64(nil), b.ConfInt...)
	}
}

func clone(x []float64) []float64 {
	if x == nil {
		return nil
	}
	return append([]float64(nil), x...)
}

// FitOption overrides the prepared training arrays.
type FitOption func(*fitOverrides)

type fitOverrides struct {
	x, y, w []float64
}

// WithX replaces the prepared independent variable.
func WithX(x []float64) FitOption { return func(f *fitOverrides) { f.x = x } }

// WithY replaces the prepared expression values.
func WithY(y []float64) FitOption { return func(f *fitOverrides) { f.y = y } }

// WithW replaces the prepared weights.
func WithW(w []float64) FitOption { return func(f *fitOverrides) { f.w = w } }

// beginFit applies overrides and checks that the training arrays line up.
func (b *Base) beginFit(opts []FitOption) error {
	if b.stage < StagePrepared {
		return apperrors.Validation(core.ErrNotPrepared, "call Prepare before Fit")
	}
	var o fitOverrides
	for _, opt := range opts {
		opt(&o)
	}
	if o.x != nil {
		b.X = clone(o.x)
	}
	if o.y != nil {
		b.Y = clone(o.y)
	}
	if o.w != nil {
		b.W = clone(o.w)
	}
	if len(b.X) != len(b.Y) {
		return apperrors.Validation(core.ErrInvalidShape,
			"inputs and targets differ in shape: %d vs. %d", len(b.X), len(b.Y))
	}
	if len(b.Y) != len(b.W) {
		return apperrors.Validation(core.ErrInvalidShape,
			"inputs and weights differ in shape: %d vs. %d", len(b.Y), len(b.W))
	}
	return nil
}

// keepPositiveWeights restricts X, Y and W to rows with positive weight.
func (b *Base) keepPositiveWeights() {
	keep := make([]bool, len(b.W))
	for i, v := range b.W {
		keep[i] = v > 0
	}
	b.X = numeric.Filter(b.X, keep)
	b.Y = numeric.Filter(b.Y, keep)
	b.W = numeric.Filter(b.W, keep)
}

// testPoints returns xTest, replacing the stored grid when it is non-nil.
func (b *Base) testPoints(xTest []float64) ([]float64, error) {
	if xTest != nil {
		b.XTest = clone(xTest)
	}
	if b.XTest == nil {
		return nil, apperrors.Validation(core.ErrNotPrepared, "no test points, call Prepare or pass them explicitly")
	}
	return b.XTest, nil
}

func (b *Base) requireFitted() error {
	if b.stage < StageFitted {
		return apperrors.Validation(core.ErrNotFitted, "call Fit before predicting")
	}
	return nil
}

// predictWith runs predict on the test points and records the result.
func (b *Base) predictWith(predict func([]float64) ([]float64, error), xTest []float64) ([]float64, error) {
	if err := b.requireFitted(); err != nil {
		return nil, err
	}
	xt, err := b.testPoints(xTest)
	if err != nil {
		return nil, err
	}
	y, err := predict(xt)
	if err != nil {
		return nil, err
	}
	b.YTest = y
	b.stage = StagePredicted
	return y, nil
}

// span returns the range of the fit set, used in log messages.
func (b *Base) span() (float64, float64) {
	if len(b.X) == 0 {
		return 0, 0
	}
	return floats.Min(b.X), floats.Max(b.X)
}

var (
	_ Model = (*RegressorModel)(nil)
	_ Model = (*SplineModel)(nil)
	_ Model = (*MGCVModel)(nil)
)
