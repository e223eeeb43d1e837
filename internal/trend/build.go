package trend

import (
	"context"
	"time"

	"cellfate/domain/dataset"
	"cellfate/internal/regress"
	"cellfate/internal/spline"
	"cellfate/ports"
)

// Model kinds accepted by Build besides the regress kinds.
const (
	KindSpline = "spline"
	KindMGCV   = "mgcv"
)

// Spec names a model family and the hyperparameters callers commonly tune.
// Zero values select each family's defaults.
type Spec struct {
	Kind       string
	Degree     int
	Bandwidth  float64
	NSplines   int
	Family     string
	Timeout    time.Duration
	GridSearch bool
}

// Build constructs an unprepared model over data. rt is only used by mgcv.
func Build(ctx context.Context, data *dataset.Dataset, spec Spec, rt ports.RRuntime) (Model, error) {
	var opts []Option
	if spec.GridSearch {
		opts = append(opts, WithDefaultGrid())
	}

	switch spec.Kind {
	case "", KindSpline:
		cfg := spline.DefaultConfig()
		if spec.NSplines > 0 {
			cfg.NSplines = spec.NSplines
		}
		m, err := NewSplineModel(data, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindMGCV:
		cfg := DefaultMGCVConfig()
		if spec.Family != "" {
			cfg.Family = spec.Family
		}
		if spec.NSplines > 0 {
			cfg.NSplines = spec.NSplines
		}
		cfg.Timeout = spec.Timeout
		m, err := NewMGCVModel(ctx, data, rt, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		reg, err := regress.New(regress.Kind(spec.Kind), regress.Params{Degree: spec.Degree, Bandwidth: spec.Bandwidth})
		if err != nil {
			return nil, err
		}
		m, err := NewRegressorModel(data, reg, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
