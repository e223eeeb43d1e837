package trend

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	apperrors "cellfate/internal/errors"
	"cellfate/ports"
)

// MGCVConfig configures the R mgcv model.
type MGCVConfig struct {
	NSplines int
	Sp       float64
	Family   string
	// Timeout bounds each R invocation; 0 means no limit.
	Timeout time.Duration
}

// DefaultMGCVConfig returns 5 cubic regression splines, sp=2 and the gaussian family.
func DefaultMGCVConfig() MGCVConfig {
	return MGCVConfig{NSplines: 5, Sp: 2, Family: "gaussian"}
}

var mgcvFamilies = map[string]bool{
	"gaussian":         true,
	"poisson":          true,
	"binomial":         true,
	"Gamma":            true,
	"inverse.gaussian": true,
	"quasipoisson":     true,
	"quasibinomial":    true,
}

// MGCVModel fits y ~ s(x, k, bs="cr") with R's mgcv package. The R process
// keeps no state between calls, so every prediction refits on the stored
// training set.
type MGCVModel struct {
	Base
	rt     ports.RRuntime
	cfg    MGCVConfig
	fitted bool
	edf    float64
}

// NewMGCVModel checks that R and mgcv are reachable unless SkipImportCheck is given.
func NewMGCVModel(ctx context.Context, data *dataset.Dataset, rt ports.RRuntime, cfg MGCVConfig, opts ...Option) (*MGCVModel, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if rt == nil {
		return nil, apperrors.ExternalDependency("R runtime", core.ErrExternalDependency)
	}
	if cfg.NSplines < 3 {
		return nil, apperrors.Validation(core.ErrUnknownOption, "mgcv needs at least 3 splines, found %d", cfg.NSplines)
	}
	if !mgcvFamilies[cfg.Family] {
		logger.Warn("unknown family %q, using gaussian", cfg.Family)
		cfg.Family = "gaussian"
	}
	if !o.skipImportCheck {
		if _, err := rt.Version(ctx); err != nil {
			return nil, apperrors.ExternalDependency("R runtime", fmt.Errorf("%w: %v", core.ErrExternalDependency, err))
		}
		ok, err := rt.HasPackage(ctx, "mgcv")
		if err != nil {
			return nil, apperrors.ExternalDependency("R package mgcv", fmt.Errorf("%w: %v", core.ErrExternalDependency, err))
		}
		if !ok {
			return nil, apperrors.ExternalDependency("R package mgcv",
				fmt.Errorf("%w: install it with install.packages('mgcv')", core.ErrExternalDependency))
		}
	}
	base, err := newBase(data, o.dropouts)
	if err != nil {
		return nil, err
	}
	return &MGCVModel{Base: base, rt: rt, cfg: cfg}, nil
}

const mgcvScript = `suppressPackageStartupMessages(library(mgcv))
d <- read.csv(file("stdin"))
train <- d[d$role == "train", ]
fit <- gam(y ~ s(x, k = %d, bs = "cr"), data = train, sp = %s, family = %s, weights = w)
test <- d[d$role == "test", , drop = FALSE]
if (nrow(test) > 0) {
  out <- data.frame(y = as.numeric(predict(fit, newdata = test, type = "link")))
} else {
  out <- data.frame(edf = sum(fit$edf))
}
write.csv(out, stdout(), row.names = FALSE)
`

func (m *MGCVModel) script() string {
	return fmt.Sprintf(mgcvScript, m.cfg.NSplines, strconv.FormatFloat(m.cfg.Sp, 'g', -1, 64), m.cfg.Family)
}

// frame encodes the training rows and the test points as one CSV table.
func (m *MGCVModel) frame(xTest []float64) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{{"role", "x", "y", "w"}}
	for i := range m.X {
		rows = append(rows, []string{"train", formatFloat(m.X[i]), formatFloat(m.Y[i]), formatFloat(m.W[i])})
	}
	for _, x := range xTest {
		rows = append(rows, []string{"test", formatFloat(x), "NA", "NA"})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// run evaluates the script and parses the single output column.
func (m *MGCVModel) run(xTest []float64) ([]float64, error) {
	in, err := m.frame(xTest)
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding mgcv input")
	}
	ctx := context.Background()
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	out, err := m.rt.Eval(ctx, m.script(), in)
	if err != nil {
		return nil, err
	}
	return parseColumn(out)
}

func parseColumn(out []byte) ([]float64, error) {
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(err, "parsing mgcv output")
	}
	if len(records) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "mgcv produced no output")
	}
	vals := make([]float64, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != 1 {
			return nil, apperrors.Validation(core.ErrInvalidShape, "expected one column of mgcv output, found %d", len(rec))
		}
		v, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, apperrors.Wrapf(err, "parsing mgcv value %q", rec[0])
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Fit keeps the cells with positive weight and fits them in R.
func (m *MGCVModel) Fit(opts ...FitOption) error {
	if err := m.beginFit(opts); err != nil {
		return err
	}
	m.keepPositiveWeights()
	m.fitted = false

	out, err := m.run(nil)
	if err == nil && len(out) != 1 {
		err = apperrors.Validation(core.ErrInvalidShape, "expected the effective degrees of freedom, found %d values", len(out))
	}
	if err != nil {
		return apperrors.FitFailed(m.kind(), m.Gene, m.Lineage, err)
	}
	m.edf = out[0]
	m.fitted = true
	m.stage = StageFitted
	return nil
}

// EDF returns the effective degrees of freedom reported by mgcv.
func (m *MGCVModel) EDF() float64 { return m.edf }

func (m *MGCVModel) predict(x []float64) ([]float64, error) {
	if !m.fitted {
		return nil, apperrors.Validation(core.ErrNotFitted, "mgcv model is not fitted")
	}
	if len(x) == 0 {
		return []float64{}, nil
	}
	y, err := m.run(x)
	if err != nil {
		return nil, err
	}
	if len(y) != len(x) {
		return nil, apperrors.Validation(core.ErrInvalidShape, "mgcv returned %d predictions for %d points", len(y), len(x))
	}
	return y, nil
}

// Predict evaluates the R fit.
func (m *MGCVModel) Predict(xTest []float64) ([]float64, error) {
	return m.predictWith(m.predict, xTest)
}

// ConfidenceInterval always uses the default band.
func (m *MGCVModel) ConfidenceInterval(xTest []float64) ([][2]float64, error) {
	return m.DefaultConfInt(xTest)
}

// DefaultConfInt computes the residual based band.
func (m *MGCVModel) DefaultConfInt(xTest []float64) ([][2]float64, error) {
	return m.defaultConfInt(m.predict, xTest)
}

func (m *MGCVModel) Copy() Model {
	return &MGCVModel{Base: m.configCopy(), rt: m.rt, cfg: m.cfg}
}

func (m *MGCVModel) DeepCopy() Model {
	c := &MGCVModel{Base: m.configCopy(), rt: m.rt, cfg: m.cfg, fitted: m.fitted, edf: m.edf}
	m.copyStateTo(&c.Base)
	return c
}

func (m *MGCVModel) kind() string { return "MGCVModel" }

func (m *MGCVModel) String() string {
	return fmt.Sprintf("%s[k=%d, sp=%g, family=%s]", m.kind(), m.cfg.NSplines, m.cfg.Sp, m.cfg.Family)
}
