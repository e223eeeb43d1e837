package trend

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/testkit"
)

// fakeR answers mgcv scripts with the weighted mean of the training rows.
type fakeR struct {
	versionErr error
	hasMGCV    bool
	evalErr    error
	scripts    []string
}

func (f *fakeR) Version(context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return "R version 4.3.1", nil
}

func (f *fakeR) HasPackage(_ context.Context, pkg string) (bool, error) {
	return f.hasMGCV && pkg == "mgcv", nil
}

func (f *fakeR) Eval(_ context.Context, script string, stdin []byte) ([]byte, error) {
	f.scripts = append(f.scripts, script)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	records, err := csv.NewReader(bytes.NewReader(stdin)).ReadAll()
	if err != nil {
		return nil, err
	}
	var sw, swy float64
	tests := 0
	for _, rec := range records[1:] {
		if rec[0] == "test" {
			tests++
			continue
		}
		y, _ := strconv.ParseFloat(rec[2], 64)
		w, _ := strconv.ParseFloat(rec[3], 64)
		sw += w
		swy += w * y
	}
	var out strings.Builder
	if tests == 0 {
		out.WriteString("\"edf\"\n1\n")
	} else {
		out.WriteString("\"y\"\n")
		for i := 0; i < tests; i++ {
			fmt.Fprintf(&out, "%g\n", swy/sw)
		}
	}
	return []byte(out.String()), nil
}

func TestMGCVImportCheck(t *testing.T) {
	ctx := context.Background()
	d := toy(t)

	_, err := NewMGCVModel(ctx, d, nil, DefaultMGCVConfig())
	assert.True(t, errors.Is(err, core.ErrExternalDependency))

	_, err = NewMGCVModel(ctx, d, &fakeR{versionErr: errors.New("exec: Rscript not found")}, DefaultMGCVConfig())
	assert.True(t, errors.Is(err, core.ErrExternalDependency))
	assert.Equal(t, apperrors.CodeExternalDependency, apperrors.GetCode(err))

	_, err = NewMGCVModel(ctx, d, &fakeR{}, DefaultMGCVConfig())
	assert.True(t, errors.Is(err, core.ErrExternalDependency))
	assert.Contains(t, err.Error(), "install.packages")

	_, err = NewMGCVModel(ctx, d, &fakeR{}, DefaultMGCVConfig(), SkipImportCheck())
	assert.NoError(t, err)
}

func TestMGCVFitPredict(t *testing.T) {
	rt := &fakeR{hasMGCV: true}
	m, err := NewMGCVModel(context.Background(), toy(t), rt, DefaultMGCVConfig())
	require.NoError(t, err)
	assert.Equal(t, "MGCVModel[k=5, sp=2, family=gaussian]", m.String())

	require.NoError(t, m.Prepare(testkit.GeneConstant, testkit.LineageAlpha, NTestPoints(7)))
	require.NoError(t, m.Fit())
	assert.Equal(t, 1.0, m.EDF())
	require.Len(t, rt.scripts, 1)
	assert.Contains(t, rt.scripts[0], `s(x, k = 5, bs = "cr")`)
	assert.Contains(t, rt.scripts[0], "sp = 2")
	assert.Contains(t, rt.scripts[0], "family = gaussian")
	assert.Contains(t, rt.scripts[0], `predict(fit, newdata = test, type = "link")`)

	pred, err := m.Predict(nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 5, 5, 5, 5, 5, 5}, pred, 1e-9)

	ci, err := m.ConfidenceInterval(nil)
	require.NoError(t, err)
	require.Len(t, ci, 7)
	for i := range ci {
		assert.InDelta(t, 5, ci[i][0], 1e-9)
		assert.InDelta(t, 5, ci[i][1], 1e-9)
	}

	deep := m.DeepCopy()
	got, err := deep.Predict(nil)
	require.NoError(t, err)
	assert.Equal(t, pred, got)

	_, err = m.Copy().Predict([]float64{0.5})
	assert.True(t, errors.Is(err, core.ErrNotFitted))
}

func TestMGCVDropsNonPositiveWeights(t *testing.T) {
	rt := &fakeR{hasMGCV: true}
	m, err := NewMGCVModel(context.Background(), toy(t), rt, DefaultMGCVConfig())
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageAlpha, WeightThreshold(0.5)))
	require.NoError(t, m.Fit())
	for _, w := range m.W {
		assert.Greater(t, w, 0.0)
	}
	assert.Less(t, len(m.X), 50)
}

func TestMGCVUnknownFamilyFallsBack(t *testing.T) {
	cfg := DefaultMGCVConfig()
	cfg.Family = "banana); system('rm -rf /"
	m, err := NewMGCVModel(context.Background(), toy(t), &fakeR{hasMGCV: true}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "MGCVModel[k=5, sp=2, family=gaussian]", m.String())
}

func TestMGCVFitFailure(t *testing.T) {
	rt := &fakeR{hasMGCV: true, evalErr: errors.New("Error in gam(...): too few data")}
	m, err := NewMGCVModel(context.Background(), toy(t), rt, DefaultMGCVConfig())
	require.NoError(t, err)
	require.NoError(t, m.Prepare(testkit.GeneRising, testkit.LineageBeta))
	err = m.Fit()
	assert.Equal(t, apperrors.CodeFitFailed, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "too few data")
}

func TestParseColumn(t *testing.T) {
	vals, err := parseColumn([]byte("\"y\"\n1.5\n-2\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, vals)

	_, err = parseColumn([]byte("\"y\"\nabc\n"))
	assert.Error(t, err)
	_, err = parseColumn(nil)
	assert.True(t, errors.Is(err, core.ErrInvalidShape))
}
