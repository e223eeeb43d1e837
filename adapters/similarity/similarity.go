// Package similarity computes query-by-reference weight matrices used to
// redistribute lineage probability mass. Larger weights mean more similar.
package similarity

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
)

var logger = internal.DefaultLogger.With("similarity")

// Measure names accepted by ByName.
const (
	CosineSim       = "cosine_sim"
	WassersteinDist = "wasserstein_dist"
	KLDiv           = "kl_div"
	JSDiv           = "js_div"
	MutualInfo      = "mutual_info"
	Equal           = "equal"
)

// Measure scores every query column against every reference column.
type Measure interface {
	// Name returns the measure identifier
	Name() string
	// Weights returns a non-negative (n_query x n_reference) matrix. reference and
	// query share rows (cells) and are not modified.
	Weights(reference, query *mat.Dense) (*mat.Dense, error)
}

// Options tune the measures that need it.
type Options struct {
	// Neighbors is k for the mutual information estimator.
	Neighbors int
	// Seed drives the jitter added before the kNN search.
	Seed int64
}

// DefaultOptions returns the estimator defaults.
func DefaultOptions() Options {
	return Options{Neighbors: 3, Seed: 0}
}

// ByName acts as the factory for the supported measures.
func ByName(name string, opts Options) (Measure, error) {
	switch name {
	case CosineSim:
		return CosineSimilarity{}, nil
	case WassersteinDist:
		return NewWasserstein(), nil
	case KLDiv:
		return NewKLDivergence(), nil
	case JSDiv:
		return NewJSDivergence(), nil
	case MutualInfo:
		return NewMutualInformation(opts.Neighbors, opts.Seed), nil
	case Equal:
		return EqualWeights{}, nil
	default:
		return nil, apperrors.Validation(core.ErrUnknownOption,
			"distance measure %q not found, valid options are: %v", name, Names())
	}
}

// Names lists the supported measure names.
func Names() []string {
	names := []string{CosineSim, WassersteinDist, KLDiv, JSDiv, MutualInfo, Equal}
	sort.Strings(names)
	return names
}

// removeZeroRows drops every row in which a or b holds an exact zero.
func removeZeroRows(a, b *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return nil, nil, apperrors.Validation(core.ErrInvalidShape, "lineage objects have unequal cell numbers: %d vs %d", ar, br)
	}

	keep := make([]int, 0, ar)
	for i := 0; i < ar; i++ {
		if !rowHasZero(a, i, ac) && !rowHasZero(b, i, bc) {
			keep = append(keep, i)
		}
	}
	logger.Warn("Removed %d rows because they contained zeros", ar-len(keep))
	if len(keep) == 0 {
		return nil, nil, apperrors.Numerical(core.ErrInvalidWeights, "no rows left after removing rows containing zeros")
	}

	return takeRows(a, keep), takeRows(b, keep), nil
}

func rowHasZero(m *mat.Dense, i, c int) bool {
	for j := 0; j < c; j++ {
		if m.At(i, j) == 0 {
			return true
		}
	}
	return false
}

func takeRows(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		out.SetRow(k, m.RawRowView(i))
	}
	return out
}
