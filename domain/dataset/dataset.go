package dataset

import (
	"strings"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/domain/lineage"
	apperrors "cellfate/internal/errors"
)

// Data keys understood by Vector besides layer names.
const (
	KeyX   = "X"
	KeyObs = "obs"
)

// Default keys of the per-cell lineage annotations.
const (
	ForwardLineageKey  = "to_final_states"
	BackwardLineageKey = "from_root_states"
)

// StatesKey returns the annotation holding the state labels belonging to a
// lineage key: the key without its first "_" token.
func StatesKey(lineageKey string) string {
	if i := strings.Index(lineageKey, "_"); i >= 0 {
		return lineageKey[i+1:]
	}
	return lineageKey
}

// LineageKey returns the default lineage annotation for a direction.
func LineageKey(backward bool) string {
	if backward {
		return BackwardLineageKey
	}
	return ForwardLineageKey
}

// Dataset is an annotated cell x gene table. X and layers may be dense or CSR.
type Dataset struct {
	ObsNames []string
	VarNames []string
	X        mat.Matrix

	Layers map[string]mat.Matrix
	Obs    map[string]Column
	// Obsm holds per-cell multi-dimensional annotations. Lineage memberships
	// are stored here as *lineage.Lineage.
	Obsm map[string]mat.Matrix

	varIndex map[string]int
}

// New creates a Dataset with an expression matrix of shape (obs, vars).
func New(obsNames, varNames []string, x mat.Matrix) (*Dataset, error) {
	if x == nil {
		return nil, apperrors.Validation(core.ErrInvalidShape, "expression matrix is nil")
	}
	r, c := x.Dims()
	if r != len(obsNames) || c != len(varNames) {
		return nil, apperrors.Validation(core.ErrInvalidShape,
			"expression matrix has shape (%d, %d), expected (%d, %d)", r, c, len(obsNames), len(varNames))
	}
	index := make(map[string]int, len(varNames))
	for j, name := range varNames {
		if _, dup := index[name]; dup {
			return nil, apperrors.Validation(core.ErrDuplicateName, "gene %q occurs more than once", name)
		}
		index[name] = j
	}
	return &Dataset{
		ObsNames: append([]string(nil), obsNames...),
		VarNames: append([]string(nil), varNames...),
		X:        x,
		Layers:   make(map[string]mat.Matrix),
		Obs:      make(map[string]Column),
		Obsm:     make(map[string]mat.Matrix),
		varIndex: index,
	}, nil
}

// NumObs returns the number of cells (rows)
func (d *Dataset) NumObs() int { return len(d.ObsNames) }

// NumVars returns the number of genes (columns)
func (d *Dataset) NumVars() int { return len(d.VarNames) }

// AddLayer stores an alternative expression matrix of the same shape as X.
func (d *Dataset) AddLayer(key string, m mat.Matrix) error {
	if key == KeyX || key == KeyObs {
		return apperrors.Validation(core.ErrInvalidSelector, "layer key %q is reserved", key)
	}
	if r, c := m.Dims(); r != d.NumObs() || c != d.NumVars() {
		return apperrors.Validation(core.ErrInvalidShape,
			"layer %q has shape (%d, %d), expected (%d, %d)", key, r, c, d.NumObs(), d.NumVars())
	}
	d.Layers[key] = m
	return nil
}

// AddObs stores a per-cell annotation column.
func (d *Dataset) AddObs(key string, col Column) error {
	if col.Len() != d.NumObs() {
		return apperrors.Validation(core.ErrInvalidShape,
			"annotation %q has %d values, expected %d", key, col.Len(), d.NumObs())
	}
	d.Obs[key] = col
	return nil
}

// SetObsm stores a per-cell matrix annotation such as a lineage membership.
func (d *Dataset) SetObsm(key string, m mat.Matrix) error {
	if r, _ := m.Dims(); r != d.NumObs() {
		return apperrors.Validation(core.ErrInvalidShape,
			"annotation %q has %d rows, expected %d", key, r, d.NumObs())
	}
	d.Obsm[key] = m
	return nil
}

// Lineage returns the lineage membership stored under key.
func (d *Dataset) Lineage(key string) (*lineage.Lineage, error) {
	m, ok := d.Obsm[key]
	if !ok {
		return nil, apperrors.NotFound(core.ErrKeyNotFound, "lineage key %q not found in obsm", key)
	}
	l, ok := m.(*lineage.Lineage)
	if !ok {
		return nil, apperrors.Validation(core.ErrInvalidType,
			"expected obsm[%q] to be of type *lineage.Lineage, found %T", key, m)
	}
	return l, nil
}

// VarIndex resolves a gene name to its column.
func (d *Dataset) VarIndex(gene string) (int, error) {
	j, ok := d.varIndex[gene]
	if !ok {
		return 0, apperrors.NotFound(core.ErrGeneNotFound, "gene %q not found", gene)
	}
	return j, nil
}

// HasDataKey reports whether key names X, obs or an existing layer.
func (d *Dataset) HasDataKey(key string) bool {
	if key == KeyX || key == KeyObs {
		return true
	}
	_, ok := d.Layers[key]
	return ok
}

// Vector returns a dense copy of one variable. For KeyObs, name is a numeric
// annotation; otherwise name is a gene read from X or the named layer.
func (d *Dataset) Vector(dataKey, name string) ([]float64, error) {
	if dataKey == KeyObs {
		col, ok := d.Obs[name]
		if !ok {
			return nil, apperrors.NotFound(core.ErrKeyNotFound, "unable to find key %q in obs", name)
		}
		return col.Floats()
	}

	m := d.X
	if dataKey != KeyX {
		layer, ok := d.Layers[dataKey]
		if !ok {
			return nil, apperrors.NotFound(core.ErrKeyNotFound, "data key %q not found in layers", dataKey)
		}
		m = layer
	}
	j, err := d.VarIndex(name)
	if err != nil {
		return nil, err
	}
	return ColumnOf(m, j), nil
}

// ColumnOf returns a dense copy of column j, reading CSR storage without densifying it.
func ColumnOf(m mat.Matrix, j int) []float64 {
	if s, ok := m.(*sparse.CSR); ok {
		return sparseCol(s, j)
	}
	return mat.Col(nil, j, m)
}
