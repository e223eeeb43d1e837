package dataset

import (
	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// StatisticalType tells numeric annotations from categorical ones.
type StatisticalType string

const (
	TypeNumeric     StatisticalType = "numeric"
	TypeCategorical StatisticalType = "categorical"
)

// Column is a per-cell annotation. Exactly one of Numeric or Categorical is
// set, matching Type. Categorical entries use "" for missing labels.
type Column struct {
	Type        StatisticalType
	Numeric     []float64
	Categorical []string
}

// NumericColumn wraps per-cell numbers such as pseudotime.
func NumericColumn(v []float64) Column {
	return Column{Type: TypeNumeric, Numeric: v}
}

// CategoricalColumn wraps per-cell labels such as terminal states.
func CategoricalColumn(v []string) Column {
	return Column{Type: TypeCategorical, Categorical: v}
}

// Len returns the number of cells.
func (c Column) Len() int {
	if c.Type == TypeCategorical {
		return len(c.Categorical)
	}
	return len(c.Numeric)
}

// Floats returns a copy of a numeric column.
func (c Column) Floats() ([]float64, error) {
	if c.Type != TypeNumeric {
		return nil, apperrors.Validation(core.ErrInvalidType, "expected a numeric annotation, found %s", c.Type)
	}
	return append([]float64(nil), c.Numeric...), nil
}

// Labels returns a copy of a categorical column.
func (c Column) Labels() ([]string, error) {
	if c.Type != TypeCategorical {
		return nil, apperrors.Validation(core.ErrInvalidType, "expected a categorical annotation, found %s", c.Type)
	}
	return append([]string(nil), c.Categorical...), nil
}
