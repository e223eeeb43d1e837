package excel

import (
	"cellfate/domain/core"
	apperrors "cellfate/internal/errors"
)

// Table is a rectangular block of cells below a header row.
type Table struct {
	Headers []string   // Column headers
	Rows    [][]string // Data rows, each as wide as Headers
}

// ColumnIndex returns the position of a header.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, h := range t.Headers {
		if h == name {
			return i, nil
		}
	}
	return -1, apperrors.NotFound(core.ErrKeyNotFound, "column %q not found, valid columns are: %v", name, t.Headers)
}

// Column returns the values of column j.
func (t *Table) Column(j int) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out
}
